package wal

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/omendb/omendb/internal/dberr"
)

// segmentReader reads framed entries sequentially from one segment file,
// skipping forward past corruption instead of failing the whole scan.
type segmentReader struct {
	fd *os.File
}

func newSegmentReader(path string) (*segmentReader, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, dberr.IOf("wal: open segment %s: %v", path, err)
	}
	return &segmentReader{fd: fd}, nil
}

// errCorruptFrame marks a frame whose length prefix was legible but whose
// CRC or body didn't decode: the segment can still be scanned past it,
// unlike a truncated trailing frame (reported as io.EOF).
var errCorruptFrame = dberr.Corruptionf("wal: corrupt frame")

// next reads one entry. It returns io.EOF at a clean end of file or a
// truncated trailing frame (expected after a crash mid-write), and
// errCorruptFrame for a complete frame that fails CRC/decoding (the
// length prefix was legible, so the caller can keep scanning).
func (r *segmentReader) next() (*Entry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.fd, lenBuf[:]); err != nil {
		return nil, io.EOF
	}
	frameLen := binary.LittleEndian.Uint32(lenBuf[:])
	if frameLen > MaxEntrySize {
		return nil, io.EOF
	}

	body := make([]byte, frameLen)
	if _, err := io.ReadFull(r.fd, body); err != nil {
		return nil, io.EOF
	}

	full := make([]byte, 4+len(body))
	copy(full, lenBuf[:])
	copy(full[4:], body)

	e, err := DecodeEntry(full)
	if err != nil {
		return nil, errCorruptFrame
	}
	return e, nil
}

func (r *segmentReader) close() error { return r.fd.Close() }

// Reader iterates every entry across a WAL's full segment history, in
// replay order (oldest rotated segment first, active segment last).
type Reader struct {
	files   []string
	current int
	seg     *segmentReader
}

// NewReader builds a Reader over an explicit, already-ordered file list
// (as produced by WAL.segmentFiles, or assembled by a caller for tests).
func NewReader(files []string) *Reader {
	return &Reader{files: files, current: -1}
}

// Next returns the next entry, or io.EOF once every segment is exhausted.
func (r *Reader) Next() (*Entry, error) {
	for {
		if r.seg == nil {
			r.current++
			if r.current >= len(r.files) {
				return nil, io.EOF
			}
			seg, err := newSegmentReader(r.files[r.current])
			if err != nil {
				return nil, err
			}
			r.seg = seg
		}

		e, err := r.seg.next()
		if err == io.EOF {
			r.seg.close()
			r.seg = nil
			continue
		}
		if err == errCorruptFrame {
			continue // skip this frame, keep scanning the same segment
		}
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// Close releases the current segment file, if any.
func (r *Reader) Close() error {
	if r.seg != nil {
		return r.seg.close()
	}
	return nil
}

// ReadAll drains every entry from files in order.
func ReadAll(files []string) ([]*Entry, error) {
	r := NewReader(files)
	defer r.Close()

	var entries []*Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
