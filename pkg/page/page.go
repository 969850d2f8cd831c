// Package page implements the fixed-size paged file: header page, free
// list, read-through page cache, and the multi-writer page lock manager.
//
// Grounded on the teacher's pkg/storage/kv.go (mmap-backed KV file with a
// signature-checked meta page and two-phase fsync commit) and
// pkg/storage/freelist.go (persisted free list embedded in page bodies),
// generalized from the teacher's single meta-page/B+Tree-only file to
// spec.md §4.1/§6's paged file: a dedicated header page plus a free list
// that is a plain singly linked list through freed page bodies (the
// teacher's free list is an unrolled linked list with its own per-node
// capacity; spec.md asks for the simpler singly-linked form, so the
// unrolled structure is not carried over).
package page

import (
	"encoding/binary"

	"github.com/omendb/omendb/internal/dberr"
)

const (
	// HeaderMagic identifies an OmenDB paged file.
	HeaderMagic = "OMENDB01"
	// HeaderPageSize is the fixed size of the header page.
	HeaderPageSize = 4096
	// DefaultPageSize is the fixed size of a data page.
	DefaultPageSize = 16 * 1024
	// FormatVersion is the on-disk format version.
	FormatVersion = 1

	// PageIDInvalid is the reserved "no page" sentinel.
	PageIDInvalid PageID = 0
)

// PageID is a monotonically assigned identifier for a data page. 0 is
// reserved (never allocated).
type PageID uint64

// Page is a single fixed-size page.
type Page struct {
	ID   PageID
	Data []byte
}

// header mirrors the on-disk 4 KiB header page:
//
//	magic[8] | version:u32 | page_count:u64 | free_list_head:u64 | checksum:u32
type header struct {
	magic        [8]byte
	version      uint32
	pageCount    uint64
	freeListHead PageID
	checksum     uint32
}

func newHeader() *header {
	h := &header{version: FormatVersion, pageCount: 0, freeListHead: PageIDInvalid}
	copy(h.magic[:], HeaderMagic)
	return h
}

func (h *header) encode() []byte {
	buf := make([]byte, HeaderPageSize)
	copy(buf[0:8], h.magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.version)
	binary.LittleEndian.PutUint64(buf[12:20], h.pageCount)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(h.freeListHead))
	sum := additiveChecksum(buf[0:28])
	binary.LittleEndian.PutUint32(buf[28:32], sum)
	h.checksum = sum
	return buf
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < 32 {
		return nil, dberr.Corruptionf("page: header too short")
	}
	h := &header{}
	copy(h.magic[:], buf[0:8])
	if string(h.magic[:]) != HeaderMagic {
		return nil, dberr.Corruptionf("page: bad header magic %q", h.magic[:])
	}
	h.version = binary.LittleEndian.Uint32(buf[8:12])
	h.pageCount = binary.LittleEndian.Uint64(buf[12:20])
	h.freeListHead = PageID(binary.LittleEndian.Uint64(buf[20:28]))
	h.checksum = binary.LittleEndian.Uint32(buf[28:32])
	want := additiveChecksum(buf[0:28])
	if want != h.checksum {
		return nil, dberr.Corruptionf("page: header checksum mismatch: got %d want %d", h.checksum, want)
	}
	return h, nil
}

// additiveChecksum is the "checksum:u32 (sum-based)" spec.md calls for: a
// plain additive checksum, not a CRC, over the preceding header bytes.
func additiveChecksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var word uint32
		for j := 0; j < 4 && i+j < len(data); j++ {
			word |= uint32(data[i+j]) << (8 * uint(j))
		}
		sum += word
	}
	return sum
}

// freeListNext reads the next-free-page pointer stored in the first 8
// bytes of a freed page's body (spec.md §3: "next_free_page = first 8 bytes
// of page body, 0 sentinel for end").
func freeListNext(body []byte) PageID {
	return PageID(binary.LittleEndian.Uint64(body[0:8]))
}

func setFreeListNext(body []byte, next PageID) {
	binary.LittleEndian.PutUint64(body[0:8], uint64(next))
}

func validatePageID(id PageID, pageCount uint64) error {
	if id == PageIDInvalid || uint64(id) >= pageCount {
		return dberr.InvalidInputf("page: id %d out of range (page_count=%d)", id, pageCount)
	}
	return nil
}
