package page

import "github.com/golang/snappy"

// B+Tree node pages begin with a type byte (1=internal, 2=leaf); this byte
// doubles as the "don't compress" signal for the page manager (spec.md
// §6). Any other leading byte may be wrapped in a CompressedPageFormat
// frame.
const (
	btreeNodeTypeInternal = 1
	btreeNodeTypeLeaf     = 2

	compressedPageMagic = 0xC0FFEE01
)

// isIncompressible reports whether a page's leading byte marks it as a
// B+Tree node, which is always stored verbatim.
func isIncompressible(firstByte byte) bool {
	return firstByte == btreeNodeTypeInternal || firstByte == btreeNodeTypeLeaf
}

// compressPage wraps page in a CompressedPageFormat frame using snappy
// (github.com/golang/snappy, the block compressor used elsewhere in the
// example corpus) when doing so helps and the page isn't a B+Tree node.
// Frames are padded to pageSize so page addressing is unaffected.
// Format: magic:u32 LE (0xC0FFEE01) | origLen:u32 LE | compLen:u32 LE |
// snappy bytes | zero pad.
// The magic is a 4-byte improbable constant (not a single byte) so it
// cannot be mistaken for the low bytes of a free-list next-pointer stored
// in an otherwise-uncompressed page body.
func compressPage(data []byte, pageSize int) []byte {
	if len(data) == 0 || isIncompressible(data[0]) {
		return data
	}
	compressed := snappy.Encode(nil, data)
	frameLen := 4 + 4 + 4 + len(compressed)
	if frameLen >= pageSize {
		// Compression didn't pay for itself; store verbatim.
		return data
	}
	out := make([]byte, pageSize)
	putUint32LE(out[0:4], compressedPageMagic)
	putUint32LE(out[4:8], uint32(len(data)))
	putUint32LE(out[8:12], uint32(len(compressed)))
	copy(out[12:], compressed)
	return out
}

// decompressPage reverses compressPage; pages not carrying the compressed
// magic are returned unchanged.
func decompressPage(data []byte) ([]byte, error) {
	if len(data) < 12 || getUint32LE(data[0:4]) != compressedPageMagic {
		return data, nil
	}
	origLen := getUint32LE(data[4:8])
	compLen := getUint32LE(data[8:12])
	if int(compLen) > len(data)-12 {
		return nil, snappy.ErrCorrupt
	}
	out := make([]byte, origLen)
	decoded, err := snappy.Decode(out, data[12:12+compLen])
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
