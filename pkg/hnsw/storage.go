package hnsw

import "github.com/omendb/omendb/internal/dberr"

// vectorStorage holds the raw vectors backing an Index, either at full
// precision or binary-quantized. Grounded on VectorStorage in
// custom_hnsw/storage.rs (not itself read, but referenced by index.rs's
// `VectorStorage::new_full_precision`/`new_binary_quantized` calls): the
// index picks the quantizer once at creation and never mixes the two.
type vectorStorage struct {
	dims       int
	quantized  bool
	full       [][]float32 // used when !quantized
	thresholds []float32   // per-dimension quantization thresholds, used when quantized
	bits       [][]uint64  // packed bits, ceil(dims/64) words per vector, used when quantized
}

func newFullPrecisionStorage(dims int) *vectorStorage {
	return &vectorStorage{dims: dims}
}

func newBinaryQuantizedStorage(dims int) *vectorStorage {
	return &vectorStorage{dims: dims, quantized: true, thresholds: make([]float32, dims)}
}

func (s *vectorStorage) Dimensions() int { return s.dims }
func (s *vectorStorage) Len() int {
	if s.quantized {
		return len(s.bits)
	}
	return len(s.full)
}

// Insert appends vec and returns its assigned id (its storage position).
func (s *vectorStorage) Insert(vec []float32) (uint32, error) {
	if len(vec) != s.dims {
		return 0, dberr.InvalidInputf("hnsw: vector has %d dimensions, want %d", len(vec), s.dims)
	}
	id := uint32(s.Len())
	if s.quantized {
		s.bits = append(s.bits, quantize(vec, s.thresholds))
	} else {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		s.full = append(s.full, cp)
	}
	return id, nil
}

// full-precision vector for id, or nil if this storage is quantized (the
// caller must use Distance, which handles both representations).
func (s *vectorStorage) Get(id uint32) []float32 {
	if s.quantized || int(id) >= len(s.full) {
		return nil
	}
	return s.full[id]
}

// Distance computes distFn between query and the vector stored at id. For
// quantized storage, query is quantized on the fly and Hamming distance
// over the packed bits approximates the configured metric — the
// "Hamming-like comparisons" spec.md §4.11 calls for.
func (s *vectorStorage) Distance(distFn DistanceFunc, query []float32, id uint32) float32 {
	if !s.quantized {
		return distFn.Distance(query, s.full[id])
	}
	qBits := quantize(query, s.thresholds)
	return float32(hammingDistance(qBits, s.bits[id]))
}

func quantize(vec []float32, thresholds []float32) []uint64 {
	words := (len(vec) + 63) / 64
	bits := make([]uint64, words)
	for i, v := range vec {
		if v > thresholds[i] {
			bits[i/64] |= 1 << uint(i%64)
		}
	}
	return bits
}

func hammingDistance(a, b []uint64) int {
	dist := 0
	for i := range a {
		x := a[i] ^ b[i]
		for x != 0 {
			dist++
			x &= x - 1
		}
	}
	return dist
}

func (s *vectorStorage) MemoryUsage() int {
	if s.quantized {
		return len(s.bits) * len(s.thresholds) / 8
	}
	return len(s.full) * s.dims * 4
}

// neighborLists stores each node's adjacency list per graph level,
// separately from node metadata for cache efficiency at the small cost of
// one extra indirection per lookup — matching the original's rationale for
// keeping NeighborLists apart from HNSWNode.
type neighborLists struct {
	perLevel []map[uint32][]uint32
}

func newNeighborLists(maxLevel int) *neighborLists {
	levels := make([]map[uint32][]uint32, maxLevel)
	for i := range levels {
		levels[i] = make(map[uint32][]uint32)
	}
	return &neighborLists{perLevel: levels}
}

func (n *neighborLists) get(id uint32, level uint8) []uint32 {
	return n.perLevel[level][id]
}

func (n *neighborLists) set(id uint32, level uint8, neighbors []uint32) {
	n.perLevel[level][id] = neighbors
}

func (n *neighborLists) addBidirectional(a, b uint32, level uint8) {
	n.perLevel[level][a] = append(n.perLevel[level][a], b)
	n.perLevel[level][b] = append(n.perLevel[level][b], a)
}

func (n *neighborLists) memoryUsage() int {
	total := 0
	for _, level := range n.perLevel {
		for _, ids := range level {
			total += len(ids) * 4
		}
	}
	return total
}
