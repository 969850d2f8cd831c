package hnsw

import (
	"container/heap"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"sort"

	"github.com/omendb/omendb/internal/dberr"
)

var hnswMagic = [8]byte{'H', 'N', 'S', 'W', 'I', 'D', 'X', 0}

const hnswVersion uint32 = 1

// Index is a hierarchical navigable small-world graph over fixed-dimension
// vectors. Grounded on custom_hnsw/index.rs's HNSWIndex: Insert/Search and
// their helpers are a direct port, substituting Go's container/heap for
// Rust's BinaryHeap<Reverse<_>> pairing.
type Index struct {
	nodes      []node
	neighbors  *neighborLists
	vectors    *vectorStorage
	entryPoint *uint32
	params     Params
	distanceFn DistanceFunc
	rngState   uint64
}

// New creates an empty index over the given dimensionality. useQuantization
// selects binary-quantized storage instead of full precision.
func New(dimensions int, params Params, distanceFn DistanceFunc, useQuantization bool) (*Index, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var vectors *vectorStorage
	if useQuantization {
		vectors = newBinaryQuantizedStorage(dimensions)
	} else {
		vectors = newFullPrecisionStorage(dimensions)
	}
	return &Index{
		neighbors:  newNeighborLists(int(params.MaxLevel)),
		vectors:    vectors,
		params:     params,
		distanceFn: distanceFn,
		rngState:   params.Seed,
	}, nil
}

func (ix *Index) Len() int          { return len(ix.nodes) }
func (ix *Index) IsEmpty() bool     { return len(ix.nodes) == 0 }
func (ix *Index) Dimensions() int   { return ix.vectors.Dimensions() }

// EntryPoint returns the current top-level entry node, if any.
func (ix *Index) EntryPoint() (uint32, bool) {
	if ix.entryPoint == nil {
		return 0, false
	}
	return *ix.entryPoint, true
}

func (ix *Index) NodeLevel(id uint32) (uint8, bool) {
	if int(id) >= len(ix.nodes) {
		return 0, false
	}
	return ix.nodes[id].level, true
}

func (ix *Index) NeighborCount(id uint32, level uint8) int {
	return len(ix.neighbors.get(id, level))
}

// randomLevel assigns an exponentially-decaying level via a deterministic
// linear congruential generator, matching the original bit-for-bit so
// persisted rng_state replays identically after Load.
func (ix *Index) randomLevel() uint8 {
	ix.rngState = ix.rngState*6364136223846793005 + 1
	randVal := float64(ix.rngState>>32) / float64(^uint32(0))
	if randVal <= 0 {
		randVal = 1e-12 // avoid log(0)
	}
	level := uint8(-math.Log(randVal) * ix.params.Ml)
	if level > ix.params.MaxLevel-1 {
		return ix.params.MaxLevel - 1
	}
	return level
}

func (ix *Index) distance(idA, idB uint32) float32 {
	if ix.vectors.quantized {
		return float32(hammingDistance(ix.vectors.bits[idA], ix.vectors.bits[idB]))
	}
	return ix.distanceFn.Distance(ix.vectors.Get(idA), ix.vectors.Get(idB))
}

func (ix *Index) distanceToQuery(query []float32, id uint32) float32 {
	return ix.vectors.Distance(ix.distanceFn, query, id)
}

// Insert validates dimensionality, stores the vector, assigns it a random
// level, and (after the first node) links it into the graph.
func (ix *Index) Insert(vector []float32) (uint32, error) {
	if len(vector) != ix.Dimensions() {
		return 0, dberr.InvalidInputf("hnsw: vector has %d dimensions, want %d", len(vector), ix.Dimensions())
	}

	id, err := ix.vectors.Insert(vector)
	if err != nil {
		return 0, err
	}
	level := ix.randomLevel()
	ix.nodes = append(ix.nodes, node{id: id, level: level})

	if ix.entryPoint == nil {
		ep := id
		ix.entryPoint = &ep
		return id, nil
	}

	ix.insertIntoGraph(id, vector, level)

	entryLevel := ix.nodes[*ix.entryPoint].level
	if level > entryLevel {
		ep := id
		ix.entryPoint = &ep
	}
	return id, nil
}

func (ix *Index) insertIntoGraph(id uint32, vector []float32, level uint8) {
	entryPoint := *ix.entryPoint
	entryLevel := ix.nodes[entryPoint].level

	nearest := []uint32{entryPoint}
	for lc := int(entryLevel); lc > int(level); lc-- {
		nearest = ix.searchLayer(vector, nearest, 1, uint8(lc))
	}

	for lc := int(level); lc >= 0; lc-- {
		candidates := ix.searchLayer(vector, nearest, ix.params.EfConstruction, uint8(lc))

		m := ix.params.M
		if lc == 0 {
			m *= 2
		}

		neighbors := ix.selectNeighborsHeuristic(candidates, m, vector)
		for _, neighborID := range neighbors {
			ix.neighbors.addBidirectional(id, neighborID, uint8(lc))
		}

		for _, neighborID := range neighbors {
			nn := ix.neighbors.get(neighborID, uint8(lc))
			if len(nn) > m {
				pruned := ix.selectNeighborsHeuristic(nn, m, ix.vectors.Get(neighborID))
				ix.neighbors.set(neighborID, uint8(lc), pruned)
			}
		}

		nearest = candidates
	}
}

// selectNeighborsHeuristic implements the distance-diversity heuristic from
// Malkov 2018 §4: accept a candidate only if it is closer to the query than
// to every already-accepted neighbor, then backfill any remaining slots
// with the closest leftover candidates.
func (ix *Index) selectNeighborsHeuristic(candidates []uint32, m int, queryVector []float32) []uint32 {
	if len(candidates) <= m {
		out := make([]uint32, len(candidates))
		copy(out, candidates)
		return out
	}

	type scored struct {
		id   uint32
		dist float32
	}
	sortedCandidates := make([]scored, len(candidates))
	for i, id := range candidates {
		sortedCandidates[i] = scored{id, ix.distanceToQuery(queryVector, id)}
	}
	sort.Slice(sortedCandidates, func(i, j int) bool { return sortedCandidates[i].dist < sortedCandidates[j].dist })

	result := make([]uint32, 0, m)
	var remaining []uint32

	for _, c := range sortedCandidates {
		if len(result) >= m {
			remaining = append(remaining, c.id)
			continue
		}
		good := true
		for _, acceptedID := range result {
			if ix.distance(c.id, acceptedID) < c.dist {
				good = false
				break
			}
		}
		if good {
			result = append(result, c.id)
		} else {
			remaining = append(remaining, c.id)
		}
	}

	for _, id := range remaining {
		if len(result) >= m {
			break
		}
		result = append(result, id)
	}
	return result
}

// Search returns up to k nearest neighbors of query, sorted closest-first.
// ef controls the level-0 beam width; a larger ef trades latency for
// recall.
func (ix *Index) Search(query []float32, k, ef int) ([]SearchResult, error) {
	if len(query) != ix.Dimensions() {
		return nil, dberr.InvalidInputf("hnsw: query has %d dimensions, want %d", len(query), ix.Dimensions())
	}
	if ix.IsEmpty() {
		return nil, nil
	}

	entryPoint := *ix.entryPoint
	entryLevel := ix.nodes[entryPoint].level

	nearest := []uint32{entryPoint}
	for lc := int(entryLevel); lc >= 1; lc-- {
		nearest = ix.searchLayer(query, nearest, 1, uint8(lc))
	}

	beamWidth := ef
	if k > beamWidth {
		beamWidth = k
	}
	candidates := ix.searchLayer(query, nearest, beamWidth, 0)

	results := make([]SearchResult, len(candidates))
	for i, id := range candidates {
		results[i] = SearchResult{ID: id, Distance: ix.distanceToQuery(query, id)}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// searchLayer is the greedy beam search at one graph level: a min-heap of
// unexplored candidates drives expansion, while a bounded max-heap holds
// the current best ef results and lets the search stop once nothing closer
// remains to explore.
func (ix *Index) searchLayer(query []float32, entryPoints []uint32, ef int, level uint8) []uint32 {
	visited := make(map[uint32]bool)
	candidates := &minCandidateHeap{}
	working := &maxCandidateHeap{}

	heap.Init(candidates)
	heap.Init(working)

	for _, ep := range entryPoints {
		dist := ix.distanceToQuery(query, ep)
		c := candidate{ep, dist}
		heap.Push(candidates, c)
		heap.Push(working, c)
		visited[ep] = true
	}

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(candidate)

		if working.Len() > 0 && current.dist > (*working)[0].dist {
			break
		}

		for _, neighborID := range ix.neighbors.get(current.id, level) {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			dist := ix.distanceToQuery(query, neighborID)
			n := candidate{neighborID, dist}

			if working.Len() == 0 {
				heap.Push(candidates, n)
				heap.Push(working, n)
				continue
			}
			if dist < (*working)[0].dist || working.Len() < ef {
				heap.Push(candidates, n)
				heap.Push(working, n)
				if working.Len() > ef {
					heap.Pop(working)
				}
			}
		}
	}

	out := make([]uint32, working.Len())
	items := make([]candidate, working.Len())
	copy(items, *working)
	sort.Slice(items, func(i, j int) bool { return items[i].dist < items[j].dist })
	for i, c := range items {
		out[i] = c.id
	}
	return out
}

func (ix *Index) MemoryUsage() int {
	return len(ix.nodes)*5 + ix.neighbors.memoryUsage() + ix.vectors.MemoryUsage()
}

// diskHeader is the JSON-encoded block following the fixed binary header:
// everything that isn't the bulk node/neighbor/vector arrays.
type diskHeader struct {
	DistanceFn DistanceFunc `json:"distance_fn"`
	Params     Params       `json:"params"`
	RngState   uint64       `json:"rng_state"`
	Quantized  bool         `json:"quantized"`
	Thresholds []float32    `json:"thresholds,omitempty"`
}

type diskNeighbors struct {
	PerLevel []map[uint32][]uint32 `json:"per_level"`
}

type diskVectors struct {
	Full [][]float32 `json:"full,omitempty"`
	Bits [][]uint64  `json:"bits,omitempty"`
}

// Save persists the index to path using the layout spec.md §6 names: an
// 8-byte magic, a u32 version, dimensions, node count, an optional entry
// point, then the header/nodes/neighbors/vectors blocks.
func (ix *Index) Save(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return dberr.IOf("hnsw: create %s: %v", tmp, err)
	}
	defer f.Close()

	if err := writeIndex(f, ix); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return dberr.IOf("hnsw: close %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return dberr.IOf("hnsw: rename %s to %s: %v", tmp, path, err)
	}
	return nil
}

func writeIndex(w io.Writer, ix *Index) error {
	if _, err := w.Write(hnswMagic[:]); err != nil {
		return dberr.IOf("hnsw: write magic: %v", err)
	}
	if err := binary.Write(w, binary.LittleEndian, hnswVersion); err != nil {
		return dberr.IOf("hnsw: write version: %v", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ix.Dimensions())); err != nil {
		return dberr.IOf("hnsw: write dimensions: %v", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ix.nodes))); err != nil {
		return dberr.IOf("hnsw: write num_nodes: %v", err)
	}
	if ix.entryPoint != nil {
		w.Write([]byte{1})
		binary.Write(w, binary.LittleEndian, *ix.entryPoint)
	} else {
		w.Write([]byte{0})
	}

	header := diskHeader{
		DistanceFn: ix.distanceFn,
		Params:     ix.params,
		RngState:   ix.rngState,
		Quantized:  ix.vectors.quantized,
		Thresholds: ix.vectors.thresholds,
	}
	if err := writeJSONBlock(w, header); err != nil {
		return err
	}

	for _, n := range ix.nodes {
		binary.Write(w, binary.LittleEndian, n.id)
		w.Write([]byte{n.level})
	}

	if err := writeJSONBlock(w, diskNeighbors{PerLevel: ix.neighbors.perLevel}); err != nil {
		return err
	}
	return writeJSONBlock(w, diskVectors{Full: ix.vectors.full, Bits: ix.vectors.bits})
}

func writeJSONBlock(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return dberr.IOf("hnsw: marshal block: %v", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return dberr.IOf("hnsw: write block length: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		return dberr.IOf("hnsw: write block: %v", err)
	}
	return nil
}

func readJSONBlock(r io.Reader, v any) error {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return dberr.IOf("hnsw: read block length: %v", err)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return dberr.IOf("hnsw: read block: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return dberr.Corruptionf("hnsw: unmarshal block: %v", err)
	}
	return nil
}

// Load reconstructs an index previously written by Save. A magic or
// version mismatch is a hard error (spec.md §4.11, §6).
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dberr.IOf("hnsw: open %s: %v", path, err)
	}
	defer f.Close()

	var magic [8]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return nil, dberr.IOf("hnsw: read magic: %v", err)
	}
	if magic != hnswMagic {
		return nil, dberr.Corruptionf("hnsw: invalid magic bytes %v", magic)
	}

	var version uint32
	if err := binary.Read(f, binary.LittleEndian, &version); err != nil {
		return nil, dberr.IOf("hnsw: read version: %v", err)
	}
	if version != hnswVersion {
		return nil, dberr.Corruptionf("hnsw: unsupported version %d", version)
	}

	var dimensions, numNodes uint32
	binary.Read(f, binary.LittleEndian, &dimensions)
	binary.Read(f, binary.LittleEndian, &numNodes)

	var entryFlag [1]byte
	if _, err := io.ReadFull(f, entryFlag[:]); err != nil {
		return nil, dberr.IOf("hnsw: read entry-point flag: %v", err)
	}
	var entryPoint *uint32
	if entryFlag[0] == 1 {
		var ep uint32
		if err := binary.Read(f, binary.LittleEndian, &ep); err != nil {
			return nil, dberr.IOf("hnsw: read entry point: %v", err)
		}
		entryPoint = &ep
	}

	var header diskHeader
	if err := readJSONBlock(f, &header); err != nil {
		return nil, err
	}

	nodes := make([]node, numNodes)
	for i := range nodes {
		var id uint32
		var level [1]byte
		if err := binary.Read(f, binary.LittleEndian, &id); err != nil {
			return nil, dberr.IOf("hnsw: read node %d: %v", i, err)
		}
		if _, err := io.ReadFull(f, level[:]); err != nil {
			return nil, dberr.IOf("hnsw: read node %d level: %v", i, err)
		}
		nodes[i] = node{id: id, level: level[0]}
	}

	var nb diskNeighbors
	if err := readJSONBlock(f, &nb); err != nil {
		return nil, err
	}
	var vecs diskVectors
	if err := readJSONBlock(f, &vecs); err != nil {
		return nil, err
	}

	vectors := &vectorStorage{
		dims:       int(dimensions),
		quantized:  header.Quantized,
		full:       vecs.Full,
		bits:       vecs.Bits,
		thresholds: header.Thresholds,
	}
	if vectors.Dimensions() != int(dimensions) {
		return nil, dberr.Corruptionf("hnsw: dimension mismatch: header says %d", dimensions)
	}

	return &Index{
		nodes:      nodes,
		neighbors:  &neighborLists{perLevel: nb.PerLevel},
		vectors:    vectors,
		entryPoint: entryPoint,
		params:     header.Params,
		distanceFn: header.DistanceFn,
		rngState:   header.RngState,
	}, nil
}

// minCandidateHeap is a min-heap on distance (closest first) — the
// "candidates" frontier to explore.
type minCandidateHeap []candidate

func (h minCandidateHeap) Len() int            { return len(h) }
func (h minCandidateHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minCandidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minCandidateHeap) Push(x any)         { *h = append(*h, x.(candidate)) }
func (h *minCandidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxCandidateHeap is a max-heap on distance (farthest first) — the bounded
// "working set" of the best ef results seen so far, pruned from the top.
type maxCandidateHeap []candidate

func (h maxCandidateHeap) Len() int            { return len(h) }
func (h maxCandidateHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxCandidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxCandidateHeap) Push(x any)         { *h = append(*h, x.(candidate)) }
func (h *maxCandidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
