// Package hnsw implements a hierarchical navigable small-world graph index
// for approximate nearest-neighbor vector search (spec.md §4.11), grounded
// on custom_hnsw/index.rs. Construction parameters, distance functions, and
// persistence follow that file; container/heap stands in for Rust's
// BinaryHeap, and a length-prefixed JSON/binary hybrid stands in for
// bincode, since no bincode-equivalent crate is available in the example
// pack (the same substitution pkg/table makes for Arrow/Parquet).
package hnsw

import "math"

// Params are the construction-time knobs for an Index.
type Params struct {
	M             int     // max bidirectional links per node above level 0
	EfConstruction int    // candidate list size during insertion
	MaxLevel      uint8   // hard cap on a node's top level
	Ml            float64 // level-generation factor, normally 1/ln(M)
	Seed          uint64  // deterministic RNG seed
}

// DefaultParams mirrors HNSWParams::default() in the original: M=16,
// ef_construction=200, max_level=16, ml=1/ln(M).
func DefaultParams() Params {
	m := 16
	return Params{
		M:              m,
		EfConstruction: 200,
		MaxLevel:       16,
		Ml:             1.0 / math.Log(float64(m)),
		Seed:           0x2545F4914F6CDD1D, // arbitrary fixed seed, reproducible across runs
	}
}

// Validate rejects parameter combinations the insertion algorithm can't
// handle (M=0 would make every neighbor selection a no-op; MaxLevel=0 would
// make random_level's cap degenerate).
func (p Params) Validate() error {
	if p.M == 0 {
		return errInvalidParams("M must be > 0")
	}
	if p.MaxLevel == 0 {
		return errInvalidParams("MaxLevel must be > 0")
	}
	if p.EfConstruction == 0 {
		return errInvalidParams("EfConstruction must be > 0")
	}
	return nil
}

type paramsError string

func (e paramsError) Error() string { return string(e) }
func errInvalidParams(msg string) error { return paramsError(msg) }

// DistanceFunc selects the pluggable distance metric (spec.md §4.11:
// "Distance: pluggable (L2, negative inner product, cosine)").
type DistanceFunc int

const (
	L2 DistanceFunc = iota
	NegativeInnerProduct
	Cosine
)

func (d DistanceFunc) String() string {
	switch d {
	case L2:
		return "l2"
	case NegativeInnerProduct:
		return "negative_inner_product"
	case Cosine:
		return "cosine"
	default:
		return "unknown"
	}
}

// Distance computes the configured metric between two equal-length vectors.
func (d DistanceFunc) Distance(a, b []float32) float32 {
	switch d {
	case NegativeInnerProduct:
		var dot float32
		for i := range a {
			dot += a[i] * b[i]
		}
		return -dot
	case Cosine:
		var dot, na, nb float32
		for i := range a {
			dot += a[i] * b[i]
			na += a[i] * a[i]
			nb += b[i] * b[i]
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
	default: // L2
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return float32(math.Sqrt(float64(sum)))
	}
}

// node is the per-vector metadata tracked alongside its vector and
// neighbor lists: its storage id and the highest level it participates in.
type node struct {
	id    uint32
	level uint8
}

// SearchResult is one ranked hit from Index.Search.
type SearchResult struct {
	ID       uint32
	Distance float32
}

// candidate pairs a node id with its distance to the active query, used by
// the search_layer priority queues.
type candidate struct {
	id   uint32
	dist float32
}
