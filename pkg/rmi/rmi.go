// Package rmi implements the engine's learned primary-key index: a
// two-level Recursive Model Index (root linear model routes a key to one
// of K leaf segment models, each of which predicts a position within its
// own sorted subrange).
//
// Grounded on the original implementation's RMI (src/index.rs): the
// root/segment linear-regression training, 95th-percentile-plus-buffer
// error bound, and adjacent-segment fallback are all carried over
// unchanged in algorithm. The one deliberate deviation is the retrain
// cadence: spec.md fixes it at every 1,000 inserts, where the original
// used 10,000.
package rmi

import (
	"sort"

	"github.com/omendb/omendb/internal/logger"
)

// RetrainInterval is the number of inserts between automatic retrains.
const RetrainInterval = 1000

// maxErrorCap bounds how wide a search window any segment model may report,
// regardless of measured error.
const maxErrorCap = 200

// pair is a trained (key, position) entry.
type pair struct {
	key int64
	pos int
}

// segment is a single leaf-layer linear model: predicts an in-segment
// offset for keys in [data[startIdx].key, data[endIdx-1].key].
type segment struct {
	slope, intercept float64
	startIdx, endIdx int
	maxError         int
}

// Index is a Recursive Model Index over int64 keys mapped to row positions.
// Not safe for concurrent use without external synchronization; callers
// integrating it into the table layer are expected to serialize writers.
type Index struct {
	rootSlope, rootIntercept float64
	segments                 []segment
	data                     []pair

	numSegments int
	sinceTrain  int
	needsRetrain bool

	log *logger.Logger
}

// segmentCountFor picks the leaf-model count by data size, per spec.md §4.5
// ("K∈{4,8,16} by size").
func segmentCountFor(n int) int {
	switch {
	case n > 1_000_000:
		return 16
	case n > 100_000:
		return 8
	default:
		return 4
	}
}

// New builds an empty index sized for an expected dataset of n keys.
func New(n int, log *logger.Logger) *Index {
	return &Index{
		numSegments: segmentCountFor(n),
		log:         log,
	}
}

// Len reports the number of trained (key, position) pairs.
func (ix *Index) Len() int { return len(ix.data) }

// Insert adds or overwrites the position for key, per spec.md §4.5: binary
// search the sorted pair array; on an exact match overwrite the stored
// position, else insert in sorted order. Marks the index dirty and retrains
// automatically every RetrainInterval inserts.
func (ix *Index) Insert(key int64, pos int) {
	i := sort.Search(len(ix.data), func(i int) bool { return ix.data[i].key >= key })
	if i < len(ix.data) && ix.data[i].key == key {
		ix.data[i].pos = pos
	} else {
		ix.data = append(ix.data, pair{})
		copy(ix.data[i+1:], ix.data[i:])
		ix.data[i] = pair{key: key, pos: pos}
	}
	ix.needsRetrain = true
	ix.sinceTrain++
	if ix.sinceTrain >= RetrainInterval {
		ix.Retrain()
	}
}

// BatchInsert sorts entries by key before inserting, turning random-order
// bulk load into sequential load (spec.md §4.5's recommended fast path).
func (ix *Index) BatchInsert(keys []int64, positions []int) {
	type kv struct {
		key int64
		pos int
	}
	entries := make([]kv, len(keys))
	for i := range keys {
		entries[i] = kv{keys[i], positions[i]}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	for _, e := range entries {
		ix.Insert(e.key, e.pos)
	}
}

// Retrain rebuilds the root and segment models from the current sorted
// data. Safe to call with zero or few keys.
func (ix *Index) Retrain() {
	ix.sinceTrain = 0
	ix.needsRetrain = false

	n := len(ix.data)
	if n == 0 {
		ix.segments = nil
		return
	}

	minKey := float64(ix.data[0].key)
	maxKey := float64(ix.data[n-1].key)
	keyRange := maxKey - minKey
	if keyRange < 1.0 {
		keyRange = 1.0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range ix.data {
		x := (float64(p.key) - minKey) / keyRange
		y := (float64(i) / float64(n)) * float64(ix.numSegments)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	nF := float64(n)
	denom := nF*sumXX - sumX*sumX
	if abs(denom) > 1e-10 {
		normSlope := (nF*sumXY - sumX*sumY) / denom
		normIntercept := (sumY - normSlope*sumX) / nF
		ix.rootSlope = normSlope / keyRange
		ix.rootIntercept = normIntercept - ix.rootSlope*minKey
	} else {
		ix.rootSlope = 0
		ix.rootIntercept = 0
	}

	segSize := (n + ix.numSegments - 1) / ix.numSegments
	ix.segments = ix.segments[:0]
	for m := 0; m < ix.numSegments; m++ {
		start := m * segSize
		end := min(n, (m+1)*segSize)
		if start >= end {
			break
		}
		slope, intercept, maxErr := trainSegment(ix.data[start:end])
		ix.segments = append(ix.segments, segment{
			slope: slope, intercept: intercept,
			startIdx: start, endIdx: end, maxError: maxErr,
		})
	}

	if ix.log != nil {
		avgErr, maxErr := 0, 0
		if len(ix.segments) > 0 {
			sum := 0
			for _, s := range ix.segments {
				sum += s.maxError
				if s.maxError > maxErr {
					maxErr = s.maxError
				}
			}
			avgErr = sum / len(ix.segments)
		}
		ix.log.Info("learned index retrained").
			Int("keys", n).Int("segments", len(ix.segments)).
			Int("avg_max_error", avgErr).Int("max_error_bound", maxErr).Send()
	}
}

// trainSegment fits one leaf linear model over data[start:end] (already a
// sub-slice) and computes its 95th-percentile-plus-buffer error bound by
// sampling the first/middle/last 50 entries, per spec.md §4.5.
func trainSegment(seg []pair) (slope, intercept float64, maxError int) {
	n := len(seg)
	if n == 0 {
		return 0, 0, 0
	}

	minKey := float64(seg[0].key)
	keyRange := float64(seg[n-1].key - seg[0].key)

	var sumX, sumY, sumXY, sumXX float64
	nF := float64(n)
	for i, p := range seg {
		x := 0.0
		if keyRange > 0 {
			x = (float64(p.key) - minKey) / keyRange
		}
		y := float64(i) / nF
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := nF*sumXX - sumX*sumX
	if abs(denom) > 1e-10 {
		s := (nF*sumXY - sumX*sumY) / denom
		ic := (sumY - s*sumX) / nF
		rangeOrOne := keyRange
		if rangeOrOne < 1.0 {
			rangeOrOne = 1.0
		}
		slope = s * nF / rangeOrOne
		intercept = ic*nF - slope*minKey
	}

	errors := sampleErrors(seg, slope, intercept)
	sort.Ints(errors)
	p95Idx := int(float64(len(errors)) * 0.95)
	if p95Idx >= len(errors) {
		p95Idx = len(errors) - 1
	}
	p95 := 0
	if p95Idx >= 0 {
		p95 = errors[p95Idx]
	}
	maxError = p95 + 5
	if maxError < 1 {
		maxError = 1
	}
	if maxError > maxErrorCap {
		maxError = maxErrorCap
	}
	return slope, intercept, maxError
}

// sampleErrors predicts positions for the first/middle/last 50 entries of
// seg (capped by segment length, overlapping on small segments) and returns
// the absolute prediction error for each sample.
func sampleErrors(seg []pair, slope, intercept float64) []int {
	n := len(seg)
	var errs []int

	predict := func(i int) int {
		p := round(slope*float64(seg[i].key) + intercept)
		return iabs(p - i)
	}

	first := min(50, n)
	for i := 0; i < first; i++ {
		errs = append(errs, predict(i))
	}
	if n > 100 {
		midStart := n/2 - 25
		if midStart < 0 {
			midStart = 0
		}
		for i := midStart; i < midStart+50 && i < n; i++ {
			errs = append(errs, predict(i))
		}
	}
	if n > 50 {
		lastStart := n - 50
		for i := lastStart; i < n; i++ {
			errs = append(errs, predict(i))
		}
	}
	return errs
}

// Search returns the stored position for key, or false if absent. Uses the
// trained models when available; falls back to a full binary search when
// the index needs retraining or has never been trained, and whenever the
// predicted (or adjacent) segment does not yield the key, per spec.md §4.5
// ("the learned model affects throughput only, never correctness").
func (ix *Index) Search(key int64) (int, bool) {
	if ix.needsRetrain || len(ix.segments) == 0 {
		return ix.binarySearch(key)
	}

	modelIdx := ix.predictSegment(key)
	seg := ix.segments[modelIdx]

	if !ix.segmentCovers(seg, key) {
		adjIdx := -1
		if key < ix.data[seg.startIdx].key && modelIdx > 0 {
			adjIdx = modelIdx - 1
		} else if key > ix.data[seg.endIdx-1].key && modelIdx+1 < len(ix.segments) {
			adjIdx = modelIdx + 1
		}
		if adjIdx < 0 {
			return ix.binarySearch(key)
		}
		adj := ix.segments[adjIdx]
		if !ix.segmentCovers(adj, key) {
			return ix.binarySearch(key)
		}
		if pos, ok := ix.searchInSegment(adj, key); ok {
			return pos, true
		}
		return ix.binarySearch(key)
	}

	if pos, ok := ix.searchInSegment(seg, key); ok {
		return pos, true
	}
	return ix.binarySearch(key)
}

func (ix *Index) predictSegment(key int64) int {
	idx := round(ix.rootSlope*float64(key) + ix.rootIntercept)
	if idx < 0 {
		idx = 0
	}
	if max := len(ix.segments) - 1; idx > max {
		idx = max
	}
	return idx
}

func (ix *Index) segmentCovers(s segment, key int64) bool {
	if s.startIdx >= len(ix.data) || s.endIdx > len(ix.data) || s.startIdx >= s.endIdx {
		return false
	}
	return key >= ix.data[s.startIdx].key && key <= ix.data[s.endIdx-1].key
}

func (ix *Index) searchInSegment(s segment, key int64) (int, bool) {
	predicted := round(s.slope*float64(key) + s.intercept)
	if predicted < 0 {
		predicted = 0
	}
	globalPos := s.startIdx + predicted
	if max := s.endIdx - 1; globalPos > max {
		globalPos = max
	}

	if globalPos < len(ix.data) && ix.data[globalPos].key == key {
		return ix.data[globalPos].pos, true
	}

	start := globalPos - s.maxError
	if start < s.startIdx {
		start = s.startIdx
	}
	end := globalPos + s.maxError + 1
	if end > s.endIdx {
		end = s.endIdx
	}
	if end > len(ix.data) {
		end = len(ix.data)
	}
	if start >= end {
		return 0, false
	}

	window := ix.data[start:end]
	i := sort.Search(len(window), func(i int) bool { return window[i].key >= key })
	if i < len(window) && window[i].key == key {
		return window[i].pos, true
	}
	return 0, false
}

func (ix *Index) binarySearch(key int64) (int, bool) {
	i := sort.Search(len(ix.data), func(i int) bool { return ix.data[i].key >= key })
	if i < len(ix.data) && ix.data[i].key == key {
		return ix.data[i].pos, true
	}
	return 0, false
}

// RangeSearch returns the positions of every stored key in [start, end],
// in key order. Locates the boundary models via the root prediction, then
// walks every segment that might overlap the range and binary-searches
// each for its exact start/end cut.
func (ix *Index) RangeSearch(start, end int64) []int {
	if len(ix.data) == 0 || len(ix.segments) == 0 || ix.needsRetrain {
		return ix.rangeBinarySearch(start, end)
	}

	startModel := ix.predictSegment(start)
	endModel := ix.predictSegment(end)

	lo := startModel - 1
	if lo < 0 {
		lo = 0
	}
	hi := endModel + 1
	if max := len(ix.segments) - 1; hi > max {
		hi = max
	}
	for lo > 0 && ix.data[ix.segments[lo].startIdx].key > start {
		lo--
	}
	for hi < len(ix.segments)-1 && ix.data[ix.segments[hi].endIdx-1].key < end {
		hi++
	}

	var results []int
	for m := lo; m <= hi; m++ {
		s := ix.segments[m]
		if s.endIdx <= s.startIdx {
			continue
		}
		if ix.data[s.endIdx-1].key < start || ix.data[s.startIdx].key > end {
			continue
		}

		startPos := ix.boundaryPos(s, start, true)
		endPos := ix.boundaryPos(s, end, false)

		for i := startPos; i < endPos && i < len(ix.data); i++ {
			if ix.data[i].key >= start && ix.data[i].key <= end {
				results = append(results, ix.data[i].pos)
			}
		}
	}
	return results
}

// boundaryPos finds the index of the cut point for key within segment s:
// when isStart, the first index with data[i].key >= key; otherwise the
// first index with data[i].key > key.
func (ix *Index) boundaryPos(s segment, key int64, isStart bool) int {
	if isStart && ix.data[s.startIdx].key >= key {
		return s.startIdx
	}
	if !isStart && ix.data[s.endIdx-1].key <= key {
		return s.endIdx
	}

	predicted := round(s.slope*float64(key) + s.intercept)
	if predicted < 0 {
		predicted = 0
	}
	pos := s.startIdx + predicted
	if max := s.endIdx - 1; pos > max {
		pos = max
	}
	searchStart := pos - s.maxError
	if searchStart < s.startIdx {
		searchStart = s.startIdx
	}
	searchEnd := pos + s.maxError + 1
	if searchEnd > s.endIdx {
		searchEnd = s.endIdx
	}

	window := ix.data[searchStart:searchEnd]
	if isStart {
		i := sort.Search(len(window), func(i int) bool { return window[i].key >= key })
		return searchStart + i
	}
	i := sort.Search(len(window), func(i int) bool { return window[i].key > key })
	return searchStart + i
}

func (ix *Index) rangeBinarySearch(start, end int64) []int {
	lo := sort.Search(len(ix.data), func(i int) bool { return ix.data[i].key >= start })
	hi := sort.Search(len(ix.data), func(i int) bool { return ix.data[i].key > end })
	if lo >= hi {
		return nil
	}
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, ix.data[i].pos)
	}
	return out
}

// CountRange reports the number of keys in [start, end].
func (ix *Index) CountRange(start, end int64) int {
	return len(ix.RangeSearch(start, end))
}

// MaxErrorBound reports the widest search window any trained segment uses,
// useful for callers sizing a manual scan fallback.
func (ix *Index) MaxErrorBound() int {
	if len(ix.segments) == 0 {
		return 100
	}
	maxErr := 0
	for _, s := range ix.segments {
		if s.maxError > maxErr {
			maxErr = s.maxError
		}
	}
	return maxErr
}

// NeedsRetrain reports whether inserts have occurred since the last Retrain.
func (ix *Index) NeedsRetrain() bool { return ix.needsRetrain }

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func iabs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
