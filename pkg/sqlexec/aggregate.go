package sqlexec

import (
	"github.com/omendb/omendb/internal/dberr"
	"github.com/omendb/omendb/pkg/value"
)

// groupKey is a comparable encoding of a row's GROUP BY column values,
// reusing value.Encode so heterogeneous types never collide.
type groupKey string

func encodeGroupKey(row value.Row, idx []int) groupKey {
	var buf []byte
	for _, i := range idx {
		buf = append(buf, value.Encode(row[i])...)
	}
	return groupKey(buf)
}

type aggState struct {
	groupValues value.Row
	count       int64
	sums        map[int]float64
	mins        map[int]value.Value
	maxs        map[int]value.Value
}

// projectAggregate evaluates COUNT/SUM/AVG/MIN/MAX, optionally with GROUP
// BY, then applies ORDER BY/LIMIT/OFFSET to the resulting one-row-per-group
// output (spec.md §4.10: "aggregates (COUNT/SUM/AVG/MIN/MAX with optional
// GROUP BY)").
func (e *Executor) projectAggregate(schema value.Schema, rows []value.Row, s Select) (ExecutionResult, error) {
	groupIdx := make([]int, len(s.GroupBy))
	for i, col := range s.GroupBy {
		p := schema.IndexOf(col)
		if p < 0 {
			return ExecutionResult{}, dberr.InvalidInputf("sqlexec: unknown GROUP BY column %q", col)
		}
		groupIdx[i] = p
	}

	aggCols := make([]int, len(s.Items))
	for i, it := range s.Items {
		if it.Agg == AggCount && it.Column == "" {
			aggCols[i] = -1
			continue
		}
		p := schema.IndexOf(it.Column)
		if p < 0 {
			return ExecutionResult{}, dberr.InvalidInputf("sqlexec: unknown column %q", it.Column)
		}
		aggCols[i] = p
	}

	groups := map[groupKey]*aggState{}
	var order []groupKey
	for _, r := range rows {
		key := encodeGroupKey(r, groupIdx)
		st, ok := groups[key]
		if !ok {
			gv := make(value.Row, len(groupIdx))
			for i, idx := range groupIdx {
				gv[i] = r[idx]
			}
			st = &aggState{
				groupValues: gv,
				sums:        map[int]float64{},
				mins:        map[int]value.Value{},
				maxs:        map[int]value.Value{},
			}
			groups[key] = st
			order = append(order, key)
		}
		st.count++
		for i, it := range s.Items {
			if it.Agg == AggNone || aggCols[i] < 0 {
				continue
			}
			v := r[aggCols[i]]
			updateAgg(st, i, it.Agg, v)
		}
	}

	columns := make([]string, len(s.GroupBy)+len(s.Items))
	for i, c := range s.GroupBy {
		columns[i] = c
	}
	for i, it := range s.Items {
		name := it.Agg.String() + "(" + it.Column + ")"
		if it.Agg == AggCount && it.Column == "" {
			name = "COUNT(*)"
		}
		if it.Alias != "" {
			name = it.Alias
		}
		columns[len(s.GroupBy)+i] = name
	}

	out := make([]value.Row, 0, len(order))
	for _, key := range order {
		st := groups[key]
		row := make(value.Row, 0, len(columns))
		row = append(row, st.groupValues...)
		for i, it := range s.Items {
			row = append(row, aggResult(st, i, it.Agg))
		}
		out = append(out, row)
	}

	if s.OrderBy != nil {
		orderRows(out, schema, columns, *s.OrderBy)
	}
	out = applyLimitOffset(out, s.Limit, s.Offset)

	return ExecutionResult{Kind: ResultSelected, Columns: columns, Rows: out}, nil
}

func updateAgg(st *aggState, itemIdx int, fn AggFunc, v value.Value) {
	switch fn {
	case AggSum, AggAvg:
		st.sums[itemIdx] += numeric(v)
	case AggMin:
		if cur, ok := st.mins[itemIdx]; !ok || value.Compare(v, cur) < 0 {
			st.mins[itemIdx] = v
		}
	case AggMax:
		if cur, ok := st.maxs[itemIdx]; !ok || value.Compare(v, cur) > 0 {
			st.maxs[itemIdx] = v
		}
	}
}

func aggResult(st *aggState, itemIdx int, fn AggFunc) value.Value {
	switch fn {
	case AggCount:
		return value.NewInt64(st.count)
	case AggSum:
		return value.NewFloat64(st.sums[itemIdx])
	case AggAvg:
		if st.count == 0 {
			return value.NewFloat64(0)
		}
		return value.NewFloat64(st.sums[itemIdx] / float64(st.count))
	case AggMin:
		return st.mins[itemIdx]
	case AggMax:
		return st.maxs[itemIdx]
	default:
		return value.NewNull()
	}
}

func numeric(v value.Value) float64 {
	switch v.Typ {
	case value.Int64, value.Timestamp:
		return float64(v.I64)
	case value.UInt64:
		return float64(v.U64)
	case value.Float64:
		return v.F64
	default:
		return 0
	}
}
