package sqlexec

import "github.com/omendb/omendb/pkg/value"

// ResultKind tags which shape of ExecutionResult is populated
// (spec.md §4.10: "typed results {Created, Inserted{n}, Updated{n},
// Deleted{n}, Selected{cols, rows, data}, TransactionStarted|Committed|
// RolledBack{txn_id}}").
type ResultKind int

const (
	ResultCreated ResultKind = iota
	ResultDropped
	ResultInserted
	ResultUpdated
	ResultDeleted
	ResultSelected
	ResultTxnStarted
	ResultTxnCommitted
	ResultTxnRolledBack
)

// ExecutionResult is the single return shape for every Statement.
type ExecutionResult struct {
	Kind    ResultKind
	Count   int // rows affected for Inserted/Updated/Deleted
	Columns []string
	Rows    []value.Row
	TxnID   uint64
}
