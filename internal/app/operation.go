package app

import "dotkeep/internal/journal"

// Operation tracks one CLI invocation. Operations are created in memory
// with RunID=0. Only state-changing commands record them in the journal
// (giving them an auto-increment run ID); read-only commands leave no row.
type Operation struct {
	OpID   string
	Name   string
	RunID  int64
	Status string
	Detail string
}

// NewOperation creates a new in-memory operation record.
func NewOperation(opID, name string) *Operation {
	return &Operation{
		OpID:   opID,
		Name:   name,
		Status: journal.StatusOK,
	}
}

// Persisted returns true if this operation has been recorded in the journal.
func (op *Operation) Persisted() bool {
	return op.RunID != 0
}
