package app

import (
	"testing"

	"dotkeep/internal/journal"
)

func TestNewOperation(t *testing.T) {
	op := NewOperation("op-1", "apply")

	if op.OpID != "op-1" {
		t.Errorf("OpID = %q, want %q", op.OpID, "op-1")
	}
	if op.Name != "apply" {
		t.Errorf("Name = %q, want %q", op.Name, "apply")
	}
	if op.Status != journal.StatusOK {
		t.Errorf("Status = %q, want %q", op.Status, journal.StatusOK)
	}
	if op.RunID != 0 {
		t.Errorf("RunID = %d, want 0", op.RunID)
	}
}

func TestOperation_Persisted(t *testing.T) {
	tests := []struct {
		name  string
		runID int64
		want  bool
	}{
		{name: "not persisted when RunID is 0", runID: 0, want: false},
		{name: "persisted when RunID is positive", runID: 1, want: true},
		{name: "persisted when RunID is large", runID: 99999, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Operation{RunID: tt.runID}
			if got := op.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}
