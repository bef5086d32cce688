package core

import (
	"fmt"
	"time"
)

// =============================================================================
// Changes
// =============================================================================

// ChangeType classifies a difference between the column statistics of two runs.
type ChangeType string

// Change types.
const (
	ChangeSchemaAdd  ChangeType = "schema_add"
	ChangeSchemaDrop ChangeType = "schema_drop"
	ChangeTypeChange ChangeType = "type_change"
	ChangeNullSpike  ChangeType = "null_spike"
	ChangeValueShift ChangeType = "value_shift"
)

// ParseChangeType validates a change type string.
func ParseChangeType(s string) (ChangeType, error) {
	switch ct := ChangeType(s); ct {
	case ChangeSchemaAdd, ChangeSchemaDrop, ChangeTypeChange, ChangeNullSpike, ChangeValueShift:
		return ct, nil
	default:
		return "", fmt.Errorf("unknown change type %q", s)
	}
}

// Change is one typed, severity-tagged difference detected between a base
// run and the current run.
type Change struct {
	ID         int64          `json:"id,omitempty"`
	RunID      string         `json:"run_id"`
	BaseRunID  string         `json:"base_run_id"`
	NodeKind   NodeKind       `json:"node_kind"`
	NodeID     string         `json:"node_id"`
	DatasetID  string         `json:"dataset_id"`
	Column     string         `json:"column"`
	ChangeType ChangeType     `json:"change_type"`
	Severity   Severity       `json:"severity"`
	Detail     map[string]any `json:"detail"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
}

// ImpactHit is one downstream node reached by impact propagation together
// with the severity it was reached at.
type ImpactHit struct {
	NodeID   string   `json:"node_id"`
	NodeKind NodeKind `json:"node_kind"`
	Severity Severity `json:"severity"`
}
