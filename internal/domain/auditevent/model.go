// Package auditevent is the append-only audit trail for governed decisions
// and administrative access.
package auditevent

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Outcome of the audited action.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Module ids recorded on entries.
const (
	ModuleAssessment = "assessment"
	ModuleGovernance = "governance"
)

// Actions recorded on entries.
const (
	ActionAssessmentCreate = "assessment.create"
	ActionAdminAccess      = "admin.access"
)

const redactedValue = "[REDACTED]"

var ErrEntryNotFound = errors.New("audit entry not found")

// Entry is one persisted audit record. Entries are never updated.
type Entry struct {
	ID             uuid.UUID       `json:"id"`
	Action         string          `json:"action"`
	ActorID        *string         `json:"actor_id"`
	ModuleID       string          `json:"module_id"`
	ModelID        string          `json:"model_id"`
	Outcome        Outcome         `json:"outcome"`
	Details        json.RawMessage `json:"details"`
	NetworkAddress string          `json:"network_address"`
	UserAgent      string          `json:"user_agent"`
	RequestID      string          `json:"request_id"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

// Record is what callers submit. Details is serialised to JSON after the
// Redact fields are masked at any depth.
type Record struct {
	Action         string
	ActorID        string
	ModuleID       string
	ModelID        string
	Outcome        Outcome
	Details        any
	Redact         []string
	NetworkAddress string
	UserAgent      string
	RequestID      string
}

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	Action   string
	ModuleID string
	ActorID  string
	Outcome  string
}

// redact returns details as JSON with every object key named in fields
// replaced by a marker.
func redact(details any, fields []string) (json.RawMessage, error) {
	if details == nil {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return raw, nil
	}

	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	mask := make(map[string]bool, len(fields))
	for _, f := range fields {
		mask[f] = true
	}
	return json.Marshal(redactTree(tree, mask))
}

func redactTree(v any, mask map[string]bool) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if mask[k] {
				t[k] = redactedValue
				continue
			}
			t[k] = redactTree(child, mask)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = redactTree(child, mask)
		}
		return t
	default:
		return v
	}
}
