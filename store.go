package pipeline

import (
	"context"
	"time"
)

// maxWorkflowIDLength bounds ids so they stay usable as file names.
const maxWorkflowIDLength = 120

// WorkflowSummary is the listing view of a persisted workflow state.
type WorkflowSummary struct {
	ID        string    `json:"id"`
	Phase     Phase     `json:"phase"`
	Prompt    string    `json:"prompt"`
	Engine    string    `json:"engine,omitempty"`
	Retries   int       `json:"retries"`
	Errors    int       `json:"errors"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary builds the listing view of a state.
func (s *WorkflowState) Summary() *WorkflowSummary {
	retries := 0
	for _, n := range s.RetryCounts {
		retries += n
	}
	return &WorkflowSummary{
		ID:        s.ID,
		Phase:     s.Phase,
		Prompt:    s.Prompt,
		Engine:    s.Engine,
		Retries:   retries,
		Errors:    len(s.ErrorHistory),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// StateStore persists workflow states by id. Implementations must make
// Save atomic from the reader's perspective: a concurrent or subsequent
// reader never observes a partially written record.
type StateStore interface {
	// Save persists the state, overwriting any previous version.
	Save(ctx context.Context, state *WorkflowState) error

	// Load returns the state for an id. Unknown ids return
	// *StateNotFoundError.
	Load(ctx context.Context, id string) (*WorkflowState, error)

	// Latest returns the most recently updated state, or nil when the
	// store is empty.
	Latest(ctx context.Context) (*WorkflowState, error)

	// List returns summaries of all stored states, newest first.
	List(ctx context.Context) ([]*WorkflowSummary, error)

	// Delete removes the state for an id. Deleting an unknown id is not
	// an error.
	Delete(ctx context.Context, id string) error

	// CleanupOlderThan deletes terminal states whose last update is older
	// than maxAge and returns how many were removed. In-flight workflows
	// are never removed.
	CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
}

// ValidateWorkflowID rejects identifiers that could escape the storage
// root. Ids come from callers, so only a conservative allowlist of
// letters, digits, underscore and hyphen is accepted. Checkpoint ids are
// held to the same rule.
func ValidateWorkflowID(id string) error {
	if id == "" {
		return NewConfigurationError("id must not be empty")
	}
	if len(id) > maxWorkflowIDLength {
		return NewConfigurationError("id exceeds %d characters", maxWorkflowIDLength)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return NewConfigurationError("id %q contains disallowed character %q", id, r)
		}
	}
	return nil
}
