package pipeline

import (
	"context"
	"time"
)

// NullStateStore discards every write and reports no stored workflows.
// Useful for embedding the orchestrator where persistence is handled
// elsewhere or not wanted.
type NullStateStore struct{}

// NewNullStateStore creates a state store that persists nothing.
func NewNullStateStore() *NullStateStore {
	return &NullStateStore{}
}

func (s *NullStateStore) Save(ctx context.Context, state *WorkflowState) error {
	return nil
}

func (s *NullStateStore) Load(ctx context.Context, id string) (*WorkflowState, error) {
	return nil, &StateNotFoundError{ID: id}
}

func (s *NullStateStore) Latest(ctx context.Context) (*WorkflowState, error) {
	return nil, nil
}

func (s *NullStateStore) List(ctx context.Context) ([]*WorkflowSummary, error) {
	return []*WorkflowSummary{}, nil
}

func (s *NullStateStore) Delete(ctx context.Context, id string) error {
	return nil
}

func (s *NullStateStore) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, nil
}

var _ StateStore = (*NullStateStore)(nil)
