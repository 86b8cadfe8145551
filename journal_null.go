package pipeline

import "context"

// NullJournal is a no-op implementation of Journal.
type NullJournal struct{}

func NewNullJournal() *NullJournal {
	return &NullJournal{}
}

func (j *NullJournal) Append(ctx context.Context, event *PhaseEvent) error {
	return nil
}

func (j *NullJournal) Events(ctx context.Context, workflowID string) ([]*PhaseEvent, error) {
	return nil, nil
}

var _ Journal = (*NullJournal)(nil)
