package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileJournalAppendAndReplay(t *testing.T) {
	journal := NewFileJournal(t.TempDir())
	ctx := context.Background()

	events := []*PhaseEvent{
		{
			WorkflowID: "run_journal",
			Event:      JournalEventPhaseStart,
			Phase:      PhaseDesign,
			Timestamp:  time.Now().UTC(),
		},
		{
			WorkflowID: "run_journal",
			Event:      JournalEventError,
			Phase:      PhaseDesign,
			Kind:       ErrorKindAgentFailed,
			Message:    "engine unavailable",
			Timestamp:  time.Now().UTC(),
		},
		{
			WorkflowID: "run_journal",
			Event:      JournalEventPhaseComplete,
			Phase:      PhaseDesign,
			Artifacts:  map[string]any{"concept": "outline"},
			Timestamp:  time.Now().UTC(),
		},
	}
	for _, event := range events {
		require.NoError(t, journal.Append(ctx, event))
	}

	replayed, err := journal.Events(ctx, "run_journal")
	require.NoError(t, err)
	require.Len(t, replayed, 3)
	require.Equal(t, JournalEventPhaseStart, replayed[0].Event)
	require.Equal(t, JournalEventError, replayed[1].Event)
	require.Equal(t, "engine unavailable", replayed[1].Message)
	require.Equal(t, JournalEventPhaseComplete, replayed[2].Event)
	require.Equal(t, "outline", replayed[2].Artifacts["concept"])
}

func TestFileJournalMissingWorkflow(t *testing.T) {
	journal := NewFileJournal(t.TempDir())

	events, err := journal.Events(context.Background(), "run_none")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestFileJournalRejectsUnsafeIDs(t *testing.T) {
	journal := NewFileJournal(t.TempDir())
	ctx := context.Background()

	err := journal.Append(ctx, &PhaseEvent{WorkflowID: "../escape", Event: JournalEventError})
	require.Error(t, err)

	_, err = journal.Events(ctx, "a/b")
	require.Error(t, err)
}
