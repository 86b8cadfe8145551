package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileJournal is an implementation of Journal that logs to a file. A file
// is created per workflow, formatted as newline-delimited JSON.
type FileJournal struct {
	directory string
}

func NewFileJournal(directory string) *FileJournal {
	return &FileJournal{directory: directory}
}

func (j *FileJournal) journalPath(workflowID string) string {
	return filepath.Join(j.directory, fmt.Sprintf("%s.jsonl", workflowID))
}

// Append writes one event to the workflow's journal file.
func (j *FileJournal) Append(ctx context.Context, event *PhaseEvent) error {
	if err := ValidateWorkflowID(event.WorkflowID); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	filePath := j.journalPath(event.WorkflowID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Events reads back the journal for a workflow. A missing journal yields
// an empty history.
func (j *FileJournal) Events(ctx context.Context, workflowID string) ([]*PhaseEvent, error) {
	if err := ValidateWorkflowID(workflowID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(j.journalPath(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var events []*PhaseEvent
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var event PhaseEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	return events, nil
}

var _ Journal = (*FileJournal)(nil)
