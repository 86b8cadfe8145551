package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStateStore persists one JSON document per workflow under a state
// directory. Writes go to a temp file that is renamed into place, so a
// process killed mid-write never leaves a torn record behind.
type FileStateStore struct {
	dir string
}

// NewFileStateStore creates a file-backed state store rooted at dir,
// creating the directory if needed. An empty dir defaults to
// ~/.deepnoodle/pipeline/state.
func NewFileStateStore(dir string) (*FileStateStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".deepnoodle", "pipeline", "state")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &FileStateStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *FileStateStore) Dir() string {
	return s.dir
}

func (s *FileStateStore) statePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the state atomically via temp file + rename.
func (s *FileStateStore) Save(ctx context.Context, state *WorkflowState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil workflow state")
	}
	if err := ValidateWorkflowID(state.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow state: %w", err)
	}

	path := s.statePath(state.ID)
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename state file into place: %w", err)
	}
	return nil
}

// Load reads and validates the state for an id.
func (s *FileStateStore) Load(ctx context.Context, id string) (*WorkflowState, error) {
	if err := ValidateWorkflowID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.statePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &StateNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow state %s: %w", id, err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}

// Latest returns the most recently updated state, or nil when the
// directory holds none.
func (s *FileStateStore) Latest(ctx context.Context) (*WorkflowState, error) {
	states, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, nil
	}
	return states[0], nil
}

// List returns summaries for every stored state, newest first.
func (s *FileStateStore) List(ctx context.Context) ([]*WorkflowSummary, error) {
	states, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	summaries := make([]*WorkflowSummary, 0, len(states))
	for _, state := range states {
		summaries = append(summaries, state.Summary())
	}
	return summaries, nil
}

// Delete removes the state file for an id.
func (s *FileStateStore) Delete(ctx context.Context, id string) error {
	if err := ValidateWorkflowID(id); err != nil {
		return err
	}
	if err := os.Remove(s.statePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// CleanupOlderThan removes terminal states last updated before maxAge ago.
func (s *FileStateStore) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	states, err := s.loadAll()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for _, state := range states {
		if !state.Terminal() || state.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.Delete(ctx, state.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// loadAll reads every parseable state file, newest first. Unreadable
// entries are skipped so one corrupt record does not hide the rest.
func (s *FileStateStore) loadAll() ([]*WorkflowState, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var states []*WorkflowState
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.tmp") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		state, err := s.Load(context.Background(), id)
		if err != nil {
			continue
		}
		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].UpdatedAt.After(states[j].UpdatedAt)
	})
	return states, nil
}

var _ StateStore = (*FileStateStore)(nil)
