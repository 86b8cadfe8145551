package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FileCheckpointer persists checkpoints as JSON files under one directory
// per workflow. File names carry a zero-padded sequence number so creation
// order survives restarts.
type FileCheckpointer struct {
	dir            string
	maxCheckpoints int
	mu             sync.Mutex
}

// NewFileCheckpointer creates a file-based checkpointer rooted at dir. An
// empty dir defaults to ~/.deepnoodle/pipeline/checkpoints; a
// non-positive maxCheckpoints defaults to DefaultMaxCheckpoints.
func NewFileCheckpointer(dir string, maxCheckpoints int) (*FileCheckpointer, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".deepnoodle", "pipeline", "checkpoints")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
	}
	if maxCheckpoints <= 0 {
		maxCheckpoints = DefaultMaxCheckpoints
	}
	return &FileCheckpointer{dir: dir, maxCheckpoints: maxCheckpoints}, nil
}

// Checkpoint snapshots the state and prunes history past the retention
// limit.
func (c *FileCheckpointer) Checkpoint(ctx context.Context, state *WorkflowState, reason CheckpointReason) (*Checkpoint, error) {
	if state == nil {
		return nil, fmt.Errorf("cannot checkpoint nil workflow state")
	}
	if err := ValidateWorkflowID(state.ID); err != nil {
		return nil, err
	}
	if !reason.Valid() {
		return nil, fmt.Errorf("unknown checkpoint reason %q", reason)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	workflowDir := filepath.Join(c.dir, state.ID)
	if err := os.MkdirAll(workflowDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workflow checkpoint directory: %w", err)
	}

	files, err := c.checkpointFiles(workflowDir)
	if err != nil {
		return nil, err
	}
	sequence := 1
	if len(files) > 0 {
		sequence = files[len(files)-1].sequence + 1
	}

	checkpoint := &Checkpoint{
		ID:         NewCheckpointID(),
		WorkflowID: state.ID,
		Sequence:   sequence,
		Reason:     reason,
		State:      state.Clone(),
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := filepath.Join(workflowDir, checkpointFileName(sequence, checkpoint.ID))
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename checkpoint file into place: %w", err)
	}

	if err := c.prune(workflowDir); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// ListCheckpoints returns a workflow's checkpoints in creation order.
func (c *FileCheckpointer) ListCheckpoints(ctx context.Context, workflowID string) ([]*Checkpoint, error) {
	if err := ValidateWorkflowID(workflowID); err != nil {
		return nil, err
	}

	workflowDir := filepath.Join(c.dir, workflowID)
	files, err := c.checkpointFiles(workflowDir)
	if err != nil {
		return nil, err
	}

	checkpoints := make([]*Checkpoint, 0, len(files))
	for _, file := range files {
		checkpoint, err := readCheckpointFile(filepath.Join(workflowDir, file.name))
		if err != nil {
			// Skip entries we cannot read rather than hiding the rest
			continue
		}
		checkpoints = append(checkpoints, checkpoint)
	}
	return checkpoints, nil
}

// LoadCheckpoint finds a checkpoint by id across all workflows. Returns
// nil when no checkpoint carries the id.
func (c *FileCheckpointer) LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	if err := ValidateWorkflowID(checkpointID); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	suffix := "-" + checkpointID + ".json"
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		workflowDir := filepath.Join(c.dir, entry.Name())
		files, err := c.checkpointFiles(workflowDir)
		if err != nil {
			continue
		}
		for _, file := range files {
			if strings.HasSuffix(file.name, suffix) {
				return readCheckpointFile(filepath.Join(workflowDir, file.name))
			}
		}
	}
	return nil, nil
}

// DeleteCheckpoints removes all checkpoint data for a workflow.
func (c *FileCheckpointer) DeleteCheckpoints(ctx context.Context, workflowID string) error {
	if err := ValidateWorkflowID(workflowID); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(c.dir, workflowID)); err != nil {
		return fmt.Errorf("failed to delete workflow checkpoints: %w", err)
	}
	return nil
}

type checkpointFile struct {
	name     string
	sequence int
}

// checkpointFiles lists a workflow's checkpoint files sorted by sequence.
func (c *FileCheckpointer) checkpointFiles(workflowDir string) ([]checkpointFile, error) {
	entries, err := os.ReadDir(workflowDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read workflow checkpoint directory: %w", err)
	}

	var files []checkpointFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		seqText, _, ok := strings.Cut(name, "-")
		if !ok {
			continue
		}
		sequence, err := strconv.Atoi(seqText)
		if err != nil {
			continue
		}
		files = append(files, checkpointFile{name: name, sequence: sequence})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].sequence < files[j].sequence
	})
	return files, nil
}

// prune removes the oldest checkpoints while the count exceeds the limit.
func (c *FileCheckpointer) prune(workflowDir string) error {
	files, err := c.checkpointFiles(workflowDir)
	if err != nil {
		return err
	}
	for len(files) > c.maxCheckpoints {
		oldest := files[0]
		if err := os.Remove(filepath.Join(workflowDir, oldest.name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to prune checkpoint %s: %w", oldest.name, err)
		}
		files = files[1:]
	}
	return nil
}

func checkpointFileName(sequence int, id string) string {
	return fmt.Sprintf("%06d-%s.json", sequence, id)
}

func readCheckpointFile(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

var _ Checkpointer = (*FileCheckpointer)(nil)
