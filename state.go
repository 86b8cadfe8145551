package pipeline

import (
	"fmt"
	"time"
)

// StateSchemaVersion is stamped into every persisted workflow state.
const StateSchemaVersion = 1

// ApprovalDecision is the outcome recorded for an approval gate.
type ApprovalDecision string

const (
	ApprovalPending  ApprovalDecision = "pending"
	ApprovalApproved ApprovalDecision = "approved"
	ApprovalRejected ApprovalDecision = "rejected"
	ApprovalExpired  ApprovalDecision = "expired"
)

// ApprovalRecord captures one gate decision. Records are embedded in the
// workflow state and never stored independently.
type ApprovalRecord struct {
	Gate      string           `json:"gate"`
	Decision  ApprovalDecision `json:"decision"`
	DecidedAt time.Time        `json:"decided_at,omitzero"`
	Feedback  string           `json:"feedback,omitempty"`
}

// Copy returns a copy of the approval record.
func (r *ApprovalRecord) Copy() *ApprovalRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// PhaseError is one entry in the append-only error history.
type PhaseError struct {
	Phase     Phase     `json:"phase"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowState is the aggregate root for one pipeline run. It is fully
// JSON serializable and owned exclusively by the orchestrator while the
// run is active; everyone else sees copies.
type WorkflowState struct {
	ID            string                     `json:"id"`
	Phase         Phase                      `json:"phase"`
	Prompt        string                     `json:"prompt"`
	Engine        string                     `json:"engine,omitempty"`
	Artifacts     map[string]map[string]any  `json:"artifacts"`
	Approvals     map[string]*ApprovalRecord `json:"approvals"`
	RetryCounts   map[string]int             `json:"retry_counts"`
	FixCycles     int                        `json:"fix_cycles"`
	ErrorHistory  []PhaseError               `json:"error_history"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
	SchemaVersion int                        `json:"schema_version"`
}

// NewWorkflowState creates a state at the init phase with the given run
// inputs.
func NewWorkflowState(id, prompt, engine string) *WorkflowState {
	now := time.Now().UTC()
	return &WorkflowState{
		ID:            id,
		Phase:         PhaseInit,
		Prompt:        prompt,
		Engine:        engine,
		Artifacts:     map[string]map[string]any{},
		Approvals:     map[string]*ApprovalRecord{},
		RetryCounts:   map[string]int{},
		ErrorHistory:  []PhaseError{},
		CreatedAt:     now,
		UpdatedAt:     now,
		SchemaVersion: StateSchemaVersion,
	}
}

// Clone returns a deep copy of the state. Checkpoints and hook payloads
// are built from clones so later mutations never leak into them.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Artifacts = copyArtifacts(s.Artifacts)
	clone.Approvals = copyApprovals(s.Approvals)
	clone.RetryCounts = copyCounts(s.RetryCounts)
	clone.ErrorHistory = make([]PhaseError, len(s.ErrorHistory))
	copy(clone.ErrorHistory, s.ErrorHistory)
	return &clone
}

// Transition moves the state to the target phase if the transition table
// allows it. On an illegal edge the state is left unmodified.
func (s *WorkflowState) Transition(to Phase) error {
	if !CanTransition(s.Phase, to) {
		return &InvalidTransitionError{From: s.Phase, To: to}
	}
	s.Phase = to
	s.Touch()
	return nil
}

// Terminal returns true once the state reached complete, failed or
// cancelled.
func (s *WorkflowState) Terminal() bool {
	return s.Phase.Terminal()
}

// Touch updates the modification timestamp.
func (s *WorkflowState) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// RecordError appends an entry to the error history.
func (s *WorkflowState) RecordError(phase Phase, kind, message string) {
	s.ErrorHistory = append(s.ErrorHistory, PhaseError{
		Phase:     phase,
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	s.Touch()
}

// LastError returns the most recent error history entry, or nil.
func (s *WorkflowState) LastError() *PhaseError {
	if len(s.ErrorHistory) == 0 {
		return nil
	}
	return &s.ErrorHistory[len(s.ErrorHistory)-1]
}

// RecordApproval stores the decision for a named gate.
func (s *WorkflowState) RecordApproval(gate string, decision ApprovalDecision, feedback string) {
	if s.Approvals == nil {
		s.Approvals = map[string]*ApprovalRecord{}
	}
	s.Approvals[gate] = &ApprovalRecord{
		Gate:      gate,
		Decision:  decision,
		DecidedAt: time.Now().UTC(),
		Feedback:  feedback,
	}
	s.Touch()
}

// Approval returns the record for a named gate, or nil when the gate has
// not been evaluated.
func (s *WorkflowState) Approval(gate string) *ApprovalRecord {
	return s.Approvals[gate]
}

// MergeArtifacts folds an executor's output descriptor into the state
// under the phase name, overwriting keys the executor re-produced.
func (s *WorkflowState) MergeArtifacts(phase Phase, artifacts map[string]any) {
	if len(artifacts) == 0 {
		return
	}
	if s.Artifacts == nil {
		s.Artifacts = map[string]map[string]any{}
	}
	existing := s.Artifacts[phase.String()]
	if existing == nil {
		existing = make(map[string]any, len(artifacts))
		s.Artifacts[phase.String()] = existing
	}
	for k, v := range artifacts {
		existing[k] = v
	}
	s.Touch()
}

// RetryCount returns the retries consumed in the current occupancy of the
// phase.
func (s *WorkflowState) RetryCount(phase Phase) int {
	return s.RetryCounts[phase.String()]
}

// IncrementRetry bumps the retry counter for a phase and returns the new
// value.
func (s *WorkflowState) IncrementRetry(phase Phase) int {
	if s.RetryCounts == nil {
		s.RetryCounts = map[string]int{}
	}
	s.RetryCounts[phase.String()]++
	s.Touch()
	return s.RetryCounts[phase.String()]
}

// ResetRetries clears the retry counters for the given phases. Used on
// the backward edge from qa to build, where a rework cycle starts a fresh
// occupancy.
func (s *WorkflowState) ResetRetries(phases ...Phase) {
	for _, phase := range phases {
		delete(s.RetryCounts, phase.String())
	}
	s.Touch()
}

// Validate performs load-time sanity checks on a persisted state.
func (s *WorkflowState) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("workflow state has no id")
	}
	if !s.Phase.Valid() {
		return fmt.Errorf("workflow state %s has unknown phase %q", s.ID, s.Phase)
	}
	if s.SchemaVersion > StateSchemaVersion {
		return fmt.Errorf("workflow state %s has schema version %d, this build understands up to %d",
			s.ID, s.SchemaVersion, StateSchemaVersion)
	}
	return nil
}

func copyArtifacts(m map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(m))
	for k, v := range m {
		out[k] = copyMap(v)
	}
	return out
}

func copyApprovals(m map[string]*ApprovalRecord) map[string]*ApprovalRecord {
	out := make(map[string]*ApprovalRecord, len(m))
	for k, v := range m {
		out[k] = v.Copy()
	}
	return out
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
