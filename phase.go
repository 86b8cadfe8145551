// Package pipeline implements a durable, resumable orchestration core for a
// fixed content-production pipeline. A prompt moves through design, build,
// qa and publish phases, each delegated to an external executor, with
// persisted state, checkpointing, bounded retries, approval gates and
// observer hooks along the way.
package pipeline

// Phase identifies one stage of the pipeline lifecycle.
type Phase string

const (
	// PhaseInit is the creation marker before any executor runs.
	PhaseInit Phase = "init"
	// PhaseDesign produces the concept for the requested content.
	PhaseDesign Phase = "design"
	// PhaseBuild generates the content from the approved concept.
	PhaseBuild Phase = "build"
	// PhaseQA verifies the built content.
	PhaseQA Phase = "qa"
	// PhasePublish packages and releases the verified content.
	PhasePublish Phase = "publish"
	// PhaseComplete indicates the pipeline finished successfully.
	PhaseComplete Phase = "complete"
	// PhaseFailed indicates a permanent failure.
	PhaseFailed Phase = "failed"
	// PhaseCancelled indicates the run was cancelled by an operator.
	PhaseCancelled Phase = "cancelled"
)

var allPhases = []Phase{
	PhaseInit,
	PhaseDesign,
	PhaseBuild,
	PhaseQA,
	PhasePublish,
	PhaseComplete,
	PhaseFailed,
	PhaseCancelled,
}

// executionOrder is the linear happy path through the pipeline.
var executionOrder = []Phase{
	PhaseInit,
	PhaseDesign,
	PhaseBuild,
	PhaseQA,
	PhasePublish,
	PhaseComplete,
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Valid returns true if the phase is one of the defined constants.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInit, PhaseDesign, PhaseBuild, PhaseQA,
		PhasePublish, PhaseComplete, PhaseFailed, PhaseCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the phase has no outgoing transitions.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseComplete, PhaseFailed, PhaseCancelled:
		return true
	default:
		return false
	}
}

// Executable returns true if the phase has an associated executor.
func (p Phase) Executable() bool {
	switch p {
	case PhaseDesign, PhaseBuild, PhaseQA, PhasePublish:
		return true
	default:
		return false
	}
}

// CanTransition returns true if the edge between the two phases exists in
// the transition table. Every non-terminal phase may move to cancelled,
// the four executable phases may move to failed, and qa additionally
// carries the backward edge to build for rework cycles.
func CanTransition(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	if to == PhaseCancelled {
		return true
	}
	switch from {
	case PhaseInit:
		return to == PhaseDesign
	case PhaseDesign:
		return to == PhaseBuild || to == PhaseFailed
	case PhaseBuild:
		return to == PhaseQA || to == PhaseFailed
	case PhaseQA:
		return to == PhasePublish || to == PhaseBuild || to == PhaseFailed
	case PhasePublish:
		return to == PhaseComplete || to == PhaseFailed
	default:
		return false
	}
}

// NextPhase returns the linear successor of p on the happy path, or an
// empty phase when p has none.
func NextPhase(p Phase) Phase {
	for i, phase := range executionOrder {
		if phase == p && i+1 < len(executionOrder) {
			return executionOrder[i+1]
		}
	}
	return ""
}

// Phases returns every defined phase in lifecycle order.
func Phases() []Phase {
	phases := make([]Phase, len(allPhases))
	copy(phases, allPhases)
	return phases
}

// ParsePhase converts a string into a Phase, reporting whether the value
// named a defined phase.
func ParsePhase(value string) (Phase, bool) {
	p := Phase(value)
	if !p.Valid() {
		return "", false
	}
	return p, true
}
