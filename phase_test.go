package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhasePredicates(t *testing.T) {
	require.True(t, PhaseComplete.Terminal())
	require.True(t, PhaseFailed.Terminal())
	require.True(t, PhaseCancelled.Terminal())
	require.False(t, PhaseInit.Terminal())
	require.False(t, PhaseQA.Terminal())

	require.True(t, PhaseDesign.Executable())
	require.True(t, PhaseBuild.Executable())
	require.True(t, PhaseQA.Executable())
	require.True(t, PhasePublish.Executable())
	require.False(t, PhaseInit.Executable())
	require.False(t, PhaseComplete.Executable())

	require.True(t, PhaseBuild.Valid())
	require.False(t, Phase("deploy").Valid())
}

func TestCanTransitionTable(t *testing.T) {
	legal := map[Phase][]Phase{
		PhaseInit:    {PhaseDesign, PhaseCancelled},
		PhaseDesign:  {PhaseBuild, PhaseFailed, PhaseCancelled},
		PhaseBuild:   {PhaseQA, PhaseFailed, PhaseCancelled},
		PhaseQA:      {PhasePublish, PhaseBuild, PhaseFailed, PhaseCancelled},
		PhasePublish: {PhaseComplete, PhaseFailed, PhaseCancelled},
	}

	allowed := func(from, to Phase) bool {
		for _, candidate := range legal[from] {
			if candidate == to {
				return true
			}
		}
		return false
	}

	// Sweep every ordered pair so no undeclared edge sneaks in.
	for _, from := range Phases() {
		for _, to := range Phases() {
			require.Equal(t, allowed(from, to), CanTransition(from, to),
				"transition %s to %s", from, to)
		}
	}
}

func TestTerminalPhasesHaveNoExits(t *testing.T) {
	for _, from := range []Phase{PhaseComplete, PhaseFailed, PhaseCancelled} {
		for _, to := range Phases() {
			require.False(t, CanTransition(from, to), "%s must not leave %s", from, to)
		}
	}
}

func TestNextPhase(t *testing.T) {
	require.Equal(t, PhaseDesign, NextPhase(PhaseInit))
	require.Equal(t, PhaseBuild, NextPhase(PhaseDesign))
	require.Equal(t, PhaseQA, NextPhase(PhaseBuild))
	require.Equal(t, PhasePublish, NextPhase(PhaseQA))
	require.Equal(t, PhaseComplete, NextPhase(PhasePublish))
	require.Equal(t, Phase(""), NextPhase(PhaseComplete))
	require.Equal(t, Phase(""), NextPhase(PhaseFailed))
}

func TestParsePhase(t *testing.T) {
	phase, ok := ParsePhase("qa")
	require.True(t, ok)
	require.Equal(t, PhaseQA, phase)

	_, ok = ParsePhase("shipping")
	require.False(t, ok)
}
