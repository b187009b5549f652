package refsim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxlabs/vkc/internal/machine"
)

func TestBuildForestIsDeterministic(t *testing.T) {
	f1 := BuildForest(3, 42)
	f2 := BuildForest(3, 42)
	require.Equal(t, f1, f2)
	require.Equal(t, machine.NNodesForHeight(3), len(f1.Values))
}

func TestBuildForestDiffersBySeed(t *testing.T) {
	f1 := BuildForest(3, 1)
	f2 := BuildForest(3, 2)
	require.NotEqual(t, f1.Values, f2.Values)
}

func TestBuildInputsStartsAtRoot(t *testing.T) {
	in := BuildInputs(16, 7)
	for _, idx := range in.Idx {
		require.Equal(t, 0, idx)
	}
	require.Len(t, in.Acc, 16)
}

func TestRunIsDeterministic(t *testing.T) {
	forest := BuildForest(4, 1)
	inputs := BuildInputs(8, 2)
	out1 := Run(forest, inputs, 10)
	out2 := Run(forest, inputs, 10)
	require.Equal(t, out1, out2)
}

func TestRunIndexStaysInBounds(t *testing.T) {
	height := 3
	forest := BuildForest(height, 1)
	inputs := BuildInputs(8, 2)
	out := Run(forest, inputs, 20)
	for _, idx := range out.Idx {
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, len(forest.Values))
	}
}

func TestRunSkipsIndexUpdateOnLastRound(t *testing.T) {
	forest := BuildForest(1, 1) // height 1, so rounds wrap every 2 rounds.
	inputs := BuildInputs(1, 2)

	oneRound := Run(forest, inputs, 1)
	// After a single round, depth 0 was processed and (since it isn't the
	// last depth of the tree) idx would normally advance, but it is the
	// last round, so idx stays at 0.
	require.Equal(t, 0, oneRound.Idx[0])
}

func TestHashStagesMatchMachineDefault(t *testing.T) {
	require.Equal(t, machine.DefaultHashStages, HashStages)
}
