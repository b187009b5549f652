// End-to-end scenarios over the whole pipeline: Compile against a small
// kernel instance, run the resulting bundle stream on internal/vm, and
// check it agrees with internal/refsim's reference kernel. Mirrors
// SPEC_FULL.md section 8's acceptance scenarios S1-S6 plus a small
// property-style sweep across configuration knobs.
package vkc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxlabs/vkc/internal/compiler"
	"github.com/hxlabs/vkc/internal/config"
	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/refsim"
	"github.com/hxlabs/vkc/internal/vm"
)

const seed = 1

func instanceConfig(treeHeight, batch, rounds int) config.Config {
	cfg := config.Default()
	cfg.Instance = machine.KernelInstance{
		TreeHeight: treeHeight,
		NNodes:     machine.NNodesForHeight(treeHeight),
		BatchSize:  batch,
		Rounds:     rounds,
	}
	return cfg
}

// runAndCompare compiles cfg, executes it on internal/vm against a fresh
// forest/input pair, and asserts the result matches internal/refsim's
// reference kernel run over the same inputs.
func runAndCompare(t *testing.T, cfg config.Config) {
	t.Helper()

	res, err := compiler.Compile(cfg)
	require.NoError(t, err)

	forest := refsim.BuildForest(cfg.Instance.TreeHeight, seed)
	inputs := refsim.BuildInputs(cfg.Instance.BatchSize, seed)
	want := refsim.Run(forest, inputs, cfg.Instance.Rounds)

	m := vm.New(cfg.Machine.ScratchSize, vm.Memory{
		Forest: forest.Values,
		Input:  make([]uint64, cfg.Machine.ScratchSize),
	})
	scratch := m.Scratch()
	forestBase, inpBase := int(res.ForestBase), int(res.InputBase)
	copy(scratch[forestBase:forestBase+len(forest.Values)], forest.Values)
	for lane, acc := range inputs.Acc {
		scratch[inpBase+lane] = acc
	}

	require.NoError(t, m.Run(res.Bundles))

	got := refsim.Inputs{Idx: append([]int(nil), inputs.Idx...), Acc: make([]uint64, cfg.Instance.BatchSize)}
	for lane := range got.Acc {
		got.Acc[lane] = m.Scratch()[inpBase+lane]
	}

	mismatches := refsim.Compare(want, got)
	require.Empty(t, mismatches)
}

// S1: single full VLEN group, single round, default config.
func TestScenarioSingleGroupSingleRound(t *testing.T) {
	runAndCompare(t, instanceConfig(3, 8, 1))
}

// S2: batch with a scalar tail (not a multiple of VLEN).
func TestScenarioScalarTail(t *testing.T) {
	runAndCompare(t, instanceConfig(3, 10, 2))
}

// S3: multiple rounds walking past the tree height, exercising the final
// round's idx-update skip at every depth wraparound.
func TestScenarioRoundsExceedTreeHeight(t *testing.T) {
	runAndCompare(t, instanceConfig(2, 16, 7))
}

// S4: depth-2 arithmetic blend instead of the vselect ladder.
func TestScenarioDepth2ALUBlend(t *testing.T) {
	cfg := instanceConfig(4, 24, 5)
	cfg.Emit.Depth2SelectMode = config.Depth2ALUBlend
	runAndCompare(t, cfg)
}

// S5: ALU-branch idx update instead of vselect.
func TestScenarioIdxBranchALU(t *testing.T) {
	cfg := instanceConfig(4, 24, 5)
	cfg.Emit.IdxBranchMode = config.IdxBranchALU
	runAndCompare(t, cfg)
}

// S6: debug mode (segmented per round with barriers) must produce the same
// externally-visible result as submission mode.
func TestScenarioDebugModeMatchesSubmissionMode(t *testing.T) {
	cfg := instanceConfig(3, 16, 4)
	cfg.Emit.EmitDebug = true
	runAndCompare(t, cfg)
}

// Property sweep: a handful of tree heights, batch sizes (some with a
// tail, some without), and round counts, all must agree with the
// reference kernel regardless of combination.
func TestPropertySweepAcrossInstanceShapes(t *testing.T) {
	heights := []int{1, 2, 3, 5}
	batches := []int{8, 13, 32}
	roundCounts := []int{1, 3, 9}

	for _, h := range heights {
		for _, b := range batches {
			for _, r := range roundCounts {
				cfg := instanceConfig(h, b, r)
				t.Run("", func(t *testing.T) {
					runAndCompare(t, cfg)
				})
			}
		}
	}
}

// Split-hash-pairs mode must not change the externally observable result,
// only how the non-fusible hash stage's two pre-ops are scheduled.
func TestScenarioSplitHashPairsMatchesFusedResult(t *testing.T) {
	cfg := instanceConfig(4, 16, 4)
	cfg.Emit.SplitHashPairs = true
	runAndCompare(t, cfg)
}

// Depth-4 deterministic compare-select ladder, when enabled, must still
// match the reference kernel's standard gather at that depth.
func TestScenarioDepth4Deterministic(t *testing.T) {
	cfg := instanceConfig(5, 16, 6)
	cfg.Emit.Depth4Mode = config.Depth4Deterministic16
	runAndCompare(t, cfg)
}
