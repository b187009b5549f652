package emitter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxlabs/vkc/internal/config"
	"github.com/hxlabs/vkc/internal/machine"
)

func smallConfig(treeHeight, batch, rounds int) config.Config {
	cfg := config.Default()
	cfg.Instance = machine.KernelInstance{
		TreeHeight: treeHeight,
		NNodes:     machine.NNodesForHeight(treeHeight),
		BatchSize:  batch,
		Rounds:     rounds,
	}
	return cfg
}

func TestEmitProducesNonEmptyProgram(t *testing.T) {
	res, err := Emit(smallConfig(4, 16, 4))
	require.NoError(t, err)
	require.NotEmpty(t, res.Program.Segments)
	require.NotEmpty(t, res.Program.Segments[0].Ops)
}

func TestEmitSubmissionModeHasOneSegment(t *testing.T) {
	cfg := smallConfig(3, 8, 3)
	cfg.Emit.EmitDebug = false
	res, err := Emit(cfg)
	require.NoError(t, err)
	require.Len(t, res.Program.Segments, 1, "header and body are concatenated outside debug mode")
}

func TestEmitDebugModeSplitsSegmentsPerRound(t *testing.T) {
	cfg := smallConfig(2, 8, 3)
	cfg.Emit.EmitDebug = true
	res, err := Emit(cfg)
	require.NoError(t, err)
	// header segment + one per round; the final round's segment also
	// carries the final stores, and every segment ends with a barrier.
	require.Greater(t, len(res.Program.Segments), 1)
	require.Len(t, res.Program.Barriers, len(res.Program.Segments))
}

func TestEmitScalarTailEmitsScalarStore(t *testing.T) {
	cfg := smallConfig(2, 10, 2) // VLEN=8 default, batch 10 => 1 full group + 2 scalar tail lanes.
	res, err := Emit(cfg)
	require.NoError(t, err)

	sawScalarStore := false
	for _, seg := range res.Program.Segments {
		for _, op := range seg.Ops {
			for _, s := range op.Payload {
				if s.Op.String() == "store" && op.Engine == machine.Store && s.Len == 1 {
					sawScalarStore = true
				}
			}
		}
	}
	require.True(t, sawScalarStore, "a non-multiple-of-VLEN batch must emit a scalar-tail store")
}

func TestEmitDepth2ALUBlendNeverUsesVSelect(t *testing.T) {
	cfg := smallConfig(2, 8, 3) // height 2, 3 rounds -> depths 0, 1, 2 all exercised.
	cfg.Emit.Depth2SelectMode = config.Depth2ALUBlend
	cfg.Emit.IdxBranchMode = config.IdxBranchALU // isolate depth-2 materialisation from the idx-update path.
	res, err := Emit(cfg)
	require.NoError(t, err)

	for _, seg := range res.Program.Segments {
		for _, op := range seg.Ops {
			for _, s := range op.Payload {
				require.NotEqual(t, "vsel", s.Op.String())
			}
		}
	}
}

func TestEmitConstPoolHitsAccumulate(t *testing.T) {
	res, err := Emit(smallConfig(3, 24, 4)) // 3 groups, plenty of constant reuse.
	require.NoError(t, err)
	require.Greater(t, res.ConstHits, 0, "constants shared across groups/rounds should produce pool hits")
}

func TestEmitSucceedsWithFullInterleave(t *testing.T) {
	cfg := smallConfig(5, 64, 8)
	cfg.Machine.ScratchSize = 4096
	cfg.Emit.InterleaveGroupsEarly = 64
	cfg.Emit.InterleaveGroups = 64
	_, err := Emit(cfg)
	require.NoError(t, err)
}

func TestEmitAdaptiveInterleaveRetriesUnderTightScratch(t *testing.T) {
	cfg := smallConfig(5, 256, 8)
	// 32 lane groups. Tight enough that a full-interleave single wave (32
	// groups' worth of round-local temporaries live at once) overflows, but
	// halving the interleave count down toward the floor of 8 brings peak
	// usage back under budget without changing NNodes/BatchSize, which the
	// retry never touches.
	cfg.Machine.ScratchSize = 3000
	cfg.Emit.InterleaveGroupsEarly = 64
	cfg.Emit.InterleaveGroups = 64
	_, err := Emit(cfg)
	require.NoError(t, err)
}

func TestEmitFailsBelowInterleaveFloor(t *testing.T) {
	cfg := smallConfig(8, 512, 16)
	cfg.Machine.ScratchSize = 512 // nowhere near enough even at the floor.
	_, err := Emit(cfg)
	require.Error(t, err)
}

func TestEmitIndexUpdateSkippedOnFinalRound(t *testing.T) {
	// Rounds=1, TreeHeight=3: depth 0 on the only round is never the last
	// depth of the tree, but it IS the last round, so no idx-update ops
	// (fma/vsel writing into an idx cell) should follow the final hash.
	// Every idx-update or idx-reset op carries ".idx" in its name, so no
	// emitted op may carry it.
	res, err := Emit(smallConfig(3, 8, 1))
	require.NoError(t, err)
	for _, seg := range res.Program.Segments {
		for _, op := range seg.Ops {
			require.NotContains(t, op.Name, ".idx")
		}
	}
}
