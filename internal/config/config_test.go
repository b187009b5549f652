package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsBadDepth2Mode(t *testing.T) {
	cfg := Default()
	cfg.Emit.Depth2SelectMode = "bogus"
	err := cfg.Validate()
	require.Error(t, err)
	var invalid *ErrInvalidConfig
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "depth2_select_mode", invalid.Field)
}

func TestValidateRejectsNonPositiveBatch(t *testing.T) {
	cfg := Default()
	cfg.Instance.BatchSize = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeTreeHeight(t *testing.T) {
	cfg := Default()
	cfg.Instance.TreeHeight = -1
	require.Error(t, cfg.Validate())
}

func TestParseTOMLOverridesDefaults(t *testing.T) {
	doc := `
[instance]
tree_height = 4
batch_size = 64
rounds = 5

[emit]
emit_debug = true
depth2_select_mode = "alu_blend"

[scheduler]
beam_width = 2
`
	cfg, err := ParseTOML([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Instance.TreeHeight)
	require.Equal(t, 64, cfg.Instance.BatchSize)
	require.Equal(t, 5, cfg.Instance.Rounds)
	require.True(t, cfg.Emit.EmitDebug)
	require.Equal(t, Depth2ALUBlend, cfg.Emit.Depth2SelectMode)
	require.Equal(t, 2, cfg.Scheduler.BeamWidth)
}

func TestParseTOMLRejectsUnknownSlotLimitEngine(t *testing.T) {
	doc := `
[machine.slot_limits]
not_an_engine = 4
`
	_, err := ParseTOML([]byte(doc))
	require.Error(t, err)
}

func TestParseTOMLLeavesUnsetFieldsAtDefault(t *testing.T) {
	cfg, err := ParseTOML([]byte(""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
