// Package config defines the compiler's recognised options (SPEC_FULL.md
// section 6) and validates them up front, before emission begins, so an
// unrecognised option surfaces as ErrInvalidConfig rather than a confusing
// failure mid-compile.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/scheduler"
)

// Depth2SelectMode selects how depth-2 node materialisation is formed.
type Depth2SelectMode string

const (
	Depth2VSelect  Depth2SelectMode = "vselect"
	Depth2ALUBlend Depth2SelectMode = "alu_blend"
)

// Depth4Mode selects whether depth 4 uses the deterministic compare-select
// ladder or falls back to the standard gather.
type Depth4Mode string

const (
	Depth4Off            Depth4Mode = "off"
	Depth4Deterministic16 Depth4Mode = "deterministic16"
)

// IdxBranchMode selects how the child-index branch bit is folded in.
type IdxBranchMode string

const (
	IdxBranchVSelect IdxBranchMode = "vselect"
	IdxBranchALU     IdxBranchMode = "alu_branch"
)

// EmitConfig carries the emitter-facing options from SPEC_FULL.md section
// 6. Zero values are valid defaults except where noted.
type EmitConfig struct {
	EmitDebug             bool
	InterleaveGroups      int
	InterleaveGroupsEarly int
	Depth2SelectMode      Depth2SelectMode
	Depth3Deterministic   bool
	Depth4Mode            Depth4Mode
	IdxBranchMode         IdxBranchMode
	SplitHashPairs        bool
}

// DefaultEmitConfig returns the emitter defaults used when a field is left
// at its TOML zero value.
func DefaultEmitConfig() EmitConfig {
	return EmitConfig{
		InterleaveGroups:      8,
		InterleaveGroupsEarly: 16,
		Depth2SelectMode:      Depth2VSelect,
		Depth4Mode:            Depth4Off,
		IdxBranchMode:         IdxBranchVSelect,
	}
}

// Config is the full compile job: the target machine, the kernel
// instance to compile, and the emitter/scheduler options.
type Config struct {
	Machine   machine.Spec
	Instance  machine.KernelInstance
	Emit      EmitConfig
	Scheduler scheduler.Config
}

// Default returns a Config over machine.DefaultSpec with a full-size kernel
// instance (tree height 10, batch 256, 16 rounds), suitable as a starting
// point for CLI users and tests.
func Default() Config {
	return Config{
		Machine:   machine.DefaultSpec(),
		Instance:  machine.KernelInstance{TreeHeight: 10, NNodes: machine.NNodesForHeight(10), BatchSize: 256, Rounds: 16},
		Emit:      DefaultEmitConfig(),
		Scheduler: scheduler.DefaultConfig(),
	}
}

// ErrInvalidConfig is returned by Validate when a recognised option holds
// a value outside its accepted set.
type ErrInvalidConfig struct {
	Field string
	Value any
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid config: field %q has unrecognised value %v", e.Field, e.Value)
}

// Validate checks every option against its recognised set, per
// SPEC_FULL.md section 7 ("InvalidConfig... reported before emission
// begins").
func (c Config) Validate() error {
	switch c.Emit.Depth2SelectMode {
	case Depth2VSelect, Depth2ALUBlend:
	default:
		return &ErrInvalidConfig{Field: "depth2_select_mode", Value: c.Emit.Depth2SelectMode}
	}
	switch c.Emit.Depth4Mode {
	case Depth4Off, Depth4Deterministic16:
	default:
		return &ErrInvalidConfig{Field: "depth4_mode", Value: c.Emit.Depth4Mode}
	}
	switch c.Emit.IdxBranchMode {
	case IdxBranchVSelect, IdxBranchALU:
	default:
		return &ErrInvalidConfig{Field: "idx_branch_mode", Value: c.Emit.IdxBranchMode}
	}
	if c.Emit.InterleaveGroups < 1 {
		return &ErrInvalidConfig{Field: "interleave_groups", Value: c.Emit.InterleaveGroups}
	}
	if c.Emit.InterleaveGroupsEarly < 1 {
		return &ErrInvalidConfig{Field: "interleave_groups_early", Value: c.Emit.InterleaveGroupsEarly}
	}
	if c.Scheduler.BeamWidth < 0 {
		return &ErrInvalidConfig{Field: "scheduler_beam_width", Value: c.Scheduler.BeamWidth}
	}
	if c.Instance.BatchSize <= 0 {
		return &ErrInvalidConfig{Field: "batch_size", Value: c.Instance.BatchSize}
	}
	if c.Instance.Rounds <= 0 {
		return &ErrInvalidConfig{Field: "rounds", Value: c.Instance.Rounds}
	}
	if c.Instance.TreeHeight < 0 {
		return &ErrInvalidConfig{Field: "tree_height", Value: c.Instance.TreeHeight}
	}
	return nil
}

// document is the TOML-serializable shape of Config, flattened for
// readability the way the corpus's own tool-config files are (see
// joeycumines-go-utilpkg's BurntSushi/toml usage).
type document struct {
	Machine struct {
		ScratchSize int            `toml:"scratch_size"`
		VLEN        int            `toml:"vlen"`
		SlotLimits  map[string]int `toml:"slot_limits"`
	} `toml:"machine"`
	Instance struct {
		TreeHeight int `toml:"tree_height"`
		BatchSize  int `toml:"batch_size"`
		Rounds     int `toml:"rounds"`
	} `toml:"instance"`
	Emit struct {
		EmitDebug             bool   `toml:"emit_debug"`
		InterleaveGroups      int    `toml:"interleave_groups"`
		InterleaveGroupsEarly int    `toml:"interleave_groups_early"`
		Depth2SelectMode      string `toml:"depth2_select_mode"`
		Depth3Deterministic   bool   `toml:"depth3_deterministic"`
		Depth4Mode            string `toml:"depth4_mode"`
		IdxBranchMode         string `toml:"idx_branch_mode"`
		SplitHashPairs        bool   `toml:"split_hash_pairs"`
	} `toml:"emit"`
	Scheduler struct {
		CritWeight  int     `toml:"crit_weight"`
		SuccWeight  int     `toml:"succ_weight"`
		BeamWidth   int     `toml:"beam_width"`
		Seeds       []int64 `toml:"multi_start_seeds"`
	} `toml:"scheduler"`
}

var engineNames = map[string]machine.Engine{
	"scalar_alu": machine.ScalarALU,
	"vector_alu": machine.VectorALU,
	"load":       machine.Load,
	"store":      machine.Store,
	"flow":       machine.Flow,
	"debug":      machine.Debug,
}

// LoadTOML reads a Config from a TOML document at path, starting from
// Default() and overriding whatever the file specifies.
func LoadTOML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseTOML(data)
}

// ParseTOML decodes a Config from raw TOML bytes.
func ParseTOML(data []byte) (Config, error) {
	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return Config{}, fmt.Errorf("parsing config toml: %w", err)
	}

	cfg := Default()
	if doc.Machine.ScratchSize > 0 {
		cfg.Machine.ScratchSize = doc.Machine.ScratchSize
	}
	if doc.Machine.VLEN > 0 {
		cfg.Machine.VLEN = doc.Machine.VLEN
	}
	for name, limit := range doc.Machine.SlotLimits {
		e, ok := engineNames[name]
		if !ok {
			return Config{}, &ErrInvalidConfig{Field: "machine.slot_limits", Value: name}
		}
		cfg.Machine.SlotLimits[e] = limit
	}

	if doc.Instance.TreeHeight > 0 {
		cfg.Instance.TreeHeight = doc.Instance.TreeHeight
		cfg.Instance.NNodes = machine.NNodesForHeight(doc.Instance.TreeHeight)
	}
	if doc.Instance.BatchSize > 0 {
		cfg.Instance.BatchSize = doc.Instance.BatchSize
	}
	if doc.Instance.Rounds > 0 {
		cfg.Instance.Rounds = doc.Instance.Rounds
	}

	cfg.Emit.EmitDebug = doc.Emit.EmitDebug
	if doc.Emit.InterleaveGroups > 0 {
		cfg.Emit.InterleaveGroups = doc.Emit.InterleaveGroups
	}
	if doc.Emit.InterleaveGroupsEarly > 0 {
		cfg.Emit.InterleaveGroupsEarly = doc.Emit.InterleaveGroupsEarly
	}
	if doc.Emit.Depth2SelectMode != "" {
		cfg.Emit.Depth2SelectMode = Depth2SelectMode(doc.Emit.Depth2SelectMode)
	}
	cfg.Emit.Depth3Deterministic = doc.Emit.Depth3Deterministic
	if doc.Emit.Depth4Mode != "" {
		cfg.Emit.Depth4Mode = Depth4Mode(doc.Emit.Depth4Mode)
	}
	if doc.Emit.IdxBranchMode != "" {
		cfg.Emit.IdxBranchMode = IdxBranchMode(doc.Emit.IdxBranchMode)
	}
	cfg.Emit.SplitHashPairs = doc.Emit.SplitHashPairs

	if doc.Scheduler.CritWeight > 0 {
		cfg.Scheduler.CritWeight = doc.Scheduler.CritWeight
	}
	if doc.Scheduler.SuccWeight > 0 {
		cfg.Scheduler.SuccWeight = doc.Scheduler.SuccWeight
	}
	if doc.Scheduler.BeamWidth > 0 {
		cfg.Scheduler.BeamWidth = doc.Scheduler.BeamWidth
	}
	if len(doc.Scheduler.Seeds) > 0 {
		cfg.Scheduler.Seeds = doc.Scheduler.Seeds
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
