package scheduler

import "github.com/hxlabs/vkc/internal/machine"

// Config carries the scheduler's tunable knobs from SPEC_FULL.md section
// 6: priority weights, per-engine bias, the beam width used for slot-fill
// look-ahead, and the seed set driving multi-start restarts.
type Config struct {
	CritWeight int
	SuccWeight int
	EngineBias map[machine.Engine]int

	// BeamWidth bounds how many ready ops are sampled per scheduling
	// round within a cycle before committing to the best feasible one.
	BeamWidth int

	// Seeds drives multi-start: one independent run per seed, ranked by
	// cycle count, ties broken by the earliest seed in this slice to
	// reach the minimum. A nil/empty slice runs once with seed 0 and no
	// perturbation.
	Seeds []int64
}

// DefaultConfig returns reasonable scheduler weights, matching the kind of
// values a critical-path list scheduler typically starts from: the
// critical path dominates priority, successor count is a lighter
// tiebreak, and no engine bias or perturbation by default.
func DefaultConfig() Config {
	return Config{
		CritWeight: 8,
		SuccWeight: 1,
		EngineBias: map[machine.Engine]int{},
		BeamWidth:  4,
		Seeds:      nil,
	}
}

func (c Config) bias(e machine.Engine) int {
	return c.EngineBias[e]
}
