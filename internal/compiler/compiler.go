// Package compiler wires the pipeline together: Emitter → Pruner →
// Dependency Graph Builder → List Scheduler, run per segment, concatenating
// a barrier bundle after each segment (SPEC_FULL.md section 2, "Control flow:
// Emitter → Pruner → Builder → Scheduler, run per segment").
package compiler

import (
	"fmt"

	"github.com/hxlabs/vkc/internal/config"
	"github.com/hxlabs/vkc/internal/depgraph"
	"github.com/hxlabs/vkc/internal/diag"
	"github.com/hxlabs/vkc/internal/emitter"
	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/prune"
	"github.com/hxlabs/vkc/internal/scheduler"
)

// Result is a full compile's output: the concatenated bundle stream (with a
// barrier bundle after each segment, the last one included) and the
// diagnostics record.
type Result struct {
	Bundles    []scheduler.Bundle
	Diag       diag.Record
	ForestBase ir.Addr
	InputBase  ir.Addr
}

// Compile runs the full pipeline over cfg and returns the scheduled bundle
// stream plus its diagnostics record. A Validate error is returned as-is;
// an emission error (*scratch.ErrExhausted) is wrapped with "emit:", and a
// scheduling error (*scheduler.DeadlockError) is wrapped with the segment
// index that produced it.
func Compile(cfg config.Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	emitRes, err := emitter.Emit(cfg)
	if err != nil {
		return Result{}, fmt.Errorf("emit: %w", err)
	}

	var allBundles []scheduler.Bundle
	var perSegmentBundles [][]scheduler.Bundle
	cycleOffset := 0

	for segIdx, seg := range emitRes.Program.Segments {
		pruned := prune.Prune(append([]ir.Op(nil), seg.Ops...), cfg.Emit.EmitDebug)

		graph := depgraph.Build(pruned, cfg.Machine.ScratchSize)
		graph.ComputeCriticalPaths()

		bundles, err := scheduler.Schedule(graph, cfg.Machine, cfg.Scheduler)
		if err != nil {
			return Result{}, fmt.Errorf("segment %d: %w", segIdx, err)
		}

		offsetBundles := make([]scheduler.Bundle, len(bundles))
		for i, b := range bundles {
			offsetBundles[i] = scheduler.Bundle{Cycle: cycleOffset + b.Cycle, Slots: b.Slots}
		}
		allBundles = append(allBundles, offsetBundles...)
		perSegmentBundles = append(perSegmentBundles, offsetBundles)
		cycleOffset += len(bundles)

		if segIdx < len(emitRes.Program.Barriers) {
			allBundles = append(allBundles, barrierBundleFor(emitRes.Program.Barriers[segIdx], cycleOffset))
			cycleOffset++
		}
	}

	rec := diag.Build(perSegmentBundles, cfg.Machine, emitRes.ConstHits, emitRes.ConstMisses,
		emitRes.Allocator.Used(), cfg.Machine.ScratchSize)

	return Result{
		Bundles:    allBundles,
		Diag:       rec,
		ForestBase: emitRes.ForestBase,
		InputBase:  emitRes.InputBase,
	}, nil
}

// barrierBundleFor wraps one barrier Op as its own single-cycle Bundle,
// the way a real cycle boundary between segments would appear in the
// stream (SPEC_FULL.md section 3: "barriers are emitted as single-cycle
// bundles between segments").
func barrierBundleFor(op ir.Op, cycle int) scheduler.Bundle {
	return scheduler.Bundle{
		Cycle: cycle,
		Slots: map[machine.Engine][]ir.Slot{op.Engine: op.Payload},
	}
}
