// Package diag implements the optional per-segment diagnostics record from
// SPEC_FULL.md section 6's "Ambient additions" and section 9's "Diagnostics
// must not change the schedule": a read-only summary built from an
// already-produced bundle stream plus counters gathered during emission,
// never fed back into scheduling. Grounded on wazevoapi's small
// print-passes/debug helpers (itself a thin wrapper around data the
// compiler already has).
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/scheduler"
)

// EngineUtilization is one engine's slot usage across a segment.
type EngineUtilization struct {
	Engine     machine.Engine
	SlotsUsed  int
	SlotsTotal int // SlotLimit * cycle count, the theoretical ceiling.
}

// Fraction returns SlotsUsed/SlotsTotal, or 0 if the engine never appears.
func (u EngineUtilization) Fraction() float64 {
	if u.SlotsTotal == 0 {
		return 0
	}
	return float64(u.SlotsUsed) / float64(u.SlotsTotal)
}

// Segment is the diagnostics record for one scheduled segment.
type Segment struct {
	Index       int
	Cycles      int
	Utilization []EngineUtilization // sorted by Engine, stable across runs.
	ConstHits   int
	ConstMisses int
}

// Record is the full diagnostics record for one compile, one Segment per
// scheduled program segment plus allocator-wide scratch usage.
type Record struct {
	Segments    []Segment
	ScratchUsed int
	ScratchSize int
	TotalCycles int
}

// BuildSegment summarizes one segment's bundle stream. constHits/constMisses
// are recorded as given; Build passes the constant pool's totals for the
// whole emission to every segment (SPEC_FULL.md 4.2: "cheap counters, no
// behavioral effect").
func BuildSegment(index int, bundles []scheduler.Bundle, spec machine.Spec, constHits, constMisses int) Segment {
	seg := Segment{Index: index, Cycles: len(bundles), ConstHits: constHits, ConstMisses: constMisses}

	used := map[machine.Engine]int{}
	for _, b := range bundles {
		for engine, slots := range b.Slots {
			used[engine] += len(slots)
		}
	}

	engines := make([]machine.Engine, 0, len(used))
	for e := range used {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })

	for _, e := range engines {
		seg.Utilization = append(seg.Utilization, EngineUtilization{
			Engine:     e,
			SlotsUsed:  used[e],
			SlotsTotal: spec.SlotLimit(e) * len(bundles),
		})
	}
	return seg
}

// Build assembles the full Record from every segment's bundle stream.
func Build(perSegmentBundles [][]scheduler.Bundle, spec machine.Spec, constHits, constMisses, scratchUsed, scratchSize int) Record {
	rec := Record{ScratchUsed: scratchUsed, ScratchSize: scratchSize}
	for i, bundles := range perSegmentBundles {
		seg := BuildSegment(i, bundles, spec, constHits, constMisses)
		rec.Segments = append(rec.Segments, seg)
		rec.TotalCycles += seg.Cycles
	}
	return rec
}

// String renders the record as TOML-friendly key/value lines, the format
// `vkc stats` writes to stdout (SPEC_FULL.md 6: "never to disk automatically").
func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "total_cycles = %d\n", r.TotalCycles)
	fmt.Fprintf(&b, "scratch_used = %d\n", r.ScratchUsed)
	fmt.Fprintf(&b, "scratch_size = %d\n", r.ScratchSize)
	for _, seg := range r.Segments {
		fmt.Fprintf(&b, "\n[[segment]]\n")
		fmt.Fprintf(&b, "index = %d\n", seg.Index)
		fmt.Fprintf(&b, "cycles = %d\n", seg.Cycles)
		fmt.Fprintf(&b, "const_hits = %d\n", seg.ConstHits)
		fmt.Fprintf(&b, "const_misses = %d\n", seg.ConstMisses)
		for _, u := range seg.Utilization {
			fmt.Fprintf(&b, "%s_slots_used = %d\n", u.Engine, u.SlotsUsed)
			fmt.Fprintf(&b, "%s_utilization = %.3f\n", u.Engine, u.Fraction())
		}
	}
	return b.String()
}
