// Package prune implements the backward dead-slot liveness sweep from
// SPEC_FULL.md 4.3. It must run backwards: a forward pass would
// under-approximate liveness and incorrectly drop producers whose
// consumers appear later (Design Notes, "Dead-slot pruning order").
package prune

import (
	"fmt"

	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/vkcapi"
)

// Prune filters ops, keeping only those with an unconditional side effect
// or whose writes are (transitively) read by something kept. Output
// preserves original order. debugEnabled controls whether OpDebugCompare
// slots count as having a side effect.
func Prune(ops []ir.Op, debugEnabled bool) []ir.Op {
	var live vkcapi.AddrSet
	keep := make([]bool, len(ops))

	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		keptPayload := prunePayload(op.Payload, &live, debugEnabled)
		if len(keptPayload) == 0 {
			continue
		}
		ops[i].Payload = keptPayload
		keep[i] = true
	}

	out := make([]ir.Op, 0, len(ops))
	for i, op := range ops {
		if keep[i] {
			out = append(out, op)
		}
	}
	if vkcapi.PrunerLoggingEnabled {
		fmt.Println("prune: kept", len(out), "of", len(ops), "ops")
	}
	return out
}

// prunePayload filters sub-slots of one fused payload, in reverse slot
// order so later slots see the liveness contributed by earlier ones'
// surviving successors within the same op. Slots that survive have their
// reads unioned into live and their writes subtracted.
func prunePayload(slots []ir.Slot, live *vkcapi.AddrSet, debugEnabled bool) []ir.Slot {
	kept := make([]bool, len(slots))
	for i := len(slots) - 1; i >= 0; i-- {
		s := slots[i]
		if s.SideEffect(debugEnabled) {
			kept[i] = true
			for _, a := range s.Reads() {
				live.Add(int(a))
			}
			for _, a := range s.Writes() {
				live.Remove(int(a))
			}
			continue
		}
		alive := false
		for _, a := range s.Writes() {
			if live.Has(int(a)) {
				alive = true
				break
			}
		}
		if !alive {
			continue
		}
		kept[i] = true
		for _, a := range s.Writes() {
			live.Remove(int(a))
		}
		for _, a := range s.Reads() {
			live.Add(int(a))
		}
	}

	out := make([]ir.Slot, 0, len(slots))
	for i, s := range slots {
		if kept[i] {
			out = append(out, s)
		}
	}
	return out
}
