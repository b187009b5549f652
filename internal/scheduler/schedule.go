// Package scheduler implements the list scheduler from SPEC_FULL.md 4.6:
// critical-path priorities, a beam-width-bounded ready heap, per-engine
// slot packing, and best-of-N multi-start.
package scheduler

import (
	"container/heap"
	"fmt"
	"math/rand"

	"github.com/hxlabs/vkc/internal/depgraph"
	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/vkcapi"
)

// Bundle is one VLIW cycle: a mapping from engine to the slots scheduled
// into it this cycle, in scheduling order.
type Bundle struct {
	Cycle int
	Slots map[machine.Engine][]ir.Slot
}

// DeadlockError is the scheduler-deadlock error of SPEC_FULL.md section 7: the
// ready heap emptied mid-cycle without any op having been scheduled that
// cycle, which only happens when the dependency graph is inconsistent
// (e.g. a missing edge left two ops mutually waiting on each other).
type DeadlockError struct {
	Cycle            int
	UnscheduledCount int
	TotalNodeCount   int
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("scheduler deadlock at cycle %d: %d of %d ops never became schedulable",
		e.Cycle, e.UnscheduledCount, e.TotalNodeCount)
}

// Schedule runs the list scheduler over graph once per seed in cfg.Seeds
// (or once, unperturbed, if cfg.Seeds is empty) and returns the bundle
// stream with the fewest cycles. Ties are broken by the earliest seed in
// cfg.Seeds to achieve the minimum (SPEC_FULL.md 4.6, "Multi-start").
func Schedule(graph *depgraph.Graph, spec machine.Spec, cfg Config) ([]Bundle, error) {
	seeds := cfg.Seeds
	if len(seeds) == 0 {
		seeds = []int64{0}
	}

	var best []Bundle
	for i, seed := range seeds {
		bundles, err := scheduleOnce(graph, spec, cfg, seed)
		if err != nil {
			// SPEC_FULL.md section 7: multi-start does not fall back
			// across seeds -- every seed must succeed.
			return nil, fmt.Errorf("seed %d (index %d): %w", seed, i, err)
		}
		if best == nil || len(bundles) < len(best) {
			best = bundles
		}
	}
	return best, nil
}

// scheduleOnce runs one full scheduling pass with the given seed.
func scheduleOnce(graph *depgraph.Graph, spec machine.Spec, cfg Config, seed int64) ([]Bundle, error) {
	n := len(graph.Nodes)
	st := newState(graph, spec, cfg, seed)

	var bundles []Bundle
	scheduledCount := 0
	cycle := 0

	for scheduledCount < n {
		progressed := false
		var deferred []readyItem
		bundleSlots := map[machine.Engine][]ir.Slot{}
		engineUsed := map[machine.Engine]int{}

		for st.ready.Len() > 0 {
			sampled := st.popUpTo(cfg.beamWidth())
			var feasible []readyItem
			for _, item := range sampled {
				if st.feasible(item.node, cycle, spec, engineUsed) {
					feasible = append(feasible, item)
				} else {
					deferred = append(deferred, item)
				}
			}
			if len(feasible) == 0 {
				continue
			}

			bestIdx := st.pickBest(feasible, spec, engineUsed)
			chosen := feasible[bestIdx]
			for i, item := range feasible {
				if i != bestIdx {
					deferred = append(deferred, item)
				}
			}

			node := &graph.Nodes[chosen.node]
			engineUsed[node.Op.Engine] += node.Op.SlotCount()
			bundleSlots[node.Op.Engine] = append(bundleSlots[node.Op.Engine], node.Op.Payload...)
			st.cycleOf[chosen.node] = cycle
			st.scheduled[chosen.node] = true
			scheduledCount++
			progressed = true

			st.advanceSuccessors(chosen.node, cycle)

			if vkcapi.SchedulerLoggingEnabled {
				fmt.Println("cycle", cycle, "scheduled node", chosen.node, "engine", node.Op.Engine.String())
			}
		}

		if !progressed {
			return nil, &DeadlockError{Cycle: cycle, UnscheduledCount: n - scheduledCount, TotalNodeCount: n}
		}

		for _, item := range deferred {
			heap.Push(&st.ready, item)
		}

		if len(bundleSlots) > 0 {
			bundles = append(bundles, Bundle{Cycle: cycle, Slots: bundleSlots})
		}
		cycle++
	}

	return bundles, nil
}

// state holds the mutable per-run scheduler state: ready heap, per-node
// predecessor remaining counts, and the latest-scheduled-cycle bookkeeping
// used for feasibility checks. Multi-start seeds each get a fresh state
// over the same immutable graph (Design Notes, "Mutable scheduler state").
type state struct {
	graph *depgraph.Graph
	cfg   Config
	rng   *rand.Rand

	priority []int64

	strictPredRemaining []int
	weakPredRemaining   []int
	maxStrictPredCycle  []int
	maxWeakPredCycle    []int
	scheduled           []bool
	cycleOf             []int

	ready   readyHeap
	nextSeq int
}

func newState(graph *depgraph.Graph, spec machine.Spec, cfg Config, seed int64) *state {
	n := len(graph.Nodes)
	st := &state{
		graph:               graph,
		cfg:                 cfg,
		rng:                 rand.New(rand.NewSource(seed)),
		priority:            make([]int64, n),
		strictPredRemaining: make([]int, n),
		weakPredRemaining:   make([]int, n),
		maxStrictPredCycle:  make([]int, n),
		maxWeakPredCycle:    make([]int, n),
		scheduled:           make([]bool, n),
		cycleOf:             make([]int, n),
	}
	for i := 0; i < n; i++ {
		st.maxStrictPredCycle[i] = -1
		st.maxWeakPredCycle[i] = -1
		st.strictPredRemaining[i] = graph.Nodes[i].StrictPredCount
		st.weakPredRemaining[i] = graph.Nodes[i].WeakPredCount
		st.priority[i] = st.computePriority(i, spec)
	}
	for i := 0; i < n; i++ {
		if st.strictPredRemaining[i] == 0 && st.weakPredRemaining[i] == 0 {
			st.push(i)
		}
	}
	return st
}

// computePriority implements SPEC_FULL.md 4.5: crit(i)*W_crit +
// succ_count(i)*W_succ + engine_bias[engine(i)], optionally perturbed by a
// seeded random integer in [0, W_crit/4].
func (st *state) computePriority(i int, spec machine.Spec) int64 {
	node := &st.graph.Nodes[i]
	p := int64(node.Crit)*int64(st.cfg.CritWeight) +
		int64(st.graph.SuccessorCount(i))*int64(st.cfg.SuccWeight) +
		int64(st.cfg.bias(node.Op.Engine))

	if span := st.cfg.CritWeight / 4; span > 0 && len(st.cfg.Seeds) > 0 {
		p += int64(st.rng.Intn(span + 1))
	}
	return p
}

func (st *state) push(i int) {
	heap.Push(&st.ready, readyItem{node: i, priority: st.priority[i], seq: st.nextSeq})
	st.nextSeq++
}

func (st *state) popUpTo(k int) []readyItem {
	if k <= 0 {
		k = 1
	}
	var out []readyItem
	for len(out) < k && st.ready.Len() > 0 {
		out = append(out, heap.Pop(&st.ready).(readyItem))
	}
	return out
}

// feasible implements step 2 of SPEC_FULL.md 4.6: strict predecessors
// must have finished in a strictly earlier cycle, weak predecessors by
// this cycle or earlier, and the engine must have enough free slots.
func (st *state) feasible(i int, cycle int, spec machine.Spec, engineUsed map[machine.Engine]int) bool {
	if st.maxStrictPredCycle[i] >= cycle {
		return false
	}
	// Design Notes: preserve the exact `> cycle` inequality for the weak
	// bound, not `>= cycle`, so same-cycle write-after-read is legal.
	if st.maxWeakPredCycle[i] > cycle {
		return false
	}
	node := &st.graph.Nodes[i]
	limit := spec.SlotLimit(node.Op.Engine)
	return engineUsed[node.Op.Engine]+node.Op.SlotCount() <= limit
}

// pickBest implements step 4: among feasible candidates, maximise
// (min(remaining_slots, slot_count), successor_count, priority).
func (st *state) pickBest(feasible []readyItem, spec machine.Spec, engineUsed map[machine.Engine]int) int {
	best := 0
	for i := 1; i < len(feasible); i++ {
		if st.less(feasible[best], feasible[i], spec, engineUsed) {
			best = i
		}
	}
	return best
}

// less reports whether b should be preferred over a.
func (st *state) less(a, b readyItem, spec machine.Spec, engineUsed map[machine.Engine]int) bool {
	af := st.slotFill(a.node, spec, engineUsed)
	bf := st.slotFill(b.node, spec, engineUsed)
	if af != bf {
		return bf > af
	}
	as := st.graph.SuccessorCount(a.node)
	bs := st.graph.SuccessorCount(b.node)
	if as != bs {
		return bs > as
	}
	if a.priority != b.priority {
		return b.priority > a.priority
	}
	return b.seq < a.seq
}

func (st *state) slotFill(i int, spec machine.Spec, engineUsed map[machine.Engine]int) int {
	node := &st.graph.Nodes[i]
	limit := spec.SlotLimit(node.Op.Engine)
	remaining := limit - engineUsed[node.Op.Engine]
	slotCount := node.Op.SlotCount()
	if remaining < slotCount {
		return remaining
	}
	return slotCount
}

// advanceSuccessors updates bookkeeping for every successor of the node
// just scheduled at cycle, pushing any successor whose predecessors are
// now all accounted for.
func (st *state) advanceSuccessors(i int, cycle int) {
	node := &st.graph.Nodes[i]
	for _, s := range node.StrictSuccessors {
		if cycle > st.maxStrictPredCycle[s] {
			st.maxStrictPredCycle[s] = cycle
		}
		st.strictPredRemaining[s]--
		if st.strictPredRemaining[s] == 0 && st.weakPredRemaining[s] == 0 {
			st.push(s)
		}
	}
	for _, s := range node.WeakSuccessors {
		if cycle > st.maxWeakPredCycle[s] {
			st.maxWeakPredCycle[s] = cycle
		}
		st.weakPredRemaining[s]--
		if st.strictPredRemaining[s] == 0 && st.weakPredRemaining[s] == 0 {
			st.push(s)
		}
	}
}

func (c Config) beamWidth() int {
	if c.BeamWidth <= 0 {
		return 1
	}
	return c.BeamWidth
}
