// Package emitter implements the kernel emitter from SPEC_FULL.md 4.7: it
// lowers one gather-hash-branch kernel instance into the Operation IR,
// applying depth specialisation, hash-stage fusion, lane-group
// interleaving, and the scalar tail fallback. It never schedules or prunes
// anything itself — that's internal/prune, internal/depgraph and
// internal/scheduler, wired together by internal/compiler.
package emitter

import (
	"errors"
	"fmt"

	"github.com/hxlabs/vkc/internal/config"
	"github.com/hxlabs/vkc/internal/constpool"
	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/scratch"
)

// interleaveFloor is the minimum group-interleave count the adaptive retry
// loop will fall back to before giving up (SPEC_FULL.md 4.7, "Adaptive
// interleave").
const interleaveFloor = 8

// Result is everything the rest of the pipeline needs from one emission:
// the unscheduled program, the allocator it was built against (for region
// diagnostics), and the constant pool's hit/miss counters.
type Result struct {
	Program     ir.Program
	Allocator   *scratch.Allocator
	ConstHits   int
	ConstMisses int
	// ForestBase and InputBase are the scratch addresses of the two
	// header-populated regions (SPEC_FULL.md 4.7's preloaded forest and
	// inp_values), surfaced so a caller wiring up internal/vm against the
	// emitted program knows where to seed external memory.
	ForestBase ir.Addr
	InputBase  ir.Addr
}

// Emit lowers cfg's kernel instance into an ir.Program, retrying with a
// smaller group-interleave count if the scratch budget is exhausted
// (decrementing the early-depth count first, then the late-depth count,
// down to interleaveFloor) before giving up.
func Emit(cfg config.Config) (Result, error) {
	early := cfg.Emit.InterleaveGroupsEarly
	late := cfg.Emit.InterleaveGroups

	for {
		res, err := tryEmit(cfg, early, late)
		if err == nil {
			return res, nil
		}
		var exhausted *scratch.ErrExhausted
		if !errors.As(err, &exhausted) {
			return Result{}, err
		}
		if early > interleaveFloor {
			early = halveFloor(early)
			continue
		}
		if late > interleaveFloor {
			late = halveFloor(late)
			continue
		}
		return Result{}, fmt.Errorf("emit: scratch exhausted even at floor interleave %d: %w", interleaveFloor, err)
	}
}

func halveFloor(n int) int {
	if h := n / 2; h >= interleaveFloor {
		return h
	}
	return interleaveFloor
}

// tryEmit runs one emission attempt with a fixed pair of interleave
// counts, converting any scratch.ErrExhausted panic raised by allocScratch
// (or by the constant pool, which allocates through the same allocator)
// into a returned error.
func tryEmit(cfg config.Config, early, late int) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			if asErr, ok := r.(error); ok {
				err = asErr
				return
			}
			panic(r)
		}
	}()

	e := newEmitter(cfg, early, late)
	e.run()

	return Result{
		Program:     e.buildProgram(),
		Allocator:   e.alloc,
		ConstHits:   e.pool.Hits,
		ConstMisses: e.pool.Misses,
		ForestBase:  e.forestBase,
		InputBase:   e.inpBase,
	}, nil
}

// group is one lane group's persistent state: a VLEN-wide register pair
// (idx, acc) reused every round, per SPEC_FULL.md 4.7's register-reuse
// discussion of write-after-read hazards. width is VLEN for an ordinary
// group or 1 for a scalar-tail lane (SPEC_FULL.md boundary scenario S2).
type group struct {
	width  int
	engine machine.Engine
	label  string
	idx    ir.Addr
	acc    ir.Addr
}

type nodeCacheEntry struct {
	scalar   ir.Addr
	bcast    ir.Addr
	hasBcast bool
}

type diffKey struct {
	a, b, width int
}

// emitter holds one emission's mutable state: the scratch allocator, the
// constant pool, the segment/barrier list under construction, and the
// caches that make preloaded node values and their pairwise differences
// one-time header-phase costs.
type emitter struct {
	spec     machine.Spec
	instance machine.KernelInstance
	ecfg     config.EmitConfig

	earlyInterleave int
	lateInterleave  int

	alloc *scratch.Allocator
	pool  *constpool.Pool

	segments [][]ir.Op
	barriers []ir.Op
	curIdx   int

	forestBase ir.Addr
	inpBase    ir.Addr

	nodeCache map[int]nodeCacheEntry
	diffCache map[diffKey]ir.Addr
}

func newEmitter(cfg config.Config, early, late int) *emitter {
	e := &emitter{
		spec:            cfg.Machine,
		instance:        cfg.Instance,
		ecfg:            cfg.Emit,
		earlyInterleave: early,
		lateInterleave:  late,
		alloc:           scratch.New(cfg.Machine.ScratchSize),
		nodeCache:       make(map[int]nodeCacheEntry),
		diffCache:       make(map[diffKey]ir.Addr),
	}
	e.pool = constpool.New(e.alloc, cfg.Machine, cfg.Emit.EmitDebug, e.emit)
	return e
}

// allocScratch wraps scratch.Allocator.Alloc, panicking with the
// *scratch.ErrExhausted on failure so Emit's recover can turn it into the
// adaptive-interleave retry signal.
func (e *emitter) allocScratch(length int, name string) ir.Addr {
	addr, err := e.alloc.Alloc(length, name)
	if err != nil {
		panic(err)
	}
	return addr
}

func (e *emitter) newSegment() {
	e.segments = append(e.segments, nil)
	e.curIdx = len(e.segments) - 1
}

// emit appends op to the segment currently under construction. It is also
// the callback the constant pool uses to splice in its materialising ops,
// so a constant referenced mid-round lands in whichever segment is open at
// the time (always the header segment in practice, since every constant
// the kernel needs is touched during the eager header preload pass).
func (e *emitter) emit(op ir.Op) {
	e.segments[e.curIdx] = append(e.segments[e.curIdx], op)
}

func barrierOp() ir.Op {
	return ir.Single(machine.Flow, ir.Slot{
		Op:   ir.OpBarrier,
		Dst:  ir.NoAddr,
		Src:  [3]ir.Addr{ir.NoAddr, ir.NoAddr, ir.NoAddr},
		Cond: ir.NoAddr,
	}).Named("barrier")
}

// closeSegment ends the current segment with a barrier and opens a fresh
// one, used at every round boundary in debug mode (SPEC_FULL.md section 9:
// "every reference-kernel yield point aligns with a barrier").
func (e *emitter) closeSegment() {
	e.barriers = append(e.barriers, barrierOp())
	e.newSegment()
}

// closeFinalSegment ends the last segment with a barrier without opening
// another one.
func (e *emitter) closeFinalSegment() {
	e.barriers = append(e.barriers, barrierOp())
}

func (e *emitter) buildProgram() ir.Program {
	prog := ir.Program{Barriers: e.barriers}
	for _, ops := range e.segments {
		prog.Segments = append(prog.Segments, ir.Segment{Ops: ops})
	}
	return prog
}

// run drives the whole emission: header preloads, then the round loop,
// then the final write-back (SPEC_FULL.md 4.7, "Header/Body").
func (e *emitter) run() {
	e.newSegment()

	e.forestBase = e.allocScratch(e.instance.NNodes, "forest")
	e.inpBase = e.allocScratch(e.instance.BatchSize, "inp_values")

	groups := e.setupGroups()
	haveTail := e.instance.BatchSize%e.spec.VLEN != 0
	e.emitHeaderPreloads(haveTail)

	if e.ecfg.EmitDebug {
		e.closeSegment()
	}

	for r := 0; r < e.instance.Rounds; r++ {
		e.emitRoundForAllGroups(r, groups)
		if e.ecfg.EmitDebug && r < e.instance.Rounds-1 {
			e.closeSegment()
		}
	}

	e.emitFinalStores(groups)
	e.closeFinalSegment()
}

// setupGroups allocates the persistent idx/acc registers for every full
// VLEN-wide lane group and every scalar tail lane. acc aliases directly
// into inp_values (the pre-populated accumulator input doubles as the
// write-back target; see emitFinalStores), so no load op is needed to
// seed it and idx starts at the scratch default of zero with no init op,
// matching "every index is 0 at depth 0" for free.
func (e *emitter) setupGroups() []*group {
	vlen := e.spec.VLEN
	full := e.instance.BatchSize / vlen
	tail := e.instance.BatchSize % vlen

	groups := make([]*group, 0, full+tail)
	for gi := 0; gi < full; gi++ {
		lane := gi * vlen
		g := &group{width: vlen, engine: machine.VectorALU, label: fmt.Sprintf("grp%d", gi)}
		g.acc = e.inpBase + ir.Addr(lane)
		g.idx = e.allocScratch(vlen, g.label+".idx")
		groups = append(groups, g)
	}
	for ti := 0; ti < tail; ti++ {
		lane := full*vlen + ti
		g := &group{width: 1, engine: machine.ScalarALU, label: fmt.Sprintf("tail%d", ti)}
		g.acc = e.inpBase + ir.Addr(lane)
		g.idx = e.allocScratch(1, g.label+".idx")
		groups = append(groups, g)
	}
	return groups
}

// emitHeaderPreloads eagerly materialises every preloaded node value the
// round loop will reference, in both the vector width and (if there is a
// scalar tail) the scalar width, so debug mode's header/body barrier falls
// after all of it rather than splitting a preload across the boundary.
func (e *emitter) emitHeaderPreloads(haveTail bool) {
	widths := []int{e.spec.VLEN}
	if haveTail {
		widths = append(widths, 1)
	}

	for _, w := range widths {
		e.nodeAt(0, w)
		if e.instance.TreeHeight >= 1 {
			e.nodePair(1, 2, w)
		}
		if e.instance.TreeHeight >= 2 {
			e.nodePair(3, 4, w)
			e.nodePair(5, 6, w)
		}
		if e.instance.TreeHeight >= 3 && e.ecfg.Depth3Deterministic {
			for idx := 7; idx <= 14; idx++ {
				e.nodeAt(idx, w)
			}
		}
		if e.instance.TreeHeight >= 4 && e.ecfg.Depth4Mode == config.Depth4Deterministic16 {
			for idx := 15; idx <= 30; idx++ {
				e.nodeAt(idx, w)
			}
		}
		// Intern the path-base, shift, branch and hash-stage constants here
		// too, so they sit below the per-wave Checkpoint/Rewind in
		// emitRoundForAllGroups and are never reclaimed as round temporaries.
		consts := []uint64{1, 2, 3, 7, 15}
		for _, st := range e.spec.HashStages {
			consts = append(consts, st.C1, st.C3, uint64(1)<<st.C3, (uint64(1)<<st.C3)+1)
		}
		for _, v := range consts {
			e.broadcastOrScalarConst(v, w)
		}
	}
}

// emitRoundForAllGroups partitions groups into interleave-sized waves and
// emits one round of computation for each wave, rewinding the scratch
// allocator after each wave so peak scratch for round-local temporaries is
// bounded by the wave size rather than the total group count (SPEC_FULL.md
// 4.7, "group interleaving... adaptive interleave").
func (e *emitter) emitRoundForAllGroups(r int, groups []*group) {
	depth := r % (e.instance.TreeHeight + 1)
	interleave := e.lateInterleave
	if depth <= 1 {
		interleave = e.earlyInterleave
	}
	if interleave < 1 {
		interleave = 1
	}

	for start := 0; start < len(groups); start += interleave {
		end := start + interleave
		if end > len(groups) {
			end = len(groups)
		}
		wave := groups[start:end]
		cp := e.alloc.Checkpoint()
		e.emitWaveRound(wave, r, depth)
		e.alloc.Rewind(cp)
	}
}

// emitFinalStores writes every group's final accumulator back to
// inp_values (SPEC_FULL.md 4.7: "after the final round, accumulators are
// written back"). acc already aliases the right inp_values cells, so this
// is a redundant store in our flat address space, but it is the
// side-effecting marker that keeps the pruner from ever discarding the
// result and gives the scheduler genuine Store-engine work to pack.
func (e *emitter) emitFinalStores(groups []*group) {
	for _, g := range groups {
		op := ir.OpScalarStore
		if g.width > 1 {
			op = ir.OpVectorStore
		}
		e.emit(ir.Single(machine.Store, ir.Slot{
			Op:   op,
			Dst:  ir.NoAddr,
			Src:  [3]ir.Addr{g.acc, ir.NoAddr, ir.NoAddr},
			Imm:  int64(g.acc),
			Len:  g.width,
			Cond: ir.NoAddr,
		}).Named(g.label + ".store"))
	}
}

// aluSlot builds a binary ALU slot at the given width, choosing the
// scalar or vector opcode the way OpScalarALU/OpVectorALU's Reads/Writes
// split requires.
func aluSlot(op machine.HashOp, a, b, dst ir.Addr, width int) ir.Slot {
	slotOp := ir.OpVectorALU
	if width <= 1 {
		slotOp = ir.OpScalarALU
		width = 1
	}
	return ir.Slot{Op: slotOp, ALU: op, Dst: dst, Src: [3]ir.Addr{a, b, ir.NoAddr}, Len: width, Cond: ir.NoAddr}
}

func (e *emitter) aluOp(engine machine.Engine, op machine.HashOp, a, b, dst ir.Addr, width int, label string) ir.Op {
	return ir.Single(engine, aluSlot(op, a, b, dst, width)).Named(label)
}

func fmaSlot(a, b, c, dst ir.Addr, width int) ir.Slot {
	return ir.Slot{Op: ir.OpFMA, Dst: dst, Src: [3]ir.Addr{a, b, c}, Len: width, Cond: ir.NoAddr}
}

func (e *emitter) fmaOp(engine machine.Engine, a, b, c, dst ir.Addr, width int, label string) ir.Op {
	return ir.Single(engine, fmaSlot(a, b, c, dst, width)).Named(label)
}

func vselectSlot(src0, src1, cond, dst ir.Addr, width int) ir.Slot {
	return ir.Slot{Op: ir.OpVSelect, Dst: dst, Src: [3]ir.Addr{src0, src1, ir.NoAddr}, Cond: cond, Len: width}
}

func (e *emitter) vselectOp(engine machine.Engine, src0, src1, cond, dst ir.Addr, width int, label string) ir.Op {
	return ir.Single(engine, vselectSlot(src0, src1, cond, dst, width)).Named(label)
}

// broadcastOrScalarConst returns the constant v at the given width,
// through the constant pool so repeated references across rounds and
// groups share one materialising op.
func (e *emitter) broadcastOrScalarConst(v uint64, width int) ir.Addr {
	if width > 1 {
		return e.pool.BroadcastConst(v)
	}
	return e.pool.ScalarConst(v)
}
