package emitter

import (
	"fmt"

	"github.com/hxlabs/vkc/internal/config"
	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
)

// nodeAt returns the cached scalar or broadcast form of forest[treeIdx],
// materialising whichever form is missing. The scalar load happens at
// most once per tree index regardless of how many widths request it; the
// broadcast is only built the first time a vector-width caller needs it,
// so a scalar-tail-only reference never pays for a broadcast nobody reads.
func (e *emitter) nodeAt(treeIdx, width int) ir.Addr {
	ent, ok := e.nodeCache[treeIdx]
	if !ok {
		idxConst := e.pool.ScalarConst(uint64(treeIdx))
		scalarDst := e.allocScratch(1, fmt.Sprintf("node.%d.scalar", treeIdx))
		e.emit(ir.Single(machine.Load, ir.Slot{
			Op:   ir.OpGatherOffset,
			Dst:  scalarDst,
			Src:  [3]ir.Addr{idxConst, ir.NoAddr, ir.NoAddr},
			Len:  1,
			Cond: ir.NoAddr,
		}).Named(fmt.Sprintf("node.%d", treeIdx)))
		ent = nodeCacheEntry{scalar: scalarDst}
		e.nodeCache[treeIdx] = ent
	}
	if width <= 1 {
		return ent.scalar
	}
	if !ent.hasBcast {
		bcastDst := e.allocScratch(e.spec.VLEN, fmt.Sprintf("node.%d.bcast", treeIdx))
		e.emit(ir.Single(machine.VectorALU, ir.Slot{
			Op:   ir.OpBroadcast,
			Dst:  bcastDst,
			Src:  [3]ir.Addr{ent.scalar, ir.NoAddr, ir.NoAddr},
			Len:  e.spec.VLEN,
			Cond: ir.NoAddr,
		}).Named(fmt.Sprintf("node.%d.bcast", treeIdx)))
		ent.bcast = bcastDst
		ent.hasBcast = true
		e.nodeCache[treeIdx] = ent
	}
	return ent.bcast
}

// nodePair returns (left, right, right-left) for two preloaded tree
// indices at the given width, caching the difference so the same pair
// referenced by multiple groups costs one subtraction, not one per group.
func (e *emitter) nodePair(a, b, width int) (left, right, diff ir.Addr) {
	left = e.nodeAt(a, width)
	right = e.nodeAt(b, width)
	key := diffKey{a, b, width}
	if d, ok := e.diffCache[key]; ok {
		return left, right, d
	}
	dst := e.allocScratch(width, fmt.Sprintf("diff.%d.%d.w%d", a, b, width))
	engine := machine.VectorALU
	if width <= 1 {
		engine = machine.ScalarALU
	}
	e.emit(e.aluOp(engine, machine.OpSub, right, left, dst, width, fmt.Sprintf("diff.%d.%d", a, b)))
	e.diffCache[key] = dst
	return left, right, dst
}

// pathInteger turns the absolute tree index idxReg holds at depth d into
// the 0..2^d-1 path offset within that depth's row: pathInteger = idxReg -
// (2^d - 1), since a complete binary tree's row d starts at index 2^d-1.
func (e *emitter) pathInteger(idxReg ir.Addr, d int, engine machine.Engine, width int, label string) ir.Addr {
	base := uint64(1)<<uint(d) - 1
	dst := e.allocScratch(width, label+".path")
	e.emit(e.aluOp(engine, machine.OpSub, idxReg, e.broadcastOrScalarConst(base, width), dst, width, label+".path"))
	return dst
}

// extractBits returns the d bits of pi, most significant first, via
// shift-and-mask pairs. Consumed by selectLadder, which peels bits off the
// low end first (the finest-grained reduction level).
func (e *emitter) extractBits(pi ir.Addr, d int, engine machine.Engine, width int, label string) []ir.Addr {
	bits := make([]ir.Addr, d)
	one := e.broadcastOrScalarConst(1, width)
	for i := 0; i < d; i++ {
		shiftAmt := d - 1 - i
		shifted := pi
		if shiftAmt != 0 {
			shifted = e.allocScratch(width, fmt.Sprintf("%s.b%d.shr", label, i))
			e.emit(e.aluOp(engine, machine.OpShr, pi, e.broadcastOrScalarConst(uint64(shiftAmt), width), shifted, width, fmt.Sprintf("%s.b%d.shr", label, i)))
		}
		bitDst := e.allocScratch(width, fmt.Sprintf("%s.b%d", label, i))
		e.emit(e.aluOp(engine, machine.OpAnd, shifted, one, bitDst, width, fmt.Sprintf("%s.b%d", label, i)))
		bits[i] = bitDst
	}
	return bits
}

// selectLadder reduces 2^len(bits) candidates to one value via a binary
// tree of vector-selects, consuming the least significant bit first.
func (e *emitter) selectLadder(bits []ir.Addr, candidates []ir.Addr, engine machine.Engine, width int, label string) ir.Addr {
	if len(candidates) == 1 {
		return candidates[0]
	}
	cond := bits[len(bits)-1]
	next := make([]ir.Addr, 0, len(candidates)/2)
	for i := 0; i < len(candidates); i += 2 {
		dst := e.allocScratch(width, fmt.Sprintf("%s.sel%d", label, i/2))
		e.emit(e.vselectOp(engine, candidates[i], candidates[i+1], cond, dst, width, fmt.Sprintf("%s.sel%d", label, i/2)))
		next = append(next, dst)
	}
	return e.selectLadder(bits[:len(bits)-1], next, engine, width, label)
}

// materializeLadder builds the deterministic compare-select ladder for
// depth d: 2^d preloaded candidates, reduced via d bits of path history.
func (e *emitter) materializeLadder(g *group, d int, label string) ir.Addr {
	pi := e.pathInteger(g.idx, d, g.engine, g.width, label)
	bits := e.extractBits(pi, d, g.engine, g.width, label)
	lo := (1 << uint(d)) - 1
	candidates := make([]ir.Addr, 0, 1<<uint(d))
	for idx := lo; idx < lo+(1<<uint(d)); idx++ {
		candidates = append(candidates, e.nodeAt(idx, g.width))
	}
	return e.selectLadder(bits, candidates, g.engine, g.width, label)
}

// materializeDepth2 implements SPEC_FULL.md 4.7's depth-2 case: the four
// candidates {3,4,5,6} combined either via a three-way vselect reduction
// (Depth2VSelect) or a pair of FMA blends plus one combining FMA
// (Depth2ALUBlend, which never touches OpVSelect at all).
func (e *emitter) materializeDepth2(g *group, label string) ir.Addr {
	pi := e.pathInteger(g.idx, 2, g.engine, g.width, label)
	bits := e.extractBits(pi, 2, g.engine, g.width, label) // bits[0]=hi, bits[1]=lo

	if e.ecfg.Depth2SelectMode == config.Depth2ALUBlend {
		leftBase, _, diffLeft := e.nodePair(3, 4, g.width)
		rightBase, _, diffRight := e.nodePair(5, 6, g.width)
		left := e.allocScratch(g.width, label+".left")
		e.emit(e.fmaOp(g.engine, bits[1], diffLeft, leftBase, left, g.width, label+".left"))
		right := e.allocScratch(g.width, label+".right")
		e.emit(e.fmaOp(g.engine, bits[1], diffRight, rightBase, right, g.width, label+".right"))
		diffRL := e.allocScratch(g.width, label+".diffrl")
		e.emit(e.aluOp(g.engine, machine.OpSub, right, left, diffRL, g.width, label+".diffrl"))
		dst := e.allocScratch(g.width, label+".node")
		e.emit(e.fmaOp(g.engine, bits[0], diffRL, left, dst, g.width, label+".node"))
		return dst
	}

	v3 := e.nodeAt(3, g.width)
	v4 := e.nodeAt(4, g.width)
	v5 := e.nodeAt(5, g.width)
	v6 := e.nodeAt(6, g.width)
	return e.selectLadder(bits, []ir.Addr{v3, v4, v5, v6}, g.engine, g.width, label)
}

// gatherNode implements the standard fallback: width independent
// single-cell gathers, one per lane, each addressed by that lane's own
// idx cell (SPEC_FULL.md 4.7, "standard gather").
func (e *emitter) gatherNode(g *group, label string) ir.Addr {
	dst := e.allocScratch(g.width, label+".node")
	for lane := 0; lane < g.width; lane++ {
		e.emit(ir.Single(machine.Load, ir.Slot{
			Op:   ir.OpGatherOffset,
			Dst:  dst + ir.Addr(lane),
			Src:  [3]ir.Addr{g.idx + ir.Addr(lane), ir.NoAddr, ir.NoAddr},
			Len:  1,
			Cond: ir.NoAddr,
		}).Named(fmt.Sprintf("%s.lane%d", label, lane)))
	}
	return dst
}

// materializeNode picks the depth-specialised or fallback technique for
// the node value at g's current index, per SPEC_FULL.md 4.7's per-depth
// breakdown.
func (e *emitter) materializeNode(g *group, depth int, label string) ir.Addr {
	switch {
	case depth == 0:
		return e.nodeAt(0, g.width)
	case depth == 1:
		left, _, diff := e.nodePair(1, 2, g.width)
		bit := e.pathInteger(g.idx, 1, g.engine, g.width, label) // idxReg - 1 is already 0/1.
		dst := e.allocScratch(g.width, label+".node")
		e.emit(e.fmaOp(g.engine, bit, diff, left, dst, g.width, label+".node"))
		return dst
	case depth == 2:
		return e.materializeDepth2(g, label)
	case depth == 3 && e.ecfg.Depth3Deterministic:
		return e.materializeLadder(g, 3, label)
	case depth == 4 && e.ecfg.Depth4Mode == config.Depth4Deterministic16:
		return e.materializeLadder(g, 4, label)
	default:
		return e.gatherNode(g, label)
	}
}
