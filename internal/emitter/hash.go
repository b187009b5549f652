package emitter

import (
	"fmt"

	"github.com/hxlabs/vkc/internal/config"
	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
)

// applyHashStages runs the fixed hash-stage table over aReg, writing the
// last stage's result into finalDst so the caller can target a persistent
// register (the accumulator) without an extra copy op.
func (e *emitter) applyHashStages(aReg, finalDst ir.Addr, width int, engine machine.Engine, label string) ir.Addr {
	cur := aReg
	for si, stage := range e.spec.HashStages {
		dst := ir.NoAddr
		if si == len(e.spec.HashStages)-1 {
			dst = finalDst
		}
		cur = e.applyHashStage(cur, stage, dst, width, engine, fmt.Sprintf("%s.hash%d", label, si))
	}
	return cur
}

// applyHashStage lowers one stage a' = (a op1 c1) op2 (a op3 c3), applying
// the two fusion identities from SPEC_FULL.md 4.7 ("Hash fusion") when the
// stage's shape allows it, and otherwise emitting the two pre-ops (fused
// into one dual-slot op, or split, per SplitHashPairs) plus a combine. If
// dst is ir.NoAddr a fresh cell is allocated; otherwise dst is used as the
// final write target directly.
func (e *emitter) applyHashStage(a ir.Addr, st machine.Stage, dst ir.Addr, width int, engine machine.Engine, label string) ir.Addr {
	if dst == ir.NoAddr {
		dst = e.allocScratch(width, label)
	}

	// Identity 2: op1==Add, op2==Add, op3==Shl collapses the whole stage
	// into one fused-multiply-add: a' = a*((1<<c3)+1) + c1.
	if st.Op1 == machine.OpAdd && st.Op2 == machine.OpAdd && st.Op3 == machine.OpShl {
		mult := (uint64(1) << st.C3) + 1
		multReg := e.broadcastOrScalarConst(mult, width)
		c1Reg := e.broadcastOrScalarConst(st.C1, width)
		e.emit(e.fmaOp(engine, a, multReg, c1Reg, dst, width, label))
		return dst
	}

	// Identity 1: op2==Add, op3==Shl (op1 arbitrary) reduces to one
	// pre-op plus one fused-multiply-add: a' = a*(1<<c3) + (a op1 c1).
	if st.Op2 == machine.OpAdd && st.Op3 == machine.OpShl {
		pre := e.allocScratch(width, label+".pre")
		c1Reg := e.broadcastOrScalarConst(st.C1, width)
		e.emit(e.aluOp(engine, st.Op1, a, c1Reg, pre, width, label+".pre"))
		multReg := e.broadcastOrScalarConst(uint64(1)<<st.C3, width)
		e.emit(e.fmaOp(engine, a, multReg, pre, dst, width, label))
		return dst
	}

	// General case: two independent pre-ops, then a combine.
	t1 := e.allocScratch(width, label+".t1")
	t3 := e.allocScratch(width, label+".t3")
	c1Reg := e.broadcastOrScalarConst(st.C1, width)
	c3Reg := e.broadcastOrScalarConst(st.C3, width)
	slot1 := aluSlot(st.Op1, a, c1Reg, t1, width)
	slot3 := aluSlot(st.Op3, a, c3Reg, t3, width)
	if e.ecfg.SplitHashPairs {
		e.emit(ir.Single(engine, slot1).Named(label + ".t1"))
		e.emit(ir.Single(engine, slot3).Named(label + ".t3"))
	} else {
		// Design Notes: fusing the pre-ops into one dual-slot op saves one
		// engine slot count but forces them onto the same cycle, which can
		// lengthen the critical path relative to splitting them.
		e.emit(ir.Fused(engine, slot1, slot3).Named(label + ".pre"))
	}
	e.emit(e.aluOp(engine, st.Op2, t1, t3, dst, width, label))
	return dst
}

// resetIdx wraps g.idx back to the root (0) after a leaf round, mirroring
// the reference kernel's "idx = 0 if idx >= n_nodes" (SPEC_FULL.md 4.8):
// every traversal past the first restarts at the root rather than holding
// at the leaf. idx-idx is always 0 regardless of idx's current value, so
// this needs no constant register, and the read-then-write of the same
// address within one op is the persistent-register self-edge depgraph
// already special-cases.
func (e *emitter) resetIdx(g *group, label string) {
	e.emit(e.aluOp(g.engine, machine.OpSub, g.idx, g.idx, g.idx, g.width, label+".idx.reset"))
}

// updateIdx advances g.idx in place to the next round's absolute tree
// index: 2*idx + 1 + bit. IdxBranchALU computes it as a plain ALU chain;
// IdxBranchVSelect instead forms both children (2*idx+1 and 2*idx+2) and
// selects between them, exercising OpVSelect on the index path the way
// node materialisation exercises it on the value path.
func (e *emitter) updateIdx(g *group, bit ir.Addr, label string) {
	two := e.broadcastOrScalarConst(2, g.width)
	one := e.broadcastOrScalarConst(1, g.width)

	switch e.ecfg.IdxBranchMode {
	case config.IdxBranchALU:
		onePlusBit := e.allocScratch(g.width, label+".opb")
		e.emit(e.aluOp(g.engine, machine.OpAdd, bit, one, onePlusBit, g.width, label+".opb"))
		e.emit(e.fmaOp(g.engine, g.idx, two, onePlusBit, g.idx, g.width, label+".idx"))
	default:
		left := e.allocScratch(g.width, label+".left")
		e.emit(e.fmaOp(g.engine, g.idx, two, one, left, g.width, label+".left"))
		right := e.allocScratch(g.width, label+".right")
		e.emit(e.aluOp(g.engine, machine.OpAdd, left, one, right, g.width, label+".right"))
		e.emit(e.vselectOp(g.engine, left, right, bit, g.idx, g.width, label+".idx"))
	}
}

// emitWaveRound emits one round's computation for every group in wave,
// macro-step by macro-step (node materialisation for all groups, then mix
// for all groups, then hash for all groups, ...) rather than group by
// group. This is what makes the interleave count actually bound peak
// per-round scratch: every group in the wave keeps its partial chain alive
// simultaneously, so a smaller wave means fewer chains in flight.
func (e *emitter) emitWaveRound(wave []*group, round, depth int) {
	labels := make([]string, len(wave))
	nodes := make([]ir.Addr, len(wave))
	mixed := make([]ir.Addr, len(wave))
	hashed := make([]ir.Addr, len(wave))
	bits := make([]ir.Addr, len(wave))

	for i, g := range wave {
		labels[i] = fmt.Sprintf("%s.r%d", g.label, round)
		nodes[i] = e.materializeNode(g, depth, labels[i])
	}
	for i, g := range wave {
		dst := e.allocScratch(g.width, labels[i]+".mix")
		e.emit(e.aluOp(g.engine, machine.OpXor, g.acc, nodes[i], dst, g.width, labels[i]+".mix"))
		mixed[i] = dst
	}
	for i, g := range wave {
		hashed[i] = e.applyHashStages(mixed[i], g.acc, g.width, g.engine, labels[i])
	}
	for i, g := range wave {
		dst := e.allocScratch(g.width, labels[i]+".bit")
		e.emit(e.aluOp(g.engine, machine.OpAnd, hashed[i], e.broadcastOrScalarConst(1, g.width), dst, g.width, labels[i]+".bit"))
		bits[i] = dst
	}

	isLastRound := round == e.instance.Rounds-1
	if isLastRound {
		return
	}
	if depth == e.instance.TreeHeight {
		// Leaf depth: the next round starts a fresh traversal from the
		// root, so idx wraps to 0 instead of advancing past the tree.
		for i, g := range wave {
			e.resetIdx(g, labels[i])
		}
		return
	}
	for i, g := range wave {
		e.updateIdx(g, bits[i], labels[i])
	}
}
