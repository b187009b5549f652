// Package ir implements the Operation IR described in SPEC_FULL.md
// section 3 ("Operation") and section 9 ("Dispatch over slot payload
// variants"): an engine-tagged operation carrying either one slot payload
// or a short fused list sharing one engine slot count. Mirroring the
// teacher's flattened ssa.Instruction, each Slot is a single struct whose
// fields take on different meanings depending on Op, dispatched through a
// small set of accessor methods rather than a Go interface per opcode —
// Go has no sum types, so this is the idiomatic stand-in for one.
package ir

import (
	"fmt"

	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/scratch"
)

// Addr is a scratch address; re-exported so callers outside scratch don't
// need to import it just to spell the type.
type Addr = scratch.Addr

// NoAddr marks an unused Src/Cond/Dst slot field. Address 0 is a valid
// scratch cell (the header starts there), so the zero value of Addr can't
// double as "absent" — every Slot constructor must set unused fields to
// NoAddr explicitly.
const NoAddr Addr = -1

// SlotOp is the opcode of one Slot.
type SlotOp uint8

const (
	// OpScalarALU computes dst = src0 <bin> src1, or dst = src0 <imm> if
	// Src[1] is unused and Imm carries the immediate operand.
	OpScalarALU SlotOp = iota
	// OpAddImmFromZero synthesises a small constant via the flow engine's
	// add-immediate-from-always-zero-cell trick (SPEC_FULL.md 4.2): dst =
	// ZeroCell + Imm, where ZeroCell is guaranteed never written.
	OpAddImmFromZero
	// OpConstLoad materialises an immediate into dst directly (used in
	// debug mode, where readable traces matter more than flow-slot reuse).
	OpConstLoad
	// OpVectorALU computes a VLEN-wide elementwise binary op: dst[0:VLEN]
	// = src0[0:VLEN] <bin> src1[0:VLEN].
	OpVectorALU
	// OpFMA computes a VLEN-wide fused multiply-add: dst[0:VLEN] =
	// src0[0:VLEN]*src1[0:VLEN] + src2[0:VLEN].
	OpFMA
	// OpVSelect computes a VLEN-wide select: dst[i] = src1[i] if
	// cond[i]&1 != 0 else src0[i], where cond is the Cond field.
	OpVSelect
	// OpBroadcast reads the single scalar cell Src[0] and writes VLEN
	// copies of it starting at Dst.
	OpBroadcast
	// OpScalarLoad reads one tree/forest-memory cell addressed by the
	// scratch cell Src[0] (an index, not a scratch address) and writes
	// the loaded value to Dst.
	OpScalarLoad
	// OpGatherOffset reads the offset-holding scratch cell Src[0], loads
	// external forest memory at the resulting address, and writes one
	// lane (Dst) of a destination vector. VLEN of these, one per lane,
	// implement one logical gather (SPEC_FULL.md 4.7, "standard gather").
	OpGatherOffset
	// OpScalarStore writes the scratch cell Src[0] to the externally
	// visible inp_values region at the fixed offset Imm.
	OpScalarStore
	// OpVectorStore writes VLEN cells starting at Src[0] to inp_values
	// starting at offset Imm.
	OpVectorStore
	// OpBarrier is a flow-engine segment delimiter (halt, pause, jump,
	// conditional jump). It has no scratch reads/writes but an
	// unconditional side effect, so the pruner always keeps it and the
	// scheduler always gives it its own segment boundary.
	OpBarrier
	// OpDebugCompare is kept only when EmitDebug is set; compares Src[0]
	// against Src[1] and records a pass/fail trace entry.
	OpDebugCompare
)

func (o SlotOp) String() string {
	switch o {
	case OpScalarALU:
		return "salu"
	case OpAddImmFromZero:
		return "addi.zero"
	case OpConstLoad:
		return "const"
	case OpVectorALU:
		return "valu"
	case OpFMA:
		return "fma"
	case OpVSelect:
		return "vsel"
	case OpBroadcast:
		return "bcast"
	case OpScalarLoad:
		return "load"
	case OpGatherOffset:
		return "gather"
	case OpScalarStore:
		return "store"
	case OpVectorStore:
		return "vstore"
	case OpBarrier:
		return "barrier"
	case OpDebugCompare:
		return "dbg.cmp"
	default:
		return "op?"
	}
}

// ALUOp is the binary operator carried by OpScalarALU/OpVectorALU slots.
type ALUOp = machine.HashOp

// Slot is one engine-slot payload. Which fields are meaningful depends on
// Op; see the SlotOp doc comments above.
type Slot struct {
	Op   SlotOp
	ALU  ALUOp
	Dst  Addr
	Src  [3]Addr
	Imm  int64
	Len  int // vector width; 1 for scalar ops.
	Cond Addr
}

// Reads returns the scratch addresses this slot reads, expanded to
// individual cells (a vector read of length L starting at base occupies L
// consecutive addresses).
func (s Slot) Reads() []Addr {
	switch s.Op {
	case OpScalarALU:
		return addrList(s.Src[0], s.Src[1])
	case OpAddImmFromZero:
		return addrList(s.Src[0]) // the always-zero cell.
	case OpConstLoad:
		return nil
	case OpVectorALU:
		return expand(s.Src[0], s.Len, expand(s.Src[1], s.Len, nil))
	case OpFMA:
		out := expand(s.Src[0], s.Len, nil)
		out = expand(s.Src[1], s.Len, out)
		out = expand(s.Src[2], s.Len, out)
		return out
	case OpVSelect:
		out := expand(s.Src[0], s.Len, nil)
		out = expand(s.Src[1], s.Len, out)
		out = expand(s.Cond, s.Len, out)
		return out
	case OpBroadcast:
		return addrList(s.Src[0])
	case OpScalarLoad:
		return addrList(s.Src[0])
	case OpGatherOffset:
		return addrList(s.Src[0])
	case OpScalarStore:
		return addrList(s.Src[0])
	case OpVectorStore:
		return expand(s.Src[0], s.Len, nil)
	case OpBarrier:
		return nil
	case OpDebugCompare:
		return addrList(s.Src[0], s.Src[1])
	default:
		panic(fmt.Sprintf("BUG: unhandled slot op %v in Reads", s.Op))
	}
}

// Writes returns the scratch addresses this slot writes, expanded the same
// way as Reads.
func (s Slot) Writes() []Addr {
	switch s.Op {
	case OpScalarALU, OpAddImmFromZero, OpConstLoad, OpScalarLoad, OpGatherOffset:
		if s.Len > 1 {
			return expand(s.Dst, s.Len, nil)
		}
		return addrList(s.Dst)
	case OpVectorALU, OpFMA, OpVSelect, OpBroadcast:
		return expand(s.Dst, s.Len, nil)
	case OpScalarStore, OpVectorStore, OpBarrier, OpDebugCompare:
		return nil
	default:
		panic(fmt.Sprintf("BUG: unhandled slot op %v in Writes", s.Op))
	}
}

// SideEffect reports whether this slot has an externally-visible effect
// that the pruner must never drop regardless of liveness: stores, flow
// barriers, and (when enabled) debug compares.
func (s Slot) SideEffect(debugEnabled bool) bool {
	switch s.Op {
	case OpScalarStore, OpVectorStore, OpBarrier:
		return true
	case OpDebugCompare:
		return debugEnabled
	default:
		return false
	}
}

func addrList(as ...Addr) []Addr {
	out := make([]Addr, 0, len(as))
	for _, a := range as {
		if a != NoAddr {
			out = append(out, a)
		}
	}
	return out
}

func expand(base Addr, length int, into []Addr) []Addr {
	if length <= 0 {
		length = 1
	}
	for i := 0; i < length; i++ {
		into = append(into, base+Addr(i))
	}
	return into
}
