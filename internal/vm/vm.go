// Package vm is a minimal interpreter over a scheduled bundle stream,
// executing every engine's slots of one bundle per cycle against a flat scratch array. This
// is the "target machine simulator" SPEC_FULL.md 4.9 explicitly keeps out
// of THE CORE (internal/emitter, internal/scheduler never import it) — it
// exists only so internal/refsim's cross-checks and the `validate` CLI verb
// have something concrete to execute the emitted program against.
package vm

import (
	"fmt"

	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/scheduler"
)

// Memory is the external forest/input region the running program gathers
// from and stores to. Forest is addressed by tree index (OpGatherOffset's
// Src[0] holds an index into Forest, read out of scratch, not a scratch
// address itself). Input mirrors the kernel's pre-populated accumulator
// cells: the emitter aliases each lane group's accumulator directly onto a
// scratch cell and addresses the final store by that same scratch address
// (a redundant store, see emitter's emitFinalStores, since scratch already
// holds the value), so Input must be sized at least ScratchSize and is indexed the
// same way scratch is, not by a 0-based lane offset.
type Memory struct {
	Forest []uint64
	Input  []uint64
}

// Machine interprets a bundle stream against a flat scratch array. Built
// fresh per run; not reused across programs.
type Machine struct {
	scratch []uint64
	mem     Memory
}

// New returns a Machine with scratchSize scratch cells, all zeroed (so the
// always-zero constant-pool cell reads correctly without any seeding step).
func New(scratchSize int, mem Memory) *Machine {
	return &Machine{scratch: make([]uint64, scratchSize), mem: mem}
}

// Scratch returns the live scratch array, for tests that need to seed the
// header cells or inspect post-run state directly.
func (m *Machine) Scratch() []uint64 { return m.scratch }

// Run executes every bundle in program in cycle order. Within a bundle,
// every engine's slots logically commit simultaneously: reads observe the
// scratch state from before the bundle, consistent with
// SPEC_FULL.md section 5's "a bundle's engines commit writes after all
// reads" (this is what makes same-cycle WAR legal for the scheduler).
func (m *Machine) Run(bundles []scheduler.Bundle) error {
	for _, b := range bundles {
		writes := map[int]uint64{}
		for _, slots := range b.Slots {
			for _, s := range slots {
				if err := m.evalSlot(s, writes); err != nil {
					return fmt.Errorf("cycle %d: %w", b.Cycle, err)
				}
			}
		}
		for addr, v := range writes {
			m.scratch[addr] = v
		}
	}
	return nil
}

func (m *Machine) read(a ir.Addr) uint64 {
	if a == ir.NoAddr {
		return 0
	}
	return m.scratch[int(a)]
}

func (m *Machine) readVec(base ir.Addr, length int) []uint64 {
	if length <= 0 {
		length = 1
	}
	out := make([]uint64, length)
	for i := range out {
		out[i] = m.read(base + ir.Addr(i))
	}
	return out
}

// evalSlot evaluates one slot, buffering its writes into writes rather than
// writing scratch directly, so every slot in the bundle reads pre-bundle
// state.
func (m *Machine) evalSlot(s ir.Slot, writes map[int]uint64) error {
	switch s.Op {
	case ir.OpScalarALU:
		b := s.Src[1]
		var bv uint64
		if b != ir.NoAddr {
			bv = m.read(b)
		} else {
			bv = uint64(s.Imm)
		}
		writes[int(s.Dst)] = aluEval(s.ALU, m.read(s.Src[0]), bv)

	case ir.OpAddImmFromZero:
		writes[int(s.Dst)] = m.read(s.Src[0]) + uint64(s.Imm)

	case ir.OpConstLoad:
		writes[int(s.Dst)] = uint64(s.Imm)

	case ir.OpVectorALU:
		a := m.readVec(s.Src[0], s.Len)
		b := m.readVec(s.Src[1], s.Len)
		for i := 0; i < s.Len; i++ {
			writes[int(s.Dst)+i] = aluEval(s.ALU, a[i], b[i])
		}

	case ir.OpFMA:
		a := m.readVec(s.Src[0], s.Len)
		b := m.readVec(s.Src[1], s.Len)
		c := m.readVec(s.Src[2], s.Len)
		for i := 0; i < s.Len; i++ {
			writes[int(s.Dst)+i] = a[i]*b[i] + c[i]
		}

	case ir.OpVSelect:
		a := m.readVec(s.Src[0], s.Len)
		b := m.readVec(s.Src[1], s.Len)
		cond := m.readVec(s.Cond, s.Len)
		for i := 0; i < s.Len; i++ {
			if cond[i]&1 != 0 {
				writes[int(s.Dst)+i] = b[i]
			} else {
				writes[int(s.Dst)+i] = a[i]
			}
		}

	case ir.OpBroadcast:
		v := m.read(s.Src[0])
		for i := 0; i < s.Len; i++ {
			writes[int(s.Dst)+i] = v
		}

	case ir.OpScalarLoad:
		idx := int(m.read(s.Src[0]))
		writes[int(s.Dst)] = m.mem.Forest[idx]

	case ir.OpGatherOffset:
		idx := int(m.read(s.Src[0]))
		writes[int(s.Dst)] = m.mem.Forest[idx]

	case ir.OpScalarStore:
		m.mem.Input[int(s.Imm)] = m.read(s.Src[0])

	case ir.OpVectorStore:
		vals := m.readVec(s.Src[0], s.Len)
		for i, v := range vals {
			m.mem.Input[int(s.Imm)+i] = v
		}

	case ir.OpBarrier:
		// No effect: bundles already delimit segments; the interpreter
		// runs them in the order it was given.

	case ir.OpDebugCompare:
		a, b := m.read(s.Src[0]), m.read(s.Src[1])
		if a != b {
			return fmt.Errorf("debug compare failed: %d != %d", a, b)
		}

	default:
		return fmt.Errorf("vm: unhandled slot op %v", s.Op)
	}
	return nil
}

func aluEval(op machine.HashOp, a, b uint64) uint64 {
	switch op {
	case machine.OpAdd:
		return a + b
	case machine.OpXor:
		return a ^ b
	case machine.OpShl:
		return a << b
	case machine.OpShr:
		return a >> b
	case machine.OpMul:
		return a * b
	case machine.OpAnd:
		return a & b
	case machine.OpSub:
		return a - b
	default:
		panic(fmt.Sprintf("vm: unhandled alu op %v", op))
	}
}
