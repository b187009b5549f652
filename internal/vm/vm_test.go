package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/scheduler"
)

func bundleOf(engine machine.Engine, slots ...ir.Slot) scheduler.Bundle {
	return scheduler.Bundle{Slots: map[machine.Engine][]ir.Slot{engine: slots}}
}

func TestScalarALUAdd(t *testing.T) {
	m := New(16, Memory{})
	m.Scratch()[0] = 3
	m.Scratch()[1] = 4
	err := m.Run([]scheduler.Bundle{bundleOf(machine.ScalarALU, ir.Slot{
		Op: ir.OpScalarALU, ALU: machine.OpAdd, Dst: 2, Src: [3]ir.Addr{0, 1, ir.NoAddr}, Len: 1, Cond: ir.NoAddr,
	})})
	require.NoError(t, err)
	require.Equal(t, uint64(7), m.Scratch()[2])
}

func TestVectorALUXor(t *testing.T) {
	m := New(16, Memory{})
	m.Scratch()[0], m.Scratch()[1] = 0b101, 0b110
	m.Scratch()[2], m.Scratch()[3] = 0b001, 0b111
	err := m.Run([]scheduler.Bundle{bundleOf(machine.VectorALU, ir.Slot{
		Op: ir.OpVectorALU, ALU: machine.OpXor, Dst: 4, Src: [3]ir.Addr{0, 2, ir.NoAddr}, Len: 2, Cond: ir.NoAddr,
	})})
	require.NoError(t, err)
	require.Equal(t, uint64(0b100), m.Scratch()[4])
	require.Equal(t, uint64(0b001), m.Scratch()[5])
}

func TestFMA(t *testing.T) {
	m := New(16, Memory{})
	m.Scratch()[0], m.Scratch()[1], m.Scratch()[2] = 2, 3, 10
	err := m.Run([]scheduler.Bundle{bundleOf(machine.VectorALU, ir.Slot{
		Op: ir.OpFMA, Dst: 3, Src: [3]ir.Addr{0, 1, 2}, Len: 1, Cond: ir.NoAddr,
	})})
	require.NoError(t, err)
	require.Equal(t, uint64(16), m.Scratch()[3]) // 2*3+10
}

func TestVSelect(t *testing.T) {
	m := New(16, Memory{})
	m.Scratch()[0], m.Scratch()[1] = 100, 200
	m.Scratch()[2] = 1 // cond odd -> picks src1
	err := m.Run([]scheduler.Bundle{bundleOf(machine.VectorALU, ir.Slot{
		Op: ir.OpVSelect, Dst: 3, Src: [3]ir.Addr{0, 1, ir.NoAddr}, Len: 1, Cond: 2,
	})})
	require.NoError(t, err)
	require.Equal(t, uint64(200), m.Scratch()[3])
}

func TestGatherOffset(t *testing.T) {
	m := New(16, Memory{Forest: []uint64{10, 20, 30}})
	m.Scratch()[0] = 2 // index into forest
	err := m.Run([]scheduler.Bundle{bundleOf(machine.Load, ir.Slot{
		Op: ir.OpGatherOffset, Dst: 1, Src: [3]ir.Addr{0, ir.NoAddr, ir.NoAddr}, Len: 1, Cond: ir.NoAddr,
	})})
	require.NoError(t, err)
	require.Equal(t, uint64(30), m.Scratch()[1])
}

func TestSameCycleWARReadsPreBundleState(t *testing.T) {
	// One op reads cell 5, another in the same bundle writes it: the
	// reader must see the pre-bundle value (SPEC_FULL.md section 5).
	m := New(16, Memory{})
	m.Scratch()[5] = 1
	m.Scratch()[6] = 99
	bundle := scheduler.Bundle{Slots: map[machine.Engine][]ir.Slot{
		machine.ScalarALU: {
			{Op: ir.OpScalarALU, ALU: machine.OpAdd, Dst: 7, Src: [3]ir.Addr{5, 5, ir.NoAddr}, Len: 1, Cond: ir.NoAddr},
			{Op: ir.OpScalarALU, ALU: machine.OpAdd, Dst: 5, Src: [3]ir.Addr{6, 0, ir.NoAddr}, Len: 1, Cond: ir.NoAddr},
		},
	}}
	err := m.Run([]scheduler.Bundle{bundle})
	require.NoError(t, err)
	require.Equal(t, uint64(2), m.Scratch()[7], "read observed the pre-bundle value of cell 5")
	require.Equal(t, uint64(99), m.Scratch()[5])
}

func TestStoreWritesExternalInput(t *testing.T) {
	mem := Memory{Input: make([]uint64, 4)}
	m := New(16, mem)
	m.Scratch()[0] = 55
	err := m.Run([]scheduler.Bundle{bundleOf(machine.Store, ir.Slot{
		Op: ir.OpScalarStore, Src: [3]ir.Addr{0, ir.NoAddr, ir.NoAddr}, Dst: ir.NoAddr, Imm: 2, Len: 1, Cond: ir.NoAddr,
	})})
	require.NoError(t, err)
	require.Equal(t, uint64(55), mem.Input[2])
}

func TestDebugCompareMismatchErrors(t *testing.T) {
	m := New(16, Memory{})
	m.Scratch()[0], m.Scratch()[1] = 1, 2
	err := m.Run([]scheduler.Bundle{bundleOf(machine.Debug, ir.Slot{
		Op: ir.OpDebugCompare, Src: [3]ir.Addr{0, 1, ir.NoAddr}, Dst: ir.NoAddr, Cond: ir.NoAddr,
	})})
	require.Error(t, err)
}
