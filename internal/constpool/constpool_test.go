package constpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/scratch"
)

func newTestPool(debug bool) (*Pool, *[]ir.Op) {
	alloc := scratch.New(1 << 12)
	ops := &[]ir.Op{}
	spec := machine.DefaultSpec()
	p := New(alloc, spec, debug, func(op ir.Op) { *ops = append(*ops, op) })
	return p, ops
}

func TestScalarConstInterns(t *testing.T) {
	p, ops := newTestPool(false)

	a := p.ScalarConst(42)
	b := p.ScalarConst(42)
	require.Equal(t, a, b, "same value must return the same cell")
	require.Equal(t, 1, p.Misses)
	require.Equal(t, 1, p.Hits)
	require.Len(t, *ops, 1, "materialising op emitted only once")

	c := p.ScalarConst(7)
	require.NotEqual(t, a, c)
	require.Len(t, *ops, 2)
}

func TestScalarConstDebugUsesConstLoad(t *testing.T) {
	p, ops := newTestPool(true)
	p.ScalarConst(5)
	require.Len(t, *ops, 1)
	require.Equal(t, ir.OpConstLoad, (*ops)[0].Payload[0].Op)
}

func TestScalarConstNonDebugUsesZeroTrick(t *testing.T) {
	p, ops := newTestPool(false)
	p.ScalarConst(5)
	// First op is the zero cell's own materialisation? No: zero() never
	// emits anything, it just reserves a cell. The first emitted op is the
	// add-immediate-from-zero for 5.
	require.Len(t, *ops, 1)
	require.Equal(t, ir.OpAddImmFromZero, (*ops)[0].Payload[0].Op)
}

func TestBroadcastConstInternsSeparatelyFromScalar(t *testing.T) {
	p, ops := newTestPool(false)

	scalarAddr := p.ScalarConst(9)
	bcastAddr := p.BroadcastConst(9)
	require.NotEqual(t, scalarAddr, bcastAddr)

	again := p.BroadcastConst(9)
	require.Equal(t, bcastAddr, again)

	// One op for the scalar, one for the broadcast; the second
	// BroadcastConst call emits nothing new.
	require.Len(t, *ops, 2)
}

func TestZeroCellAllocatedLazily(t *testing.T) {
	p, ops := newTestPool(false)
	require.False(t, p.haveZero)
	p.ScalarConst(1)
	require.True(t, p.haveZero)
	require.Len(t, *ops, 1)
}
