package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxlabs/vkc/internal/depgraph"
	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
)

func alu(dst, a, b ir.Addr) ir.Op {
	return ir.Single(machine.ScalarALU, ir.Slot{
		Op: ir.OpScalarALU, ALU: machine.OpAdd, Dst: dst, Src: [3]ir.Addr{a, b, ir.NoAddr}, Len: 1, Cond: ir.NoAddr,
	})
}

func testSpec() machine.Spec {
	s := machine.DefaultSpec()
	s.SlotLimits[machine.ScalarALU] = 1
	return s
}

func TestScheduleIndependentOpsPackIntoOneCycle(t *testing.T) {
	ops := []ir.Op{alu(1, 0, 0), alu(2, 0, 0)}
	g := depgraph.Build(ops, 16)
	g.ComputeCriticalPaths()

	spec := machine.DefaultSpec() // ScalarALU slot limit 4, both fit in cycle 0.
	bundles, err := Schedule(g, spec, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	require.Len(t, bundles[0].Slots[machine.ScalarALU], 2)
}

func TestScheduleChainTakesOnePerCycleUnderSlotLimit(t *testing.T) {
	ops := []ir.Op{alu(1, 0, 0), alu(2, 1, 1), alu(3, 2, 2)}
	g := depgraph.Build(ops, 16)
	g.ComputeCriticalPaths()

	bundles, err := Schedule(g, testSpec(), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, bundles, 3, "each op strictly depends on the last, one per cycle")
}

func TestScheduleRespectsSlotLimit(t *testing.T) {
	ops := []ir.Op{alu(1, 0, 0), alu(2, 0, 0), alu(3, 0, 0)}
	g := depgraph.Build(ops, 16)
	g.ComputeCriticalPaths()

	spec := testSpec() // limit 1: three independent ops need three cycles.
	bundles, err := Schedule(g, spec, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, bundles, 3)
	for _, b := range bundles {
		require.LessOrEqual(t, len(b.Slots[machine.ScalarALU]), 1)
	}
}

func TestScheduleWAREdgeAllowsSameCycle(t *testing.T) {
	// node0 reads 5, node1 writes 5: weak edge, same-cycle WAR is legal,
	// so with enough slots both land in cycle 0.
	ops := []ir.Op{alu(1, 5, 5), alu(5, 2, 2)}
	g := depgraph.Build(ops, 16)
	g.ComputeCriticalPaths()

	bundles, err := Schedule(g, machine.DefaultSpec(), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, bundles, 1)
}

func TestScheduleMultiStartPicksFewestCycles(t *testing.T) {
	ops := []ir.Op{alu(1, 0, 0), alu(2, 1, 1), alu(3, 2, 2)}
	g := depgraph.Build(ops, 16)
	g.ComputeCriticalPaths()

	cfg := DefaultConfig()
	cfg.Seeds = []int64{1, 2, 3}
	bundles, err := Schedule(g, testSpec(), cfg)
	require.NoError(t, err)
	require.Len(t, bundles, 3)
}

func TestScheduleDeadlockOnInconsistentGraph(t *testing.T) {
	g := &depgraph.Graph{Nodes: []depgraph.Node{
		{Index: 0, Op: alu(1, 0, 0), StrictPredCount: 1}, // claims a predecessor that never schedules it.
	}}
	_, err := Schedule(g, machine.DefaultSpec(), DefaultConfig())
	require.Error(t, err)
	var deadlock *DeadlockError
	require.ErrorAs(t, err, &deadlock)
}
