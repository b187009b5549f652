// Package depgraph builds the dependency graph described in SPEC_FULL.md
// 4.4: strict edges (must execute on a strictly later cycle) and weak
// edges (may execute on the same cycle but not earlier), derived from a
// linear pass tracking the latest writer and the readers-since-last-write
// for every scratch address.
package depgraph

import (
	"fmt"
	"sort"

	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/vkcapi"
)

// Node wraps one Op with its position in the segment and the edges
// computed against it.
type Node struct {
	Index int
	Op    ir.Op

	StrictSuccessors []int
	WeakSuccessors   []int
	StrictPredCount  int
	WeakPredCount    int

	// Crit is the critical-path length computed by ComputeCriticalPaths:
	// 1 for a leaf (no successors), 1+max(successor Crit) otherwise.
	Crit int
}

// Graph is the dependency graph for one segment: one Node per Op, plus
// dense per-node edge lists. Addresses are tracked with arrays sized to
// scratchSize rather than maps, per Design Notes section 9 ("Sets and
// maps over integer addresses").
type Graph struct {
	Nodes []Node
}

// Build constructs the dependency graph for ops, a single segment's worth
// of operations. scratchSize bounds the dense last-writer/readers arrays.
func Build(ops []ir.Op, scratchSize int) *Graph {
	g := &Graph{Nodes: make([]Node, len(ops))}
	for i, op := range ops {
		g.Nodes[i] = Node{Index: i, Op: op}
	}

	lastWriter := make([]int, scratchSize)
	for i := range lastWriter {
		lastWriter[i] = -1
	}
	readersSince := make([][]int, scratchSize)

	strictSeen := make([]map[int]struct{}, len(ops))
	weakSeen := make([]map[int]struct{}, len(ops))

	addStrict := func(from, to int) {
		if from < 0 || from == to {
			return
		}
		if strictSeen[from] == nil {
			strictSeen[from] = make(map[int]struct{})
		}
		if _, dup := strictSeen[from][to]; dup {
			return
		}
		strictSeen[from][to] = struct{}{}
		g.Nodes[from].StrictSuccessors = append(g.Nodes[from].StrictSuccessors, to)
		g.Nodes[to].StrictPredCount++
	}
	addWeak := func(from, to int) {
		if from < 0 || from == to {
			return
		}
		if weakSeen[from] == nil {
			weakSeen[from] = make(map[int]struct{})
		}
		if _, dup := weakSeen[from][to]; dup {
			return
		}
		weakSeen[from][to] = struct{}{}
		g.Nodes[from].WeakSuccessors = append(g.Nodes[from].WeakSuccessors, to)
		g.Nodes[to].WeakPredCount++
	}

	for i, op := range ops {
		reads := op.Reads()
		writes := op.Writes()

		for _, a := range reads {
			if w := lastWriter[a]; w >= 0 {
				addStrict(w, i)
			}
			readersSince[a] = append(readersSince[a], i)
		}
		for _, a := range writes {
			if w := lastWriter[a]; w >= 0 {
				addStrict(w, i)
			}
			for _, r := range readersSince[a] {
				if r != i {
					addWeak(r, i)
				}
			}
			lastWriter[a] = i
			readersSince[a] = readersSince[a][:0]
		}
	}

	if vkcapi.GraphValidationEnabled {
		g.validate()
	}
	if vkcapi.GraphLoggingEnabled {
		g.logEdges()
	}
	return g
}

// logEdges prints every node's combined strict+weak successor set in
// sorted order, so two runs over the same ops produce byte-identical trace
// output regardless of the map-iteration-free but still discovery-ordered
// Build pass above.
func (g *Graph) logEdges() {
	for i, node := range g.Nodes {
		all := append(append([]int(nil), node.StrictSuccessors...), node.WeakSuccessors...)
		fmt.Println("depgraph: node", i, "->", sortedCopy(all))
	}
}

// validate checks that every edge endpoint is in range and no node has an
// edge to itself, catching graph-construction bugs before they surface as
// a confusing scheduler deadlock.
func (g *Graph) validate() {
	n := len(g.Nodes)
	for i, node := range g.Nodes {
		for _, s := range node.StrictSuccessors {
			if s < 0 || s >= n || s == i {
				panic("BUG: invalid strict edge in dependency graph")
			}
		}
		for _, s := range node.WeakSuccessors {
			if s < 0 || s >= n || s == i {
				panic("BUG: invalid weak edge in dependency graph")
			}
		}
	}
}

// ComputeCriticalPaths fills in Node.Crit via a right-to-left sweep:
// crit(i) = 1 + max(crit(s)) over all strict and weak successors s, with
// leaves at crit=1 (SPEC_FULL.md 4.5). Ops are assumed topologically
// ordered by index with respect to strict/weak edges (always true here,
// since edges only ever point from an earlier index to a later one).
func (g *Graph) ComputeCriticalPaths() {
	for i := len(g.Nodes) - 1; i >= 0; i-- {
		node := &g.Nodes[i]
		best := 0
		for _, s := range node.StrictSuccessors {
			if c := g.Nodes[s].Crit; c > best {
				best = c
			}
		}
		for _, s := range node.WeakSuccessors {
			if c := g.Nodes[s].Crit; c > best {
				best = c
			}
		}
		node.Crit = 1 + best
	}
}

// SuccessorCount returns the number of distinct strict+weak successors of
// node i, used as a scheduling tiebreaker (SPEC_FULL.md 4.6, "unblock
// high-fanout").
func (g *Graph) SuccessorCount(i int) int {
	return len(g.Nodes[i].StrictSuccessors) + len(g.Nodes[i].WeakSuccessors)
}

// sortedCopy returns a's elements sorted ascending, for deterministic
// diagnostics output; edge lists themselves are left in discovery order
// since that order never affects scheduling correctness.
func sortedCopy(a []int) []int {
	out := append([]int(nil), a...)
	sort.Ints(out)
	return out
}
