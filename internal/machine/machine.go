// Package machine describes the fixed target machine the compiler emits
// for: its engines, their per-cycle slot limits, and the opaque hash-stage
// table the emitter lowers against. None of this package executes
// anything — it is pure description, consumed by internal/emitter and
// internal/scheduler and, in tests, by internal/vm.
package machine

// Engine is one of the small closed set of execution units on the target
// machine. Each has a fixed per-cycle slot limit (see Spec.SlotLimits).
type Engine uint8

const (
	// ScalarALU performs add/sub/shift/compare on single scratch cells.
	ScalarALU Engine = iota
	// VectorALU performs the same ops VLEN-wide, plus fused-multiply-add
	// and vector-select.
	VectorALU
	// Load covers both ordinary scalar loads and the single-cell
	// gather-by-offset load used to fill one lane of a vector register.
	Load
	// Store writes scratch cells back to the externally-visible
	// inp_values region.
	Store
	// Flow carries barriers (halt, pause, jumps, conditional jumps) and
	// the add-immediate-from-zero-cell constant trick.
	Flow
	// Debug carries compare/assert ops that only survive pruning when
	// EmitDebug is set.
	Debug

	numEngines
)

// String renders an Engine name for diagnostics and disassembly output.
func (e Engine) String() string {
	switch e {
	case ScalarALU:
		return "salu"
	case VectorALU:
		return "valu"
	case Load:
		return "load"
	case Store:
		return "store"
	case Flow:
		return "flow"
	case Debug:
		return "debug"
	default:
		return "engine?"
	}
}

// HashOp is one arithmetic operator used in a hash stage quintuple.
type HashOp uint8

const (
	OpAdd HashOp = iota
	OpXor
	OpShl
	OpShr
	OpMul
	// OpAnd and OpSub are not part of any hash-stage quintuple (the opaque
	// table only ever uses the five ops above) but are used by the emitter
	// itself: OpAnd to extract path bits for the depth-specialised select
	// ladders, OpSub to turn an absolute tree index into a path offset and
	// to form runtime differences for the arithmetic-blend depth-2 mode.
	OpAnd
	OpSub
)

// String renders a HashOp as the infix symbol, for disassembly.
func (o HashOp) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpXor:
		return "^"
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpMul:
		return "*"
	case OpAnd:
		return "&"
	case OpSub:
		return "-"
	default:
		return "?"
	}
}

// Stage is one stage of the fixed multi-stage hash: a' = (a op1 c1) op2
// (a op3 c3). The table itself is an opaque external input per spec.md
// section 1 ("the fixed hash-stage table... treated as opaque inputs");
// the emitter only pattern-matches on the shape of (op1, op2, op3) to
// decide whether an identity applies (see SPEC_FULL.md 4.7, "Hash fusion").
type Stage struct {
	Op1 HashOp
	C1  uint64
	Op2 HashOp
	Op3 HashOp
	C3  uint64
}

// DefaultHashStages is a representative fixed hash-stage table: each stage
// has the shape a' = (a op1 c1) op2 (a op3 c3). Constants were chosen to
// exercise every fusible shape from spec.md's "Hash fusion" paragraph:
// stage 0 is the fully-collapsible (add, add, shl) case, stage 1 is the
// partially-fusible (xor, add, shl) case, stage 2 has no fusible shape and
// is always emitted as two pre-ops plus a combine.
var DefaultHashStages = []Stage{
	{Op1: OpAdd, C1: 0x9e3779b97f4a7c15, Op2: OpAdd, Op3: OpShl, C3: 13},
	{Op1: OpXor, C1: 0xbf58476d1ce4e5b9, Op2: OpAdd, Op3: OpShl, C3: 7},
	{Op1: OpXor, C1: 0x94d049bb133111eb, Op2: OpXor, Op3: OpShr, C3: 31},
}

// Spec is the fixed machine description: scratch size, vector width, and
// per-engine slot limits. It is supplied once per compile and never
// mutated by the core.
type Spec struct {
	ScratchSize int
	VLEN        int
	SlotLimits  [numEngines]int
	HashStages  []Stage
}

// DefaultSpec is a reasonably sized machine used by tests and the CLI's
// default config: wide vector ALU, narrow load/store/flow, matching
// spec.md section 3's "VALU is wide; load is narrow; flow and store are
// typically 1".
func DefaultSpec() Spec {
	s := Spec{
		ScratchSize: 1 << 16,
		VLEN:        8,
		HashStages:  DefaultHashStages,
	}
	s.SlotLimits[ScalarALU] = 4
	s.SlotLimits[VectorALU] = 4
	s.SlotLimits[Load] = 2
	s.SlotLimits[Store] = 1
	s.SlotLimits[Flow] = 1
	s.SlotLimits[Debug] = 1
	return s
}

// SlotLimit returns the per-cycle slot limit for e.
func (s Spec) SlotLimit(e Engine) int {
	return s.SlotLimits[e]
}

// KernelInstance describes one gather-hash-branch kernel to compile:
// a complete binary tree of the given height, a batch of independent
// lanes, and the number of rounds each lane runs.
type KernelInstance struct {
	TreeHeight int
	NNodes     int
	BatchSize  int
	Rounds     int
}

// NNodesForHeight returns the node count of a complete binary tree of the
// given height (root at height 0), i.e. 2^(height+1) - 1.
func NNodesForHeight(height int) int {
	return (1 << (height + 1)) - 1
}
