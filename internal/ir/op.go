package ir

import "github.com/hxlabs/vkc/internal/machine"

// Op is one Operation: an engine-tagged slot or short fused list of slots
// sharing one engine's slot budget (SPEC_FULL.md section 3). SlotCount
// equals len(Payload); fused payloads occupy that many engine slots
// atomically in the scheduler.
type Op struct {
	Engine  machine.Engine
	Payload []Slot
	// Name is an optional debug label (e.g. "round3.lane12.hash0"),
	// surfaced in diagnostics and disassembly; never affects scheduling.
	Name string
}

// SlotCount is the number of engine slots this operation occupies.
func (o Op) SlotCount() int { return len(o.Payload) }

// Reads returns the union of scratch addresses read by every sub-slot.
func (o Op) Reads() []Addr {
	var out []Addr
	for _, s := range o.Payload {
		out = append(out, s.Reads()...)
	}
	return out
}

// Writes returns the union of scratch addresses written by every
// sub-slot.
func (o Op) Writes() []Addr {
	var out []Addr
	for _, s := range o.Payload {
		out = append(out, s.Writes()...)
	}
	return out
}

// SideEffect reports whether any sub-slot has an unconditional side
// effect the pruner must preserve.
func (o Op) SideEffect(debugEnabled bool) bool {
	for _, s := range o.Payload {
		if s.SideEffect(debugEnabled) {
			return true
		}
	}
	return false
}

// Single builds a one-slot Op on the given engine.
func Single(engine machine.Engine, slot Slot) Op {
	return Op{Engine: engine, Payload: []Slot{slot}}
}

// Fused builds a multi-slot Op sharing one engine's slot budget. All
// slots must target the same engine; this is the caller's invariant to
// maintain (the emitter never mixes engines within one fused payload).
func Fused(engine machine.Engine, slots ...Slot) Op {
	return Op{Engine: engine, Payload: slots}
}

// Named attaches a debug label, returning the same Op for chaining.
func (o Op) Named(name string) Op {
	o.Name = name
	return o
}

// Segment is an ordered sequence of operations bounded by barrier flow
// ops (SPEC_FULL.md section 3). The scheduler treats each Segment
// independently; barriers are emitted as single-cycle bundles between
// segments by the caller, not as members of any Segment's op list.
type Segment struct {
	Ops []Op
}

// Program is the full operation stream produced by the emitter, before
// scheduling: a sequence of segments with the barrier that ended each one
// (the final segment may have no trailing barrier).
type Program struct {
	Segments []Segment
	Barriers []Op // Barriers[i] follows Segments[i]; len(Barriers) <= len(Segments).
}
