// Package scratch implements the flat, bump-allocated scratch address
// space described in SPEC_FULL.md 4.1. There is no per-region free: cells
// live for the duration of the kernel unless Rewind returns the bump
// pointer to an earlier Checkpoint.
package scratch

import "fmt"

// Addr is an offset into the scratch address space.
type Addr int

// region records the debug name and length of one allocation, for the
// name/length table surfaced to internal/diag.
type region struct {
	name   string
	base   Addr
	length int
}

// Allocator bump-allocates fixed-length regions of scratch, in
// `[0, size)`. Addresses 0..7 are reserved for the header the external
// image builder populates (forest/input pointers, scalar counts); New
// records them as the "header" region so the reservation is visible in the
// region table.
type Allocator struct {
	size    int
	next    Addr
	regions []region
}

// HeaderSize is the number of reserved header cells (SPEC_FULL.md section
// 3: "cell 0..7 is a header").
const HeaderSize = 8

// New returns an Allocator over `[0, size)`, with the header cells
// pre-reserved.
func New(size int) *Allocator {
	a := &Allocator{size: size, next: HeaderSize}
	a.regions = append(a.regions, region{name: "header", base: 0, length: HeaderSize})
	return a
}

// ErrExhausted is returned by Alloc when the requested length would push
// the bump pointer past the scratch size.
type ErrExhausted struct {
	Requested int
	Used      int
	Size      int
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("scratch exhausted: requested %d cells with %d/%d already used",
		e.Requested, e.Used, e.Size)
}

// Alloc bump-allocates length cells (length defaults to 1 when <= 0) and
// attaches name to the region table. An empty name marks the region
// anonymous in diagnostics but it is still tracked.
func (a *Allocator) Alloc(length int, name string) (Addr, error) {
	if length <= 0 {
		length = 1
	}
	if int(a.next)+length > a.size {
		return 0, &ErrExhausted{Requested: length, Used: int(a.next), Size: a.size}
	}
	base := a.next
	a.next += Addr(length)
	a.regions = append(a.regions, region{name: name, base: base, length: length})
	return base, nil
}

// Used returns the number of cells allocated so far.
func (a *Allocator) Used() int { return int(a.next) }

// Remaining returns the number of cells still available.
func (a *Allocator) Remaining() int { return a.size - int(a.next) }

// Size returns SCRATCH_SIZE.
func (a *Allocator) Size() int { return a.size }

// Checkpoint captures the bump pointer so the emitter can later reclaim
// everything allocated after it (SPEC_FULL.md 4.7, group interleaving).
func (a *Allocator) Checkpoint() Addr { return a.next }

// Rewind resets the bump pointer and region table to a prior checkpoint,
// discarding any regions allocated since. The emitter calls it after every
// interleave wave, mid-segment, to reclaim that wave's round-local
// temporaries; its retry loop starts from a fresh Allocator instead.
func (a *Allocator) Rewind(cp Addr) {
	a.next = cp
	cur := 0
	for i, r := range a.regions {
		if r.base >= cp {
			cur = i
			break
		}
		cur = i + 1
	}
	a.regions = a.regions[:cur]
}

// NameTable describes one allocated region for diagnostics/disassembly.
type NameTable struct {
	Name   string
	Base   Addr
	Length int
}

// Regions returns a snapshot of the debug name/length table, in
// allocation order.
func (a *Allocator) Regions() []NameTable {
	out := make([]NameTable, len(a.regions))
	for i, r := range a.regions {
		out[i] = NameTable{Name: r.name, Base: r.base, Length: r.length}
	}
	return out
}
