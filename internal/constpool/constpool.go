// Package constpool implements the constant pool from SPEC_FULL.md 4.2:
// scalar and broadcast constants interned by value, with the
// always-zero-cell add-immediate trick substituting for a real const-load
// opcode whenever debug traces aren't needed.
package constpool

import (
	"fmt"

	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/scratch"
)

// Pool interns scalar and broadcast constants against one scratch
// allocator, emitting at most one materialising Op per distinct value.
type Pool struct {
	alloc *scratch.Allocator
	vlen  int
	debug bool
	emit  func(ir.Op)

	zeroCell    ir.Addr
	haveZero    bool
	scalars     map[uint64]ir.Addr
	broadcasts  map[uint64]ir.Addr
	Hits        int
	Misses      int
}

// New returns a Pool that appends materialising ops to emit and allocates
// cells from alloc. debug selects OpConstLoad (readable disassembly) over
// the always-zero add-immediate trick.
func New(alloc *scratch.Allocator, spec machine.Spec, debug bool, emit func(ir.Op)) *Pool {
	return &Pool{
		alloc:      alloc,
		vlen:       spec.VLEN,
		debug:      debug,
		emit:       emit,
		scalars:    make(map[uint64]ir.Addr),
		broadcasts: make(map[uint64]ir.Addr),
	}
}

// zero returns the always-zero cell, allocating it (but never writing it)
// on first use.
func (p *Pool) zero() ir.Addr {
	if p.haveZero {
		return p.zeroCell
	}
	addr, err := p.alloc.Alloc(1, "const.zero")
	if err != nil {
		panic(err) // the emitter recovers this into a returned error and retries with a smaller interleave.
	}
	p.zeroCell = addr
	p.haveZero = true
	return addr
}

// ScalarConst returns the scratch cell holding v, allocating and emitting
// the materialising op on first reference.
func (p *Pool) ScalarConst(v uint64) ir.Addr {
	if addr, ok := p.scalars[v]; ok {
		p.Hits++
		return addr
	}
	p.Misses++

	dst, err := p.alloc.Alloc(1, fmt.Sprintf("const.%#x", v))
	if err != nil {
		panic(err)
	}

	if p.debug {
		p.emit(ir.Single(machine.Flow, ir.Slot{
			Op:   ir.OpConstLoad,
			Dst:  dst,
			Imm:  int64(v),
			Len:  1,
			Src:  [3]ir.Addr{ir.NoAddr, ir.NoAddr, ir.NoAddr},
			Cond: ir.NoAddr,
		}).Named(fmt.Sprintf("const.%#x", v)))
	} else {
		p.emit(ir.Single(machine.Flow, ir.Slot{
			Op:   ir.OpAddImmFromZero,
			Dst:  dst,
			Imm:  int64(v),
			Len:  1,
			Src:  [3]ir.Addr{p.zero(), ir.NoAddr, ir.NoAddr},
			Cond: ir.NoAddr,
		}).Named(fmt.Sprintf("const.%#x", v)))
	}

	p.scalars[v] = dst
	return dst
}

// BroadcastConst returns a VLEN-wide scratch region holding v repeated in
// every lane, interning both the underlying scalar and the broadcast.
func (p *Pool) BroadcastConst(v uint64) ir.Addr {
	if addr, ok := p.broadcasts[v]; ok {
		p.Hits++
		return addr
	}
	p.Misses++

	scalarAddr := p.ScalarConst(v)
	dst, err := p.alloc.Alloc(p.vlen, fmt.Sprintf("bconst.%#x", v))
	if err != nil {
		panic(err)
	}
	p.emit(ir.Single(machine.VectorALU, ir.Slot{
		Op:   ir.OpBroadcast,
		Dst:  dst,
		Len:  p.vlen,
		Src:  [3]ir.Addr{scalarAddr, ir.NoAddr, ir.NoAddr},
		Cond: ir.NoAddr,
	}).Named(fmt.Sprintf("bconst.%#x", v)))

	p.broadcasts[v] = dst
	return dst
}
