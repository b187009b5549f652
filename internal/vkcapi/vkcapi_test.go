package vkcapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddrSetAddHasRemove(t *testing.T) {
	var s AddrSet
	s.Add(3)
	s.Add(130)
	require.True(t, s.Has(3))
	require.True(t, s.Has(130))
	require.False(t, s.Has(4))

	s.Remove(3)
	require.False(t, s.Has(3))
	require.True(t, s.Has(130))
}

func TestAddrSetRangeIsAscending(t *testing.T) {
	var s AddrSet
	for _, a := range []int{200, 5, 64, 0, 65} {
		s.Add(a)
	}
	var got []int
	s.Range(func(addr int) { got = append(got, addr) })
	require.Equal(t, []int{0, 5, 64, 65, 200}, got)
}

func TestAddrSetResetClearsMembership(t *testing.T) {
	var s AddrSet
	s.Add(10)
	s.Reset()
	require.False(t, s.Has(10))
	var none []int
	s.Range(func(addr int) { none = append(none, addr) })
	require.Empty(t, none)
}

func TestPoolAllocateAcrossPageBoundary(t *testing.T) {
	p := NewPool[int]()
	var ptrs []*int
	for i := 0; i < poolPageSize+5; i++ {
		ptr := p.Allocate()
		*ptr = i
		ptrs = append(ptrs, ptr)
	}
	require.Equal(t, poolPageSize+5, p.Allocated())
	for i, ptr := range ptrs {
		require.Equal(t, i, *ptr)
	}
}

func TestPoolViewMatchesAllocate(t *testing.T) {
	p := NewPool[int]()
	for i := 0; i < 10; i++ {
		*p.Allocate() = i * 2
	}
	require.Equal(t, 6, *p.View(3))
}

func TestPoolResetZeroesAndReusesPages(t *testing.T) {
	p := NewPool[int]()
	*p.Allocate() = 42
	p.Reset()
	require.Equal(t, 0, p.Allocated())
	ptr := p.Allocate()
	require.Equal(t, 0, *ptr, "reused page slots must be zeroed")
}
