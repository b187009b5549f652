package vkcapi

const poolPageSize = 128

// Pool is a pool of T backed by fixed-size pages so that repeated
// allocate/reset cycles don't churn the GC.
type Pool[T any] struct {
	pages            []*[poolPageSize]T
	allocated, index int
}

// NewPool returns a new, empty Pool.
func NewPool[T any]() Pool[T] {
	var p Pool[T]
	p.Reset()
	return p
}

// Allocated returns the number of T handed out since the last Reset.
func (p *Pool[T]) Allocated() int {
	return p.allocated
}

// Allocate returns a pointer to a fresh zero-valued T.
func (p *Pool[T]) Allocate() *T {
	if p.index == poolPageSize {
		if len(p.pages) == cap(p.pages) {
			p.pages = append(p.pages, new([poolPageSize]T))
		} else {
			i := len(p.pages)
			p.pages = p.pages[:i+1]
			if p.pages[i] == nil {
				p.pages[i] = new([poolPageSize]T)
			}
		}
		p.index = 0
	}
	ret := &p.pages[len(p.pages)-1][p.index]
	p.index++
	p.allocated++
	return ret
}

// View returns the pointer to the i-th item allocated from this pool.
func (p *Pool[T]) View(i int) *T {
	page, index := i/poolPageSize, i%poolPageSize
	return &p.pages[page][index]
}

// Reset clears the pool for reuse, zeroing every page in place.
func (p *Pool[T]) Reset() {
	for _, ns := range p.pages {
		page := ns[:]
		for i := range page {
			var zero T
			page[i] = zero
		}
	}
	p.pages = p.pages[:0]
	p.index = poolPageSize
	p.allocated = 0
}
