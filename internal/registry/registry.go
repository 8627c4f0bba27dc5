// Package registry tracks which pages of a running image's address
// space have already been materialised by the pager. It is a grow-only
// set of page-aligned addresses: entries are never removed during an
// execution, and membership is monotone.
package registry

import "ondemand/internal/segment"

// Registry is the mapped-page registry described by spec.md §3, §4.2.
// It is only ever accessed from the fault-servicing goroutine (see
// package pager), so it needs no internal locking.
type Registry struct {
	seen map[uintptr]struct{}
}

// New creates an empty registry pre-sized for capacityHint pages, so
// that the common-case Insert does not grow the underlying map.
// capacityHint should be the total page count across all segments of
// the image about to execute (segment.Table.TotalPages), per spec.md
// §5/§9's guidance to avoid unbounded growth from fault-handling
// context.
func New(capacityHint int) *Registry {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Registry{seen: make(map[uintptr]struct{}, capacityHint)}
}

// Contains reports whether page has already been materialised. page
// must be page-aligned; callers round with segment.RoundDownPage
// before calling.
func (r *Registry) Contains(page uintptr) bool {
	_, ok := r.seen[page]
	return ok
}

// Insert records page as materialised. It is idempotent, though the
// pager only ever calls it after a Contains miss.
func (r *Registry) Insert(page uintptr) {
	if page%segment.Page != 0 {
		panic("registry: page base is not page-aligned")
	}
	r.seen[page] = struct{}{}
}

// Len reports how many distinct pages have been materialised.
func (r *Registry) Len() int { return len(r.seen) }
