// Package pager is the fault handler and mapping engine: it classifies
// a faulting address into one of the three outcomes of spec.md §4.3,
// computes the per-page mapping plan of §4.4, and — on Linux — resolves
// that plan against a userfaultfd-registered region.
package pager

import (
	"errors"
	"fmt"

	"ondemand/internal/registry"
	"ondemand/internal/segment"
)

// Outcome is the classification of a faulting address (spec.md §4.3).
type Outcome int

const (
	// OutcomeMaterialize: the page is valid but unmapped; it must be
	// serviced by the mapping engine.
	OutcomeMaterialize Outcome = iota
	// OutcomeAlreadyMapped: the page is already in the registry, so
	// this fault can only be a permission violation (e.g. a write to
	// a read-only page) — spec.md §4.3 step 3, §9 "classification of
	// permission faults".
	OutcomeAlreadyMapped
	// OutcomeInvalid: the address does not belong to any segment.
	OutcomeInvalid
)

// ErrNoSegment is returned when a fault address falls outside every
// segment; it corresponds to a genuine invalid access (spec.md §4.3
// step 2, §7 "target fault").
var ErrNoSegment = errors.New("pager: address outside any segment")

// ErrPermission is returned when a fault targets an already-mapped
// page; it corresponds to a permission violation (spec.md §4.3 step 3).
var ErrPermission = errors.New("pager: permission violation on mapped page")

// Pager owns the read-only segment table and the mapped-page registry
// for one execution and decides how each fault is serviced. The
// platform-specific half (userfaultfd registration and resolution)
// lives in uffd_linux.go; this file holds the part of the design that
// spec.md §2 calls "the hard engineering" and that is portable across
// fault-delivery mechanisms.
type Pager struct {
	table segment.Table
	reg   *registry.Registry
	read  func(off int64, buf []byte) (int, error)
}

// New creates a Pager over table, with a registry pre-sized to the
// table's total page count (spec.md §5, §9), reading file-backed bytes
// through readAt.
func New(table segment.Table, readAt func(off int64, buf []byte) (int, error)) *Pager {
	return &Pager{
		table: table,
		reg:   registry.New(table.TotalPages()),
		read:  readAt,
	}
}

// Classify implements spec.md §4.3: it decides whether addr is a
// genuine invalid access, a permission violation on an already-mapped
// page, or a page that still needs to be materialised.
func (p *Pager) Classify(addr uintptr) (Outcome, segment.Segment, uintptr) {
	pageBase := segment.RoundDownPage(addr)
	seg, ok := p.table.Lookup(addr)
	if !ok {
		return OutcomeInvalid, segment.Segment{}, pageBase
	}
	if p.reg.Contains(pageBase) {
		return OutcomeAlreadyMapped, seg, pageBase
	}
	return OutcomeMaterialize, seg, pageBase
}

// fill always produces a full Page-sized byte buffer for plan: the
// first min(plan.FileRemaining, Page) bytes read from the file at
// plan.FileOffset, the rest left zero. UFFDIO_COPY requires a page-aligned length (the
// kernel's validate_range() rejects anything else), so the buffer is
// always segment.Page bytes even on a segment's last page, where
// plan.Length() (the ownership boundary, not the copy size) is
// shorter — the bytes past plan.Length() belong to no segment and are
// never read back by the target, but they must still be supplied to
// satisfy the ioctl. This is the content computed by all four cases of
// spec.md §4.4 — case A has FileRemaining >= Page, so the whole buffer
// is file content; cases B and C have a file prefix followed by zeros;
// case D has FileRemaining == 0, so the whole buffer is the zero value.
func (p *Pager) fill(plan Plan) ([]byte, error) {
	buf := make([]byte, segment.Page)
	want := plan.FileRemaining
	if want == 0 {
		return buf, nil
	}
	if want > segment.Page {
		want = segment.Page
	}
	n, err := p.read(plan.FileOffset, buf[:want])
	if err != nil {
		return nil, fmt.Errorf("pager: reading file-backed content: %w", err)
	}
	if int64(n) != want {
		return nil, fmt.Errorf("pager: short read: got %d bytes, want %d", n, want)
	}
	return buf, nil
}

// Registry exposes the mapped-page registry for inspection (tests,
// diagnostics). Callers must not mutate pages outside of Handler.service.
func (p *Pager) Registry() *registry.Registry { return p.reg }
