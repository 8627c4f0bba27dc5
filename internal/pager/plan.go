package pager

import "ondemand/internal/segment"

// Case identifies which of spec.md §4.4's four mapping strategies
// services a page.
type Case int

const (
	// CaseFullFile: the whole page lies within the segment's
	// file-backed content (file_remaining >= Page).
	CaseFullFile Case = iota
	// CasePartialFile: the segment ends mid-page with no BSS
	// extension at all (0 < file_remaining < Page, MemSize == FileSize).
	CasePartialFile
	// CaseStraddle: the page crosses the file-backed/BSS boundary
	// (0 < file_remaining < Page, MemSize > FileSize).
	CaseStraddle
	// CaseBSS: the page is pure zero-filled BSS (file_remaining == 0).
	CaseBSS
)

func (c Case) String() string {
	switch c {
	case CaseFullFile:
		return "full-file"
	case CasePartialFile:
		return "partial-file"
	case CaseStraddle:
		return "straddle"
	case CaseBSS:
		return "bss"
	default:
		return "unknown"
	}
}

// Plan describes how to materialise one page. FileRemaining is the
// distance from PageBase to the end of the segment's file-backed
// content (0 if the page lies past it) and MemRemaining the distance
// to the end of the segment; both can exceed a Page. The bytes of this
// page that come from the file (starting at FileOffset) are
// min(FileRemaining, Page), and the bytes that belong to the segment at
// all are Length() (the rest is untouched, per spec.md §4.4's edge
// policy for the final, possibly short, page).
type Plan struct {
	Case          Case
	Segment       segment.Segment
	PageBase      uintptr
	FileOffset    int64
	FileRemaining int64
	MemRemaining  int64
}

// Length is the number of bytes of this page that belong to the
// segment: min(Page, MemRemaining). It is always Page except possibly
// on a segment's last page. This is an ownership/registry bookkeeping
// value only — the bytes actually copied into the mapping are always a
// full Page (see Pager.fill); UFFDIO_COPY requires a page-aligned
// length regardless of how much of the last page the segment owns.
func (p Plan) Length() int64 {
	if p.MemRemaining < segment.Page {
		return p.MemRemaining
	}
	return segment.Page
}

// BuildPlan computes the per-page mapping plan for pageBase within s,
// implementing the case table of spec.md §4.4.
func BuildPlan(s segment.Segment, pageBase uintptr) Plan {
	offInSeg := int64(pageBase - s.Vaddr)
	fileEnd := s.Vaddr + uintptr(s.FileSize)
	memEnd := s.Vaddr + uintptr(s.MemSize)

	var fileRemaining int64
	if pageBase < fileEnd {
		fileRemaining = int64(fileEnd - pageBase)
	}
	memRemaining := int64(memEnd - pageBase)

	p := Plan{
		Segment:       s,
		PageBase:      pageBase,
		FileOffset:    s.Offset + offInSeg,
		FileRemaining: fileRemaining,
		MemRemaining:  memRemaining,
	}

	switch {
	case fileRemaining >= segment.Page:
		p.Case = CaseFullFile
	case fileRemaining > 0 && s.MemSize == s.FileSize:
		p.Case = CasePartialFile
	case fileRemaining > 0:
		p.Case = CaseStraddle
	default:
		p.Case = CaseBSS
	}
	return p
}
