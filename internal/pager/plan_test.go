package pager

import "ondemand/internal/segment"

import "testing"

// Scenario 1, spec.md §8: segment ends mid-page with no BSS at all.
func TestBuildPlanCasePartialFile(t *testing.T) {
	s := segment.Segment{Vaddr: 0x08048000, Offset: 0, FileSize: 0x600, MemSize: 0x600, Perm: segment.PermRead | segment.PermExec}
	p := BuildPlan(s, 0x08048000)
	if p.Case != CasePartialFile {
		t.Fatalf("Case = %v, want CasePartialFile", p.Case)
	}
	if p.FileRemaining != 0x600 {
		t.Fatalf("FileRemaining = 0x%x, want 0x600", p.FileRemaining)
	}
	if p.FileOffset != 0 {
		t.Fatalf("FileOffset = 0x%x, want 0", p.FileOffset)
	}
	if p.Length() != 0x600 {
		t.Fatalf("Length() = 0x%x, want 0x600", p.Length())
	}
}

// Scenario 2, spec.md §8: the straddle page and the following pure-BSS
// page of a segment whose MemSize extends well past FileSize.
func TestBuildPlanCaseStraddleThenBSS(t *testing.T) {
	s := segment.Segment{Vaddr: 0x0804A000, Offset: 0x1000, FileSize: 0x800, MemSize: 0x1200, Perm: segment.PermRead | segment.PermWrite}

	straddle := BuildPlan(s, 0x0804A000)
	if straddle.Case != CaseStraddle {
		t.Fatalf("Case = %v, want CaseStraddle", straddle.Case)
	}
	if straddle.FileOffset != 0x1000 {
		t.Fatalf("FileOffset = 0x%x, want 0x1000", straddle.FileOffset)
	}
	if straddle.FileRemaining != 0x800 {
		t.Fatalf("FileRemaining = 0x%x, want 0x800", straddle.FileRemaining)
	}
	if straddle.Length() != segment.Page {
		t.Fatalf("Length() = 0x%x, want a full page", straddle.Length())
	}

	bss := BuildPlan(s, 0x0804B000)
	if bss.Case != CaseBSS {
		t.Fatalf("Case = %v, want CaseBSS", bss.Case)
	}
	if bss.FileRemaining != 0 {
		t.Fatalf("FileRemaining = 0x%x, want 0", bss.FileRemaining)
	}
	if bss.MemRemaining != 0x200 {
		t.Fatalf("MemRemaining = 0x%x, want 0x200", bss.MemRemaining)
	}
	if bss.Length() != 0x200 {
		t.Fatalf("Length() = 0x%x, want 0x200 (only 512 bytes belong to the segment)", bss.Length())
	}
}

// Scenario 3, spec.md §8: a page fully inside the file-backed region.
func TestBuildPlanCaseFullFile(t *testing.T) {
	s := segment.Segment{Vaddr: 0x0804C000, Offset: 0x2000, FileSize: 0x3000, MemSize: 0x3000, Perm: segment.PermRead}
	p := BuildPlan(s, 0x0804D000)
	if p.Case != CaseFullFile {
		t.Fatalf("Case = %v, want CaseFullFile", p.Case)
	}
	if p.FileOffset != 0x3000 {
		t.Fatalf("FileOffset = 0x%x, want 0x3000", p.FileOffset)
	}
	if p.Length() != segment.Page {
		t.Fatalf("Length() = 0x%x, want a full page", p.Length())
	}
}
