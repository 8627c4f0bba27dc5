package pager

import (
	"bytes"
	"errors"
	"testing"

	"ondemand/internal/segment"
)

func fakeReader(content []byte) func(int64, []byte) (int, error) {
	return func(off int64, buf []byte) (int, error) {
		if off < 0 || int(off)+len(buf) > len(content) {
			return 0, errors.New("fake reader: out of range")
		}
		return copy(buf, content[off:int(off)+len(buf)]), nil
	}
}

func TestClassify(t *testing.T) {
	tab := segment.NewTable([]segment.Segment{
		{Vaddr: 0x1000, FileSize: 0x1000, MemSize: 0x1000, Perm: segment.PermRead},
	})
	p := New(tab, fakeReader(make([]byte, 0x1000)))

	outcome, _, page := p.Classify(0x1000)
	if outcome != OutcomeMaterialize {
		t.Fatalf("Classify(0x1000) outcome = %v, want OutcomeMaterialize", outcome)
	}
	if page != 0x1000 {
		t.Fatalf("page base = 0x%x, want 0x1000", page)
	}

	p.reg.Insert(0x1000)
	outcome, _, _ = p.Classify(0x1000)
	if outcome != OutcomeAlreadyMapped {
		t.Fatalf("Classify(0x1000) after insert = %v, want OutcomeAlreadyMapped", outcome)
	}

	outcome, _, _ = p.Classify(0xDEADB000)
	if outcome != OutcomeInvalid {
		t.Fatalf("Classify(outside) = %v, want OutcomeInvalid", outcome)
	}
}

func TestFillFullFilePage(t *testing.T) {
	content := bytes.Repeat([]byte{0xAB}, segment.Page)
	tab := segment.NewTable([]segment.Segment{
		{Vaddr: 0x1000, FileSize: segment.Page, MemSize: segment.Page, Perm: segment.PermRead},
	})
	p := New(tab, fakeReader(content))
	plan := BuildPlan(tab.At(0), 0x1000)

	buf, err := p.fill(plan)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if !bytes.Equal(buf, content) {
		t.Fatal("fill() did not reproduce the file's bytes for a full file-backed page")
	}
}

func TestFillStraddlePageZeroesTail(t *testing.T) {
	content := bytes.Repeat([]byte{0xCD}, 0x800)
	tab := segment.NewTable([]segment.Segment{
		{Vaddr: 0x2000, Offset: 0, FileSize: 0x800, MemSize: 0x1800, Perm: segment.PermRead | segment.PermWrite},
	})
	p := New(tab, fakeReader(content))
	plan := BuildPlan(tab.At(0), 0x2000)

	buf, err := p.fill(plan)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if !bytes.Equal(buf[:0x800], content) {
		t.Fatal("fill() did not reproduce file bytes in the straddle page's prefix")
	}
	for i, b := range buf[0x800:] {
		if b != 0 {
			t.Fatalf("byte %d of straddle page's BSS tail = 0x%x, want 0", 0x800+i, b)
		}
	}
}

func TestFillPartialFilePageIsFullPageLength(t *testing.T) {
	// spec.md §8 scenario 1: MemSize == FileSize, both smaller than a
	// page. UFFDIO_COPY requires a page-aligned length, so fill must
	// still return a full Page-sized buffer, not the shorter
	// plan.Length() that only bounds the segment's ownership.
	content := bytes.Repeat([]byte{0xEF}, 0x600)
	tab := segment.NewTable([]segment.Segment{
		{Vaddr: 0x08048000, Offset: 0, FileSize: 0x600, MemSize: 0x600, Perm: segment.PermRead | segment.PermExec},
	})
	p := New(tab, fakeReader(content))
	plan := BuildPlan(tab.At(0), 0x08048000)
	if plan.Length() >= segment.Page {
		t.Fatalf("test setup: plan.Length() = %d, want < Page", plan.Length())
	}

	buf, err := p.fill(plan)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if len(buf) != segment.Page {
		t.Fatalf("len(buf) = %d, want a full page (%d)", len(buf), segment.Page)
	}
	if !bytes.Equal(buf[:0x600], content) {
		t.Fatal("fill() did not reproduce file bytes in the partial page's prefix")
	}
	for i, b := range buf[0x600:] {
		if b != 0 {
			t.Fatalf("byte %d past FileSize = 0x%x, want 0", 0x600+i, b)
		}
	}
}

func TestFillBSSPageIsAllZero(t *testing.T) {
	tab := segment.NewTable([]segment.Segment{
		{Vaddr: 0x3000, Offset: 0, FileSize: 0, MemSize: segment.Page, Perm: segment.PermRead | segment.PermWrite},
	})
	p := New(tab, fakeReader(nil))
	plan := BuildPlan(tab.At(0), 0x3000)

	buf, err := p.fill(plan)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d of BSS page = 0x%x, want 0", i, b)
		}
	}
}
