package segment

import "testing"

func TestRoundUpPage(t *testing.T) {
	cases := []struct {
		in, want uintptr
	}{
		{0, 0},
		{1, Page},
		{Page, Page},
		{Page + 1, 2 * Page},
		{0x600, Page},
	}
	for _, c := range cases {
		if got := RoundUpPage(c.in); got != c.want {
			t.Errorf("RoundUpPage(0x%x) = 0x%x, want 0x%x", c.in, got, c.want)
		}
	}
}

func TestTableLookup(t *testing.T) {
	// Scenario 1 from spec.md §8: a single R+X segment whose mem_size
	// equals file_size and is smaller than one page.
	tab := NewTable([]Segment{
		{Vaddr: 0x08048000, Offset: 0, FileSize: 0x600, MemSize: 0x600, Perm: PermRead | PermExec},
	})

	if _, ok := tab.Lookup(0x08048000); !ok {
		t.Fatal("expected first byte of segment to be owned")
	}
	// The segment's last page extends to 0x08049000 even though
	// MemSize only covers up to 0x08048600: a fault in the trailing
	// slack still belongs to the segment.
	if _, ok := tab.Lookup(0x08048900); !ok {
		t.Fatal("expected trailing slack of last page to be owned by the segment")
	}
	if _, ok := tab.Lookup(0x08049000); ok {
		t.Fatal("expected address past the rounded-up end to be unowned")
	}
	if _, ok := tab.Lookup(0xDEADBEEF); ok {
		t.Fatal("expected address far outside any segment to be unowned")
	}
}

func TestTableLookupNoOverlapTies(t *testing.T) {
	tab := NewTable([]Segment{
		{Vaddr: 0x1000, Offset: 0, FileSize: 0x1000, MemSize: 0x1000, Perm: PermRead},
		{Vaddr: 0x2000, Offset: 0x1000, FileSize: 0x1000, MemSize: 0x1000, Perm: PermRead | PermWrite},
	})
	s, ok := tab.Lookup(0x2500)
	if !ok || s.Vaddr != 0x2000 {
		t.Fatalf("Lookup(0x2500) = %+v, %v; want second segment", s, ok)
	}
}

func TestTotalPages(t *testing.T) {
	tab := NewTable([]Segment{
		{Vaddr: 0, FileSize: 0x800, MemSize: 0x1200},
	})
	// round_up(0x1200, 0x1000) / 0x1000 == 2
	if got := tab.TotalPages(); got != 2 {
		t.Fatalf("TotalPages() = %d, want 2", got)
	}
}
