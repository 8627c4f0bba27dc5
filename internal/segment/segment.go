// Package segment describes the loadable regions of a parsed executable
// image: an immutable, ordered table of segments, each carrying a virtual
// base address, an in-file extent, an in-memory extent and a permission
// set. The table is produced once by Parse and is read-only for the rest
// of a program's lifetime.
package segment

// Page is the fixed architectural page size. The handler never produces
// a mapping base that isn't a multiple of Page.
const Page = 4096

// Perm is a read/write/execute permission bitmask, independent of any
// particular OS encoding.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// Segment is one PT_LOAD-equivalent region of an executable image.
//
// Invariants: MemSize >= FileSize; Vaddr is page-aligned;
// Offset+FileSize lies within the source file. The trailing
// MemSize-FileSize bytes are BSS: present in memory, absent from the
// file, and zero-filled on first touch.
type Segment struct {
	Vaddr    uintptr
	Offset   int64
	FileSize int64
	MemSize  int64
	Perm     Perm
}

// fileEnd returns the first address past this segment's file-backed
// content.
func (s Segment) fileEnd() uintptr { return s.Vaddr + uintptr(s.FileSize) }

// memEnd returns the first address past this segment, i.e. the first
// address that belongs to neither the file-backed content nor the BSS
// extension.
func (s Segment) memEnd() uintptr { return s.Vaddr + uintptr(s.MemSize) }

// end returns the page-rounded address at which ownership of this
// segment ends. A fault anywhere in the last page's trailing slack
// (past MemSize but before the next page boundary) still belongs to
// the segment and is serviced as BSS.
func (s Segment) end() uintptr { return RoundUpPage(s.memEnd()) }

// RoundDownPage aligns addr down to the containing page base.
func RoundDownPage(addr uintptr) uintptr { return addr &^ (Page - 1) }

// RoundUpPage aligns addr up to the next page boundary. It must not
// reproduce the reference source's off-by-one ("PAGE*(mem_size/PAGE+1)",
// which over-rounds when addr is already a page multiple): when addr is
// already page-aligned, RoundUpPage returns addr unchanged.
func RoundUpPage(addr uintptr) uintptr {
	return (addr + Page - 1) &^ (Page - 1)
}

// Table is the ordered, read-only sequence of segments produced by a
// parser. No sort order by address is guaranteed; the non-overlap
// invariant between segments is.
type Table struct {
	segs []Segment
}

// NewTable wraps segs as a read-only segment table. segs is not
// retained by reference; NewTable copies it.
func NewTable(segs []Segment) Table {
	cp := make([]Segment, len(segs))
	copy(cp, segs)
	return Table{segs: cp}
}

// Len returns the number of segments in the table.
func (t Table) Len() int { return len(t.segs) }

// At returns the i'th segment.
func (t Table) At(i int) Segment { return t.segs[i] }

// Lookup returns the unique segment owning addr, i.e. the segment S
// such that S.Vaddr <= addr < round_up(S.Vaddr+S.MemSize, Page). A
// linear scan is used: segment counts are small (typically under ten)
// and the non-overlap invariant rules out ties.
func (t Table) Lookup(addr uintptr) (Segment, bool) {
	for _, s := range t.segs {
		if addr >= s.Vaddr && addr < s.end() {
			return s, true
		}
	}
	return Segment{}, false
}

// TotalPages returns the sum, across all segments, of the number of
// pages each segment's MemSize rounds up to. It sizes the mapped-page
// registry (see package registry) so that its common-case insert never
// reallocates.
func (t Table) TotalPages() int {
	n := 0
	for _, s := range t.segs {
		n += int(RoundUpPage(uintptr(s.MemSize)) / Page)
	}
	return n
}
