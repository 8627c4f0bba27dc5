package segment

import (
	"debug/elf"
	"fmt"
)

// Parse reads path as an ELF image and returns its loadable segments in
// program-header order. It rejects anything this loader cannot run:
// non-ELF input, non-executable images, and dynamically linked images
// (an INTERP header or an ET_DYN image) — dynamic linking, relocation
// and PIE rebasing are out of scope (spec Non-goals).
func Parse(path string) (Table, error) {
	f, err := elf.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("segment: open %s: %w", path, err)
	}
	defer f.Close()

	if f.Type != elf.ET_EXEC {
		return Table{}, fmt.Errorf("segment: %s is %s, not a statically linked executable", path, f.Type)
	}

	var segs []Segment
	for _, p := range f.Progs {
		switch p.Type {
		case elf.PT_INTERP:
			return Table{}, fmt.Errorf("segment: %s requires a dynamic linker, unsupported", path)
		case elf.PT_LOAD:
			segs = append(segs, Segment{
				Vaddr:    uintptr(p.Vaddr),
				Offset:   int64(p.Off),
				FileSize: int64(p.Filesz),
				MemSize:  int64(p.Memsz),
				Perm:     permOf(p.Flags),
			})
		}
	}
	if len(segs) == 0 {
		return Table{}, fmt.Errorf("segment: %s has no loadable segments", path)
	}
	return NewTable(segs), nil
}

// EntryPoint returns the image's entry virtual address.
func EntryPoint(path string) (uintptr, error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("segment: open %s: %w", path, err)
	}
	defer f.Close()
	return uintptr(f.Entry), nil
}

func permOf(flags elf.ProgFlag) Perm {
	var p Perm
	if flags&elf.PF_R != 0 {
		p |= PermRead
	}
	if flags&elf.PF_W != 0 {
		p |= PermWrite
	}
	if flags&elf.PF_X != 0 {
		p |= PermExec
	}
	return p
}
