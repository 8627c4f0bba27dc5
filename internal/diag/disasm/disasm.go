// Package disasm best-effort disassembles a single x86 instruction for
// the diagnostic logged before a target fault ends the child. It is a
// leaf package with no dependency on internal/pager, so internal/pager
// can call it directly without creating an import cycle with
// internal/diag (which does depend on pager, for pager.Case).
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Fault returns a best-effort one-instruction disassembly of the bytes
// at a faulting address. code must contain at least the faulting
// instruction's bytes, starting at offset 0; callers read it from an
// already-mapped page, so a genuinely invalid address (no readable
// bytes) yields an error instead of a disassembly.
func Fault(code []byte) (string, error) {
	if len(code) == 0 {
		return "", fmt.Errorf("disasm: no readable bytes at fault address")
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "", fmt.Errorf("disasm: decoding faulting instruction: %w", err)
	}
	return x86asm.GNUSyntax(inst, 0, nil), nil
}
