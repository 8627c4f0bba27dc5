package disasm

import "testing"

func TestFaultRequiresBytes(t *testing.T) {
	if _, err := Fault(nil); err == nil {
		t.Fatal("expected error for empty code")
	}
}

func TestFaultDecodesRet(t *testing.T) {
	// 0xC3 is a bare RET on amd64.
	s, err := Fault([]byte{0xC3})
	if err != nil {
		t.Fatalf("Fault: %v", err)
	}
	if s == "" {
		t.Fatal("expected non-empty disassembly")
	}
}
