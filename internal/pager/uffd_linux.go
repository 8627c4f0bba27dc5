//go:build linux

package pager

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"
	"unsafe"

	uffd "github.com/ricardobranco777/go-userfaultfd"
	"golang.org/x/sys/unix"

	"ondemand/internal/diag/disasm"
	"ondemand/internal/segment"
)

// FaultRecorder receives optional per-fault diagnostics (latency and
// mapping case). internal/diag implements it; Handler only depends on
// this interface so that pager never imports diag, which itself needs
// pager.Case.
type FaultRecorder interface {
	RecordFault(d time.Duration, c Case)
}

// FaultLogger receives a diagnostic before a genuine target fault
// (spec.md §7) ends the child. internal/ondlog's Logger satisfies it;
// Handler depends only on this narrow interface so pager does not need
// to import ondlog for a single Warn call.
type FaultLogger interface {
	Warn(msg string, kv ...any)
}

// uffdMsgSize is sizeof(struct uffd_msg) on amd64: an 8-byte header
// followed by a 24-byte event-specific union (see linux/userfaultfd.h).
const uffdMsgSize = 32

const uffdEventPagefault = 0x12

// Handler drives a Pager from userfaultfd(2) notifications instead of
// the reference design's SIGSEGV trampoline (see SPEC_FULL.md §0): it
// owns the anonymous, page-fault-tracked mapping that backs every
// segment of the running image, and resolves each notification by
// classifying the address (Pager.Classify) and, for a page that needs
// materialising, filling a scratch buffer and handing it to the kernel
// with UFFDIO_COPY.
type Handler struct {
	pager  *Pager
	uffd   *os.File
	uffdFd int
	// regions records the [start, start+length) ranges registered with
	// the uffd, so that a genuine target fault can unregister precisely
	// the owning range before handing the fault back to the kernel.
	regions []region
	// recorder is optional and nil unless SetRecorder is called; every
	// call site guards on it being non-nil.
	recorder FaultRecorder
	// log is optional and nil unless SetLogger is called; every call
	// site guards on it being non-nil.
	log FaultLogger
}

// SetRecorder attaches an optional fault recorder for diagnostics. It
// must be called before Run starts servicing faults.
func (h *Handler) SetRecorder(r FaultRecorder) {
	h.recorder = r
}

// SetLogger attaches an optional logger for target-fault diagnostics.
// It must be called before Run starts servicing faults.
func (h *Handler) SetLogger(l FaultLogger) {
	h.log = l
}

type region struct {
	start, length uintptr
}

// NewHandler creates the userfaultfd descriptor and performs the API
// handshake. It corresponds to the "install the fault-signal handler"
// step of spec.md §4.5's init.
func NewHandler(p *Pager) (*Handler, error) {
	f, err := uffd.NewFile(0)
	if err != nil {
		return nil, fmt.Errorf("pager: creating userfaultfd: %w", err)
	}
	if _, err := uffd.ApiHandshake(int(f.Fd()), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("pager: userfaultfd API handshake: %w", err)
	}
	return &Handler{pager: p, uffd: f, uffdFd: int(f.Fd())}, nil
}

// MapSegment reserves the segment's virtual address range as a private
// anonymous mapping with the segment's declared permissions and
// registers it for missing-page notification. No page of the segment
// is materialised until it first faults.
func (h *Handler) MapSegment(s segment.Segment) error {
	base := segment.RoundDownPage(s.Vaddr)
	end := segment.RoundUpPage(s.Vaddr + uintptr(s.MemSize))
	length := int(end - base)

	if err := mmapFixedAnon(base, uintptr(length), protOf(s.Perm)); err != nil {
		return fmt.Errorf("pager: reserving segment at 0x%x: %w", base, err)
	}

	if _, err := uffd.Register(h.uffdFd, base, uintptr(length), uffdRegisterMissing()); err != nil {
		return fmt.Errorf("pager: registering segment at 0x%x with userfaultfd: %w", base, err)
	}
	h.regions = append(h.regions, region{start: base, length: uintptr(length)})
	return nil
}

// Close unregisters every mapped region and closes the userfaultfd
// descriptor.
func (h *Handler) Close() error {
	for _, r := range h.regions {
		_ = uffd.Unregister(h.uffdFd, r.start, r.length)
	}
	return h.uffd.Close()
}

// Run reads fault notifications until ctx is cancelled, the uffd is
// closed, or a genuine invalid access (spec.md §7 "target fault")
// occurs, in which case Run unregisters the owning range — so that the
// kernel delivers the fault signal with its default disposition, per
// spec.md §4.3's "restore default disposition and return" — and
// returns the classifying error.
func (h *Handler) Run(ctx context.Context) error {
	buf := make([]byte, uffdMsgSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := unix.Read(h.uffdFd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				continue
			}
			return fmt.Errorf("pager: reading userfaultfd event: %w", err)
		}
		if n != uffdMsgSize {
			return fmt.Errorf("pager: short userfaultfd message: %d bytes", n)
		}

		event := buf[0]
		if event != uffdEventPagefault {
			continue
		}
		// buf[8:16] carries the pagefault flags (UFFD_PAGEFAULT_FLAG_*);
		// not needed here since Classify derives write-vs-read purely
		// from registry membership (spec.md §9 "classification of
		// permission faults").
		address := uintptr(binary.LittleEndian.Uint64(buf[16:24]))

		if err := h.service(address); err != nil {
			return err
		}
	}
}

// service resolves a single fault address, implementing the
// classification of spec.md §4.3 and, for a materialisable page, the
// mapping plan of §4.4.
func (h *Handler) service(addr uintptr) error {
	started := time.Now()

	outcome, seg, pageBase := h.pager.Classify(addr)
	switch outcome {
	case OutcomeInvalid:
		h.unregisterOwning(pageBase)
		// No segment owns addr, so there is no mapped page to read the
		// faulting instruction's bytes from; disasm.Fault returns an
		// error for empty input and logFault then logs the fault
		// without an instruction, rather than this reading unmapped
		// memory itself.
		h.logFault(addr, nil, "no segment owns this address")
		return fmt.Errorf("%w: 0x%x", ErrNoSegment, addr)
	case OutcomeAlreadyMapped:
		h.unregisterOwning(pageBase)
		h.logFault(addr, readMappedBytes(addr), "permission violation on mapped page")
		return fmt.Errorf("%w: 0x%x", ErrPermission, addr)
	}

	plan := BuildPlan(seg, pageBase)
	buf, err := h.pager.fill(plan)
	if err != nil {
		h.unregisterOwning(pageBase)
		return err
	}

	// buf is always a full segment.Page bytes (Pager.fill), never
	// plan.Length() — UFFDIO_COPY's len must be page-aligned, and
	// plan.Length() is shorter than a page on a segment's last page
	// (spec.md §8 scenarios 1 and 2).
	if _, err := uffd.Copy(h.uffdFd, pageBase, uintptr(unsafe.Pointer(&buf[0])), segment.Page, 0); err != nil {
		return fmt.Errorf("pager: UFFDIO_COPY at 0x%x (%s): %w", pageBase, plan.Case, err)
	}
	h.pager.reg.Insert(pageBase)

	if h.recorder != nil {
		h.recorder.RecordFault(time.Since(started), plan.Case)
	}
	return nil
}

// readMappedBytes reads a small disassembly window starting at addr,
// clamped so it never crosses into the next page — addr's own page is
// already mapped (OutcomeAlreadyMapped), but the next page need not be.
func readMappedBytes(addr uintptr) []byte {
	const window = 16
	remaining := segment.Page - int(addr%segment.Page)
	n := window
	if remaining < n {
		n = remaining
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// logFault best-effort disassembles code, the bytes read at the fault
// address (when non-empty; they are the faulting instruction itself
// only when the fault was an instruction fetch), and logs the diagnostic the pack's loaders emit
// before a target fault ends the child (spec.md §7). It is a no-op if
// no logger was attached via SetLogger.
func (h *Handler) logFault(addr uintptr, code []byte, reason string) {
	if h.log == nil {
		return
	}
	asm, err := disasm.Fault(code)
	if err != nil {
		h.log.Warn("target fault", "addr", fmt.Sprintf("0x%x", addr), "reason", reason)
		return
	}
	h.log.Warn("target fault", "addr", fmt.Sprintf("0x%x", addr), "reason", reason, "instruction", asm)
}

// unregisterOwning removes fault tracking from the region containing
// page, letting the kernel deliver the access fault with its default
// disposition on the next instruction replay.
func (h *Handler) unregisterOwning(page uintptr) {
	for i, r := range h.regions {
		if page >= r.start && page < r.start+r.length {
			_ = uffd.Unregister(h.uffdFd, r.start, r.length)
			h.regions = append(h.regions[:i], h.regions[i+1:]...)
			return
		}
	}
}

func protOf(p segment.Perm) int {
	prot := unix.PROT_NONE
	if p&segment.PermRead != 0 {
		prot |= unix.PROT_READ
	}
	if p&segment.PermWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if p&segment.PermExec != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}

func uffdRegisterMissing() uint64 {
	return uffd.UFFDIO_REGISTER_MODE_MISSING
}

// mmapFixedAnon reserves [addr, addr+length) as a private anonymous
// mapping with the given protection. x/sys/unix's Mmap wrapper always
// lets the kernel choose the base address, so a fixed-address
// reservation goes through the raw mmap(2) syscall directly — the same
// pattern the Go runtime itself uses for MAP_FIXED reservations.
func mmapFixedAnon(addr, length uintptr, prot int) error {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS | unix.MAP_FIXED
	ret, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, length,
		uintptr(prot), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return errno
	}
	if ret != addr {
		return fmt.Errorf("mmap returned 0x%x, wanted fixed address 0x%x", ret, addr)
	}
	return nil
}
