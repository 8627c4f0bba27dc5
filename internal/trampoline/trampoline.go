// Package trampoline is the external collaborator named by spec.md §6:
// given a parsed image's entry point and an argument vector, it
// prepares a stack and transfers control to the target program. It is
// explicitly out of the loader's core (spec.md §1) — thin glue that
// exists so the rest of the repo is runnable, not a subject of the
// paging design itself.
package trampoline

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Start builds the initial process stack image (argc, argv, a
// null-terminated envp, an empty auxiliary vector) and jumps to entry.
// It does not return on success; the first instruction fetch at entry
// is what triggers the first page fault and kicks off demand paging
// (spec.md §6, "Trampoline contract").
//
// Start runs on an errgroup-managed goroutine (internal/loader.Execute)
// alongside the fault-servicing goroutine, in the same process as the
// rest of the loader. Once jumpToEntry runs, this goroutine's stack
// pointer no longer addresses any Go-tracked stack, so the runtime can
// never again cooperatively or asynchronously preempt it at a
// safepoint — a later stop-the-world (from an allocation anywhere else
// in the process, e.g. in the logging or diagnostics paths) would
// otherwise block forever waiting on a safepoint this goroutine can
// never reach. runtime.LockOSThread pins this goroutine to its OS
// thread so the scheduler never tries to multiplex another goroutine
// onto a thread that is about to leave Go's control, and disabling the
// garbage collector ensures no stop-the-world is ever requested again
// for the rest of the process's life — both are permanent, matching
// jumpToEntry itself never returning.
func Start(entry uintptr, argv []string) error {
	sp, err := buildStack(argv)
	if err != nil {
		return fmt.Errorf("trampoline: building initial stack: %w", err)
	}

	runtime.LockOSThread()
	debug.SetGCPercent(-1)

	jumpToEntry(sp, entry)
	// jumpToEntry never returns; reaching here indicates the
	// architecture-specific jump itself is unimplemented for this
	// build target.
	return fmt.Errorf("trampoline: jumpToEntry returned unexpectedly")
}
