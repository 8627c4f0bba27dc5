// Package loader implements the on-demand executable loader's
// lifecycle (spec.md §4.5, §6, §7): install the fault handler once,
// then parse and execute program images, lazily paging them in
// through package pager as they fault.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"ondemand/internal/diag"
	"ondemand/internal/ondlog"
	"ondemand/internal/pager"
	"ondemand/internal/segment"
	"ondemand/internal/trampoline"
)

// ErrInit is returned by Init when the fault-delivery mechanism cannot
// be installed.
var ErrInit = errors.New("loader: initialization failed")

// ErrParse is returned by Execute when the image cannot be parsed.
var ErrParse = errors.New("loader: image could not be parsed")

// ErrOpen is returned by Execute when path cannot be opened. spec.md §7
// requires this specific failure to terminate the process with exit
// status 1; cmd/ondemand maps ErrOpen to that status rather than the
// loader calling os.Exit itself.
var ErrOpen = errors.New("loader: could not open the executable")

// Loader is the process-wide loader context described by spec.md §9:
// in the reference design this state (file descriptor, segment table,
// registry) is global so that a signal handler with only a faulting
// address can reach it. Replacing SIGSEGV delivery with userfaultfd
// (SPEC_FULL.md §0) removes that constraint — the fault-servicing
// goroutine closes over an explicit *pager.Handler instead — so Loader
// is an ordinary value with the same single-instance lifecycle: Init
// once, then Execute.
type Loader struct {
	log ondlog.Logger
}

// New constructs a Loader that logs through log. A nil log uses
// ondlog's default.
func New(log ondlog.Logger) *Loader {
	if log == nil {
		log = ondlog.Default()
	}
	return &Loader{log: log}
}

// Init installs the fault-delivery mechanism. On this platform that
// means confirming userfaultfd(2) is usable; it must be called once,
// before Execute. Calling it twice is undefined, matching spec.md §6.
func (l *Loader) Init() error {
	if err := probeUserfaultfd(); err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	return nil
}

// Execute parses path, lazily maps it, and transfers control to the
// image's entry point with argv. On success it does not return — the
// trampoline hands control to the target, which runs until it exits.
// Execute returns an error when opening, parsing, creating the fault
// handler or mapping a segment fails before that handoff. Once the
// trampoline goroutine has jumped to the target it never returns, and
// the errgroup's Wait waits for it, so a genuine target fault does not
// make Execute return: Run unregisters the faulting range and the
// kernel's default action for the fault ends the process.
func (l *Loader) Execute(ctx context.Context, path string, argv []string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer f.Close()

	table, err := segment.Parse(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	entry, err := segment.EntryPoint(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}

	p := pager.New(table, func(off int64, buf []byte) (int, error) {
		return f.ReadAt(buf, off)
	})

	h, err := pager.NewHandler(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	defer h.Close()

	recorder := diag.Enabled()
	h.SetRecorder(recorder)
	h.SetLogger(l.log)
	defer func() {
		if err := recorder.Close(); err != nil {
			l.log.Warn("writing diagnostics profile", "error", err)
		}
	}()

	for i := 0; i < table.Len(); i++ {
		if err := h.MapSegment(table.At(i)); err != nil {
			return fmt.Errorf("loader: mapping segment %d: %w", i, err)
		}
	}

	l.log.Info("executing image", "path", path, "segments", table.Len(), "entry", fmt.Sprintf("0x%x", entry))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Run(gctx)
	})
	g.Go(func() error {
		return trampoline.Start(entry, argv)
	})

	if err := g.Wait(); err != nil {
		l.log.Warn("execution ended", "error", err)
		return err
	}
	return nil
}
