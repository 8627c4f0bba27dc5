// Command ondemand is the CLI front end for the on-demand executable
// loader (spec.md §6, §7): ondemand path [argv...] parses path as a
// statically linked ELF image and runs it with every page mapped lazily
// on first fault, via userfaultfd (SPEC_FULL.md §0).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"ondemand/internal/loader"
	"ondemand/internal/ondlog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: ondemand path [argv...]")
		return 2
	}
	path := args[0]
	// spec.md §8's so_execute behavior: argv[0] is the same string as
	// the image path, matching execve's convention.
	argv := append([]string{path}, args[1:]...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := ondlog.Default()
	l := loader.New(log)

	if err := l.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "ondemand: %v\n", err)
		return 3
	}

	err := l.Execute(ctx, path, argv)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, loader.ErrOpen):
		// spec.md §7 "Open failure": diagnostic to stderr, exit 1.
		fmt.Fprintf(os.Stderr, "ondemand: %v\n", err)
		return 1
	case errors.Is(err, loader.ErrParse):
		fmt.Fprintf(os.Stderr, "ondemand: %v\n", err)
		return 4
	case errors.Is(err, loader.ErrInit):
		fmt.Fprintf(os.Stderr, "ondemand: %v\n", err)
		return 3
	default:
		// Any other failure before the handoff to the target, such as
		// a segment that cannot be reserved or registered.
		fmt.Fprintf(os.Stderr, "ondemand: %v\n", err)
		return 5
	}
}
