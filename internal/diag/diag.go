// Package diag is optional, ambient diagnostics for the loader: when
// ONDEMAND_PROFILE names a path, it records one pprof-compatible
// sample per serviced fault (latency and mapping case). The sibling
// package internal/diag/disasm covers the other ambient diagnostic
// (best-effort disassembly of a faulting instruction); it is split out
// so internal/pager can call it directly without importing this
// package, which itself depends on internal/pager for pager.Case.
// Package pager does not import diag. Package loader calls Enabled on
// every Execute; when ONDEMAND_PROFILE is unset that returns a nil
// Recorder, which records and writes nothing, matching spec.md §6's
// "ambient tooling, not core configuration".
package diag

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/pprof/profile"

	"ondemand/internal/pager"
)

const profileEnvVar = "ONDEMAND_PROFILE"

// Recorder accumulates per-fault samples and writes a pprof profile
// when Close is called. A nil *Recorder (from Enabled returning one
// when ONDEMAND_PROFILE is unset) is safe to use: every method is a
// no-op.
type Recorder struct {
	mu       sync.Mutex
	path     string
	start    time.Time
	samples  []sample
	caseType *profile.ValueType
}

type sample struct {
	durationNS int64
	caseLabel  string
}

// Enabled returns a Recorder writing to the path named by
// ONDEMAND_PROFILE, or nil if that variable is unset.
func Enabled() *Recorder {
	path := os.Getenv(profileEnvVar)
	if path == "" {
		return nil
	}
	return &Recorder{
		path:  path,
		start: time.Now(),
		caseType: &profile.ValueType{
			Type: "fault",
			Unit: "nanoseconds",
		},
	}
}

// RecordFault records the service latency and mapping case for one
// resolved page fault.
func (r *Recorder) RecordFault(d time.Duration, c pager.Case) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample{durationNS: d.Nanoseconds(), caseLabel: c.String()})
}

// Close writes the accumulated samples to the configured path as a
// pprof profile. It is a no-op on a nil Recorder or one with no
// samples.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return nil
	}

	locsByCase := map[string]*profile.Location{}
	functionsByCase := map[string]*profile.Function{}
	var locs []*profile.Location
	var funcs []*profile.Function
	nextID := uint64(1)

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{r.caseType},
		TimeNanos:  r.start.UnixNano(),
	}

	for _, s := range r.samples {
		fn, ok := functionsByCase[s.caseLabel]
		if !ok {
			fn = &profile.Function{ID: nextID, Name: "case:" + s.caseLabel}
			nextID++
			functionsByCase[s.caseLabel] = fn
			funcs = append(funcs, fn)
		}
		loc, ok := locsByCase[s.caseLabel]
		if !ok {
			loc = &profile.Location{
				ID:   nextID,
				Line: []profile.Line{{Function: fn}},
			}
			nextID++
			locsByCase[s.caseLabel] = loc
			locs = append(locs, loc)
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.durationNS},
		})
	}
	prof.Function = funcs
	prof.Location = locs

	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("diag: creating profile %s: %w", r.path, err)
	}
	defer f.Close()
	if err := prof.Write(f); err != nil {
		return fmt.Errorf("diag: writing profile %s: %w", r.path, err)
	}
	return nil
}
