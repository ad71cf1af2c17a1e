// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package diag provides optional runtime diagnostics for a bufstream.Stream
// and an sdspi.Card: cache hit/miss/flush counters, SD command/retry/
// timeout counters, and an HTTP live-charts endpoint (backed by
// github.com/mkevac/debugcharts) for watching cache and protocol behavior
// side by side with Go runtime memory behavior while a workload runs.
package diag

import (
	"context"
	"expvar"
	"net/http"
	"sync/atomic"

	// Registers /debug/charts/ handlers on http.DefaultServeMux as a
	// side effect of being imported.
	_ "github.com/mkevac/debugcharts"
)

// Recorder counts block-cache events and SD command/retry/timeout events.
// bufstream.Stream accepts anything satisfying its cache-event subset
// through bufstream.WithRecorder; sdspi.Card accepts anything satisfying
// its command-event subset through sdspi.WithRecorder.
type Recorder struct {
	hits     uint64
	misses   uint64
	flush    uint64
	commands uint64
	retries  uint64
	timeouts uint64
}

// NewRecorder returns a zeroed Recorder, also exposing its counters under
// expvar so they show up next to the debugcharts memory graphs.
func NewRecorder(name string) *Recorder {
	r := &Recorder{}
	expvar.Publish(name+".cache_hits", expvar.Func(func() any { return atomic.LoadUint64(&r.hits) }))
	expvar.Publish(name+".cache_misses", expvar.Func(func() any { return atomic.LoadUint64(&r.misses) }))
	expvar.Publish(name+".cache_flushes", expvar.Func(func() any { return atomic.LoadUint64(&r.flush) }))
	expvar.Publish(name+".sd_commands", expvar.Func(func() any { return atomic.LoadUint64(&r.commands) }))
	expvar.Publish(name+".sd_retries", expvar.Func(func() any { return atomic.LoadUint64(&r.retries) }))
	expvar.Publish(name+".sd_timeouts", expvar.Func(func() any { return atomic.LoadUint64(&r.timeouts) }))
	return r
}

// CacheHit implements the recorder interface bufstream expects.
func (r *Recorder) CacheHit() { atomic.AddUint64(&r.hits, 1) }

// CacheMiss implements the recorder interface bufstream expects.
func (r *Recorder) CacheMiss() { atomic.AddUint64(&r.misses, 1) }

// CacheFlush implements the recorder interface bufstream expects.
func (r *Recorder) CacheFlush() { atomic.AddUint64(&r.flush, 1) }

// Command implements the recorder interface sdspi expects: counted once
// per command frame sent to the card.
func (r *Recorder) Command() { atomic.AddUint64(&r.commands, 1) }

// Retry implements the recorder interface sdspi expects: counted once per
// poll iteration that did not find the awaited condition yet.
func (r *Recorder) Retry() { atomic.AddUint64(&r.retries, 1) }

// TimedOut implements the recorder interface sdspi expects: counted once
// per poll loop that exhausted its budget.
func (r *Recorder) TimedOut() { atomic.AddUint64(&r.timeouts, 1) }

// Stats is a point-in-time snapshot of a Recorder's counters.
type Stats struct {
	Hits, Misses, Flushes       uint64
	Commands, Retries, Timeouts uint64
}

// Snapshot reads the current counter values.
func (r *Recorder) Snapshot() Stats {
	return Stats{
		Hits:     atomic.LoadUint64(&r.hits),
		Misses:   atomic.LoadUint64(&r.misses),
		Flushes:  atomic.LoadUint64(&r.flush),
		Commands: atomic.LoadUint64(&r.commands),
		Retries:  atomic.LoadUint64(&r.retries),
		Timeouts: atomic.LoadUint64(&r.timeouts),
	}
}

// Server hosts the debugcharts HTTP endpoint on addr until ctx is
// canceled. Intended for interactive debugging sessions, not production
// deployments.
func Server(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: http.DefaultServeMux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
