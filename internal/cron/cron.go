// Package cron runs jobs once a day at a fixed local time.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job is the work run on every tick.
type Job func(ctx context.Context) error

// Daily runs a job every day at a time of day. A tick that arrives while
// the previous run is still going is skipped.
type Daily struct {
	name string
	at   time.Duration
	job  Job
	now  func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewDaily returns a schedule running job at the given offset from local
// midnight.
func NewDaily(name string, at time.Duration, job Job) *Daily {
	return &Daily{name: name, at: at, job: job, now: time.Now}
}

// Next returns the first run time strictly after from.
func (d *Daily) Next(from time.Time) time.Time {
	y, m, day := from.Date()
	next := time.Date(y, m, day, 0, 0, 0, 0, from.Location()).Add(d.at)
	if !next.After(from) {
		next = time.Date(y, m, day+1, 0, 0, 0, 0, from.Location()).Add(d.at)
	}
	return next
}

// Run waits for each scheduled time and triggers the job until ctx is
// cancelled, then waits for a run in progress to finish.
func (d *Daily) Run(ctx context.Context) error {
	defer d.wg.Wait()
	for {
		next := d.Next(d.now())
		slog.Info("next scheduled run", "job", d.name, "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.Trigger(ctx)
		}()
	}
}

// Trigger runs the job now unless a run is already in progress. It reports
// whether the job ran.
func (d *Daily) Trigger(ctx context.Context) bool {
	if !d.running.CompareAndSwap(false, true) {
		slog.Warn("scheduled run skipped, previous run still in progress", "job", d.name)
		return false
	}
	defer d.running.Store(false)

	start := time.Now()
	if err := d.job(ctx); err != nil {
		slog.Error("scheduled run failed", "job", d.name, "duration", time.Since(start), "error", err)
		return true
	}
	slog.Info("scheduled run finished", "job", d.name, "duration", time.Since(start))
	return true
}
