package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNext(t *testing.T) {
	d := NewDaily("test", 6*time.Hour+30*time.Minute, nil)
	loc := time.FixedZone("CET", 3600)

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"before today's run", time.Date(2024, 5, 1, 5, 0, 0, 0, loc), time.Date(2024, 5, 1, 6, 30, 0, 0, loc)},
		{"exactly at run", time.Date(2024, 5, 1, 6, 30, 0, 0, loc), time.Date(2024, 5, 2, 6, 30, 0, 0, loc)},
		{"after today's run", time.Date(2024, 5, 1, 22, 0, 0, 0, loc), time.Date(2024, 5, 2, 6, 30, 0, 0, loc)},
		{"month end", time.Date(2024, 5, 31, 23, 0, 0, 0, loc), time.Date(2024, 6, 1, 6, 30, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Next(tt.from); !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTriggerSkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	d := NewDaily("slow", 0, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan bool)
	go func() { done <- d.Trigger(context.Background()) }()
	<-started

	if d.Trigger(context.Background()) {
		t.Error("expected overlapping run to be skipped")
	}
	close(release)
	if !<-done {
		t.Error("expected first run to report it ran")
	}
}

func TestTriggerReportsFailedRun(t *testing.T) {
	calls := 0
	d := NewDaily("failing", 0, func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	if !d.Trigger(context.Background()) || !d.Trigger(context.Background()) {
		t.Error("expected failed runs to still count as runs")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d := NewDaily("idle", time.Hour, func(ctx context.Context) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
