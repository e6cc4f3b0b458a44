package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbeRunnerReportsFailingChecker(t *testing.T) {
	runner := NewProbeRunner(time.Second, 0,
		CheckerFunc{Name: "db", Fn: func(context.Context) error { return nil }},
		CheckerFunc{Name: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }},
	)
	ready, results := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready")
	}
	if len(results) != 2 || results[1].Name != "redis" || results[1].Error != "connection refused" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestProbeRunnerCachesVerdict(t *testing.T) {
	var calls atomic.Int32
	runner := NewProbeRunner(time.Second, time.Minute,
		CheckerFunc{Name: "db", Fn: func(context.Context) error { calls.Add(1); return nil }},
	)
	for i := 0; i < 3; i++ {
		if ready, _ := runner.Ready(context.Background()); !ready {
			t.Fatal("expected ready")
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single probe within cache ttl, got %d", calls.Load())
	}
}

func TestProbeRunnerNoCheckersIsReady(t *testing.T) {
	ready, results := NewProbeRunner(0, 0).Ready(context.Background())
	if !ready || len(results) != 0 {
		t.Fatalf("expected ready with no results, got %t %+v", ready, results)
	}
}
