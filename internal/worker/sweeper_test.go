package worker_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/worker"
)

func runSweeper(t *testing.T, s *worker.Sweeper, done func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(finished)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !done() {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-finished

	if !done() {
		t.Fatal("timed out waiting for sweeper jobs")
	}
}

func TestSweeper_RunsJobsOnInterval(t *testing.T) {
	var runs atomic.Int64
	s := worker.NewSweeper(worker.SweeperConfig{
		Logger: zerolog.Nop(),
		Jobs: []worker.Job{{
			Name:     "counter",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				runs.Add(1)
				return nil
			},
		}},
	})

	runSweeper(t, s, func() bool { return runs.Load() >= 3 })

	snapshot := s.MetricsSnapshot()
	if snapshot["total_runs"].(int64) < 3 {
		t.Errorf("expected at least 3 runs recorded, got %v", snapshot["total_runs"])
	}
	if snapshot["failed_runs"].(int64) != 0 {
		t.Errorf("expected no failures, got %v", snapshot["failed_runs"])
	}
	byJob := snapshot["runs_by_job"].(map[string]int64)
	if byJob["counter"] < 3 {
		t.Errorf("expected per-job counter, got %v", byJob)
	}
}

func TestSweeper_FailingJobKeepsRunning(t *testing.T) {
	var runs atomic.Int64
	s := worker.NewSweeper(worker.SweeperConfig{
		Logger: zerolog.Nop(),
		Jobs: []worker.Job{{
			Name:     "flaky",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				runs.Add(1)
				return fmt.Errorf("sweep failed")
			},
		}},
	})

	runSweeper(t, s, func() bool { return runs.Load() >= 2 })

	snapshot := s.MetricsSnapshot()
	if snapshot["failed_runs"].(int64) < 2 {
		t.Errorf("expected failures counted, got %v", snapshot["failed_runs"])
	}
	if snapshot["successful_runs"].(int64) != 0 {
		t.Errorf("expected no successes, got %v", snapshot["successful_runs"])
	}
}

func TestSweeper_PanickingJobContained(t *testing.T) {
	var runs atomic.Int64
	s := worker.NewSweeper(worker.SweeperConfig{
		Logger: zerolog.Nop(),
		Jobs: []worker.Job{{
			Name:     "broken",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				runs.Add(1)
				panic("job bug")
			},
		}},
	})

	runSweeper(t, s, func() bool { return runs.Load() >= 2 })

	snapshot := s.MetricsSnapshot()
	if snapshot["failed_runs"].(int64) < 2 {
		t.Errorf("expected panics counted as failures, got %v", snapshot["failed_runs"])
	}
}

func TestSweeper_MultipleJobs(t *testing.T) {
	var fast, slow atomic.Int64
	s := worker.NewSweeper(worker.SweeperConfig{
		Logger: zerolog.Nop(),
		Jobs: []worker.Job{
			{
				Name:     "fast",
				Interval: 5 * time.Millisecond,
				Run: func(context.Context) error {
					fast.Add(1)
					return nil
				},
			},
			{
				Name:     "slow",
				Interval: 20 * time.Millisecond,
				Run: func(context.Context) error {
					slow.Add(1)
					return nil
				},
			},
		},
	})

	runSweeper(t, s, func() bool { return fast.Load() >= 4 && slow.Load() >= 1 })

	byJob := s.MetricsSnapshot()["runs_by_job"].(map[string]int64)
	if byJob["fast"] == 0 || byJob["slow"] == 0 {
		t.Errorf("expected both jobs tracked, got %v", byJob)
	}
}
