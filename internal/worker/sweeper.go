package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
	"github.com/titorm/nexus-saude-sub001/internal/stream"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

// Job is a named periodic maintenance task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// SweeperMetrics tracks maintenance job statistics.
type SweeperMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	RunsByJob      map[string]int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// SweeperConfig holds configuration for creating a Sweeper.
type SweeperConfig struct {
	Jobs   []Job
	Logger zerolog.Logger
}

// Sweeper runs the periodic maintenance jobs: alert re-evaluation,
// escalation advancement, trend re-analysis, stream retention and alert
// retention. Each job runs on its own ticker; a failing or panicking
// iteration is logged and counted, never stopping the loop.
type Sweeper struct {
	jobs    []Job
	logger  zerolog.Logger
	metrics *SweeperMetrics
}

// NewSweeper creates a new maintenance sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		jobs:   cfg.Jobs,
		logger: cfg.Logger,
		metrics: &SweeperMetrics{
			RunsByJob: make(map[string]int64),
		},
	}
}

// Run starts one ticker loop per job and blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("starting maintenance sweeper")

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, job)
		}
	}
}

func (s *Sweeper) runJob(ctx context.Context, job Job) {
	startTime := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		return job.Run(ctx)
	}()

	duration := time.Since(startTime)
	s.updateMetrics(job.Name, duration, err == nil)

	if err != nil {
		s.logger.Error().Err(err).
			Str("job", job.Name).
			Dur("duration", duration).
			Msg("maintenance job failed")
		return
	}

	s.logger.Debug().
		Str("job", job.Name).
		Dur("duration", duration).
		Msg("maintenance job completed")
}

func (s *Sweeper) updateMetrics(name string, duration time.Duration, success bool) {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()

	s.metrics.TotalRuns++
	if success {
		s.metrics.SuccessfulRuns++
	} else {
		s.metrics.FailedRuns++
	}
	s.metrics.RunsByJob[name]++
	s.metrics.LastRunAt = time.Now()
	s.metrics.LastRunDuration = duration
	s.metrics.TotalDuration += duration
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (s *Sweeper) MetricsSnapshot() map[string]interface{} {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	byJob := make(map[string]int64, len(s.metrics.RunsByJob))
	for k, v := range s.metrics.RunsByJob {
		byJob[k] = v
	}

	return map[string]interface{}{
		"total_runs":        s.metrics.TotalRuns,
		"successful_runs":   s.metrics.SuccessfulRuns,
		"failed_runs":       s.metrics.FailedRuns,
		"runs_by_job":       byJob,
		"last_run_at":       s.metrics.LastRunAt,
		"last_run_duration": s.metrics.LastRunDuration.String(),
		"total_duration":    s.metrics.TotalDuration.String(),
	}
}

// AlertReevaluationJob re-checks active alerts for auto-resolution and
// overdue escalation.
func AlertReevaluationJob(svc *alerting.Service, interval time.Duration) Job {
	return Job{
		Name:     "alert_reevaluation",
		Interval: interval,
		Run:      svc.Reevaluate,
	}
}

// AlertRetentionJob purges resolved alerts past the retention period.
func AlertRetentionJob(svc *alerting.Service, interval time.Duration) Job {
	return Job{
		Name:     "alert_retention",
		Interval: interval,
		Run:      svc.PurgeExpired,
	}
}

// EscalationSweepJob advances overdue escalation levels and enforces the
// escalation ceiling.
func EscalationSweepJob(svc *escalation.Service, interval time.Duration) Job {
	return Job{
		Name:     "escalation_sweep",
		Interval: interval,
		Run:      svc.Sweep,
	}
}

// TrendReanalysisJob re-runs trend analysis over every patient's recent
// history, so deterioration is caught even when readings stop arriving.
func TrendReanalysisJob(svc *vitals.Service, interval time.Duration) Job {
	return Job{
		Name:     "trend_reanalysis",
		Interval: interval,
		Run:      svc.ReanalyzeAll,
	}
}

// StreamRetentionJob evicts stream points older than the retention window.
func StreamRetentionJob(hub *stream.Hub, interval time.Duration) Job {
	return Job{
		Name:     "stream_retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			hub.EvictExpired(ctx)
			return nil
		},
	}
}
