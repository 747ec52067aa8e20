package vitals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
)

// Service errors.
var (
	ErrMissingPatientID = errors.New("reading requires a patient id")
	ErrNoSignals        = errors.New("reading carries no signals")
)

const proposalSource = "vitals-monitor"

// AlertSink consumes the proposals emitted by the monitor. In production
// this is the alert engine.
type AlertSink interface {
	CreateFromProposal(ctx context.Context, p alerting.Proposal) (*alerting.Alert, error)
}

// ReadingPublisher fans ingested readings out to live subscribers.
type ReadingPublisher interface {
	ReadingIngested(ctx context.Context, r *Reading, trends map[Signal]TrendSummary)
}

// IngestResult reports what one reading triggered.
type IngestResult struct {
	// Alerts holds the alerts the engine created from this reading's
	// proposals, including suppressed ones.
	Alerts []*alerting.Alert `json:"alerts"`
	// Skipped lists signals whose values were malformed and ignored.
	Skipped []Signal `json:"skipped,omitempty"`
	// Trends summarises the trend rule per signal with enough history.
	Trends map[Signal]TrendSummary `json:"trends"`
}

// ServiceConfig holds configuration for creating a monitor Service.
type ServiceConfig struct {
	History  HistoryRepository
	Analyzer *Analyzer
	Logger   zerolog.Logger

	// Sink receives proposals. Nil means findings are only reported in the
	// IngestResult.
	Sink AlertSink

	// Publisher receives ingested readings for live distribution. Optional.
	Publisher ReadingPublisher

	// Now is the clock source, defaulting to time.Now.
	Now func() time.Time
}

// Service is the vital signs monitor.
type Service struct {
	history   HistoryRepository
	analyzer  *Analyzer
	logger    zerolog.Logger
	sink      AlertSink
	publisher ReadingPublisher
	now       func() time.Time
}

// NewService creates a new vital signs monitor.
func NewService(cfg ServiceConfig) *Service {
	analyzer := cfg.Analyzer
	if analyzer == nil {
		analyzer = NewAnalyzer(nil, DefaultAnalyzerConfig())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		history:   cfg.History,
		analyzer:  analyzer,
		logger:    cfg.Logger,
		sink:      cfg.Sink,
		publisher: cfg.Publisher,
		now:       now,
	}
}

// Ingest stores a reading and evaluates every present signal against the
// static threshold rule and the trend rule, emitting proposals for breaches.
// A malformed value for one signal is skipped; the rest of the reading still
// processes.
func (s *Service) Ingest(ctx context.Context, r *Reading) (*IngestResult, error) {
	if r.PatientID == "" {
		return nil, ErrMissingPatientID
	}
	if len(r.Signals) == 0 {
		return nil, ErrNoSignals
	}
	if r.Time.IsZero() {
		r.Time = s.now()
	}

	result := &IngestResult{Trends: make(map[Signal]TrendSummary)}

	clean := make(map[Signal]float64, len(r.Signals))
	for signal, value := range r.Signals {
		if malformed(value) {
			s.logger.Warn().
				Str("patient_id", r.PatientID).
				Str("signal", string(signal)).
				Float64("value", value).
				Msg("skipping malformed signal value")
			result.Skipped = append(result.Skipped, signal)
			continue
		}
		clean[signal] = value
	}
	r.Signals = clean

	if err := s.history.Append(ctx, r); err != nil {
		return nil, err
	}

	for signal, value := range clean {
		if res, ok := s.analyzer.EvaluateThreshold(signal, value); ok && res.Band != BandNormal {
			s.submit(ctx, thresholdProposal(r.PatientID, res), result)
		}

		summary, ok := s.trendFor(ctx, r.PatientID, signal)
		if !ok {
			continue
		}
		result.Trends[signal] = summary
		if p, fire := s.trendProposal(r.PatientID, summary); fire {
			s.submit(ctx, p, result)
		}
	}

	if s.publisher != nil {
		s.publisher.ReadingIngested(ctx, r, result.Trends)
	}
	return result, nil
}

// Analyzer returns the service's analyzer, for runtime rule updates.
func (s *Service) Analyzer() *Analyzer {
	return s.analyzer
}

// ReanalyzeAll is the periodic sweep recomputing trends for every patient
// with history, emitting proposals for deteriorating or unstable signals
// that the per-reading path may have missed between readings.
func (s *Service) ReanalyzeAll(ctx context.Context) error {
	patients, err := s.history.Patients(ctx)
	if err != nil {
		return err
	}

	for _, patientID := range patients {
		readings, err := s.history.Recent(ctx, patientID, 0)
		if err != nil {
			if errors.Is(err, ErrNoHistory) {
				continue
			}
			return err
		}

		for signal := range signalsPresent(readings) {
			summary := s.analyzer.EvaluateTrend(signal, series(readings, signal))
			if p, fire := s.trendProposal(patientID, summary); fire {
				s.submit(ctx, p, nil)
			}
		}
	}
	return nil
}

// History exposes the recent readings for a patient, oldest first.
func (s *Service) History(ctx context.Context, patientID string, n int) ([]Reading, error) {
	return s.history.Recent(ctx, patientID, n)
}

func (s *Service) trendFor(ctx context.Context, patientID string, signal Signal) (TrendSummary, bool) {
	readings, err := s.history.Recent(ctx, patientID, 0)
	if err != nil {
		return TrendSummary{}, false
	}
	values := series(readings, signal)
	if len(values) == 0 {
		return TrendSummary{}, false
	}
	return s.analyzer.EvaluateTrend(signal, values), true
}

// trendProposal maps a trend summary to an alert proposal. Sustained
// decreases fire low or medium by magnitude; variable stability fires low.
func (s *Service) trendProposal(patientID string, t TrendSummary) (alerting.Proposal, bool) {
	cfg := s.analyzer.Config()

	if t.Direction == TrendDecreasing && math.Abs(t.ChangePct) >= cfg.DecreaseLowPct {
		severity := alerting.SeverityLow
		if math.Abs(t.ChangePct) >= cfg.DecreaseMediumPct {
			severity = alerting.SeverityMedium
		}
		return alerting.Proposal{
			PatientID: patientID,
			Type:      string(t.Signal) + "_declining",
			Severity:  severity,
			Category:  alerting.CategoryVitalSigns,
			Message: fmt.Sprintf("%s declining %.1f%% over recent readings",
				t.Signal, math.Abs(t.ChangePct)),
			Source: proposalSource,
			Signal: string(t.Signal),
		}, true
	}

	if t.Stability == StabilityVariable {
		return alerting.Proposal{
			PatientID: patientID,
			Type:      string(t.Signal) + "_unstable",
			Severity:  alerting.SeverityLow,
			Category:  alerting.CategoryVitalSigns,
			Message:   fmt.Sprintf("%s showing high variability over recent readings", t.Signal),
			Source:    proposalSource,
			Signal:    string(t.Signal),
		}, true
	}
	return alerting.Proposal{}, false
}

func (s *Service) submit(ctx context.Context, p alerting.Proposal, result *IngestResult) {
	if s.sink == nil {
		return
	}
	a, err := s.sink.CreateFromProposal(ctx, p)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("patient_id", p.PatientID).
			Str("type", p.Type).
			Msg("proposal rejected by alert engine")
		return
	}
	if result != nil {
		result.Alerts = append(result.Alerts, a)
	}
}

func thresholdProposal(patientID string, res ThresholdResult) alerting.Proposal {
	severity := alerting.SeverityMedium
	if res.Band == BandCritical {
		severity = alerting.SeverityCritical
	}

	side := "above"
	if res.Low {
		side = "below"
	}

	return alerting.Proposal{
		PatientID: patientID,
		Type:      res.Type,
		Severity:  severity,
		Category:  alerting.CategoryVitalSigns,
		Message: fmt.Sprintf("%s %g %s normal range (%s)",
			res.Signal, res.Value, side, res.Reference),
		Source:         proposalSource,
		Signal:         string(res.Signal),
		Value:          res.Value,
		ReferenceRange: res.Reference,
	}
}

// malformed reports whether a signal value cannot be a physiologic
// measurement.
func malformed(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v <= 0
}

func series(readings []Reading, signal Signal) []float64 {
	var out []float64
	for _, r := range readings {
		if v, ok := r.Signals[signal]; ok {
			out = append(out, v)
		}
	}
	return out
}

func signalsPresent(readings []Reading) map[Signal]struct{} {
	out := make(map[Signal]struct{})
	for _, r := range readings {
		for signal := range r.Signals {
			out[signal] = struct{}{}
		}
	}
	return out
}
