package vitals

import (
	"math"
	"sync"
)

// Band is the outcome of evaluating a value against a signal's Range.
type Band int

const (
	BandNormal Band = iota
	// BandWarning is outside the normal band but inside the critical band.
	BandWarning
	// BandCritical is strictly outside the critical band.
	BandCritical
)

// ThresholdResult describes a static threshold evaluation.
type ThresholdResult struct {
	Signal Signal
	Value  float64
	Band   Band
	// Low is true when the breach is on the low side of the range.
	Low bool
	// Type is the clinical condition name for the breached side.
	Type string
	// Reference is the normal band rendered for messages.
	Reference string
}

// AnalyzerConfig holds the tunables of the trend rule.
type AnalyzerConfig struct {
	// MinSamples is the minimum history length before trends are computed.
	MinSamples int
	// WindowSize bounds the recent window used for the stability measure.
	WindowSize int
	// DirectionCutoffPct is the minimum absolute change between moving
	// averages to call a direction, in percent.
	DirectionCutoffPct float64
	// DecreaseLowPct and DecreaseMediumPct are the sustained-decrease
	// magnitudes (percent) at which low and medium trend alerts fire.
	DecreaseLowPct    float64
	DecreaseMediumPct float64
	// VariableCV is the coefficient-of-variation above which stability is
	// classified as variable.
	VariableCV float64
}

// DefaultAnalyzerConfig returns the default trend-rule tunables.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MinSamples:         6,
		WindowSize:         10,
		DirectionCutoffPct: 2,
		DecreaseLowPct:     10,
		DecreaseMediumPct:  20,
		VariableCV:         0.25,
	}
}

// Analyzer evaluates signal values against threshold bands and computes
// trend summaries from recent history. Rules may be swapped at runtime via
// SetRules; reads take the shared lock.
type Analyzer struct {
	mu     sync.RWMutex
	ranges map[Signal]Range
	config AnalyzerConfig
}

// NewAnalyzer creates an analyzer. Nil ranges fall back to DefaultRanges
// and a zero config falls back to DefaultAnalyzerConfig.
func NewAnalyzer(ranges map[Signal]Range, cfg AnalyzerConfig) *Analyzer {
	if ranges == nil {
		ranges = DefaultRanges()
	}
	if cfg == (AnalyzerConfig{}) {
		cfg = DefaultAnalyzerConfig()
	}
	return &Analyzer{ranges: ranges, config: cfg}
}

// SetRules replaces the reference ranges and trend tunables, e.g. on rules
// file reload. Nil ranges and a zero config each keep the current ones.
func (a *Analyzer) SetRules(ranges map[Signal]Range, cfg AnalyzerConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ranges != nil {
		a.ranges = ranges
	}
	if cfg != (AnalyzerConfig{}) {
		a.config = cfg
	}
}

// Config returns the current trend tunables.
func (a *Analyzer) Config() AnalyzerConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// EvaluateThreshold applies the static threshold rule to one signal value.
// The second return value is false for signals with no configured range.
func (a *Analyzer) EvaluateThreshold(signal Signal, value float64) (ThresholdResult, bool) {
	a.mu.RLock()
	r, ok := a.ranges[signal]
	a.mu.RUnlock()
	if !ok {
		return ThresholdResult{}, false
	}

	res := ThresholdResult{
		Signal:    signal,
		Value:     value,
		Band:      BandNormal,
		Reference: r.Reference(),
	}

	switch {
	case value < r.CriticalLow:
		res.Band, res.Low, res.Type = BandCritical, true, r.LowType
	case value > r.CriticalHigh:
		res.Band, res.Low, res.Type = BandCritical, false, r.HighType
	case value < r.NormalLow:
		res.Band, res.Low, res.Type = BandWarning, true, r.LowType
	case value > r.NormalHigh:
		res.Band, res.Low, res.Type = BandWarning, false, r.HighType
	}
	return res, true
}

// EvaluateTrend applies the trend rule to a series of values, oldest first.
// Direction compares the moving average of the last three points against the
// prior three; stability is the coefficient of variation over the recent
// window.
func (a *Analyzer) EvaluateTrend(signal Signal, values []float64) TrendSummary {
	cfg := a.Config()

	summary := TrendSummary{
		Signal:    signal,
		Direction: TrendUnknown,
		Stability: StabilityUnknown,
		Samples:   len(values),
	}
	if len(values) < cfg.MinSamples {
		return summary
	}

	recent := mean(values[len(values)-3:])
	prior := mean(values[len(values)-6 : len(values)-3])
	if prior != 0 {
		summary.ChangePct = (recent - prior) / prior * 100
	}

	switch {
	case summary.ChangePct <= -cfg.DirectionCutoffPct:
		summary.Direction = TrendDecreasing
	case summary.ChangePct >= cfg.DirectionCutoffPct:
		summary.Direction = TrendIncreasing
	default:
		summary.Direction = TrendStable
	}

	window := values
	if len(window) > cfg.WindowSize {
		window = window[len(window)-cfg.WindowSize:]
	}
	m := mean(window)
	if m != 0 {
		cv := stddev(window, m) / math.Abs(m)
		if cv > cfg.VariableCV {
			summary.Stability = StabilityVariable
		} else {
			summary.Stability = StabilityStable
		}
	}
	return summary
}

// Range returns the configured range for a signal.
func (a *Analyzer) Range(signal Signal) (Range, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.ranges[signal]
	return r, ok
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
