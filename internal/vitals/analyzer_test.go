package vitals_test

import (
	"testing"

	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

func TestAnalyzer_EvaluateThreshold(t *testing.T) {
	analyzer := vitals.NewAnalyzer(nil, vitals.DefaultAnalyzerConfig())

	tests := []struct {
		name     string
		signal   vitals.Signal
		value    float64
		band     vitals.Band
		low      bool
		condType string
	}{
		{"normal heart rate", vitals.SignalHeartRate, 72, vitals.BandNormal, false, ""},
		{"warning low heart rate", vitals.SignalHeartRate, 50, vitals.BandWarning, true, "bradycardia"},
		{"critical low heart rate", vitals.SignalHeartRate, 35, vitals.BandCritical, true, "bradycardia"},
		{"warning high heart rate", vitals.SignalHeartRate, 120, vitals.BandWarning, false, "tachycardia"},
		{"critical high heart rate", vitals.SignalHeartRate, 160, vitals.BandCritical, false, "tachycardia"},
		{"boundary value is normal", vitals.SignalHeartRate, 100, vitals.BandNormal, false, ""},
		{"critical low spo2", vitals.SignalOxygenSaturation, 85, vitals.BandCritical, true, "hypoxemia"},
		{"warning high temperature", vitals.SignalTemperature, 38.0, vitals.BandWarning, false, "hyperthermia"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := analyzer.EvaluateThreshold(tt.signal, tt.value)
			if !ok {
				t.Fatalf("expected a configured range for %s", tt.signal)
			}
			if res.Band != tt.band {
				t.Errorf("expected band %v, got %v", tt.band, res.Band)
			}
			if res.Low != tt.low {
				t.Errorf("expected low=%v, got %v", tt.low, res.Low)
			}
			if res.Type != tt.condType {
				t.Errorf("expected type %q, got %q", tt.condType, res.Type)
			}
		})
	}
}

func TestAnalyzer_EvaluateThreshold_UnknownSignal(t *testing.T) {
	analyzer := vitals.NewAnalyzer(nil, vitals.DefaultAnalyzerConfig())

	_, ok := analyzer.EvaluateThreshold(vitals.Signal("unknown_signal"), 42)
	if ok {
		t.Error("expected no result for a signal without a configured range")
	}
}

func TestAnalyzer_EvaluateTrend_TooFewSamples(t *testing.T) {
	analyzer := vitals.NewAnalyzer(nil, vitals.DefaultAnalyzerConfig())

	summary := analyzer.EvaluateTrend(vitals.SignalHeartRate, []float64{70, 71, 72})
	if summary.Direction != vitals.TrendUnknown {
		t.Errorf("expected unknown direction, got %s", summary.Direction)
	}
	if summary.Stability != vitals.StabilityUnknown {
		t.Errorf("expected unknown stability, got %s", summary.Stability)
	}
	if summary.Samples != 3 {
		t.Errorf("expected 3 samples, got %d", summary.Samples)
	}
}

func TestAnalyzer_EvaluateTrend_Decreasing(t *testing.T) {
	analyzer := vitals.NewAnalyzer(nil, vitals.DefaultAnalyzerConfig())

	// Prior window averages 98, recent averages 78: ~20% decline.
	values := []float64{98, 98, 98, 78, 78, 78}
	summary := analyzer.EvaluateTrend(vitals.SignalOxygenSaturation, values)

	if summary.Direction != vitals.TrendDecreasing {
		t.Fatalf("expected decreasing, got %s", summary.Direction)
	}
	if summary.ChangePct > -20 || summary.ChangePct < -21 {
		t.Errorf("expected roughly -20%% change, got %.2f", summary.ChangePct)
	}
}

func TestAnalyzer_EvaluateTrend_Stable(t *testing.T) {
	analyzer := vitals.NewAnalyzer(nil, vitals.DefaultAnalyzerConfig())

	values := []float64{72, 71, 73, 72, 72, 71}
	summary := analyzer.EvaluateTrend(vitals.SignalHeartRate, values)

	if summary.Direction != vitals.TrendStable {
		t.Errorf("expected stable direction, got %s", summary.Direction)
	}
	if summary.Stability != vitals.StabilityStable {
		t.Errorf("expected stable stability, got %s", summary.Stability)
	}
}

func TestAnalyzer_EvaluateTrend_Variable(t *testing.T) {
	analyzer := vitals.NewAnalyzer(nil, vitals.DefaultAnalyzerConfig())

	values := []float64{60, 140, 55, 150, 58, 145}
	summary := analyzer.EvaluateTrend(vitals.SignalHeartRate, values)

	if summary.Stability != vitals.StabilityVariable {
		t.Errorf("expected variable stability, got %s", summary.Stability)
	}
}

func TestAnalyzer_SetRules(t *testing.T) {
	analyzer := vitals.NewAnalyzer(nil, vitals.DefaultAnalyzerConfig())

	ranges := map[vitals.Signal]vitals.Range{
		vitals.SignalHeartRate: {
			NormalLow: 50, NormalHigh: 110, CriticalLow: 30, CriticalHigh: 170,
			Unit: "bpm", LowType: "bradycardia", HighType: "tachycardia",
		},
	}
	analyzer.SetRules(ranges, vitals.AnalyzerConfig{})

	res, ok := analyzer.EvaluateThreshold(vitals.SignalHeartRate, 55)
	if !ok {
		t.Fatal("expected a configured range")
	}
	if res.Band != vitals.BandNormal {
		t.Errorf("expected 55 bpm to be normal under widened range, got band %v", res.Band)
	}

	// The empty tunables keep the previous config.
	if analyzer.Config().MinSamples != vitals.DefaultAnalyzerConfig().MinSamples {
		t.Error("expected zero-value tunables to keep the current config")
	}
}

func TestAnalyzer_PartialConfigIsKeptVerbatim(t *testing.T) {
	cfg := vitals.DefaultAnalyzerConfig()
	cfg.MinSamples = 0

	analyzer := vitals.NewAnalyzer(nil, cfg)
	if got := analyzer.Config(); got != cfg {
		t.Errorf("expected the passed config to be kept verbatim, got %+v", got)
	}

	cfg.VariableCV = 0.5
	analyzer.SetRules(nil, cfg)
	if got := analyzer.Config(); got != cfg {
		t.Errorf("expected SetRules to apply a partially zero config, got %+v", got)
	}
}
