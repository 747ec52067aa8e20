package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
monitor:
  history_capacity: 200
  ranges:
    heart_rate:
      normal_low: 55
      normal_high: 105
      critical_low: 35
      critical_high: 155
      unit: bpm
      low_type: bradycardia
      high_type: tachycardia
  trend:
    min_samples: 8
    decrease_medium_pct: 25
alerting:
  suppression_window: 10m
  suppress_low_during_critical: false
  min_group_size: 3
escalation:
  ceiling: 12h
  policies:
    critical:
      - role: nurse
        timeout: 5m
      - role: physician
        timeout: 0s
  pools:
    nurse: [nurse_7]
notify:
  queue_size: 64
  recipients:
    - id: nurse_7
      name: Night Nurse
      email: nurse7@example.org
      severities: [critical, high]
stream:
  capacity: 250
  retention: 30m
`
	cfg := loadFromString(t, yaml)

	if cfg.Monitor.HistoryCapacity != 200 {
		t.Errorf("history_capacity: got %d", cfg.Monitor.HistoryCapacity)
	}
	if cfg.Alerting.SuppressionWindow != 10*time.Minute {
		t.Errorf("suppression_window: got %v", cfg.Alerting.SuppressionWindow)
	}
	if cfg.Escalation.Ceiling != 12*time.Hour {
		t.Errorf("ceiling: got %v", cfg.Escalation.Ceiling)
	}
	if cfg.Stream.Retention != 30*time.Minute {
		t.Errorf("retention: got %v", cfg.Stream.Retention)
	}
	if len(cfg.Notify.Recipients) != 1 {
		t.Fatalf("recipients: got %d, want 1", len(cfg.Notify.Recipients))
	}
	rcpt := cfg.Notify.Recipients[0]
	if rcpt.ID != "nurse_7" || !rcpt.Wants(alerting.SeverityHigh) || rcpt.Wants(alerting.SeverityLow) {
		t.Errorf("recipient: got %+v", rcpt)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing rules file, got nil")
	}
}

func TestLoad_InvertedNormalBand(t *testing.T) {
	yaml := `
monitor:
  ranges:
    heart_rate:
      normal_low: 100
      normal_high: 60
      critical_low: 40
      critical_high: 150
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for an inverted normal band, got nil")
	}
}

func TestLoad_CriticalBandInsideNormal(t *testing.T) {
	yaml := `
monitor:
  ranges:
    heart_rate:
      normal_low: 60
      normal_high: 100
      critical_low: 70
      critical_high: 150
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for a critical band not containing the normal band, got nil")
	}
}

func TestLoad_UnknownSeverityPolicy(t *testing.T) {
	yaml := `
escalation:
  policies:
    catastrophic:
      - role: nurse
        timeout: 5m
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for an unknown severity, got nil")
	}
}

func TestLoad_EmptyPolicy(t *testing.T) {
	yaml := `
escalation:
  policies:
    critical: []
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for a policy without levels, got nil")
	}
}

func TestConfig_Ranges(t *testing.T) {
	yaml := `
monitor:
  ranges:
    heart_rate:
      normal_low: 55
      normal_high: 105
      critical_low: 35
      critical_high: 155
      unit: bpm
`
	cfg := loadFromString(t, yaml)
	ranges := cfg.Ranges()

	hr := ranges[vitals.SignalHeartRate]
	if hr.NormalLow != 55 || hr.CriticalHigh != 155 {
		t.Errorf("heart_rate override not applied: %+v", hr)
	}

	// Signals without an override keep the built-in range.
	spo2 := ranges[vitals.SignalOxygenSaturation]
	if spo2.NormalLow != 95 {
		t.Errorf("oxygen_saturation default lost: %+v", spo2)
	}
}

func TestConfig_AnalyzerConfig(t *testing.T) {
	yaml := `
monitor:
  trend:
    min_samples: 8
`
	cfg := loadFromString(t, yaml)
	ac := cfg.AnalyzerConfig()

	if ac.MinSamples != 8 {
		t.Errorf("min_samples override: got %d", ac.MinSamples)
	}
	def := vitals.DefaultAnalyzerConfig()
	if ac.WindowSize != def.WindowSize || ac.VariableCV != def.VariableCV {
		t.Errorf("unset trend fields lost their defaults: %+v", ac)
	}
}

func TestConfig_AlertPolicy(t *testing.T) {
	yaml := `
alerting:
  suppression_window: 10m
  suppress_low_during_critical: false
`
	cfg := loadFromString(t, yaml)
	policy := cfg.AlertPolicy()

	if policy.SuppressionWindow != 10*time.Minute {
		t.Errorf("suppression_window: got %v", policy.SuppressionWindow)
	}
	if policy.SuppressLowDuringCritical {
		t.Error("expected the explicit false to override the default true")
	}
	def := alerting.DefaultPolicy()
	if policy.MinGroupSize != def.MinGroupSize || policy.RetentionPeriod != def.RetentionPeriod {
		t.Errorf("unset policy fields lost their defaults: %+v", policy)
	}
}

func TestConfig_EscalationPolicies(t *testing.T) {
	yaml := `
escalation:
  policies:
    critical:
      - role: nurse
        timeout: 5m
      - role: physician
        timeout: 0s
`
	cfg := loadFromString(t, yaml)
	policies := cfg.EscalationPolicies()

	p, ok := policies[alerting.SeverityCritical]
	if !ok {
		t.Fatal("expected a critical policy")
	}
	if len(p.Levels) != 2 {
		t.Fatalf("levels: got %d", len(p.Levels))
	}
	if p.Levels[0].Level != 1 || p.Levels[0].Role != "nurse" || p.Levels[0].Timeout != 5*time.Minute {
		t.Errorf("level 1: got %+v", p.Levels[0])
	}
	if !p.Terminal(2) {
		t.Error("expected the zero-timeout level to be terminal")
	}
	if _, ok := policies[alerting.SeverityHigh]; ok {
		t.Error("expected only the configured severities present")
	}
}

func TestConfig_Fallbacks(t *testing.T) {
	cfg := loadFromString(t, "{}\n")

	if _, ok := cfg.EscalationPolicies()[alerting.SeverityCritical]; !ok {
		t.Error("expected the built-in severity ladder")
	}
	if pools := cfg.Pools(); len(pools["nurse"]) == 0 {
		t.Error("expected the built-in responder roster")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp rules file: %v", err)
	}
	return Load(path)
}
