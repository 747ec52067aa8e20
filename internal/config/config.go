// Package config loads the clinical rules file: vital-sign ranges, trend
// tunables, alert policy, escalation policies and responder pools, and the
// notification recipient directory. Environment variables configure the
// process (ports, endpoints); the rules file configures the medicine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
	"github.com/titorm/nexus-saude-sub001/internal/notify"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

// Config is the top-level rules configuration. Fields map 1:1 to
// rules.example.yaml. Absent sections fall back to the built-in clinical
// defaults.
type Config struct {
	Monitor    MonitorConfig    `yaml:"monitor"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Escalation EscalationConfig `yaml:"escalation"`
	Notify     NotifyConfig     `yaml:"notify"`
	Stream     StreamConfig     `yaml:"stream"`
}

// MonitorConfig holds vital-sign monitor settings.
type MonitorConfig struct {
	// HistoryCapacity bounds the per-patient reading history.
	HistoryCapacity int `yaml:"history_capacity"`

	// Ranges overrides the built-in reference ranges per signal.
	Ranges map[string]RangeConfig `yaml:"ranges"`

	Trend TrendConfig `yaml:"trend"`
}

// RangeConfig is one signal's reference range.
type RangeConfig struct {
	NormalLow    float64 `yaml:"normal_low"`
	NormalHigh   float64 `yaml:"normal_high"`
	CriticalLow  float64 `yaml:"critical_low"`
	CriticalHigh float64 `yaml:"critical_high"`
	Unit         string  `yaml:"unit"`
	LowType      string  `yaml:"low_type"`
	HighType     string  `yaml:"high_type"`
}

// TrendConfig holds the trend rule tunables.
type TrendConfig struct {
	MinSamples         int     `yaml:"min_samples"`
	WindowSize         int     `yaml:"window_size"`
	DirectionCutoffPct float64 `yaml:"direction_cutoff_pct"`
	DecreaseLowPct     float64 `yaml:"decrease_low_pct"`
	DecreaseMediumPct  float64 `yaml:"decrease_medium_pct"`
	VariableCV         float64 `yaml:"variable_cv"`
}

// AlertingConfig holds the alert engine policy.
type AlertingConfig struct {
	SuppressionWindow         time.Duration `yaml:"suppression_window"`
	SuppressLowDuringCritical *bool         `yaml:"suppress_low_during_critical"`
	MinGroupSize              int           `yaml:"min_group_size"`
	RetentionPeriod           time.Duration `yaml:"retention_period"`
	AutoEscalateAfter         time.Duration `yaml:"auto_escalate_after"`
	AutoResolveLowAfter       time.Duration `yaml:"auto_resolve_low_after"`
}

// EscalationConfig holds escalation policies and responder pools.
type EscalationConfig struct {
	Ceiling  time.Duration            `yaml:"ceiling"`
	Policies map[string][]LevelConfig `yaml:"policies"`
	Pools    map[string][]string      `yaml:"pools"`
}

// LevelConfig is one level of an escalation policy. A zero timeout marks
// the terminal level.
type LevelConfig struct {
	Role    string        `yaml:"role"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig holds the dispatcher settings and recipient directory.
type NotifyConfig struct {
	QueueSize   int                `yaml:"queue_size"`
	HistorySize int                `yaml:"history_size"`
	Recipients  []notify.Recipient `yaml:"recipients"`
}

// StreamConfig holds the distribution hub settings.
type StreamConfig struct {
	Capacity  int           `yaml:"capacity"`
	Retention time.Duration `yaml:"retention"`
}

// Load reads and parses the rules file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for name, r := range c.Monitor.Ranges {
		if r.NormalLow >= r.NormalHigh {
			return fmt.Errorf("range %s: normal_low must be below normal_high", name)
		}
		if r.CriticalLow > r.NormalLow || r.CriticalHigh < r.NormalHigh {
			return fmt.Errorf("range %s: critical band must contain the normal band", name)
		}
	}
	for severity, levels := range c.Escalation.Policies {
		if _, err := alerting.ParseSeverity(severity); err != nil {
			return fmt.Errorf("escalation policy: %w", err)
		}
		if len(levels) == 0 {
			return fmt.Errorf("escalation policy %s: needs at least one level", severity)
		}
	}
	return nil
}

// Ranges converts the configured ranges to domain ranges, starting from the
// built-in defaults and overriding per signal.
func (c *Config) Ranges() map[vitals.Signal]vitals.Range {
	ranges := vitals.DefaultRanges()
	for name, r := range c.Monitor.Ranges {
		ranges[vitals.Signal(name)] = vitals.Range{
			NormalLow:    r.NormalLow,
			NormalHigh:   r.NormalHigh,
			CriticalLow:  r.CriticalLow,
			CriticalHigh: r.CriticalHigh,
			Unit:         r.Unit,
			LowType:      r.LowType,
			HighType:     r.HighType,
		}
	}
	return ranges
}

// AnalyzerConfig converts the trend tunables, falling back per field.
func (c *Config) AnalyzerConfig() vitals.AnalyzerConfig {
	cfg := vitals.DefaultAnalyzerConfig()
	t := c.Monitor.Trend
	if t.MinSamples > 0 {
		cfg.MinSamples = t.MinSamples
	}
	if t.WindowSize > 0 {
		cfg.WindowSize = t.WindowSize
	}
	if t.DirectionCutoffPct > 0 {
		cfg.DirectionCutoffPct = t.DirectionCutoffPct
	}
	if t.DecreaseLowPct > 0 {
		cfg.DecreaseLowPct = t.DecreaseLowPct
	}
	if t.DecreaseMediumPct > 0 {
		cfg.DecreaseMediumPct = t.DecreaseMediumPct
	}
	if t.VariableCV > 0 {
		cfg.VariableCV = t.VariableCV
	}
	return cfg
}

// AlertPolicy converts the alerting section, falling back per field.
func (c *Config) AlertPolicy() alerting.Policy {
	policy := alerting.DefaultPolicy()
	a := c.Alerting
	if a.SuppressionWindow > 0 {
		policy.SuppressionWindow = a.SuppressionWindow
	}
	if a.SuppressLowDuringCritical != nil {
		policy.SuppressLowDuringCritical = *a.SuppressLowDuringCritical
	}
	if a.MinGroupSize > 0 {
		policy.MinGroupSize = a.MinGroupSize
	}
	if a.RetentionPeriod > 0 {
		policy.RetentionPeriod = a.RetentionPeriod
	}
	if a.AutoEscalateAfter > 0 {
		policy.AutoEscalateAfter = a.AutoEscalateAfter
	}
	if a.AutoResolveLowAfter > 0 {
		policy.AutoResolveLowAfter = a.AutoResolveLowAfter
	}
	return policy
}

// EscalationPolicies converts the configured policies, falling back to the
// built-in severity ladder when the section is empty.
func (c *Config) EscalationPolicies() map[alerting.Severity]escalation.Policy {
	if len(c.Escalation.Policies) == 0 {
		return escalation.DefaultPolicies()
	}

	out := make(map[alerting.Severity]escalation.Policy, len(c.Escalation.Policies))
	for severity, levels := range c.Escalation.Policies {
		policy := escalation.Policy{Name: severity + "_default"}
		for i, l := range levels {
			policy.Levels = append(policy.Levels, escalation.Level{
				Level:   i + 1,
				Role:    l.Role,
				Timeout: l.Timeout,
			})
		}
		out[alerting.Severity(severity)] = policy
	}
	return out
}

// Pools returns the responder pools, falling back to the built-in roster.
func (c *Config) Pools() map[string][]string {
	if len(c.Escalation.Pools) == 0 {
		return escalation.DefaultPools()
	}
	return c.Escalation.Pools
}
