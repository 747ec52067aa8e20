// Package vitals evaluates vital-sign readings against static threshold and
// trend rules, emitting alert proposals. The package holds no alert state;
// findings are consumed immediately by the alert engine.
package vitals

import (
	"fmt"
	"time"
)

// Signal identifies one measured vital sign.
type Signal string

const (
	SignalHeartRate        Signal = "heart_rate"
	SignalBPSystolic       Signal = "blood_pressure_systolic"
	SignalBPDiastolic      Signal = "blood_pressure_diastolic"
	SignalTemperature      Signal = "temperature"
	SignalRespiratoryRate  Signal = "respiratory_rate"
	SignalOxygenSaturation Signal = "oxygen_saturation"
	SignalBloodGlucose     Signal = "blood_glucose"
)

// Reading is one immutable vital-sign sample for a patient.
type Reading struct {
	PatientID string             `json:"patientId"`
	Time      time.Time          `json:"time"`
	Signals   map[Signal]float64 `json:"signals"`
}

// Range defines the asymmetric normal and critical bands for a signal.
// A value outside [CriticalLow, CriticalHigh] is a critical breach; outside
// [NormalLow, NormalHigh] but inside the critical band is a warning breach.
type Range struct {
	NormalLow    float64
	NormalHigh   float64
	CriticalLow  float64
	CriticalHigh float64
	Unit         string

	// LowType and HighType name the clinical condition for breaches on each
	// side, e.g. bradycardia / tachycardia.
	LowType  string
	HighType string
}

// Reference renders the normal band for alert messages, e.g. "60-100 bpm".
func (r Range) Reference() string {
	return fmt.Sprintf("%g-%g %s", r.NormalLow, r.NormalHigh, r.Unit)
}

// DefaultRanges returns the clinical threshold bands per signal.
func DefaultRanges() map[Signal]Range {
	return map[Signal]Range{
		SignalHeartRate: {
			NormalLow: 60, NormalHigh: 100, CriticalLow: 40, CriticalHigh: 150,
			Unit: "bpm", LowType: "bradycardia", HighType: "tachycardia",
		},
		SignalBPSystolic: {
			NormalLow: 90, NormalHigh: 120, CriticalLow: 70, CriticalHigh: 180,
			Unit: "mmHg", LowType: "hypotension", HighType: "hypertension",
		},
		SignalBPDiastolic: {
			NormalLow: 60, NormalHigh: 80, CriticalLow: 40, CriticalHigh: 120,
			Unit: "mmHg", LowType: "diastolic_hypotension", HighType: "diastolic_hypertension",
		},
		SignalTemperature: {
			NormalLow: 36.1, NormalHigh: 37.2, CriticalLow: 35.0, CriticalHigh: 39.5,
			Unit: "°C", LowType: "hypothermia", HighType: "hyperthermia",
		},
		SignalRespiratoryRate: {
			NormalLow: 12, NormalHigh: 20, CriticalLow: 8, CriticalHigh: 30,
			Unit: "breaths/min", LowType: "bradypnea", HighType: "tachypnea",
		},
		SignalOxygenSaturation: {
			// SpO2 has no meaningful upper breach; 100% is the ceiling.
			NormalLow: 95, NormalHigh: 100, CriticalLow: 90, CriticalHigh: 100,
			Unit: "%", LowType: "hypoxemia", HighType: "spo2_above_range",
		},
		SignalBloodGlucose: {
			NormalLow: 70, NormalHigh: 140, CriticalLow: 54, CriticalHigh: 250,
			Unit: "mg/dL", LowType: "hypoglycemia", HighType: "hyperglycemia",
		},
	}
}

// TrendDirection is the direction of recent movement in a signal.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendUnknown    TrendDirection = "unknown"
)

// Stability classifies the variability of the recent window.
type Stability string

const (
	StabilityStable   Stability = "stable"
	StabilityVariable Stability = "variable"
	StabilityUnknown  Stability = "unknown"
)

// TrendSummary is the result of the trend rule for one signal.
type TrendSummary struct {
	Signal    Signal         `json:"signal"`
	Direction TrendDirection `json:"direction"`
	ChangePct float64        `json:"changePct"`
	Stability Stability      `json:"stability"`
	Samples   int            `json:"samples"`
}
