package core

import (
	"strings"
	"time"
)

// EscalationConfig holds the thresholds EscalationManager checks against.
type EscalationConfig struct {
	MaxRetries        int
	MinConfidence     float64
	MaxCostUSD        float64
	MaxElapsed        time.Duration
	AlwaysEscalateOn  []string // destructive keywords; case-insensitive substring match against plan/step text
}

// DefaultEscalationConfig returns the spec default thresholds: 3 retries,
// 0.7 confidence floor, $5, 30 minutes.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		MaxRetries:    3,
		MinConfidence: 0.7,
		MaxCostUSD:    5.0,
		MaxElapsed:    30 * time.Minute,
	}
}

// fatalErrorMarkers trigger an immediate escalation before a step even
// reaches Verifier, regardless of retry count or confidence.
var fatalErrorMarkers = []string{"fatal", "critical", "unrecoverable", "permission denied"}

// EscalationManager decides whether a task-runner attempt should escalate
// to a human or a larger tier, combining the Verifier's own verdict with
// cost/time/retry/keyword thresholds it is never allowed to override.
type EscalationManager struct {
	Config EscalationConfig
}

// NewEscalationManager returns a manager with DefaultEscalationConfig.
func NewEscalationManager() *EscalationManager {
	return &EscalationManager{Config: DefaultEscalationConfig()}
}

// PreVerificationCheck returns true if result's errors contain a fatal
// marker, escalating before Verifier is ever consulted.
func (m *EscalationManager) PreVerificationCheck(result StepResult) bool {
	for _, e := range result.Errors {
		lower := strings.ToLower(e)
		for _, marker := range fatalErrorMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// ShouldEscalate combines the verifier's decision with retry count,
// accumulated cost, elapsed time, and an always-escalate keyword scan over
// the plan text.
func (m *EscalationManager) ShouldEscalate(decision VerificationDecision, retryCount int, costSoFar float64, elapsed time.Duration, planText string) (bool, string) {
	cfg := m.Config
	switch {
	case decision.Verdict == VerdictEscalate:
		return true, "verifier requested escalation: " + decision.Reasoning
	case retryCount >= orDefaultInt(cfg.MaxRetries, 3):
		return true, "retry count exceeded max retries"
	case decision.Confidence < orDefaultFloat(cfg.MinConfidence, 0.7):
		return true, "verifier confidence below threshold"
	case cfg.MaxCostUSD > 0 && costSoFar >= cfg.MaxCostUSD:
		return true, "accumulated cost exceeded threshold"
	case cfg.MaxElapsed > 0 && elapsed >= cfg.MaxElapsed:
		return true, "elapsed time exceeded threshold"
	}
	lower := strings.ToLower(planText)
	for _, kw := range cfg.AlwaysEscalateOn {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true, "plan text matched always-escalate keyword: " + kw
		}
	}
	return false, ""
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
