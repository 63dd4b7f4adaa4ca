package optimization

import (
	"fmt"
	"time"

	"github.com/aristath/tailrisk/internal/modules/program"
)

// Mode selects how expected return enters the optimization. Target-return and
// risk-aversion are mutually exclusive; requesting features of both is
// rejected rather than combined.
type Mode string

const (
	// ModeMinCVaR minimizes CVaR with no return requirement.
	ModeMinCVaR Mode = "min_cvar"
	// ModeTargetReturn minimizes CVaR subject to a minimum expected return.
	ModeTargetReturn Mode = "target_return"
	// ModeRiskAversion minimizes CVaR - lambda * expected return.
	ModeRiskAversion Mode = "risk_aversion"
)

// Config parameterizes one optimization call.
type Config struct {
	// Alpha is the CVaR confidence level, e.g. 0.95.
	Alpha float64 `json:"alpha"`
	Mode  Mode    `json:"mode"`
	// TargetReturn is the minimum expected portfolio return in
	// ModeTargetReturn.
	TargetReturn float64 `json:"target_return,omitempty"`
	// RiskAversion is the lambda trading expected return against CVaR in
	// ModeRiskAversion.
	RiskAversion float64 `json:"risk_aversion,omitempty"`
}

// Validate rejects malformed configurations, including mixing the two
// return-handling modes.
func (c *Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("confidence level must be in (0, 1), got %v", c.Alpha)
	}
	switch c.Mode {
	case ModeMinCVaR:
		if c.TargetReturn != 0 || c.RiskAversion != 0 {
			return fmt.Errorf("mode %q does not accept target return or risk aversion parameters", c.Mode)
		}
	case ModeTargetReturn:
		if c.RiskAversion != 0 {
			return fmt.Errorf("target-return and risk-aversion modes are mutually exclusive")
		}
	case ModeRiskAversion:
		if c.TargetReturn != 0 {
			return fmt.Errorf("target-return and risk-aversion modes are mutually exclusive")
		}
		if c.RiskAversion < 0 {
			return fmt.Errorf("risk aversion must be non-negative, got %v", c.RiskAversion)
		}
	default:
		return fmt.Errorf("unknown optimization mode %q", c.Mode)
	}
	return nil
}

// Portfolio is a solved allocation. CVaR is the expected tail loss at the
// portfolio's confidence level, so positive values mean losses.
type Portfolio struct {
	Weights        map[string]float64 `json:"weights" msgpack:"weights"`
	Alpha          float64            `json:"alpha" msgpack:"alpha"`
	CVaR           float64            `json:"cvar" msgpack:"cvar"`
	ExpectedReturn float64            `json:"expected_return" msgpack:"expected_return"`
}

// Weight returns the weight held in symbol, zero when absent.
func (p *Portfolio) Weight(symbol string) float64 {
	if p == nil {
		return 0
	}
	return p.Weights[symbol]
}

// OptimizationResult is the immutable outcome of a single solve call.
// Non-OPTIMAL statuses carry no portfolio; they are expected outcomes the
// caller must branch on, not errors.
type OptimizationResult struct {
	Status    program.Status `json:"status" msgpack:"status"`
	Portfolio *Portfolio     `json:"portfolio,omitempty" msgpack:"portfolio,omitempty"`
	Objective float64        `json:"objective" msgpack:"objective"`
	SolveTime time.Duration  `json:"solve_time" msgpack:"solve_time"`
	Message   string         `json:"message,omitempty" msgpack:"message,omitempty"`
}
