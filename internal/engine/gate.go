package engine

import (
	"fmt"

	"aitrader/internal/domain"
)

// Authorization is the set of safety tokens actually supplied by the
// operator. The gate compares it against what the requested mode demands.
type Authorization struct {
	// HasCredentials is true when both API key and secret are present.
	HasCredentials bool
	// LiveTradingEnabled is the explicit environment opt-in for live mode.
	LiveTradingEnabled bool
	// RiskAcknowledged is the explicit "I understand live trading risk"
	// acknowledgment.
	RiskAcknowledged bool
}

// SafetyGate decides whether the process is allowed to mutate broker state.
// Evaluation is pure: no I/O, no logging of sensitive values.
type SafetyGate struct {
	mode    domain.Mode
	auth    Authorization
	preview bool
}

// NewSafetyGate creates a gate for the requested mode. preview marks a
// no-submit run, which trivially satisfies every mode's requirements.
func NewSafetyGate(mode domain.Mode, auth Authorization, preview bool) *SafetyGate {
	return &SafetyGate{mode: mode, auth: auth, preview: preview}
}

// Preview reports whether this run is no-submit.
func (g *SafetyGate) Preview() bool {
	return g.preview
}

// Check returns nil when the supplied authorization satisfies the requested
// mode, and a named missing-gate error otherwise. It must be called before
// any network or file I/O.
//
// Required tokens per mode: simulated and preview runs need none; paper
// needs credentials; live needs credentials plus both explicit opt-ins.
func (g *SafetyGate) Check() error {
	if g.preview || g.mode == domain.ModeSimulated {
		return nil
	}

	if !g.auth.HasCredentials {
		return fmt.Errorf("%s mode requires API credentials (set APCA_API_KEY_ID and APCA_API_SECRET_KEY)", g.mode)
	}
	if g.mode == domain.ModePaper {
		return nil
	}

	if !g.auth.LiveTradingEnabled {
		return fmt.Errorf("live mode requires ENABLE_LIVE_TRADING=true")
	}
	if !g.auth.RiskAcknowledged {
		return fmt.Errorf("live mode requires I_UNDERSTAND_LIVE_TRADING_RISK=true")
	}
	return nil
}
