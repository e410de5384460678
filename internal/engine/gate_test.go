package engine

import (
	"strings"
	"testing"

	"aitrader/internal/domain"
)

func TestGateSimulatedNeedsNothing(t *testing.T) {
	g := NewSafetyGate(domain.ModeSimulated, Authorization{}, false)
	if err := g.Check(); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
}

func TestGatePreviewAlwaysPasses(t *testing.T) {
	g := NewSafetyGate(domain.ModeLive, Authorization{}, true)
	if err := g.Check(); err != nil {
		t.Errorf("preview Check() = %v, want nil", err)
	}
	if !g.Preview() {
		t.Error("Preview() = false, want true")
	}
}

func TestGatePaperRequiresCredentials(t *testing.T) {
	g := NewSafetyGate(domain.ModePaper, Authorization{}, false)
	if err := g.Check(); err == nil {
		t.Error("paper Check() without credentials = nil, want error")
	}

	g = NewSafetyGate(domain.ModePaper, Authorization{HasCredentials: true}, false)
	if err := g.Check(); err != nil {
		t.Errorf("paper Check() with credentials = %v, want nil", err)
	}
}

func TestGateLiveRequiresEveryToken(t *testing.T) {
	tests := []struct {
		name    string
		auth    Authorization
		missing string
	}{
		{"no credentials", Authorization{LiveTradingEnabled: true, RiskAcknowledged: true}, "credentials"},
		{"no enable flag", Authorization{HasCredentials: true, RiskAcknowledged: true}, "ENABLE_LIVE_TRADING"},
		{"no acknowledgment", Authorization{HasCredentials: true, LiveTradingEnabled: true}, "I_UNDERSTAND_LIVE_TRADING_RISK"},
	}
	for _, tt := range tests {
		g := NewSafetyGate(domain.ModeLive, tt.auth, false)
		err := g.Check()
		if err == nil {
			t.Errorf("%s: Check() = nil, want error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.missing) {
			t.Errorf("%s: Check() = %q, want mention of %q", tt.name, err, tt.missing)
		}
	}

	full := Authorization{HasCredentials: true, LiveTradingEnabled: true, RiskAcknowledged: true}
	if err := NewSafetyGate(domain.ModeLive, full, false).Check(); err != nil {
		t.Errorf("fully authorized live Check() = %v, want nil", err)
	}
}
