// Package engine implements the decision-and-safety pipeline: the safety
// gate, risk manager, eligibility filter, cost model, order pipeline, and
// startup reconciler, plus the control loop that drives them.
package engine

import (
	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
)

// Outcome is the terminal state of a signal's trip through the pipeline.
type Outcome string

const (
	// OutcomeSubmitted means the order request was sent to the broker.
	OutcomeSubmitted Outcome = "submitted"
	// OutcomeWouldSubmit is the dry-run terminal state: every stage passed
	// and the submission call was skipped.
	OutcomeWouldSubmit Outcome = "would_submit"
	// OutcomeBlocked carries the first failing stage's reason.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeDuplicate means the client order id was already submitted, here
	// or at the broker.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeError means a broker call failed. The order is treated as
	// not-submitted and is not retried blindly.
	OutcomeError Outcome = "error"
)

// Stage names the pipeline stage that produced the outcome.
type Stage string

const (
	StageGate        Stage = "gate"
	StageIdempotency Stage = "idempotency"
	StageRisk        Stage = "risk"
	StageEligibility Stage = "eligibility"
	StageCost        Stage = "cost"
	StageSubmit      Stage = "submit"
)

// Decision is the tagged result of evaluating one signal. Exactly one
// terminal outcome is set; Stage and Reason identify the first blocker when
// the signal did not get through.
type Decision struct {
	Signal  domain.Signal
	Outcome Outcome
	Stage   Stage
	Reason  string

	// Set once the signal reaches pricing.
	ClientOrderID string
	OrderType     domain.OrderType
	Quantity      int64
	LimitPrice    decimal.Decimal
	ExpectedPrice decimal.Decimal
	SpreadBps     decimal.Decimal

	// Set on successful submission.
	Order *domain.Order

	// Set when Outcome is OutcomeError.
	Err error
}

// Submitted reports whether the decision resulted in a broker submission.
func (d Decision) Submitted() bool {
	return d.Outcome == OutcomeSubmitted
}

// blocked builds a Blocked decision for the given stage and reason.
func blocked(sig domain.Signal, stage Stage, reason string) Decision {
	return Decision{Signal: sig, Outcome: OutcomeBlocked, Stage: stage, Reason: reason}
}

// CheckResult is the pass/fail verdict of a single safety check. It is
// returned, never raised: a failing check is a decision outcome, not an
// error.
type CheckResult struct {
	OK     bool
	Reason string
}

// pass is the successful CheckResult.
var pass = CheckResult{OK: true}

// fail builds a failing CheckResult with the given reason.
func fail(reason string) CheckResult {
	return CheckResult{Reason: reason}
}
