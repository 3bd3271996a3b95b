// FILE: internal/reconcile/reconcile.go
// Package reconcile implements C9 (spec.md §4.9): periodic actual-vs-
// expected diffing of positions and balances, with severity
// classification and safe auto-fixes. No teacher file covers this
// directly; grounded on the general periodic-reconciliation shape of
// the teacher's live.go polling loop (fetch external state on an
// interval, diff against in-memory expectation), combined with
// original_source/hummingbot/strategy/funding_arbitrage/
// reconciliation.py's severity table (SPEC_FULL.md §3's dry-run-mode
// supplement: NewReconciler's autoFixEnabled flag gates every auto-fix globally, in addition
// to the per-class severity spec.md already specifies).
package reconcile

import (
	"sync"
	"time"

	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/venue"
)

// DiscrepancyKind enumerates spec.md §4.9's discrepancy table.
type DiscrepancyKind string

const (
	KindPositionMissing      DiscrepancyKind = "POSITION_MISSING"
	KindPositionExtra        DiscrepancyKind = "POSITION_EXTRA"
	KindPositionSizeMismatch DiscrepancyKind = "POSITION_SIZE_MISMATCH"
	KindBalanceMismatch      DiscrepancyKind = "BALANCE_MISMATCH"
)

type Severity string

const (
	SeverityNone     Severity = ""
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type SuggestedAction string

const (
	ActionNone            SuggestedAction = ""
	ActionAutoOpen        SuggestedAction = "AUTO_OPEN_POSITION"
	ActionAutoClose       SuggestedAction = "AUTO_CLOSE_POSITION"
	ActionAutoAdjustSize  SuggestedAction = "AUTO_ADJUST_SIZE"
	ActionManualReview    SuggestedAction = "MANUAL_REVIEW"
)

// PositionKey identifies one position slot (venue + pair + side).
type PositionKey struct {
	Venue venue.Id
	Pair  venue.Pair
	Side  venue.Side
}

// PositionSnapshot is an observed or expected position's notional.
type PositionSnapshot struct {
	Notional money.Decimal
}

// BalanceKey identifies one (venue, asset) balance slot.
type BalanceKey struct {
	Venue venue.Id
	Asset string
}

// BalanceSnapshot is an observed or expected balance.
type BalanceSnapshot struct {
	Amount money.Decimal
}

// Discrepancy is one detected mismatch.
type Discrepancy struct {
	Kind            DiscrepancyKind
	PositionKey     *PositionKey
	BalanceKey      *BalanceKey
	Expected        money.Decimal
	Actual          money.Decimal
	Severity        Severity
	AutoFixable     bool
	SuggestedAction SuggestedAction
	DetectedAt      time.Time
}

// AutoFixer applies a suggested action; callers must make it
// idempotent (spec.md §4.9: "auto-fix callbacks must complete
// idempotently").
type AutoFixer func(d Discrepancy) error

const maxAutoFixFraction = 0.10 // 10%: the upper edge of "auto-fixable" size mismatch band

// Reconciler is C9.
type Reconciler struct {
	mu               sync.Mutex
	autoFixEnabled   bool
	maxAutoFixPct    money.Decimal
	history          []Discrepancy // bounded 24h, pruned on each Run
	emergencyStop    bool
	fixer            AutoFixer
}

func NewReconciler(autoFixEnabled bool, maxAutoFixPct money.Decimal, fixer AutoFixer) *Reconciler {
	return &Reconciler{autoFixEnabled: autoFixEnabled, maxAutoFixPct: maxAutoFixPct, fixer: fixer}
}

func (r *Reconciler) EmergencyStop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emergencyStop
}

// ClearEmergencyStop allows manual operator recovery.
func (r *Reconciler) ClearEmergencyStop() {
	r.mu.Lock()
	r.emergencyStop = false
	r.mu.Unlock()
}

// classifySizeMismatch implements spec.md §4.9's size-mismatch bands.
func classifySizeMismatch(expected, actual money.Decimal) (Severity, bool, SuggestedAction) {
	delta := money.Abs(expected.Sub(actual))
	pct, ok := money.SafeDiv(delta, money.Max(expected, actual))
	within1pct := ok && pct.LessThanOrEqual(money.FromFloat(0.01))
	withinAbs := delta.LessThanOrEqual(money.FromFloat(0.001))
	if within1pct || withinAbs {
		return SeverityNone, false, ActionNone
	}
	if ok && pct.LessThanOrEqual(money.FromFloat(0.10)) {
		return SeverityMedium, true, ActionAutoAdjustSize
	}
	return SeverityCritical, false, ActionManualReview
}

// classifyBalanceMismatch implements spec.md §4.9's balance-mismatch
// rule: severity MEDIUM/HIGH (never auto-fixable) if delta exceeds
// max(2% of expected, $1).
func classifyBalanceMismatch(expected, actual money.Decimal) (Severity, bool, SuggestedAction) {
	delta := money.Abs(expected.Sub(actual))
	twoPct := expected.Mul(money.FromFloat(0.02))
	threshold := money.Max(twoPct, money.One)
	if delta.LessThanOrEqual(threshold) {
		return SeverityNone, false, ActionNone
	}
	sev := SeverityMedium
	if delta.GreaterThan(threshold.Mul(money.FromFloat(5))) {
		sev = SeverityHigh
	}
	return sev, false, ActionManualReview
}

// Run diffs expected vs actual positions and balances for one cycle,
// applies auto-fixes when enabled and within the max-auto-fix bound,
// and sets the emergency-stop flag on >=3 CRITICAL discrepancies.
func (r *Reconciler) Run(now time.Time, expectedPositions, actualPositions map[PositionKey]PositionSnapshot, expectedBalances, actualBalances map[BalanceKey]BalanceSnapshot) []Discrepancy {
	var out []Discrepancy

	for key, exp := range expectedPositions {
		act, ok := actualPositions[key]
		if !ok {
			d := Discrepancy{Kind: KindPositionMissing, PositionKey: &key, Expected: exp.Notional, Severity: SeverityHigh, AutoFixable: true, SuggestedAction: ActionAutoOpen, DetectedAt: now}
			out = append(out, d)
			continue
		}
		sev, fixable, action := classifySizeMismatch(exp.Notional, act.Notional)
		if sev == SeverityNone {
			continue
		}
		out = append(out, Discrepancy{Kind: KindPositionSizeMismatch, PositionKey: &key, Expected: exp.Notional, Actual: act.Notional, Severity: sev, AutoFixable: fixable, SuggestedAction: action, DetectedAt: now})
	}
	for key, act := range actualPositions {
		if _, ok := expectedPositions[key]; !ok {
			out = append(out, Discrepancy{Kind: KindPositionExtra, PositionKey: &key, Actual: act.Notional, Severity: SeverityMedium, AutoFixable: true, SuggestedAction: ActionAutoClose, DetectedAt: now})
		}
	}

	for key, exp := range expectedBalances {
		act := actualBalances[key]
		sev, fixable, action := classifyBalanceMismatch(exp.Amount, act.Amount)
		if sev == SeverityNone {
			continue
		}
		out = append(out, Discrepancy{Kind: KindBalanceMismatch, BalanceKey: &key, Expected: exp.Amount, Actual: act.Amount, Severity: sev, AutoFixable: fixable, SuggestedAction: action, DetectedAt: now})
	}

	r.mu.Lock()
	r.history = append(r.history, out...)
	cutoff := now.Add(-24 * time.Hour)
	pruned := r.history[:0]
	for _, d := range r.history {
		if d.DetectedAt.After(cutoff) {
			pruned = append(pruned, d)
		}
	}
	r.history = pruned

	critical := 0
	for _, d := range out {
		if d.Severity == SeverityCritical {
			critical++
		}
	}
	if critical >= 3 {
		r.emergencyStop = true
	}
	autoFixEnabled := r.autoFixEnabled
	fixer := r.fixer
	maxAutoFixPct := r.maxAutoFixPct
	r.mu.Unlock()

	if autoFixEnabled && fixer != nil {
		for _, d := range out {
			if !d.AutoFixable {
				continue
			}
			if d.Kind == KindPositionSizeMismatch {
				pct, ok := money.SafeDiv(money.Abs(d.Expected.Sub(d.Actual)), money.Max(d.Expected, d.Actual))
				if !ok || pct.GreaterThan(maxAutoFixPct) {
					continue
				}
			}
			_ = fixer(d) // idempotent by contract; errors are the caller's to log/alert
		}
	}

	return out
}
