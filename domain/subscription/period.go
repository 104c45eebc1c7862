// Package subscription provides value types and pure functions for deriving
// subscription period, status and billing state from on-chain terms.
// All functions are deterministic with no side effects. Timestamps,
// durations, period numbers and fees are arbitrary-precision integers;
// a nil *big.Int means the value has not been read yet.
package subscription

import (
	"math/big"
	"time"
)

// Terms are the immutable subscription parameters of a fee model contract.
type Terms struct {
	Start          *big.Int // startOfSubscription, unix seconds
	PeriodDuration *big.Int // subscriptionPeriodDuration, seconds
	YellowDuration *big.Int // grace window, seconds
	RedDuration    *big.Int // final window, seconds
}

// Complete reports whether every term has been read.
func (t Terms) Complete() bool {
	return t.Start != nil && t.PeriodDuration != nil &&
		t.YellowDuration != nil && t.RedDuration != nil
}

// Unix converts a wall-clock time to unix seconds.
func Unix(t time.Time) *big.Int {
	return big.NewInt(t.Unix())
}

// CurrentPeriod returns floor((now - start) / periodDuration).
// Returns 0 when start or periodDuration is absent, when periodDuration is
// zero, or when the subscription has not begun yet.
// This is a PURE function.
func CurrentPeriod(now, start, periodDuration *big.Int) *big.Int {
	if now == nil || start == nil || periodDuration == nil || periodDuration.Sign() <= 0 {
		return new(big.Int)
	}
	if now.Cmp(start) < 0 {
		return new(big.Int)
	}

	elapsed := new(big.Int).Sub(now, start)
	// Both operands are non-negative, so truncation equals floor.
	return elapsed.Quo(elapsed, periodDuration)
}

// NextPeriod returns current + 1, or nil when current is unknown.
func NextPeriod(current *big.Int) *big.Int {
	if current == nil {
		return nil
	}
	return new(big.Int).Add(current, big.NewInt(1))
}

// PeriodBounds returns the [start, end) timestamps of billing period n.
// ok is false when start or periodDuration is absent.
func PeriodBounds(start, periodDuration, n *big.Int) (from, to *big.Int, ok bool) {
	if start == nil || periodDuration == nil || n == nil {
		return nil, nil, false
	}
	offset := new(big.Int).Mul(periodDuration, n)
	from = new(big.Int).Add(start, offset)
	to = new(big.Int).Add(from, periodDuration)
	return from, to, true
}
