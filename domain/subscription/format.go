package subscription

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// FeeDecimals is the number of fractional digits of the fee token.
// Used for display only.
const FeeDecimals = 18

var (
	secondsPerDay = big.NewInt(86400)
)

// splitSeconds decomposes a non-negative second count into units.
func splitSeconds(seconds *big.Int) (days *big.Int, hours, minutes int64) {
	days, rem := new(big.Int).QuoRem(seconds, secondsPerDay, new(big.Int))
	r := rem.Int64()
	return days, r / 3600, (r % 3600) / 60
}

// FormatDuration renders a countdown using the two largest units, e.g.
// "2d 3h remaining", "45m remaining" or "12s remaining".
// ok is false for absent or non-positive input.
// This is a PURE function.
func FormatDuration(seconds *big.Int) (string, bool) {
	if seconds == nil || seconds.Sign() <= 0 {
		return "", false
	}

	days, hours, minutes := splitSeconds(seconds)
	switch {
	case days.Sign() > 0:
		return fmt.Sprintf("%dd %dh remaining", days, hours), true
	case hours > 0:
		return fmt.Sprintf("%dh %dm remaining", hours, minutes), true
	case minutes > 0:
		return fmt.Sprintf("%dm remaining", minutes), true
	default:
		return fmt.Sprintf("%ds remaining", seconds), true
	}
}

// FormatTimeLeft renders a static duration label as "Xd Yh Zm".
// Returns "" for absent or zero input.
func FormatTimeLeft(seconds *big.Int) string {
	if seconds == nil || seconds.Sign() <= 0 {
		return ""
	}
	days, hours, minutes := splitSeconds(seconds)
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

// TimeLeftInPeriod returns periodEnd - now when now lies within
// [periodStart, periodEnd]. ok is false otherwise or when any input is absent.
// This is a PURE function.
func TimeLeftInPeriod(now, periodStart, periodEnd *big.Int) (*big.Int, bool) {
	if now == nil || periodStart == nil || periodEnd == nil {
		return nil, false
	}
	if now.Cmp(periodStart) < 0 || now.Cmp(periodEnd) > 0 {
		return nil, false
	}
	return new(big.Int).Sub(periodEnd, now), true
}

// FormatTimestamp renders unix seconds as RFC 3339 in UTC, or "-" when absent.
func FormatTimestamp(ts *big.Int) string {
	if ts == nil || ts.Sign() == 0 || !ts.IsInt64() {
		return "-"
	}
	return time.Unix(ts.Int64(), 0).UTC().Format(time.RFC3339)
}

// FormatFees renders a fee amount in token units with two fractional digits.
// Absent amounts render as "0".
func FormatFees(amount *big.Int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -FeeDecimals).StringFixed(2)
}
