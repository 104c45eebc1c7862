package subscription

import (
	"fmt"
	"math/big"
	"strings"
)

// maxSlots is the largest slot count the fee model accepts (uint128).
var maxSlots = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// BillingInfo is the on-chain billing record of one period (value type).
type BillingInfo struct {
	Paid           bool
	EncryptorSlots *big.Int
}

// PeriodBilling is the reconciled billing view of one period (value type).
// Pointer fields are nil while the underlying read is unknown.
type PeriodBilling struct {
	Number         *big.Int
	Paid           *bool
	PaidSlots      *big.Int
	UsedSlots      *big.Int // current period only
	RemainingSlots *big.Int // PaidSlots - UsedSlots, floored at zero
	MaxNodes       *big.Int
	Payable        bool
}

// PeriodInput carries the raw reads for one period.
type PeriodInput struct {
	Number *big.Int
	Paid   *bool        // isPeriodPaid
	Info   *BillingInfo // billingInfo
}

// ReconcileInput carries everything needed to reconcile current and next period.
type ReconcileInput struct {
	Current   PeriodInput
	Next      PeriodInput
	UsedSlots *big.Int // usedEncryptorSlots
	MaxNodes  *big.Int
}

// Reconcile combines paid flags and slot counts into the current and next
// period views. The isPeriodPaid flag wins over billingInfo.paid when both
// are known. Extra slots can only be bought for a paid current period; the
// next period is payable while it is known to be unpaid.
// This is a PURE function.
func Reconcile(in ReconcileInput) (current, next PeriodBilling) {
	current = reconcilePeriod(in.Current, in.MaxNodes)
	if in.UsedSlots != nil {
		current.UsedSlots = new(big.Int).Set(in.UsedSlots)
		if current.PaidSlots != nil {
			remaining := new(big.Int).Sub(current.PaidSlots, in.UsedSlots)
			if remaining.Sign() < 0 {
				remaining.SetInt64(0)
			}
			current.RemainingSlots = remaining
		}
	}
	current.Payable = current.Paid != nil && *current.Paid

	next = reconcilePeriod(in.Next, in.MaxNodes)
	next.Payable = next.Paid != nil && !*next.Paid
	return current, next
}

func reconcilePeriod(in PeriodInput, maxNodes *big.Int) PeriodBilling {
	pb := PeriodBilling{Number: in.Number, MaxNodes: maxNodes}

	switch {
	case in.Paid != nil:
		paid := *in.Paid
		pb.Paid = &paid
	case in.Info != nil:
		paid := in.Info.Paid
		pb.Paid = &paid
	}

	if in.Info != nil && in.Info.EncryptorSlots != nil {
		pb.PaidSlots = new(big.Int).Set(in.Info.EncryptorSlots)
	}
	return pb
}

// ValidateSlots rejects absent, zero, negative or out-of-range slot counts.
func ValidateSlots(slots *big.Int) error {
	if slots == nil {
		return fmt.Errorf("%w: slot count is required", ErrInvalidInput)
	}
	if slots.Sign() <= 0 {
		return fmt.Errorf("%w: slot count must be positive, got %s", ErrInvalidInput, slots)
	}
	if slots.Cmp(maxSlots) > 0 {
		return fmt.Errorf("%w: slot count exceeds uint128", ErrInvalidInput)
	}
	return nil
}

// ParseSlots parses a user-entered decimal slot count.
func ParseSlots(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: please enter a valid number of slots", ErrInvalidInput)
	}
	slots, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, raw)
	}
	if err := ValidateSlots(slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// SlotFeeQueryReady reports whether a slot fee estimate may be requested.
// Both inputs must be known and positive so that incomplete form input never
// triggers a speculative ledger read.
func SlotFeeQueryReady(slots, duration *big.Int) bool {
	return slots != nil && duration != nil && slots.Sign() > 0 && duration.Sign() > 0
}

// NextPeriodTotalFee returns baseFees + encryptorFees. Absent operands count as zero.
// This is a PURE function.
func NextPeriodTotalFee(baseFees, encryptorFees *big.Int) *big.Int {
	total := new(big.Int)
	if baseFees != nil {
		total.Add(total, baseFees)
	}
	if encryptorFees != nil {
		total.Add(total, encryptorFees)
	}
	return total
}

// PaymentKind selects which payment call completes the two-step protocol.
type PaymentKind string

const (
	// PaymentSlots buys additional encryptor slots for the current period.
	PaymentSlots PaymentKind = "encryptor_slots"
	// PaymentSubscription pays the next period including its slots.
	PaymentSubscription PaymentKind = "subscription"
)

// Method returns the fee model function that executes the payment.
func (k PaymentKind) Method() string {
	if k == PaymentSubscription {
		return "payForSubscription"
	}
	return "payForEncryptorSlots"
}

// PaymentTotal returns the allowance required for a payment: the slot fee for
// the current period, or base fee plus slot fee for the next period.
// ok is false when a required fee is unknown.
func PaymentTotal(kind PaymentKind, baseFees, slotFees *big.Int) (*big.Int, bool) {
	if slotFees == nil {
		return nil, false
	}
	if kind == PaymentSubscription {
		if baseFees == nil {
			return nil, false
		}
		return NextPeriodTotalFee(baseFees, slotFees), true
	}
	return new(big.Int).Set(slotFees), true
}
