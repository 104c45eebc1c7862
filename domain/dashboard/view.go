package dashboard

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/artpar/tacoscan/domain/subscription"
)

// View is the display model derived from a State at a point in time (value type).
type View struct {
	Known       bool // false until all subscription terms are read
	Status      subscription.Status
	StatusLabel string // e.g. "2d 3h remaining", empty when not positive
	TimeLeft    string // "Xd Yh Zm"

	CurrentPeriod *big.Int
	NextPeriod    *big.Int
	LedgerPeriod  *big.Int

	PeriodStart       *big.Int
	PeriodEnd         *big.Int
	PeriodTimeLeft    *big.Int // nil outside the current period
	PeriodStartLabel  string
	PeriodEndLabel    string
	SubscriptionStart string

	Current subscription.PeriodBilling
	Next    subscription.PeriodBilling

	NextBaseFees *big.Int
	SlotQuery    *big.Int
	SlotFees     *big.Int
	NextTotal    *big.Int // base fee + slot fee of the next period
	Fees         FeeLabels

	InitialBaseFeeRate *big.Int
	EncryptorFeeRate   *big.Int
	FeeToken           *common.Address

	Authorized     []common.Address
	PaymentPending bool
	Loading        bool
	Error          string
	WriteError     string // failed payment or allow-list update, kept until dismissed
}

// FeeLabels holds fee amounts rendered with 18 decimals.
type FeeLabels struct {
	NextBaseFees string
	SlotFees     string
	NextTotal    string
}

// Derive computes the view of s at now (unix seconds).
// This is a PURE function.
func Derive(s State, now *big.Int) View {
	v := View{
		LedgerPeriod:       s.LedgerPeriod,
		NextBaseFees:       s.NextBaseFees,
		SlotQuery:          s.SlotQuery,
		SlotFees:           s.SlotFees,
		InitialBaseFeeRate: s.InitialBaseFeeRate,
		EncryptorFeeRate:   s.EncryptorFeeRate,
		FeeToken:           s.FeeToken,
		Authorized:         s.Authorized.List(),
		PaymentPending:     s.PaymentPending,
		Loading:            s.Loading,
		Error:              s.Error,
		WriteError:         s.WriteError,
		SubscriptionStart:  subscription.FormatTimestamp(s.Terms.Start),
	}

	if status, ok := subscription.Derive(now, s.Terms); ok {
		v.Known = true
		v.Status = status
		v.StatusLabel, _ = subscription.FormatDuration(status.TimeLeft)
		v.TimeLeft = subscription.FormatTimeLeft(status.TimeLeft)
	}

	v.CurrentPeriod = subscription.CurrentPeriod(now, s.Terms.Start, s.Terms.PeriodDuration)
	v.NextPeriod = subscription.NextPeriod(v.CurrentPeriod)

	if from, to, ok := subscription.PeriodBounds(s.Terms.Start, s.Terms.PeriodDuration, v.CurrentPeriod); ok {
		v.PeriodStart, v.PeriodEnd = from, to
		v.PeriodStartLabel = subscription.FormatTimestamp(from)
		v.PeriodEndLabel = subscription.FormatTimestamp(to)
		if left, ok := subscription.TimeLeftInPeriod(now, from, to); ok {
			v.PeriodTimeLeft = left
		}
	}

	// Billing values belong to the tracked period; they are only shown when it
	// matches the period derived from the clock.
	in := subscription.ReconcileInput{
		Current:   subscription.PeriodInput{Number: v.CurrentPeriod},
		Next:      subscription.PeriodInput{Number: v.NextPeriod},
		UsedSlots: s.UsedSlots,
		MaxNodes:  s.MaxNodes,
	}
	if s.Period != nil && s.Period.Cmp(v.CurrentPeriod) == 0 {
		in.Current.Paid, in.Current.Info = s.CurrentPaid, s.CurrentBilling
		in.Next.Paid, in.Next.Info = s.NextPaid, s.NextBilling
	} else {
		v.NextBaseFees = nil
	}
	v.Current, v.Next = subscription.Reconcile(in)

	if v.NextBaseFees != nil || v.SlotFees != nil {
		v.NextTotal = subscription.NextPeriodTotalFee(v.NextBaseFees, v.SlotFees)
	}
	v.Fees = FeeLabels{
		NextBaseFees: subscription.FormatFees(v.NextBaseFees),
		SlotFees:     subscription.FormatFees(v.SlotFees),
		NextTotal:    subscription.FormatFees(v.NextTotal),
	}
	return v
}
