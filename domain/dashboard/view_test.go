package dashboard_test

import (
	"math/big"
	"testing"

	"github.com/artpar/tacoscan/domain/dashboard"
	"github.com/artpar/tacoscan/domain/subscription"
)

// termsState has start 1000, period 100, grace 20 and final 10.
func termsState() dashboard.State {
	return applyAll(dashboard.Initial(),
		dashboard.Data(dashboard.FieldStartOfSubscription, bi(1000)),
		dashboard.Data(dashboard.FieldPeriodDuration, bi(100)),
		dashboard.Data(dashboard.FieldYellowDuration, bi(20)),
		dashboard.Data(dashboard.FieldRedDuration, bi(10)),
	)
}

func TestDerive_UnknownWithoutTerms(t *testing.T) {
	s := dashboard.Apply(dashboard.Initial(), dashboard.Data(dashboard.FieldStartOfSubscription, bi(1000)))
	v := dashboard.Derive(s, bi(1050))
	if v.Known {
		t.Error("partial terms should give an unknown status")
	}
	if v.CurrentPeriod.Sign() != 0 {
		t.Errorf("current period = %s, want 0", v.CurrentPeriod)
	}
	if v.Fees.NextTotal != "0" {
		t.Errorf("total label = %q", v.Fees.NextTotal)
	}
}

func TestDerive_Status(t *testing.T) {
	tests := []struct {
		now   int64
		state subscription.State
		left  int64
	}{
		{1050, subscription.StateActive, 50},
		{1100, subscription.StateGrace, 20},
		{1125, subscription.StateFinal, 5},
		{1130, subscription.StateExpired, 0},
	}

	s := termsState()
	for _, tt := range tests {
		v := dashboard.Derive(s, bi(tt.now))
		if !v.Known {
			t.Fatalf("now=%d: status unknown", tt.now)
		}
		if v.Status.State != tt.state || v.Status.TimeLeft.Cmp(bi(tt.left)) != 0 {
			t.Errorf("now=%d: got %s/%s, want %s/%d", tt.now, v.Status.State, v.Status.TimeLeft, tt.state, tt.left)
		}
	}
}

func TestDerive_Labels(t *testing.T) {
	v := dashboard.Derive(termsState(), bi(1050))
	if v.StatusLabel != "50s remaining" {
		t.Errorf("status label = %q", v.StatusLabel)
	}
	if v.TimeLeft != "0d 0h 0m" {
		t.Errorf("time left = %q", v.TimeLeft)
	}
	if v.SubscriptionStart != "1970-01-01T00:16:40Z" {
		t.Errorf("start label = %q", v.SubscriptionStart)
	}

	expired := dashboard.Derive(termsState(), bi(5000))
	if expired.StatusLabel != "" {
		t.Errorf("expired label = %q, want empty", expired.StatusLabel)
	}
}

func TestDerive_PeriodWindow(t *testing.T) {
	v := dashboard.Derive(termsState(), bi(1250))
	if v.CurrentPeriod.Cmp(bi(2)) != 0 || v.NextPeriod.Cmp(bi(3)) != 0 {
		t.Fatalf("periods = %s/%s", v.CurrentPeriod, v.NextPeriod)
	}
	if v.PeriodStart.Cmp(bi(1200)) != 0 || v.PeriodEnd.Cmp(bi(1300)) != 0 {
		t.Errorf("bounds = [%s, %s)", v.PeriodStart, v.PeriodEnd)
	}
	if v.PeriodTimeLeft.Cmp(bi(50)) != 0 {
		t.Errorf("time left in period = %s", v.PeriodTimeLeft)
	}

	before := dashboard.Derive(termsState(), bi(900))
	if before.PeriodTimeLeft != nil {
		t.Error("no time left before the subscription starts")
	}
}

func TestDerive_BillingForTrackedPeriod(t *testing.T) {
	s := applyAll(termsState(),
		dashboard.Data(dashboard.FieldPeriod, bi(2)),
		dashboard.KeyedData(dashboard.FieldCurrentPaid, bi(2), true),
		dashboard.KeyedData(dashboard.FieldCurrentBilling, bi(2), subscription.BillingInfo{Paid: true, EncryptorSlots: bi(10)}),
		dashboard.KeyedData(dashboard.FieldNextPaid, bi(3), false),
		dashboard.KeyedData(dashboard.FieldNextBaseFees, bi(3), bi(1000)),
		dashboard.Data(dashboard.FieldUsedSlots, bi(4)),
		dashboard.Data(dashboard.FieldMaxNodes, bi(30)),
		dashboard.Data(dashboard.FieldSlotQuery, bi(2)),
		dashboard.KeyedData(dashboard.FieldSlotFees, bi(2), bi(24)),
	)

	v := dashboard.Derive(s, bi(1250))
	if v.Current.RemainingSlots.Cmp(bi(6)) != 0 {
		t.Errorf("remaining = %v", v.Current.RemainingSlots)
	}
	if !v.Current.Payable || !v.Next.Payable {
		t.Error("both periods should be payable")
	}
	if v.NextTotal.Cmp(bi(1024)) != 0 {
		t.Errorf("next total = %v", v.NextTotal)
	}

	// The clock moved into period 3 before the session refreshed.
	later := dashboard.Derive(s, bi(1310))
	if later.Current.Paid != nil || later.Next.Paid != nil {
		t.Error("billing of another period must not be shown")
	}
	if later.NextBaseFees != nil {
		t.Error("base fee of another period must not be shown")
	}
	if later.Current.UsedSlots.Cmp(bi(4)) != 0 {
		t.Error("usage is not period keyed")
	}
}

func TestDerive_FeeLabels(t *testing.T) {
	oneToken := mustBig("1000000000000000000")
	s := applyAll(termsState(),
		dashboard.Data(dashboard.FieldPeriod, bi(0)),
		dashboard.KeyedData(dashboard.FieldNextBaseFees, bi(1), oneToken),
		dashboard.Data(dashboard.FieldSlotQuery, bi(1)),
		dashboard.KeyedData(dashboard.FieldSlotFees, bi(1), mustBig("250000000000000000")),
	)

	v := dashboard.Derive(s, bi(1010))
	if v.Fees.NextBaseFees != "1.00" || v.Fees.SlotFees != "0.25" || v.Fees.NextTotal != "1.25" {
		t.Errorf("fee labels = %+v", v.Fees)
	}
}

func TestDerive_Idempotent(t *testing.T) {
	s := termsState()
	a := dashboard.Derive(s, bi(1110))
	b := dashboard.Derive(s, bi(1110))
	if a.Status.State != b.Status.State || a.Status.TimeLeft.Cmp(b.Status.TimeLeft) != 0 {
		t.Error("repeated derivation differs")
	}
	if s.Terms.Start.Cmp(bi(1000)) != 0 {
		t.Error("state modified")
	}
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal: " + s)
	}
	return n
}
