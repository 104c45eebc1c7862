package subscription_test

import (
	"math/big"
	"testing"

	"github.com/artpar/tacoscan/domain/subscription"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{2*86400 + 3*3600 + 59*60, "2d 3h remaining"},
		{86400, "1d 0h remaining"},
		{3*3600 + 15*60 + 9, "3h 15m remaining"},
		{45*60 + 30, "45m remaining"},
		{60, "1m remaining"},
		{12, "12s remaining"},
		{1, "1s remaining"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, ok := subscription.FormatDuration(bi(tt.seconds))
			if !ok {
				t.Fatal("expected ok")
			}
			if got != tt.want {
				t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestFormatDuration_NonPositive(t *testing.T) {
	for _, s := range []*big.Int{nil, bi(0), bi(-1), bi(-86400)} {
		if got, ok := subscription.FormatDuration(s); ok || got != "" {
			t.Errorf("FormatDuration(%v) = %q, %v; want \"\", false", s, got, ok)
		}
	}
}

func TestFormatTimeLeft(t *testing.T) {
	tests := []struct {
		seconds *big.Int
		want    string
	}{
		{nil, ""},
		{bi(0), ""},
		{bi(59), "0d 0h 0m"},
		{bi(3600), "0d 1h 0m"},
		{bi(30*86400 + 5*3600 + 7*60), "30d 5h 7m"},
	}

	for _, tt := range tests {
		if got := subscription.FormatTimeLeft(tt.seconds); got != tt.want {
			t.Errorf("FormatTimeLeft(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestTimeLeftInPeriod(t *testing.T) {
	tests := []struct {
		name   string
		now    int64
		wantOK bool
		want   int64
	}{
		{"before start", 99, false, 0},
		{"at start", 100, true, 100},
		{"middle", 150, true, 50},
		{"at end", 200, true, 0},
		{"after end", 201, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := subscription.TimeLeftInPeriod(bi(tt.now), bi(100), bi(200))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Cmp(bi(tt.want)) != 0 {
				t.Errorf("TimeLeftInPeriod() = %s, want %d", got, tt.want)
			}
		})
	}

	if _, ok := subscription.TimeLeftInPeriod(nil, bi(1), bi(2)); ok {
		t.Error("absent now should not be ok")
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := subscription.FormatTimestamp(nil); got != "-" {
		t.Errorf("FormatTimestamp(nil) = %q", got)
	}
	if got := subscription.FormatTimestamp(bi(0)); got != "-" {
		t.Errorf("FormatTimestamp(0) = %q", got)
	}
	if got := subscription.FormatTimestamp(bi(1718452800)); got != "2024-06-15T12:00:00Z" {
		t.Errorf("FormatTimestamp() = %q", got)
	}
}

func TestFormatFees(t *testing.T) {
	oneToken, _ := new(big.Int).SetString("1000000000000000000", 10)
	tests := []struct {
		name   string
		amount *big.Int
		want   string
	}{
		{"nil", nil, "0"},
		{"zero", bi(0), "0"},
		{"one token", oneToken, "1.00"},
		{"fraction", new(big.Int).Div(oneToken, bi(4)), "0.25"},
		{"rounds", mustBig("1234567890000000000"), "1.23"},
		{"large", mustBig("123456789000000000000000"), "123456.79"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := subscription.FormatFees(tt.amount); got != tt.want {
				t.Errorf("FormatFees() = %q, want %q", got, tt.want)
			}
		})
	}
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal: " + s)
	}
	return n
}
