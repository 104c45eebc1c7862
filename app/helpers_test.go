package app_test

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/artpar/tacoscan/adapters/clock"
	"github.com/artpar/tacoscan/adapters/idgen"
	"github.com/artpar/tacoscan/adapters/memory"
	"github.com/artpar/tacoscan/app"
	"github.com/artpar/tacoscan/domain/encryptor"
	"github.com/artpar/tacoscan/ports"
)

var (
	feeModelAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	accessAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	tokenAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	coordAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a4")

	encA = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	encB = common.HexToAddress("0x00000000000000000000000000000000000000e2")
)

// Subscription terms used by every fixture: the active window is [1000, 1100),
// grace ends at 1120 and the final window at 1130.
const (
	termStart  = 1000
	termPeriod = 100
	termYellow = 20
	termRed    = 10
)

// newLedger returns a ledger where period 0 is paid with 8 slots and
// period 1 is unpaid. encryptorFees charges 7 per slot, baseFees is 500.
func newLedger() *memory.Ledger {
	l := memory.NewLedger()
	l.Set(ports.FeeModel, "startOfSubscription", uint32(termStart))
	l.Set(ports.FeeModel, "subscriptionPeriodDuration", uint32(termPeriod))
	l.Set(ports.FeeModel, "yellowPeriodDuration", uint32(termYellow))
	l.Set(ports.FeeModel, "redPeriodDuration", uint32(termRed))
	l.Set(ports.FeeModel, "getCurrentPeriodNumber", big.NewInt(0))
	l.Set(ports.FeeModel, "maxNodes", big.NewInt(10))
	l.Set(ports.FeeModel, "initialBaseFeeRate", big.NewInt(5))
	l.Set(ports.FeeModel, "encryptorFeeRate", big.NewInt(2))
	l.Set(ports.FeeModel, "usedEncryptorSlots", big.NewInt(3))
	l.Set(ports.FeeModel, "feeToken", tokenAddr)
	l.Set(ports.FeeModel, "baseFees", big.NewInt(500))
	l.Handle(ports.FeeModel, "isPeriodPaid", func(args []any) ([]any, error) {
		return []any{args[0].(*big.Int).Sign() == 0}, nil
	})
	l.Handle(ports.FeeModel, "billingInfo", func(args []any) ([]any, error) {
		if args[0].(*big.Int).Sign() == 0 {
			return []any{true, big.NewInt(8)}, nil
		}
		return []any{false, big.NewInt(0)}, nil
	})
	l.Handle(ports.FeeModel, "encryptorFees", func(args []any) ([]any, error) {
		return []any{new(big.Int).Mul(args[0].(*big.Int), big.NewInt(7))}, nil
	})
	return l
}

type fixture struct {
	ledger     *memory.Ledger
	clock      *clock.Fake
	journal    *memory.PaymentLog
	observer   *recordingObserver
	rituals    *app.RitualService
	dash       *app.DashboardService
	payments   *app.PaymentService
	encryptors *app.EncryptorService
}

type fixtureOption func(*app.DashboardServiceConfig, *encryptor.CheckMode)

func withAddresses(a app.Addresses) fixtureOption {
	return func(cfg *app.DashboardServiceConfig, _ *encryptor.CheckMode) { cfg.Addresses = a }
}

func withCheckMode(m encryptor.CheckMode) fixtureOption {
	return func(_ *app.DashboardServiceConfig, mode *encryptor.CheckMode) { *mode = m }
}

func withSessionLimits(idle time.Duration, max int) fixtureOption {
	return func(cfg *app.DashboardServiceConfig, _ *encryptor.CheckMode) {
		cfg.IdleTimeout = idle
		cfg.MaxSessions = max
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := app.DashboardServiceConfig{
		RefreshInterval: time.Hour,
		Addresses:       app.Addresses{FeeModel: feeModelAddr, AccessController: accessAddr},
		WatchEvents:     true,
	}
	mode := encryptor.CheckRepresentative
	for _, opt := range opts {
		opt(&cfg, &mode)
	}

	f := &fixture{
		ledger:   newLedger(),
		clock:    clock.NewFakeUnix(1050),
		journal:  memory.NewPaymentLog(),
		observer: &recordingObserver{},
	}
	logger := zerolog.Nop()
	f.rituals = app.NewRitualService(f.ledger, cfg.Addresses.Coordinator, f.clock, logger)
	f.dash = app.NewDashboardService(f.ledger, f.rituals, f.clock, f.observer, logger, cfg)
	f.payments = app.NewPaymentService(f.dash, f.ledger, f.journal, idgen.NewSequential("pay_"), f.clock, f.observer, logger)
	f.encryptors = app.NewEncryptorService(f.ledger, f.ledger, mode, f.observer, logger)
	t.Cleanup(f.dash.Stop)
	return f
}

type recordingObserver struct {
	mu       sync.Mutex
	refresh  []string
	states   map[string]string
	payments []string
	inFlight float64
	checks   []bool
}

func (o *recordingObserver) ObserveRefresh(ritual, trigger string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refresh = append(o.refresh, trigger)
}

func (o *recordingObserver) SetStatus(ritual, state string, timeLeft float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.states == nil {
		o.states = make(map[string]string)
	}
	o.states[ritual] = state
}

func (o *recordingObserver) ObservePayment(kind, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.payments = append(o.payments, kind+"/"+outcome)
}

func (o *recordingObserver) AddPaymentsInFlight(delta float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight += delta
}

func (o *recordingObserver) ObserveAuthorizationCheck(authorized bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checks = append(o.checks, authorized)
}

func bi(n int64) *big.Int {
	return big.NewInt(n)
}
