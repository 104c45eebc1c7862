package app

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/artpar/tacoscan/domain/dashboard"
	"github.com/artpar/tacoscan/domain/subscription"
	"github.com/artpar/tacoscan/ports"
)

// Contracts are the contracts a session talks to. A zero address means the
// contract is not configured.
type Contracts struct {
	FeeModel         ports.Contract
	AccessController ports.Contract
	FeeToken         ports.Contract
}

// Session is one dashboard session: a ritual, its contracts and the store
// holding its on-chain fields. All mutations go through Dispatch.
type Session struct {
	ritualID  *big.Int
	ritual32  uint32
	contracts Contracts

	mu       sync.Mutex
	state    dashboard.State
	inFlight bool
	subs     []ports.Subscription

	// Guarded by the owning DashboardService's mutex.
	lastUsed time.Time
	pinned   bool

	// refreshMu keeps refreshes of one session from interleaving.
	refreshMu sync.Mutex
}

func newSession(ritualID *big.Int, contracts Contracts) (*Session, error) {
	id32, ok := uint32Arg(ritualID)
	if !ok {
		return nil, fmt.Errorf("%w: ritual id %v out of range", subscription.ErrInvalidInput, ritualID)
	}
	return &Session{
		ritualID:  new(big.Int).Set(ritualID),
		ritual32:  id32,
		contracts: contracts,
		state:     dashboard.Initial(),
	}, nil
}

// ParseRitualID parses a decimal ritual id. Ritual ids are uint32 on chain.
func ParseRitualID(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: ritual id %q is not a number", subscription.ErrInvalidInput, raw)
	}
	if _, ok := uint32Arg(id); !ok {
		return nil, fmt.Errorf("%w: ritual id %s out of range", subscription.ErrInvalidInput, id)
	}
	return id, nil
}

// RitualID returns the ritual the session tracks.
func (s *Session) RitualID() *big.Int {
	return new(big.Int).Set(s.ritualID)
}

// Key returns the ritual id in decimal, used for logging and metric labels.
func (s *Session) Key() string {
	return s.ritualID.String()
}

// Contracts returns the resolved contracts of the session.
func (s *Session) Contracts() Contracts {
	return s.contracts
}

// Dispatch applies actions in order and returns the resulting state.
func (s *Session) Dispatch(actions ...dashboard.Action) dashboard.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range actions {
		s.state = dashboard.Apply(s.state, a)
	}
	return s.state
}

// State returns a snapshot of the store.
func (s *Session) State() dashboard.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// begin claims the session for a write, clears the previous write error and
// marks the store pending.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return subscription.ErrPaymentInFlight
	}
	s.inFlight = true
	s.state = dashboard.Apply(s.state, dashboard.WriteFailed(""))
	s.state = dashboard.Apply(s.state, dashboard.Data(dashboard.FieldPaymentPending, true))
	return nil
}

func (s *Session) writing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// end releases the write claim and clears the pending flag.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.state = dashboard.Apply(s.state, dashboard.Data(dashboard.FieldPaymentPending, false))
}

func (s *Session) fail(err error) {
	s.Dispatch(dashboard.Failed(err.Error()))
}

func (s *Session) failWrite(err error) {
	s.Dispatch(dashboard.WriteFailed(err.Error()))
}

func (s *Session) addSubscription(sub ports.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

func (s *Session) close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
