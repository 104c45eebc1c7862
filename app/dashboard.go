// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/artpar/tacoscan/domain/dashboard"
	"github.com/artpar/tacoscan/domain/subscription"
	"github.com/artpar/tacoscan/ports"
)

// Refresh triggers, used as log fields and metric labels.
const (
	TriggerOpen    = "open"
	TriggerTick    = "tick"
	TriggerEvent   = "event"
	TriggerWrite   = "write"
	TriggerRequest = "request"
)

// Fee model events that signal a payment was made.
var paymentEvents = []string{"EncryptorSlotsPaid", "SubscriptionPaid"}

// Addresses are the configured contract addresses. Zero addresses are unset.
type Addresses struct {
	Coordinator      common.Address
	FeeModel         common.Address
	AccessController common.Address
	FeeToken         common.Address
}

// DashboardServiceConfig contains configuration for DashboardService.
type DashboardServiceConfig struct {
	RefreshInterval time.Duration // How often open sessions re-read the ledger
	ReadTimeout     time.Duration // Bound for one background refresh
	Addresses       Addresses
	WatchEvents     bool // Refresh when the fee model emits payment events

	// Unpinned sessions unused for IdleTimeout are closed on the next tick.
	// Opening beyond MaxSessions closes the least recently used one.
	IdleTimeout time.Duration
	MaxSessions int
}

// DashboardService owns the dashboard sessions and keeps them in sync with
// the ledger through a periodic tick and fee model event watches.
type DashboardService struct {
	reader   ports.LedgerReader
	rituals  *RitualService
	clock    ports.Clock
	observer Observer
	logger   zerolog.Logger
	cfg      DashboardServiceConfig

	mu       sync.Mutex
	sessions map[string]*Session

	refreshInterval atomic.Int64
	intervalChanged chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDashboardService creates a new dashboard service. observer may be nil.
func NewDashboardService(
	reader ports.LedgerReader,
	rituals *RitualService,
	clock ports.Clock,
	observer Observer,
	logger zerolog.Logger,
	cfg DashboardServiceConfig,
) *DashboardService {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 15 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 256
	}
	if observer == nil {
		observer = nopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &DashboardService{
		reader:          reader,
		rituals:         rituals,
		clock:           clock,
		observer:        observer,
		logger:          logger.With().Str("service", "dashboard").Logger(),
		cfg:             cfg,
		sessions:        make(map[string]*Session),
		intervalChanged: make(chan struct{}, 1),
		ctx:             ctx,
		cancel:          cancel,
	}
	s.refreshInterval.Store(int64(cfg.RefreshInterval))
	return s
}

// Start begins the background refresh goroutine.
func (s *DashboardService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	go s.refreshLoop(s.done)
}

// Stop ends the refresh loop and every event watch.
func (s *DashboardService) Stop() {
	s.cancel()

	s.mu.Lock()
	done := s.done
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	for _, sess := range sessions {
		sess.close()
	}
}

// SetRefreshInterval changes the tick period of the running refresh loop.
func (s *DashboardService) SetRefreshInterval(d time.Duration) {
	if d <= 0 || time.Duration(s.refreshInterval.Load()) == d {
		return
	}
	s.refreshInterval.Store(int64(d))
	select {
	case s.intervalChanged <- struct{}{}:
	default:
	}
	s.logger.Info().Dur("interval", d).Msg("refresh interval changed")
}

// RefreshInterval returns the current tick period.
func (s *DashboardService) RefreshInterval() time.Duration {
	return time.Duration(s.refreshInterval.Load())
}

// refreshLoop periodically refreshes every open session.
func (s *DashboardService) refreshLoop(done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(s.refreshInterval.Load()))
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.intervalChanged:
			ticker.Reset(time.Duration(s.refreshInterval.Load()))
		case <-ticker.C:
			s.EvictIdle()
			for _, sess := range s.Sessions() {
				ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ReadTimeout)
				if err := s.Refresh(ctx, sess, TriggerTick); err != nil {
					s.logger.Error().Err(err).Str("ritual", sess.Key()).Msg("failed to refresh dashboard")
				}
				cancel()
			}
		}
	}
}

// Sessions returns the open sessions.
func (s *DashboardService) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Open returns the session of ritualID, creating it on first use. A new
// session resolves its contracts, subscribes to payment events and performs
// an initial refresh. Read failures are recorded in the session's error and
// do not fail Open.
func (s *DashboardService) Open(ctx context.Context, ritualID *big.Int) (*Session, error) {
	if ritualID == nil {
		return nil, fmt.Errorf("%w: ritual id is required", subscription.ErrInvalidInput)
	}
	key := ritualID.String()

	s.mu.Lock()
	sess, ok := s.sessions[key]
	if ok {
		sess.lastUsed = s.clock.Now()
	}
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	contracts, err := s.resolve(ctx, ritualID)
	if err != nil {
		return nil, err
	}
	sess, err = newSession(ritualID, contracts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok {
		existing.lastUsed = s.clock.Now()
		s.mu.Unlock()
		return existing, nil
	}
	sess.lastUsed = s.clock.Now()
	s.sessions[key] = sess
	evicted := s.evictOverflowLocked(sess)
	s.mu.Unlock()

	for _, old := range evicted {
		old.close()
		s.logger.Debug().Str("ritual", old.Key()).Msg("dashboard session evicted")
	}

	if s.cfg.WatchEvents {
		s.watch(sess)
	}

	if err := s.Refresh(ctx, sess, TriggerOpen); err != nil {
		s.logger.Warn().Err(err).Str("ritual", key).Msg("initial refresh incomplete")
	}

	s.logger.Info().
		Str("ritual", key).
		Str("fee_model", contracts.FeeModel.Address.Hex()).
		Msg("dashboard session opened")
	return sess, nil
}

// Pin keeps sess open regardless of use, for rituals watched from startup.
func (s *DashboardService) Pin(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.pinned = true
}

// EvictIdle closes unpinned sessions unused for the idle timeout and returns
// how many were closed. Sessions with a write in flight are kept.
func (s *DashboardService) EvictIdle() int {
	cutoff := s.clock.Now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	var idle []*Session
	for key, sess := range s.sessions {
		if sess.pinned || sess.lastUsed.After(cutoff) || sess.writing() {
			continue
		}
		delete(s.sessions, key)
		idle = append(idle, sess)
	}
	s.mu.Unlock()

	for _, sess := range idle {
		sess.close()
	}
	if len(idle) > 0 {
		s.logger.Debug().Int("sessions", len(idle)).Msg("idle dashboard sessions closed")
	}
	return len(idle)
}

// evictOverflowLocked removes least recently used unpinned sessions other than
// keep until the cap holds and returns them for closing. s.mu must be held.
func (s *DashboardService) evictOverflowLocked(keep *Session) []*Session {
	var out []*Session
	for len(s.sessions) > s.cfg.MaxSessions {
		var oldest *Session
		for _, sess := range s.sessions {
			if sess == keep || sess.pinned || sess.writing() {
				continue
			}
			if oldest == nil || sess.lastUsed.Before(oldest.lastUsed) {
				oldest = sess
			}
		}
		if oldest == nil {
			break
		}
		delete(s.sessions, oldest.Key())
		out = append(out, oldest)
	}
	return out
}

// Close drops the session of ritualID and stops its event watches.
func (s *DashboardService) Close(ritualID *big.Int) {
	s.mu.Lock()
	sess, ok := s.sessions[ritualID.String()]
	delete(s.sessions, ritualID.String())
	s.mu.Unlock()
	if ok {
		sess.close()
	}
}

// resolve picks configured addresses first and falls back to the ritual's
// own fee model and access controller.
func (s *DashboardService) resolve(ctx context.Context, ritualID *big.Int) (Contracts, error) {
	addrs := s.cfg.Addresses
	zero := common.Address{}

	if (addrs.FeeModel == zero || addrs.AccessController == zero) && s.rituals != nil && s.rituals.Configured() {
		r, err := s.rituals.Get(ctx, ritualID)
		if err != nil {
			s.logger.Warn().Err(err).Str("ritual", ritualID.String()).Msg("ritual lookup failed")
		} else {
			if addrs.FeeModel == zero {
				addrs.FeeModel = r.FeeModel
			}
			if addrs.AccessController == zero {
				addrs.AccessController = r.AccessController
			}
		}
	}

	if addrs.FeeModel == zero {
		return Contracts{}, fmt.Errorf("%w: fee model address for ritual %s", subscription.ErrMissingConfiguration, ritualID)
	}
	return Contracts{
		FeeModel:         ports.Contract{Kind: ports.FeeModel, Address: addrs.FeeModel},
		AccessController: ports.Contract{Kind: ports.AccessController, Address: addrs.AccessController},
		FeeToken:         ports.Contract{Kind: ports.FeeToken, Address: addrs.FeeToken},
	}, nil
}

// watch refreshes the session whenever the fee model reports a payment.
// A failed subscription is logged; the tick still keeps the session current.
func (s *DashboardService) watch(sess *Session) {
	for _, ev := range paymentEvents {
		sub, err := s.reader.Watch(s.ctx, sess.contracts.FeeModel, ev, func(n int) {
			s.logger.Debug().Str("ritual", sess.Key()).Str("event", ev).Int("logs", n).Msg("payment event")
			ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ReadTimeout)
			defer cancel()
			if err := s.Refresh(ctx, sess, TriggerEvent); err != nil {
				s.logger.Error().Err(err).Str("ritual", sess.Key()).Msg("failed to refresh after event")
			}
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("ritual", sess.Key()).Str("event", ev).Msg("event watch unavailable")
			continue
		}
		sess.addSubscription(sub)
	}
}

// now returns the clock in unix seconds.
func (s *DashboardService) now() *big.Int {
	return subscription.Unix(s.clock.Now())
}

// DismissWriteError clears the session's last write failure.
func (s *DashboardService) DismissWriteError(sess *Session) dashboard.View {
	sess.Dispatch(dashboard.Dismiss())
	return s.View(sess)
}

// View derives the display model of sess at the current time.
func (s *DashboardService) View(sess *Session) dashboard.View {
	return dashboard.Derive(sess.State(), s.now())
}

// reads collects the first read failure while the remaining reads proceed.
type reads struct {
	svc  *DashboardService
	sess *Session
	err  error
}

func (r *reads) call(ctx context.Context, c ports.Contract, method string, args ...any) []any {
	out, err := r.svc.reader.Call(ctx, c, method, args...)
	if err != nil {
		r.fail(fmt.Errorf("%w: %s: %v", subscription.ErrReadUnavailable, method, err))
		return nil
	}
	return out
}

func (r *reads) fail(err error) {
	r.svc.logger.Debug().Err(err).Str("ritual", r.sess.Key()).Msg("ledger read failed")
	if r.err == nil {
		r.err = err
	}
}

func (r *reads) integer(ctx context.Context, c ports.Contract, method string, args ...any) *big.Int {
	out := r.call(ctx, c, method, args...)
	if out == nil {
		return nil
	}
	n, err := bigOutput(out, 0, method)
	if err != nil {
		r.fail(fmt.Errorf("%w: %v", subscription.ErrReadUnavailable, err))
		return nil
	}
	return n
}

func (r *reads) flag(ctx context.Context, c ports.Contract, method string, args ...any) (bool, bool) {
	out := r.call(ctx, c, method, args...)
	if out == nil {
		return false, false
	}
	b, err := boolOutput(out, 0, method)
	if err != nil {
		r.fail(fmt.Errorf("%w: %v", subscription.ErrReadUnavailable, err))
		return false, false
	}
	return b, true
}

func (r *reads) billing(ctx context.Context, c ports.Contract, period *big.Int) (subscription.BillingInfo, bool) {
	const method = "billingInfo"
	out := r.call(ctx, c, method, period)
	if out == nil {
		return subscription.BillingInfo{}, false
	}
	paid, err := boolOutput(out, 0, method)
	if err != nil {
		r.fail(fmt.Errorf("%w: %v", subscription.ErrReadUnavailable, err))
		return subscription.BillingInfo{}, false
	}
	slots, err := bigOutput(out, 1, method)
	if err != nil {
		r.fail(fmt.Errorf("%w: %v", subscription.ErrReadUnavailable, err))
		return subscription.BillingInfo{}, false
	}
	return subscription.BillingInfo{Paid: paid, EncryptorSlots: slots}, true
}

// Refresh re-reads the session's on-chain fields and applies them to its
// store. Keyed reads are applied only if their period or slot count is still
// current when they complete. Values read before a failure are kept; the
// first failure is stored as the session error and returned.
func (s *DashboardService) Refresh(ctx context.Context, sess *Session, trigger string) error {
	sess.refreshMu.Lock()
	defer sess.refreshMu.Unlock()

	s.observer.ObserveRefresh(sess.Key(), trigger)
	sess.Dispatch(dashboard.Loading())
	fm := sess.contracts.FeeModel
	r := &reads{svc: s, sess: sess}
	var actions []dashboard.Action

	st := sess.State()
	if !st.Terms.Complete() {
		for _, f := range []dashboard.Field{
			dashboard.FieldStartOfSubscription,
			dashboard.FieldPeriodDuration,
			dashboard.FieldYellowDuration,
			dashboard.FieldRedDuration,
		} {
			if v := r.integer(ctx, fm, string(f)); v != nil {
				actions = append(actions, dashboard.Data(f, v))
			}
		}
		st = sess.Dispatch(actions...)
		actions = nil
	}

	for _, f := range []dashboard.Field{
		dashboard.FieldLedgerPeriod,
		dashboard.FieldMaxNodes,
		dashboard.FieldInitialBaseFeeRate,
		dashboard.FieldEncryptorFeeRate,
		dashboard.FieldUsedSlots,
	} {
		if v := r.integer(ctx, fm, string(f)); v != nil {
			actions = append(actions, dashboard.Data(f, v))
		}
	}

	if st.FeeToken == nil {
		if out := r.call(ctx, fm, string(dashboard.FieldFeeToken)); out != nil {
			if addr, err := addressOutput(out, 0, string(dashboard.FieldFeeToken)); err != nil {
				r.fail(fmt.Errorf("%w: %v", subscription.ErrReadUnavailable, err))
			} else {
				actions = append(actions, dashboard.Data(dashboard.FieldFeeToken, addr))
			}
		}
	}

	if st.Terms.Start != nil && st.Terms.PeriodDuration != nil && st.Terms.PeriodDuration.Sign() > 0 {
		period := subscription.CurrentPeriod(s.now(), st.Terms.Start, st.Terms.PeriodDuration)
		next := subscription.NextPeriod(period)
		sess.Dispatch(dashboard.Data(dashboard.FieldPeriod, period))

		if paid, ok := r.flag(ctx, fm, "isPeriodPaid", period); ok {
			actions = append(actions, dashboard.KeyedData(dashboard.FieldCurrentPaid, period, paid))
		}
		if paid, ok := r.flag(ctx, fm, "isPeriodPaid", next); ok {
			actions = append(actions, dashboard.KeyedData(dashboard.FieldNextPaid, next, paid))
		}
		if info, ok := r.billing(ctx, fm, period); ok {
			actions = append(actions, dashboard.KeyedData(dashboard.FieldCurrentBilling, period, info))
		}
		if info, ok := r.billing(ctx, fm, next); ok {
			actions = append(actions, dashboard.KeyedData(dashboard.FieldNextBilling, next, info))
		}
		if fees := r.integer(ctx, fm, "baseFees", next); fees != nil {
			actions = append(actions, dashboard.KeyedData(dashboard.FieldNextBaseFees, next, fees))
		}
	}

	if st.SlotQuery != nil && subscription.SlotFeeQueryReady(st.SlotQuery, st.Terms.PeriodDuration) {
		if fees, err := s.slotFees(ctx, sess, st.SlotQuery, st.Terms.PeriodDuration); err != nil {
			r.fail(err)
		} else {
			actions = append(actions, dashboard.KeyedData(dashboard.FieldSlotFees, st.SlotQuery, fees))
		}
	}

	sess.Dispatch(actions...)
	if r.err != nil {
		sess.fail(r.err)
	}

	s.publish(sess)
	s.logger.Debug().Str("ritual", sess.Key()).Str("trigger", trigger).Msg("dashboard refreshed")
	return r.err
}

func (s *DashboardService) publish(sess *Session) {
	v := s.View(sess)
	if !v.Known {
		return
	}
	left, _ := new(big.Float).SetInt(v.Status.TimeLeft).Float64()
	s.observer.SetStatus(sess.Key(), string(v.Status.State), left)
}

// slotFees reads encryptorFees(slots, duration).
func (s *DashboardService) slotFees(ctx context.Context, sess *Session, slots, duration *big.Int) (*big.Int, error) {
	d, ok := uint32Arg(duration)
	if !ok {
		return nil, fmt.Errorf("%w: period duration %v out of range", subscription.ErrReadUnavailable, duration)
	}
	out, err := s.reader.Call(ctx, sess.contracts.FeeModel, "encryptorFees", slots, d)
	if err != nil {
		return nil, fmt.Errorf("%w: encryptorFees: %v", subscription.ErrReadUnavailable, err)
	}
	fees, err := bigOutput(out, 0, "encryptorFees")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", subscription.ErrReadUnavailable, err)
	}
	return fees, nil
}

// EstimateFees sets the slot count under consideration and reads its fee for
// one period. A nil slots clears the estimate. The returned view reflects the
// estimate only if slots is still the session's query when the read completes.
func (s *DashboardService) EstimateFees(ctx context.Context, sess *Session, slots *big.Int) (dashboard.View, error) {
	if slots == nil {
		sess.Dispatch(dashboard.Data(dashboard.FieldSlotQuery, nil))
		return s.View(sess), nil
	}
	if err := subscription.ValidateSlots(slots); err != nil {
		return dashboard.View{}, err
	}

	st := sess.Dispatch(dashboard.Data(dashboard.FieldSlotQuery, slots))
	if !subscription.SlotFeeQueryReady(slots, st.Terms.PeriodDuration) {
		return s.View(sess), fmt.Errorf("%w: subscription period duration not loaded", subscription.ErrReadUnavailable)
	}

	fees, err := s.slotFees(ctx, sess, slots, st.Terms.PeriodDuration)
	if err != nil {
		sess.fail(err)
		return s.View(sess), err
	}
	sess.Dispatch(dashboard.KeyedData(dashboard.FieldSlotFees, slots, fees))
	return s.View(sess), nil
}

// quote returns the allowance a payment of kind needs for slots, reading the
// slot fee and, for the next period, its base fee.
func (s *DashboardService) quote(ctx context.Context, sess *Session, kind subscription.PaymentKind, slots *big.Int) (*big.Int, error) {
	st := sess.State()
	if !subscription.SlotFeeQueryReady(slots, st.Terms.PeriodDuration) || st.Terms.Start == nil {
		return nil, fmt.Errorf("%w: subscription terms not loaded", subscription.ErrReadUnavailable)
	}

	slotFees, err := s.slotFees(ctx, sess, slots, st.Terms.PeriodDuration)
	if err != nil {
		return nil, err
	}

	var baseFees *big.Int
	if kind == subscription.PaymentSubscription {
		period := subscription.CurrentPeriod(s.now(), st.Terms.Start, st.Terms.PeriodDuration)
		next := subscription.NextPeriod(period)
		out, err := s.reader.Call(ctx, sess.contracts.FeeModel, "baseFees", next)
		if err != nil {
			return nil, fmt.Errorf("%w: baseFees: %v", subscription.ErrReadUnavailable, err)
		}
		if baseFees, err = bigOutput(out, 0, "baseFees"); err != nil {
			return nil, fmt.Errorf("%w: %v", subscription.ErrReadUnavailable, err)
		}
	}

	total, ok := subscription.PaymentTotal(kind, baseFees, slotFees)
	if !ok {
		return nil, fmt.Errorf("%w: payment total unavailable", subscription.ErrReadUnavailable)
	}
	return total, nil
}

// feeToken returns the configured fee token, or the one the fee model reports.
func (s *DashboardService) feeToken(sess *Session) (ports.Contract, error) {
	if sess.contracts.FeeToken.Address != (common.Address{}) {
		return sess.contracts.FeeToken, nil
	}
	if st := sess.State(); st.FeeToken != nil && *st.FeeToken != (common.Address{}) {
		return ports.Contract{Kind: ports.FeeToken, Address: *st.FeeToken}, nil
	}
	return ports.Contract{}, fmt.Errorf("%w: fee token address", subscription.ErrMissingConfiguration)
}
