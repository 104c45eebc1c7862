package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/tacoscan/domain/subscription"
	"github.com/artpar/tacoscan/ports"
)

// PaymentRequest asks for encryptor slots to be paid.
type PaymentRequest struct {
	Slots      *big.Int
	NextPeriod bool // pay the next period's subscription instead of extra slots
}

// Kind returns the payment kind the request selects.
func (r PaymentRequest) Kind() subscription.PaymentKind {
	if r.NextPeriod {
		return subscription.PaymentSubscription
	}
	return subscription.PaymentSlots
}

// PaymentResult describes a completed payment.
type PaymentResult struct {
	Record  ports.PaymentRecord
	Approve ports.Receipt
	Pay     ports.Receipt
}

// PaymentService runs the two-step approve-then-pay protocol.
type PaymentService struct {
	dashboard *DashboardService
	writer    ports.LedgerWriter
	journal   ports.PaymentLog
	ids       ports.IDGenerator
	clock     ports.Clock
	observer  Observer
	logger    zerolog.Logger
}

// NewPaymentService creates a payment service. journal and observer may be nil.
func NewPaymentService(
	dashboard *DashboardService,
	writer ports.LedgerWriter,
	journal ports.PaymentLog,
	ids ports.IDGenerator,
	clock ports.Clock,
	observer Observer,
	logger zerolog.Logger,
) *PaymentService {
	if observer == nil {
		observer = nopObserver{}
	}
	return &PaymentService{
		dashboard: dashboard,
		writer:    writer,
		journal:   journal,
		ids:       ids,
		clock:     clock,
		observer:  observer,
		logger:    logger.With().Str("service", "payment").Logger(),
	}
}

// Pay grants the fee model an allowance for the total fee and then pays.
// The two steps are not atomic:
//   - a failed approve returns ErrWriteRejected and the payment is never sent;
//   - a failed payment after a granted allowance returns ErrPartialPaymentFailure.
//
// Only one write may be in flight per session; concurrent calls fail with
// ErrPaymentInFlight. Nothing is retried.
func (s *PaymentService) Pay(ctx context.Context, sess *Session, req PaymentRequest) (result PaymentResult, err error) {
	if err := subscription.ValidateSlots(req.Slots); err != nil {
		return PaymentResult{}, err
	}
	kind := req.Kind()

	if err := sess.begin(); err != nil {
		return PaymentResult{}, err
	}
	s.observer.AddPaymentsInFlight(1)
	defer func() {
		sess.end()
		s.observer.AddPaymentsInFlight(-1)
		if err != nil {
			sess.failWrite(err)
		}
	}()

	token, err := s.dashboard.feeToken(sess)
	if err != nil {
		return PaymentResult{}, err
	}
	total, err := s.dashboard.quote(ctx, sess, kind, req.Slots)
	if err != nil {
		return PaymentResult{}, err
	}

	st := sess.State()
	rec := ports.PaymentRecord{
		ID:        s.ids.New(),
		RitualID:  sess.Key(),
		Kind:      string(kind),
		Period:    subscription.CurrentPeriod(subscription.Unix(s.clock.Now()), st.Terms.Start, st.Terms.PeriodDuration),
		Slots:     new(big.Int).Set(req.Slots),
		Total:     total,
		Outcome:   ports.OutcomePending,
		CreatedAt: s.clock.Now(),
	}
	if kind == subscription.PaymentSubscription {
		rec.Period = subscription.NextPeriod(rec.Period)
	}
	s.record(ctx, rec, true)

	log := s.logger.With().
		Str("ritual", sess.Key()).
		Str("payment_id", rec.ID).
		Str("kind", string(kind)).
		Str("slots", req.Slots.String()).
		Str("total", total.String()).
		Logger()

	fm := sess.contracts.FeeModel

	result.Approve, err = s.writer.Write(ctx, token, "approve", fm.Address, total)
	if err != nil {
		err = fmt.Errorf("%w: approve: %v", subscription.ErrWriteRejected, err)
		s.finish(ctx, &rec, ports.OutcomeApproveFailed, err)
		log.Error().Err(err).Msg("allowance rejected")
		return PaymentResult{Record: rec}, err
	}
	rec.ApproveTx = result.Approve.TxHash.Hex()
	log.Info().Str("tx", rec.ApproveTx).Msg("allowance granted")

	result.Pay, err = s.writer.Write(ctx, fm, kind.Method(), req.Slots)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", subscription.ErrPartialPaymentFailure, kind.Method(), err)
		s.finish(ctx, &rec, ports.OutcomePartial, err)
		log.Error().Err(err).Str("approve_tx", rec.ApproveTx).Msg("payment failed after allowance")
		result.Record = rec
		return result, err
	}
	rec.PayTx = result.Pay.TxHash.Hex()
	s.finish(ctx, &rec, ports.OutcomePaid, nil)
	log.Info().Str("tx", rec.PayTx).Msg("payment confirmed")

	if err := s.dashboard.Refresh(ctx, sess, TriggerWrite); err != nil {
		log.Warn().Err(err).Msg("refresh after payment incomplete")
	}
	result.Record = rec
	return result, nil
}

func (s *PaymentService) finish(ctx context.Context, rec *ports.PaymentRecord, outcome ports.PaymentOutcome, err error) {
	rec.Outcome = outcome
	rec.CompletedAt = s.clock.Now()
	if err != nil {
		rec.Error = err.Error()
	}
	s.observer.ObservePayment(rec.Kind, string(outcome))
	s.record(ctx, *rec, false)
}

// record journals an attempt. Journal failures are logged and do not change
// the payment outcome.
func (s *PaymentService) record(ctx context.Context, rec ports.PaymentRecord, create bool) {
	if s.journal == nil {
		return
	}
	// The attempt is journaled even when the caller's context ended mid-payment.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var err error
	if create {
		err = s.journal.Create(ctx, rec)
	} else {
		err = s.journal.Update(ctx, rec)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("payment_id", rec.ID).Msg("failed to journal payment")
	}
}

// History returns the journaled attempts of a ritual, newest first.
func (s *PaymentService) History(ctx context.Context, ritualID *big.Int, limit int) ([]ports.PaymentRecord, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.ListByRitual(ctx, ritualID.String(), limit)
}
