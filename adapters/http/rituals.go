package http

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/tacoscan/app"
	"github.com/artpar/tacoscan/domain/dashboard"
	"github.com/artpar/tacoscan/domain/subscription"
	"github.com/artpar/tacoscan/pkg/jsonapi"
	"github.com/artpar/tacoscan/ports"
)

// JSON:API resource types.
const (
	TypeRitual       = "rituals"
	TypeSubscription = "subscriptions"
	TypeFeeEstimate  = "fee_estimates"
	TypePayment      = "payments"
	TypeAllowList    = "allow_list_updates"
	TypeAuthCheck    = "authorization_checks"
	TypeContract     = "contracts"
)

// RitualHandler serves the ritual dashboard API.
type RitualHandler struct {
	dashboard  *app.DashboardService
	rituals    *app.RitualService
	payments   *app.PaymentService
	encryptors *app.EncryptorService
	logger     zerolog.Logger
}

// RitualHandlerConfig contains dependencies for the ritual handler.
type RitualHandlerConfig struct {
	Dashboard  *app.DashboardService
	Rituals    *app.RitualService
	Payments   *app.PaymentService
	Encryptors *app.EncryptorService
	Logger     zerolog.Logger
}

// NewRitualHandler creates a new ritual API handler.
func NewRitualHandler(cfg RitualHandlerConfig) *RitualHandler {
	return &RitualHandler{
		dashboard:  cfg.Dashboard,
		rituals:    cfg.Rituals,
		payments:   cfg.Payments,
		encryptors: cfg.Encryptors,
		logger:     cfg.Logger.With().Str("handler", "rituals").Logger(),
	}
}

// Router returns the ritual API router.
func (h *RitualHandler) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/{id}", h.GetRitual)
	r.Get("/{id}/subscription", h.GetSubscription)
	r.Delete("/{id}/subscription/write-error", h.DismissWriteError)
	r.Get("/{id}/fees", h.EstimateFees)
	r.Get("/{id}/payments", h.ListPayments)
	r.Post("/{id}/payments", h.CreatePayment)
	r.Post("/{id}/encryptors", h.UpdateEncryptors)
	r.Post("/{id}/encryptors/check", h.CheckEncryptors)

	return r
}

// -----------------------------------------------------------------------------
// Request Types
// -----------------------------------------------------------------------------

// PaymentRequest is the body of POST /{id}/payments.
type PaymentRequest struct {
	Slots      json.Number `json:"slots"`
	NextPeriod bool        `json:"next_period"`
}

// EncryptorsRequest is the body of the encryptor endpoints.
// Addresses is a comma-separated list.
type EncryptorsRequest struct {
	Addresses string `json:"addresses"`
	Action    string `json:"action,omitempty"`
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// GetRitual returns the coordinator record of a ritual.
func (h *RitualHandler) GetRitual(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ritualID(w, r)
	if !ok {
		return
	}

	d, err := h.rituals.Describe(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !d.Ritual.Exists() {
		jsonapi.WriteError(w, jsonapi.ErrNotFound("ritual"))
		return
	}

	rt := d.Ritual
	res := jsonapi.NewResource(TypeRitual, rt.ID.String()).
		Attr("initiator", rt.Initiator.Hex()).
		Attr("authority", rt.Authority.Hex()).
		Attr("init_timestamp", rt.InitTimestamp).
		Attr("end_timestamp", rt.EndTimestamp).
		Attr("init_time", subscription.FormatTimestamp(new(big.Int).SetUint64(uint64(rt.InitTimestamp)))).
		Attr("end_time", subscription.FormatTimestamp(new(big.Int).SetUint64(uint64(rt.EndTimestamp)))).
		Attr("dkg_size", rt.DKGSize).
		Attr("threshold", rt.Threshold).
		Attr("total_transcripts", rt.TotalTranscripts).
		Attr("total_aggregations", rt.TotalAggregations).
		Attr("aggregation_mismatch", rt.AggregationMismatch).
		Attr("phase", d.Phase).
		Attr("phase_label", d.Phase.Label()).
		Attr("progress_percent", d.Progress.Percent()).
		Attr("timeout", d.Timeout).
		AttrIf(rt.PublicKeyX != nil, "public_key", map[string]any{
			"x": bigString(rt.PublicKeyX),
			"y": bigString(rt.PublicKeyY),
		}).
		BelongsTo("fee_model", TypeContract, nonZero(rt.FeeModel)).
		BelongsTo("access_controller", TypeContract, nonZero(rt.AccessController)).
		Link("/api/rituals/" + rt.ID.String()).
		Build()

	jsonapi.WriteResource(w, http.StatusOK, res)
}

// GetSubscription returns the dashboard view of a ritual's subscription.
// ?refresh=true re-reads the ledger first.
func (h *RitualHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		if err := h.dashboard.Refresh(r.Context(), sess, app.TriggerRequest); err != nil {
			h.logger.Warn().Err(err).Str("ritual", sess.Key()).Msg("refresh incomplete")
		}
	}

	jsonapi.WriteResource(w, http.StatusOK, subscriptionResource(sess, h.dashboard.View(sess)))
}

// DismissWriteError clears the last failed payment or allow-list update and
// returns the subscription.
func (h *RitualHandler) DismissWriteError(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, subscriptionResource(sess, h.dashboard.DismissWriteError(sess)))
}

// EstimateFees returns the fee for ?slots=N encryptor slots for one period
// and the resulting next-period total.
func (h *RitualHandler) EstimateFees(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	slots, err := subscription.ParseSlots(r.URL.Query().Get("slots"))
	if err != nil {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "invalid_input", "Invalid Input").
			Detail(err.Error()).Parameter("slots").Build())
		return
	}

	v, err := h.dashboard.EstimateFees(r.Context(), sess, slots)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res := jsonapi.NewResource(TypeFeeEstimate, sess.Key()+"-"+slots.String()).
		Attr("slots", slots.String()).
		Attr("slot_fees", bigString(v.SlotFees)).
		Attr("next_base_fees", bigString(v.NextBaseFees)).
		Attr("next_total", bigString(v.NextTotal)).
		Attr("labels", feeLabels(v.Fees)).
		BelongsTo("subscription", TypeSubscription, sess.Key()).
		Build()
	jsonapi.WriteResource(w, http.StatusOK, res)
}

// CreatePayment runs the approve-then-pay protocol.
func (h *RitualHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body: "+err.Error())
		return
	}
	slots, err := subscription.ParseSlots(req.Slots.String())
	if err != nil {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "invalid_input", "Invalid Input").
			Detail(err.Error()).Pointer("/slots").Build())
		return
	}

	res, err := h.payments.Pay(r.Context(), sess, app.PaymentRequest{Slots: slots, NextPeriod: req.NextPeriod})
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonapi.WriteResource(w, http.StatusCreated, paymentResource(res.Record))
}

// ListPayments returns the journaled payment attempts of a ritual.
func (h *RitualHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ritualID(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "invalid_input", "Invalid Input").
				Detail("limit must be between 1 and 500").Parameter("limit").Build())
			return
		}
		limit = n
	}

	records, err := h.payments.History(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resources := make([]jsonapi.Resource, 0, len(records))
	for _, rec := range records {
		resources = append(resources, paymentResource(rec))
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, jsonapi.Meta{"count": len(resources)})
}

// UpdateEncryptors authorizes or deauthorizes encryptor addresses.
func (h *RitualHandler) UpdateEncryptors(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req EncryptorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body: "+err.Error())
		return
	}
	if req.Action == "" {
		req.Action = string(app.ActionAuthorize)
	}

	receipt, addrs, err := h.encryptors.Update(r.Context(), sess, req.Addresses, app.EncryptorAction(req.Action))
	if err != nil {
		h.writeError(w, err)
		return
	}

	res := jsonapi.NewResource(TypeAllowList, receipt.TxHash.Hex()).
		Attr("action", req.Action).
		Attr("addresses", hexList(addrs)).
		Attr("tx_hash", receipt.TxHash.Hex()).
		Attr("block_number", bigString(receipt.BlockNumber)).
		Attr("authorized", hexList(sess.State().Authorized.List())).
		BelongsTo("ritual", TypeRitual, sess.Key()).
		Build()
	jsonapi.WriteResource(w, http.StatusOK, res)
}

// CheckEncryptors asks the access controller whether addresses are authorized.
func (h *RitualHandler) CheckEncryptors(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req EncryptorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body: "+err.Error())
		return
	}

	results, err := h.encryptors.Check(r.Context(), sess, req.Addresses)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resources := make([]jsonapi.Resource, 0, len(results))
	for _, res := range results {
		resources = append(resources, jsonapi.NewResource(TypeAuthCheck, res.Address.Hex()).
			Attr("address", res.Address.Hex()).
			Attr("authorized", res.Authorized).
			BelongsTo("ritual", TypeRitual, sess.Key()).
			Build())
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, jsonapi.Meta{
		"mode":       string(h.encryptors.Mode()),
		"authorized": hexList(sess.State().Authorized.List()),
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (h *RitualHandler) ritualID(w http.ResponseWriter, r *http.Request) (*big.Int, bool) {
	id, err := app.ParseRitualID(chi.URLParam(r, "id"))
	if err != nil {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "invalid_input", "Invalid Input").
			Detail(err.Error()).Parameter("id").Build())
		return nil, false
	}
	return id, true
}

func (h *RitualHandler) session(w http.ResponseWriter, r *http.Request) (*app.Session, bool) {
	id, ok := h.ritualID(w, r)
	if !ok {
		return nil, false
	}
	sess, err := h.dashboard.Open(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return sess, true
}

// writeError maps service errors to JSON:API errors.
func (h *RitualHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscription.ErrInvalidInput):
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "invalid_input", "Invalid Input").Detail(err.Error()).Build())
	case errors.Is(err, subscription.ErrPaymentInFlight):
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusConflict, "payment_in_flight", "Payment In Flight").Detail(err.Error()).Build())
	case errors.Is(err, subscription.ErrMissingConfiguration):
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusServiceUnavailable, "missing_configuration", "Missing Configuration").Detail(err.Error()).Build())
	case errors.Is(err, subscription.ErrPartialPaymentFailure):
		jsonapi.WriteError(w, jsonapi.ErrBadGateway("partial_payment_failure", err.Error()))
	case errors.Is(err, subscription.ErrWriteRejected):
		jsonapi.WriteError(w, jsonapi.ErrBadGateway("write_rejected", err.Error()))
	case errors.Is(err, subscription.ErrReadUnavailable):
		jsonapi.WriteError(w, jsonapi.ErrBadGateway("read_unavailable", err.Error()))
	default:
		h.logger.Error().Err(err).Msg("unexpected error")
		jsonapi.WriteError(w, jsonapi.ErrInternal(""))
	}
}

func bigString(n *big.Int) any {
	if n == nil {
		return nil
	}
	return n.String()
}

func boolPtr(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nonZero(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

func hexList(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

func timeString(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func feeLabels(f dashboard.FeeLabels) map[string]string {
	return map[string]string{
		"next_base_fees": f.NextBaseFees,
		"slot_fees":      f.SlotFees,
		"next_total":     f.NextTotal,
	}
}

func billingAttrs(b subscription.PeriodBilling) map[string]any {
	return map[string]any{
		"number":          bigString(b.Number),
		"paid":            boolPtr(b.Paid),
		"paid_slots":      bigString(b.PaidSlots),
		"used_slots":      bigString(b.UsedSlots),
		"remaining_slots": bigString(b.RemainingSlots),
		"max_nodes":       bigString(b.MaxNodes),
		"payable":         b.Payable,
	}
}

func subscriptionResource(sess *app.Session, v dashboard.View) jsonapi.Resource {
	b := jsonapi.NewResource(TypeSubscription, sess.Key()).
		Attr("known", v.Known).
		Attr("current_period", bigString(v.CurrentPeriod)).
		Attr("next_period", bigString(v.NextPeriod)).
		Attr("ledger_period", bigString(v.LedgerPeriod)).
		Attr("period_start", bigString(v.PeriodStart)).
		Attr("period_end", bigString(v.PeriodEnd)).
		Attr("period_time_left", bigString(v.PeriodTimeLeft)).
		Attr("period_start_label", v.PeriodStartLabel).
		Attr("period_end_label", v.PeriodEndLabel).
		Attr("subscription_start", v.SubscriptionStart).
		Attr("current", billingAttrs(v.Current)).
		Attr("next", billingAttrs(v.Next)).
		Attr("fees", map[string]any{
			"next_base_fees": bigString(v.NextBaseFees),
			"slot_query":     bigString(v.SlotQuery),
			"slot_fees":      bigString(v.SlotFees),
			"next_total":     bigString(v.NextTotal),
			"labels":         feeLabels(v.Fees),
		}).
		Attr("initial_base_fee_rate", bigString(v.InitialBaseFeeRate)).
		Attr("encryptor_fee_rate", bigString(v.EncryptorFeeRate)).
		Attr("authorized", hexList(v.Authorized)).
		Attr("payment_pending", v.PaymentPending).
		Attr("loading", v.Loading).
		Attr("error", v.Error).
		Attr("write_error", v.WriteError)

	if v.Known {
		s := v.Status
		windows := make([]map[string]any, 0, len(s.Timeline.Windows))
		for _, win := range s.Timeline.Windows {
			windows = append(windows, map[string]any{
				"state": win.State,
				"label": win.State.Label(),
				"color": win.State.Color(),
				"start": bigString(win.Start),
				"end":   bigString(win.End),
			})
		}
		b.Attr("state", s.State).
			Attr("state_label", s.State.Label()).
			Attr("indicator", s.State.Indicator()).
			Attr("color", s.State.Color()).
			Attr("time_left_seconds", bigString(s.TimeLeft)).
			Attr("status_label", v.StatusLabel).
			Attr("time_left", v.TimeLeft).
			Attr("timeline", map[string]any{
				"start":      bigString(s.Timeline.Start),
				"end":        bigString(s.Timeline.End),
				"yellow_end": bigString(s.Timeline.YellowEnd),
				"red_end":    bigString(s.Timeline.RedEnd),
				"windows":    windows,
			})
	}

	c := sess.Contracts()
	if v.FeeToken != nil {
		b.BelongsTo("fee_token", TypeContract, nonZero(*v.FeeToken))
	}
	return b.BelongsTo("fee_model", TypeContract, nonZero(c.FeeModel.Address)).
		BelongsTo("access_controller", TypeContract, nonZero(c.AccessController.Address)).
		BelongsTo("ritual", TypeRitual, sess.Key()).
		Build()
}

func paymentResource(rec ports.PaymentRecord) jsonapi.Resource {
	return jsonapi.NewResource(TypePayment, rec.ID).
		Attr("kind", rec.Kind).
		Attr("period", bigString(rec.Period)).
		Attr("slots", bigString(rec.Slots)).
		Attr("total", bigString(rec.Total)).
		Attr("total_label", subscription.FormatFees(rec.Total)).
		Attr("outcome", rec.Outcome).
		AttrIf(rec.ApproveTx != "", "approve_tx", rec.ApproveTx).
		AttrIf(rec.PayTx != "", "pay_tx", rec.PayTx).
		AttrIf(rec.Error != "", "error", rec.Error).
		Attr("created_at", timeString(rec.CreatedAt)).
		Attr("completed_at", timeString(rec.CompletedAt)).
		BelongsTo("ritual", TypeRitual, rec.RitualID).
		Build()
}
