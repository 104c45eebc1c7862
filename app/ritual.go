package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/artpar/tacoscan/domain/ritual"
	"github.com/artpar/tacoscan/domain/subscription"
	"github.com/artpar/tacoscan/ports"
)

// RitualService reads ritual records from the coordinator.
type RitualService struct {
	reader      ports.LedgerReader
	coordinator common.Address
	clock       ports.Clock
	logger      zerolog.Logger
}

// RitualDetails is a ritual with its derived phase and progress.
type RitualDetails struct {
	Ritual   ritual.Ritual
	Phase    ritual.Phase
	Progress ritual.Progress
	Timeout  uint32
}

// NewRitualService creates a ritual service. A zero coordinator disables lookups.
func NewRitualService(reader ports.LedgerReader, coordinator common.Address, clock ports.Clock, logger zerolog.Logger) *RitualService {
	return &RitualService{
		reader:      reader,
		coordinator: coordinator,
		clock:       clock,
		logger:      logger.With().Str("service", "ritual").Logger(),
	}
}

// Configured reports whether a coordinator address is set.
func (s *RitualService) Configured() bool {
	return s.coordinator != (common.Address{})
}

func (s *RitualService) contract() (ports.Contract, error) {
	if !s.Configured() {
		return ports.Contract{}, fmt.Errorf("%w: coordinator address", subscription.ErrMissingConfiguration)
	}
	return ports.Contract{Kind: ports.Coordinator, Address: s.coordinator}, nil
}

// Get reads the coordinator record of ritual id. A ritual that was never
// initiated is returned with Exists() false.
func (s *RitualService) Get(ctx context.Context, id *big.Int) (ritual.Ritual, error) {
	c, err := s.contract()
	if err != nil {
		return ritual.Ritual{}, err
	}

	out, err := s.reader.Call(ctx, c, "rituals", id)
	if err != nil {
		return ritual.Ritual{}, fmt.Errorf("%w: rituals(%s): %v", subscription.ErrReadUnavailable, id, err)
	}
	r, err := decodeRitual(id, out)
	if err != nil {
		return ritual.Ritual{}, fmt.Errorf("%w: %v", subscription.ErrReadUnavailable, err)
	}
	return r, nil
}

// Timeout reads the coordinator's DKG timeout in seconds.
func (s *RitualService) Timeout(ctx context.Context) (uint32, error) {
	c, err := s.contract()
	if err != nil {
		return 0, err
	}
	out, err := s.reader.Call(ctx, c, "timeout")
	if err != nil {
		return 0, fmt.Errorf("%w: timeout: %v", subscription.ErrReadUnavailable, err)
	}
	t, err := uint32Output(out, 0, "timeout")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", subscription.ErrReadUnavailable, err)
	}
	return t, nil
}

// Describe reads ritual id and derives its phase at the current time.
// A failed timeout read is logged and the timeout phase is skipped.
func (s *RitualService) Describe(ctx context.Context, id *big.Int) (RitualDetails, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return RitualDetails{}, err
	}

	timeout, err := s.Timeout(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("ritual", id.String()).Msg("coordinator timeout unavailable")
		timeout = 0
	}

	return RitualDetails{
		Ritual:   r,
		Phase:    ritual.PhaseAt(r, s.clock.Now().Unix(), timeout),
		Progress: ritual.ProgressOf(r),
		Timeout:  timeout,
	}, nil
}

func decodeRitual(id *big.Int, out []any) (ritual.Ritual, error) {
	const method = "rituals"
	r := ritual.Ritual{ID: new(big.Int).Set(id)}
	var err error

	if r.Initiator, err = addressOutput(out, 0, method); err != nil {
		return r, err
	}
	if r.InitTimestamp, err = uint32Output(out, 1, method); err != nil {
		return r, err
	}
	if r.EndTimestamp, err = uint32Output(out, 2, method); err != nil {
		return r, err
	}
	if r.TotalTranscripts, err = uint16Output(out, 3, method); err != nil {
		return r, err
	}
	if r.TotalAggregations, err = uint16Output(out, 4, method); err != nil {
		return r, err
	}
	if r.Authority, err = addressOutput(out, 5, method); err != nil {
		return r, err
	}
	if r.DKGSize, err = uint16Output(out, 6, method); err != nil {
		return r, err
	}
	if r.Threshold, err = uint16Output(out, 7, method); err != nil {
		return r, err
	}
	if r.AggregationMismatch, err = boolOutput(out, 8, method); err != nil {
		return r, err
	}
	if r.AccessController, err = addressOutput(out, 9, method); err != nil {
		return r, err
	}
	if r.PublicKeyX, r.PublicKeyY, err = pointOutput(out, 10, method); err != nil {
		return r, err
	}
	// Output 11 is the aggregated transcript, which the dashboard does not show.
	if r.FeeModel, err = addressOutput(out, 12, method); err != nil {
		return r, err
	}
	return r, nil
}
