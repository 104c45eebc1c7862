package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/artpar/tacoscan/domain/dashboard"
	"github.com/artpar/tacoscan/domain/encryptor"
	"github.com/artpar/tacoscan/domain/subscription"
	"github.com/artpar/tacoscan/ports"
)

// EncryptorAction selects an allow-list write.
type EncryptorAction string

const (
	ActionAuthorize   EncryptorAction = "authorize"
	ActionDeauthorize EncryptorAction = "deauthorize"
)

// Valid reports whether a is a known action.
func (a EncryptorAction) Valid() bool {
	return a == ActionAuthorize || a == ActionDeauthorize
}

// EncryptorService checks and updates a ritual's encryptor allow-list.
type EncryptorService struct {
	reader   ports.LedgerReader
	writer   ports.LedgerWriter
	mode     encryptor.CheckMode
	observer Observer
	logger   zerolog.Logger
}

// NewEncryptorService creates an encryptor service. An invalid mode falls back
// to checking the representative address only.
func NewEncryptorService(
	reader ports.LedgerReader,
	writer ports.LedgerWriter,
	mode encryptor.CheckMode,
	observer Observer,
	logger zerolog.Logger,
) *EncryptorService {
	if !mode.Valid() {
		mode = encryptor.CheckRepresentative
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &EncryptorService{
		reader:   reader,
		writer:   writer,
		mode:     mode,
		observer: observer,
		logger:   logger.With().Str("service", "encryptor").Logger(),
	}
}

// Mode returns the configured check mode.
func (s *EncryptorService) Mode() encryptor.CheckMode {
	return s.mode
}

func accessController(sess *Session) (ports.Contract, error) {
	c := sess.contracts.AccessController
	if c.Address == (common.Address{}) {
		return ports.Contract{}, fmt.Errorf("%w: access controller address for ritual %s", subscription.ErrMissingConfiguration, sess.Key())
	}
	return c, nil
}

// Check parses a comma-separated address list and asks the access controller
// whether the selected addresses are authorized for the session's ritual.
// Each answer is merged into the session's authorized set. Results gathered
// before a failed read are kept.
func (s *EncryptorService) Check(ctx context.Context, sess *Session, raw string) ([]encryptor.Result, error) {
	addrs, err := encryptor.ParseList(raw)
	if err != nil {
		return nil, err
	}
	ac, err := accessController(sess)
	if err != nil {
		return nil, err
	}

	var results []encryptor.Result
	for _, addr := range encryptor.SelectForCheck(addrs, s.mode) {
		out, err := s.reader.Call(ctx, ac, "isAddressAuthorized", sess.ritual32, addr)
		if err == nil {
			var ok bool
			if ok, err = boolOutput(out, 0, "isAddressAuthorized"); err == nil {
				r := encryptor.Result{Address: addr, Authorized: ok}
				results = append(results, r)
				sess.Dispatch(dashboard.Data(dashboard.FieldAuthorization, r))
				s.observer.ObserveAuthorizationCheck(ok)
				continue
			}
		}
		err = fmt.Errorf("%w: isAddressAuthorized(%s): %v", subscription.ErrReadUnavailable, addr.Hex(), err)
		sess.fail(err)
		return results, err
	}

	s.logger.Debug().
		Str("ritual", sess.Key()).
		Str("mode", string(s.mode)).
		Int("checked", len(results)).
		Msg("authorization checked")
	return results, nil
}

// Update submits an authorize or deauthorize call for the parsed addresses.
// It shares the session's single in-flight write slot with payments. On
// success the session's authorized set reflects the change.
func (s *EncryptorService) Update(ctx context.Context, sess *Session, raw string, action EncryptorAction) (receipt ports.Receipt, addrs []common.Address, err error) {
	if !action.Valid() {
		return ports.Receipt{}, nil, fmt.Errorf("%w: unknown action %q", subscription.ErrInvalidInput, action)
	}
	addrs, err = encryptor.ParseList(raw)
	if err != nil {
		return ports.Receipt{}, nil, err
	}
	ac, err := accessController(sess)
	if err != nil {
		return ports.Receipt{}, nil, err
	}

	if err := sess.begin(); err != nil {
		return ports.Receipt{}, nil, err
	}
	defer func() {
		sess.end()
		if err != nil {
			sess.failWrite(err)
		}
	}()

	receipt, err = s.writer.Write(ctx, ac, string(action), sess.ritual32, addrs)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", subscription.ErrWriteRejected, action, err)
		s.logger.Error().Err(err).Str("ritual", sess.Key()).Int("addresses", len(addrs)).Msg("allow-list update rejected")
		return ports.Receipt{}, addrs, err
	}

	authorized := action == ActionAuthorize
	actions := make([]dashboard.Action, 0, len(addrs))
	for _, addr := range addrs {
		actions = append(actions, dashboard.Data(dashboard.FieldAuthorization, encryptor.Result{Address: addr, Authorized: authorized}))
	}
	sess.Dispatch(actions...)

	s.logger.Info().
		Str("ritual", sess.Key()).
		Str("action", string(action)).
		Int("addresses", len(addrs)).
		Str("tx", receipt.TxHash.Hex()).
		Msg("allow-list updated")
	return receipt, addrs, nil
}
