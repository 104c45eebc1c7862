// Package ethereum implements the ledger ports over a JSON-RPC endpoint using
// go-ethereum. Reads are bounded by a token bucket, event watches poll
// eth_getLogs, and writes are signed locally and awaited until mined.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/artpar/tacoscan/ports"
)

var (
	// ErrNoSigner is returned by Write when no private key is configured.
	ErrNoSigner = errors.New("no signing key configured")
	// ErrReverted is returned when a mined transaction has a failed status.
	ErrReverted = errors.New("transaction reverted")
	// ErrUnknownMethod is returned for methods or events missing from the ABI.
	ErrUnknownMethod = errors.New("unknown contract method")
)

// Backend is the subset of ethclient.Client the adapter needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
}

// Observer receives ledger call timings. Implemented by the metrics collector.
type Observer interface {
	ObserveLedgerRead(method string, d time.Duration, err error)
	ObserveLedgerWrite(method string, d time.Duration, err error)
}

// Client implements ports.LedgerReader, ports.LedgerWriter and ports.LedgerHealth.
type Client struct {
	backend       Backend
	abis          map[ports.ContractKind]*abi.ABI
	limiter       *rate.Limiter
	auth          *bind.TransactOpts
	writeMu       sync.Mutex
	writeTimeout  time.Duration
	watchInterval time.Duration
	observer      Observer
	logger        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithReadLimit bounds reads to limit per second with the given burst.
func WithReadLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) error {
		if limit <= 0 {
			return fmt.Errorf("read limit must be greater than 0")
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// WithSigner signs writes with a hex-encoded private key for chainID.
func WithSigner(hexKey string, chainID int64) Option {
	return func(c *Client) error {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
		if err != nil {
			return fmt.Errorf("parse private key: %w", err)
		}
		return WithKey(key, chainID)(c)
	}
}

// WithKey signs writes with key for chainID.
func WithKey(key *ecdsa.PrivateKey, chainID int64) Option {
	return func(c *Client) error {
		auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
		if err != nil {
			return fmt.Errorf("create transactor: %w", err)
		}
		c.auth = auth
		return nil
	}
}

// WithWriteTimeout bounds how long Write waits for a transaction to be mined.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.writeTimeout = d
		return nil
	}
}

// WithWatchInterval sets how often event watches poll for new logs.
func WithWatchInterval(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("watch interval must be positive")
		}
		c.watchInterval = d
		return nil
	}
}

// WithObserver reports call timings to o.
func WithObserver(o Observer) Option {
	return func(c *Client) error {
		c.observer = o
		return nil
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = l.With().Str("adapter", "ethereum").Logger()
		return nil
	}
}

// Dial connects to rpcURL and builds a Client.
func Dial(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c, err := New(ec, opts...)
	if err != nil {
		ec.Close()
		return nil, err
	}
	return c, nil
}

// New builds a Client over backend.
func New(backend Backend, opts ...Option) (*Client, error) {
	abis, err := LoadABIs()
	if err != nil {
		return nil, err
	}

	c := &Client{
		backend:       backend,
		abis:          abis,
		limiter:       rate.NewLimiter(rate.Limit(10), 10),
		writeTimeout:  5 * time.Minute,
		watchInterval: 15 * time.Second,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Close releases the underlying RPC connection when it is an ethclient.
func (c *Client) Close() {
	if ec, ok := c.backend.(*ethclient.Client); ok {
		ec.Close()
	}
}

func (c *Client) abiFor(kind ports.ContractKind) (*abi.ABI, error) {
	parsed, ok := c.abis[kind]
	if !ok {
		return nil, fmt.Errorf("no ABI for contract kind %q", kind)
	}
	return parsed, nil
}

// Call implements ports.LedgerReader.
func (c *Client) Call(ctx context.Context, contract ports.Contract, method string, args ...any) (out []any, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveLedgerRead(method, time.Since(start), err)
		}
	}()

	parsed, err := c.abiFor(contract.Kind)
	if err != nil {
		return nil, err
	}
	if _, ok := parsed.Methods[method]; !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, contract.Kind, method)
	}

	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("read limiter: %w", err)
	}

	to := contract.Address
	raw, err := c.backend.CallContract(ctx, geth.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err = parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}

	c.logger.Debug().
		Str("contract", contract.Address.Hex()).
		Str("method", method).
		Dur("latency", time.Since(start)).
		Msg("ledger read")
	return out, nil
}

// Watch implements ports.LedgerReader by polling eth_getLogs from the block
// after the current head.
func (c *Client) Watch(ctx context.Context, contract ports.Contract, eventName string, onLogs func(n int)) (ports.Subscription, error) {
	parsed, err := c.abiFor(contract.Kind)
	if err != nil {
		return nil, err
	}
	ev, ok := parsed.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("%w: event %s.%s", ErrUnknownMethod, contract.Kind, eventName)
	}

	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("head block: %w", err)
	}

	p := &poller{
		client:   c,
		address:  contract.Address,
		topic:    ev.ID,
		event:    eventName,
		next:     head + 1,
		onLogs:   onLogs,
		interval: c.watchInterval,
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		return p.run(ctx, quit)
	}), nil
}

type poller struct {
	client   *Client
	address  common.Address
	topic    common.Hash
	event    string
	next     uint64
	onLogs   func(int)
	interval time.Duration
}

func (p *poller) run(ctx context.Context, quit <-chan struct{}) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return nil
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				// Transient RPC failures are retried on the next tick.
				p.client.logger.Warn().Err(err).Str("event", p.event).Msg("log poll failed")
			}
		}
	}
}

func (p *poller) poll(ctx context.Context) error {
	head, err := p.client.backend.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if head < p.next {
		return nil
	}

	logs, err := p.client.backend.FilterLogs(ctx, geth.FilterQuery{
		FromBlock: new(big.Int).SetUint64(p.next),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{p.address},
		Topics:    [][]common.Hash{{p.topic}},
	})
	if err != nil {
		return err
	}
	p.next = head + 1

	if len(logs) > 0 {
		p.client.logger.Debug().Str("event", p.event).Int("logs", len(logs)).Msg("contract event")
		p.onLogs(len(logs))
	}
	return nil
}

// Write implements ports.LedgerWriter. Writes are serialized so nonces are
// assigned in submission order.
func (c *Client) Write(ctx context.Context, contract ports.Contract, method string, args ...any) (receipt ports.Receipt, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveLedgerWrite(method, time.Since(start), err)
		}
	}()

	if c.auth == nil {
		return ports.Receipt{}, ErrNoSigner
	}
	parsed, err := c.abiFor(contract.Kind)
	if err != nil {
		return ports.Receipt{}, err
	}
	if _, ok := parsed.Methods[method]; !ok {
		return ports.Receipt{}, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, contract.Kind, method)
	}

	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	opts := *c.auth
	opts.Context = ctx
	bound := bind.NewBoundContract(contract.Address, *parsed, c.backend, c.backend, c.backend)

	tx, err := bound.Transact(&opts, method, args...)
	if err != nil {
		return ports.Receipt{}, fmt.Errorf("submit %s: %w", method, err)
	}
	c.logger.Info().
		Str("contract", contract.Address.Hex()).
		Str("method", method).
		Str("tx", tx.Hash().Hex()).
		Msg("transaction submitted")

	mined, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return ports.Receipt{}, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		return ports.Receipt{}, fmt.Errorf("%w: %s in block %s", ErrReverted, tx.Hash().Hex(), mined.BlockNumber)
	}

	return ports.Receipt{
		TxHash:      tx.Hash(),
		BlockNumber: mined.BlockNumber,
		GasUsed:     mined.GasUsed,
	}, nil
}

// From implements ports.LedgerWriter. It is the zero address without a signer.
func (c *Client) From() common.Address {
	if c.auth == nil {
		return common.Address{}
	}
	return c.auth.From
}

// HeadBlock implements ports.LedgerHealth.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

var (
	_ ports.LedgerReader = (*Client)(nil)
	_ ports.LedgerWriter = (*Client)(nil)
	_ ports.LedgerHealth = (*Client)(nil)
)
