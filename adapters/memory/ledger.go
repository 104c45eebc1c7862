// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/artpar/tacoscan/ports"
)

// Call records one ledger invocation.
type Call struct {
	Contract ports.Contract
	Method   string
	Args     []any
}

// Handler computes the outputs of a read or the failure of a write.
type Handler func(args []any) ([]any, error)

// Ledger is an in-memory ledger implementing ports.LedgerReader,
// ports.LedgerWriter and ports.LedgerHealth.
// Reads return the values registered with Set or Handle; an unregistered
// read fails. Writes succeed unless failed with Fail or Handle.
type Ledger struct {
	mu       sync.Mutex
	handlers map[string]Handler // by kind/method
	failures map[string]error   // by method
	reads    []Call
	writes   []Call
	watchers map[string][]*watch // by event
	from     common.Address
	head     uint64
	headErr  error
	nonce    uint64
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		handlers: make(map[string]Handler),
		failures: make(map[string]error),
		watchers: make(map[string][]*watch),
		from:     common.HexToAddress("0x00000000000000000000000000000000000000f0"),
		head:     1,
	}
}

func handlerKey(kind ports.ContractKind, method string) string {
	return string(kind) + "/" + method
}

// Set registers static outputs for a method.
func (l *Ledger) Set(kind ports.ContractKind, method string, outputs ...any) {
	l.Handle(kind, method, func([]any) ([]any, error) {
		return outputs, nil
	})
}

// Handle registers a handler for a method. For writes only the error is used.
func (l *Ledger) Handle(kind ports.ContractKind, method string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[handlerKey(kind, method)] = h
}

// Fail makes every read or write of method fail with err. A nil err clears it.
func (l *Ledger) Fail(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, method)
		return
	}
	l.failures[method] = err
}

// SetHead sets the head block number and the error HeadBlock returns.
func (l *Ledger) SetHead(n uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head, l.headErr = n, err
}

// Call implements ports.LedgerReader.
func (l *Ledger) Call(ctx context.Context, c ports.Contract, method string, args ...any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.reads = append(l.reads, Call{Contract: c, Method: method, Args: args})
	failure := l.failures[method]
	h := l.handlers[handlerKey(c.Kind, method)]
	l.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if h == nil {
		return nil, fmt.Errorf("no value registered for %s.%s", c.Kind, method)
	}
	return h(args)
}

// Write implements ports.LedgerWriter.
func (l *Ledger) Write(ctx context.Context, c ports.Contract, method string, args ...any) (ports.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.Receipt{}, err
	}

	l.mu.Lock()
	l.writes = append(l.writes, Call{Contract: c, Method: method, Args: args})
	failure := l.failures[method]
	h := l.handlers[handlerKey(c.Kind, method)]
	l.nonce++
	nonce := l.nonce
	l.head++
	block := l.head
	l.mu.Unlock()

	if failure != nil {
		return ports.Receipt{}, failure
	}
	if h != nil {
		if _, err := h(args); err != nil {
			return ports.Receipt{}, err
		}
	}

	return ports.Receipt{
		TxHash:      crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/%d", method, nonce))),
		BlockNumber: new(big.Int).SetUint64(block),
		GasUsed:     21000,
	}, nil
}

// From implements ports.LedgerWriter.
func (l *Ledger) From() common.Address {
	return l.from
}

// HeadBlock implements ports.LedgerHealth.
func (l *Ledger) HeadBlock(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head, l.headErr
}

// Reads returns the recorded reads of method, or all reads when method is empty.
func (l *Ledger) Reads(method string) []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return filterCalls(l.reads, method)
}

// Writes returns the recorded writes of method, or all writes when method is empty.
func (l *Ledger) Writes(method string) []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return filterCalls(l.writes, method)
}

// ResetCalls forgets recorded reads and writes.
func (l *Ledger) ResetCalls() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads, l.writes = nil, nil
}

func filterCalls(calls []Call, method string) []Call {
	var out []Call
	for _, c := range calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

type watch struct {
	onLogs func(int)
	done   chan struct{}
	once   sync.Once
	errs   chan error
}

func (w *watch) Unsubscribe() {
	w.once.Do(func() { close(w.done) })
}

func (w *watch) Err() <-chan error {
	return w.errs
}

// Watch implements ports.LedgerReader.
func (l *Ledger) Watch(ctx context.Context, c ports.Contract, event string, onLogs func(n int)) (ports.Subscription, error) {
	w := &watch{onLogs: onLogs, done: make(chan struct{}), errs: make(chan error)}

	l.mu.Lock()
	l.watchers[event] = append(l.watchers[event], w)
	l.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			w.Unsubscribe()
		case <-w.done:
		}
	}()
	return w, nil
}

// Emit delivers n logs of event to every active watcher and returns how many
// watchers were notified.
func (l *Ledger) Emit(event string, n int) int {
	l.mu.Lock()
	watchers := append([]*watch(nil), l.watchers[event]...)
	l.mu.Unlock()

	delivered := 0
	for _, w := range watchers {
		select {
		case <-w.done:
			continue
		default:
		}
		w.onLogs(n)
		delivered++
	}
	return delivered
}

var (
	_ ports.LedgerReader = (*Ledger)(nil)
	_ ports.LedgerWriter = (*Ledger)(nil)
	_ ports.LedgerHealth = (*Ledger)(nil)
)
