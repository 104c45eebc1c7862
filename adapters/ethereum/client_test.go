package ethereum_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/artpar/tacoscan/adapters/ethereum"
	"github.com/artpar/tacoscan/ports"
)

// fakeBackend implements the calls the adapter makes; anything else panics
// through the nil embedded interface.
type fakeBackend struct {
	ethereum.Backend

	mu      sync.Mutex
	head    uint64
	calls   []geth.CallMsg
	result  []byte
	logs    int
	queries []geth.FilterQuery
}

func (f *fakeBackend) CallContract(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	return f.result, nil
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q geth.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	out := make([]types.Log, f.logs)
	f.logs = 0
	return out, nil
}

func (f *fakeBackend) advance(blocks uint64, logs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head += blocks
	f.logs += logs
}

func TestLoadABIs(t *testing.T) {
	abis, err := ethereum.LoadABIs()
	if err != nil {
		t.Fatalf("LoadABIs() error: %v", err)
	}

	want := map[ports.ContractKind][]string{
		ports.FeeModel: {
			"startOfSubscription", "subscriptionPeriodDuration", "yellowPeriodDuration",
			"redPeriodDuration", "getCurrentPeriodNumber", "billingInfo", "isPeriodPaid",
			"baseFees", "encryptorFees", "maxNodes", "initialBaseFeeRate", "encryptorFeeRate",
			"usedEncryptorSlots", "feeToken", "payForEncryptorSlots", "payForSubscription",
		},
		ports.AccessController: {"authorize", "deauthorize", "isAddressAuthorized"},
		ports.FeeToken:         {"approve", "allowance", "balanceOf"},
		ports.Coordinator:      {"rituals", "timeout"},
	}
	for kind, methods := range want {
		parsed, ok := abis[kind]
		if !ok {
			t.Fatalf("missing ABI for %s", kind)
		}
		for _, m := range methods {
			if _, ok := parsed.Methods[m]; !ok {
				t.Errorf("%s ABI missing method %s", kind, m)
			}
		}
	}

	for _, ev := range []string{"EncryptorSlotsPaid", "SubscriptionPaid"} {
		if _, ok := abis[ports.FeeModel].Events[ev]; !ok {
			t.Errorf("fee model ABI missing event %s", ev)
		}
	}
}

func TestClient_Call(t *testing.T) {
	abis, _ := ethereum.LoadABIs()
	method := abis[ports.FeeModel].Methods["billingInfo"]
	packed, err := method.Outputs.Pack(true, big.NewInt(12))
	if err != nil {
		t.Fatal(err)
	}

	backend := &fakeBackend{result: packed}
	c, err := ethereum.New(backend)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	addr := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	out, err := c.Call(context.Background(), ports.Contract{Kind: ports.FeeModel, Address: addr}, "billingInfo", big.NewInt(3))
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if len(out) != 2 || out[0] != true || out[1].(*big.Int).Int64() != 12 {
		t.Errorf("outputs = %v", out)
	}

	if len(backend.calls) != 1 {
		t.Fatalf("backend calls = %d", len(backend.calls))
	}
	msg := backend.calls[0]
	if *msg.To != addr {
		t.Errorf("call sent to %s", msg.To.Hex())
	}
	if !bytes.Equal(msg.Data[:4], method.ID) {
		t.Errorf("selector = %x, want %x", msg.Data[:4], method.ID)
	}
}

func TestClient_CallErrors(t *testing.T) {
	c, _ := ethereum.New(&fakeBackend{})
	ctx := context.Background()

	_, err := c.Call(ctx, ports.Contract{Kind: ports.FeeModel}, "nope")
	if !errors.Is(err, ethereum.ErrUnknownMethod) {
		t.Errorf("unknown method error = %v", err)
	}

	_, err = c.Call(ctx, ports.Contract{Kind: ports.FeeModel}, "billingInfo", "not a number")
	if err == nil {
		t.Error("expected pack error")
	}

	_, err = c.Call(ctx, ports.Contract{Kind: "other"}, "billingInfo")
	if err == nil {
		t.Error("expected error for unknown contract kind")
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	reads  []string
	writes []string
}

func (o *recordingObserver) ObserveLedgerRead(method string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reads = append(o.reads, method)
}

func (o *recordingObserver) ObserveLedgerWrite(method string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, method)
}

func TestClient_WriteWithoutSigner(t *testing.T) {
	obs := &recordingObserver{}
	c, _ := ethereum.New(&fakeBackend{}, ethereum.WithObserver(obs))

	_, err := c.Write(context.Background(), ports.Contract{Kind: ports.FeeToken}, "approve")
	if !errors.Is(err, ethereum.ErrNoSigner) {
		t.Errorf("Write() error = %v, want ErrNoSigner", err)
	}
	if (c.From() != common.Address{}) {
		t.Errorf("From() = %s, want zero address", c.From().Hex())
	}
	if len(obs.writes) != 1 || obs.writes[0] != "approve" {
		t.Errorf("observed writes = %v", obs.writes)
	}
}

func TestClient_Signer(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	c, err := ethereum.New(&fakeBackend{}, ethereum.WithKey(key, 137))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got, want := c.From(), crypto.PubkeyToAddress(key.PublicKey); got != want {
		t.Errorf("From() = %s, want %s", got.Hex(), want.Hex())
	}

	if _, err := ethereum.New(&fakeBackend{}, ethereum.WithSigner("0xnot-a-key", 137)); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestClient_OptionValidation(t *testing.T) {
	if _, err := ethereum.New(&fakeBackend{}, ethereum.WithReadLimit(0, 1)); err == nil {
		t.Error("expected error for zero read limit")
	}
	if _, err := ethereum.New(&fakeBackend{}, ethereum.WithWatchInterval(0)); err == nil {
		t.Error("expected error for zero watch interval")
	}
}

func TestClient_Watch(t *testing.T) {
	backend := &fakeBackend{head: 100}
	c, _ := ethereum.New(backend, ethereum.WithWatchInterval(5*time.Millisecond))

	got := make(chan int, 4)
	sub, err := c.Watch(context.Background(), ports.Contract{Kind: ports.FeeModel}, "SubscriptionPaid", func(n int) {
		got <- n
	})
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	defer sub.Unsubscribe()

	backend.advance(2, 3)

	select {
	case n := <-got:
		if n != 3 {
			t.Errorf("onLogs(%d), want 3", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no logs delivered")
	}

	backend.mu.Lock()
	first := backend.queries[0]
	backend.mu.Unlock()
	if first.FromBlock.Uint64() != 101 {
		t.Errorf("first query from block %s, want 101", first.FromBlock)
	}
}

func TestClient_WatchUnknownEvent(t *testing.T) {
	c, _ := ethereum.New(&fakeBackend{})
	_, err := c.Watch(context.Background(), ports.Contract{Kind: ports.FeeModel}, "Nope", func(int) {})
	if !errors.Is(err, ethereum.ErrUnknownMethod) {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestClient_HeadBlock(t *testing.T) {
	c, _ := ethereum.New(&fakeBackend{head: 42})
	n, err := c.HeadBlock(context.Background())
	if err != nil || n != 42 {
		t.Errorf("HeadBlock() = %d, %v", n, err)
	}
}
