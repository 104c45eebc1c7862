// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Ledger Ports
// -----------------------------------------------------------------------------

// Contract names a deployed contract and the ABI used to talk to it.
type Contract struct {
	Kind    ContractKind
	Address common.Address
}

// ContractKind selects the ABI of a contract.
type ContractKind string

const (
	FeeModel         ContractKind = "fee_model"
	AccessController ContractKind = "access_controller"
	FeeToken         ContractKind = "fee_token"
	Coordinator      ContractKind = "coordinator"
)

// LedgerReader returns typed values for named contract queries.
type LedgerReader interface {
	// Call invokes a view method and returns its decoded outputs in ABI order.
	Call(ctx context.Context, c Contract, method string, args ...any) ([]any, error)

	// Watch invokes onLogs with the number of new logs each time the contract
	// emits event. The watch runs until ctx is cancelled or Unsubscribe is called.
	Watch(ctx context.Context, c Contract, event string, onLogs func(n int)) (Subscription, error)
}

// Subscription is a running event watch.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Receipt describes a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber *big.Int
	GasUsed     uint64
}

// LedgerWriter submits mutating contract calls.
type LedgerWriter interface {
	// Write submits method and blocks until it is mined or fails.
	// A reverted transaction is an error.
	Write(ctx context.Context, c Contract, method string, args ...any) (Receipt, error)

	// From returns the account that signs writes.
	From() common.Address
}

// LedgerHealth reports whether the ledger endpoint is reachable.
type LedgerHealth interface {
	HeadBlock(ctx context.Context) (uint64, error)
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// PaymentOutcome is the terminal state of a payment attempt.
type PaymentOutcome string

const (
	OutcomePending       PaymentOutcome = "pending"
	OutcomePaid          PaymentOutcome = "paid"
	OutcomeApproveFailed PaymentOutcome = "approve_failed"
	OutcomePartial       PaymentOutcome = "partial"
)

// PaymentRecord is one journaled payment attempt.
type PaymentRecord struct {
	ID          string
	RitualID    string
	Kind        string // subscription.PaymentKind
	Period      *big.Int
	Slots       *big.Int
	Total       *big.Int
	Outcome     PaymentOutcome
	ApproveTx   string
	PayTx       string
	Error       string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// PaymentLog persists payment attempts. It is an action log, not a cache of
// ledger state.
type PaymentLog interface {
	// Create stores a new attempt.
	Create(ctx context.Context, r PaymentRecord) error

	// Update replaces the mutable fields of an attempt.
	Update(ctx context.Context, r PaymentRecord) error

	// ListByRitual returns attempts for a ritual, newest first.
	ListByRitual(ctx context.Context, ritualID string, limit int) ([]PaymentRecord, error)
}
