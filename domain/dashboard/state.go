// Package dashboard provides the reducer behind a subscription dashboard session.
// Apply is a pure transition; callers own the State and serialize access to it.
package dashboard

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/artpar/tacoscan/domain/encryptor"
	"github.com/artpar/tacoscan/domain/subscription"
)

// ActionType identifies a state transition.
type ActionType string

const (
	SetData    ActionType = "SET_DATA"
	SetError   ActionType = "SET_ERROR"
	SetLoading ActionType = "SET_LOADING"
	Reset      ActionType = "RESET"

	// Write errors live apart from read errors: refreshes never clear them.
	SetWriteError     ActionType = "SET_WRITE_ERROR"
	DismissWriteError ActionType = "DISMISS_WRITE_ERROR"
)

// Field names a raw on-chain value held by the store.
type Field string

const (
	FieldStartOfSubscription Field = "startOfSubscription"
	FieldPeriodDuration      Field = "subscriptionPeriodDuration"
	FieldYellowDuration      Field = "yellowPeriodDuration"
	FieldRedDuration         Field = "redPeriodDuration"
	FieldLedgerPeriod        Field = "getCurrentPeriodNumber"

	// FieldPeriod moves the session to a new current period. Period-keyed
	// values of the previous period are dropped.
	FieldPeriod Field = "period"

	FieldCurrentPaid    Field = "currentPeriodPaid"
	FieldNextPaid       Field = "nextPeriodPaid"
	FieldCurrentBilling Field = "currentBillingInfo"
	FieldNextBilling    Field = "nextBillingInfo"
	FieldNextBaseFees   Field = "baseFees"

	FieldMaxNodes           Field = "maxNodes"
	FieldInitialBaseFeeRate Field = "initialBaseFeeRate"
	FieldEncryptorFeeRate   Field = "encryptorFeeRate"
	FieldUsedSlots          Field = "usedEncryptorSlots"
	FieldFeeToken           Field = "feeToken"

	// FieldSlotQuery sets the slot count whose fee is being estimated.
	FieldSlotQuery Field = "slotQuery"
	FieldSlotFees  Field = "encryptorFees"

	FieldAuthorization  Field = "authorization"
	FieldPaymentPending Field = "paymentPending"
)

// Action is one store transition.
// Key carries the argument a keyed read was issued with (period number or
// slot count); the result is dropped when the key is no longer current.
type Action struct {
	Type  ActionType
	Field Field
	Value any
	Key   *big.Int
	Err   string
}

// State is the raw field set of one dashboard session (value type).
// Nil pointers mean the value has not been read yet.
type State struct {
	Terms        subscription.Terms
	LedgerPeriod *big.Int

	Period         *big.Int
	CurrentPaid    *bool
	NextPaid       *bool
	CurrentBilling *subscription.BillingInfo
	NextBilling    *subscription.BillingInfo
	NextBaseFees   *big.Int

	MaxNodes           *big.Int
	InitialBaseFeeRate *big.Int
	EncryptorFeeRate   *big.Int
	UsedSlots          *big.Int
	FeeToken           *common.Address

	SlotQuery *big.Int
	SlotFees  *big.Int

	Authorized     encryptor.Set
	PaymentPending bool
	Loading        bool
	Error          string // last read failure, cleared by the next SET_DATA
	WriteError     string // last failed write, cleared by a new write or a dismiss
}

// Initial returns the state of a fresh session.
func Initial() State {
	return State{Authorized: encryptor.NewSet(), Loading: true}
}

// Data builds a SET_DATA action.
func Data(field Field, value any) Action {
	return Action{Type: SetData, Field: field, Value: value}
}

// KeyedData builds a SET_DATA action for a read issued with key.
func KeyedData(field Field, key *big.Int, value any) Action {
	return Action{Type: SetData, Field: field, Value: value, Key: key}
}

// Failed builds a SET_ERROR action.
func Failed(msg string) Action {
	return Action{Type: SetError, Err: msg}
}

// Loading builds a SET_LOADING action.
func Loading() Action {
	return Action{Type: SetLoading}
}

// WriteFailed builds a SET_WRITE_ERROR action. An empty msg clears the error
// when a new write starts.
func WriteFailed(msg string) Action {
	return Action{Type: SetWriteError, Err: msg}
}

// Dismiss builds a DISMISS_WRITE_ERROR action.
func Dismiss() Action {
	return Action{Type: DismissWriteError}
}

// Apply returns the state after action. The input state is never modified.
// SET_DATA clears loading and error, SET_ERROR stores the message and clears
// loading, SET_LOADING marks loading and RESET restores Initial. Write errors
// change only through SET_WRITE_ERROR and DISMISS_WRITE_ERROR. Values of the
// wrong type and stale keyed results leave the state unchanged.
// This is a PURE function.
func Apply(s State, a Action) State {
	switch a.Type {
	case SetData:
		next, ok := setField(s, a)
		if !ok {
			return s
		}
		next.Loading = false
		next.Error = ""
		return next
	case SetError:
		s.Error = a.Err
		s.Loading = false
		return s
	case SetLoading:
		s.Loading = true
		return s
	case SetWriteError:
		s.WriteError = a.Err
		return s
	case DismissWriteError:
		s.WriteError = ""
		return s
	case Reset:
		return Initial()
	default:
		return s
	}
}

func setField(s State, a Action) (State, bool) {
	switch a.Field {
	case FieldStartOfSubscription:
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.Terms.Start = v })
	case FieldPeriodDuration:
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.Terms.PeriodDuration = v })
	case FieldYellowDuration:
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.Terms.YellowDuration = v })
	case FieldRedDuration:
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.Terms.RedDuration = v })
	case FieldLedgerPeriod:
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.LedgerPeriod = v })
	case FieldMaxNodes:
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.MaxNodes = v })
	case FieldInitialBaseFeeRate:
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.InitialBaseFeeRate = v })
	case FieldEncryptorFeeRate:
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.EncryptorFeeRate = v })
	case FieldUsedSlots:
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.UsedSlots = v })

	case FieldPeriod:
		v, ok := bigValue(a.Value)
		if !ok {
			return s, false
		}
		if s.Period != nil && s.Period.Cmp(v) == 0 {
			return s, true
		}
		s.Period = v
		s.CurrentPaid, s.NextPaid = nil, nil
		s.CurrentBilling, s.NextBilling = nil, nil
		s.NextBaseFees = nil
		return s, true

	case FieldCurrentPaid, FieldNextPaid:
		if !periodKeyCurrent(s, a) {
			return s, false
		}
		paid, ok := a.Value.(bool)
		if !ok {
			return s, false
		}
		if a.Field == FieldCurrentPaid {
			s.CurrentPaid = &paid
		} else {
			s.NextPaid = &paid
		}
		return s, true

	case FieldCurrentBilling, FieldNextBilling:
		if !periodKeyCurrent(s, a) {
			return s, false
		}
		info, ok := a.Value.(subscription.BillingInfo)
		if !ok {
			return s, false
		}
		if info.EncryptorSlots != nil {
			info.EncryptorSlots = new(big.Int).Set(info.EncryptorSlots)
		}
		if a.Field == FieldCurrentBilling {
			s.CurrentBilling = &info
		} else {
			s.NextBilling = &info
		}
		return s, true

	case FieldNextBaseFees:
		if !periodKeyCurrent(s, a) {
			return s, false
		}
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.NextBaseFees = v })

	case FieldFeeToken:
		addr, ok := a.Value.(common.Address)
		if !ok {
			return s, false
		}
		s.FeeToken = &addr
		return s, true

	case FieldSlotQuery:
		if a.Value == nil {
			s.SlotQuery, s.SlotFees = nil, nil
			return s, true
		}
		v, ok := bigValue(a.Value)
		if !ok {
			return s, false
		}
		if s.SlotQuery == nil || s.SlotQuery.Cmp(v) != 0 {
			s.SlotFees = nil
		}
		s.SlotQuery = v
		return s, true

	case FieldSlotFees:
		if a.Key == nil || s.SlotQuery == nil || s.SlotQuery.Cmp(a.Key) != 0 {
			return s, false
		}
		return withBig(s, a.Value, func(st *State, v *big.Int) { st.SlotFees = v })

	case FieldAuthorization:
		r, ok := a.Value.(encryptor.Result)
		if !ok {
			return s, false
		}
		s.Authorized = s.Authorized.Merge(r)
		return s, true

	case FieldPaymentPending:
		pending, ok := a.Value.(bool)
		if !ok {
			return s, false
		}
		s.PaymentPending = pending
		return s, true
	}
	return s, false
}

// periodKeyCurrent reports whether a period-keyed result still matches the
// tracked period. Current-period fields are keyed by Period, next-period
// fields by Period+1. Unkeyed results are accepted.
func periodKeyCurrent(s State, a Action) bool {
	if a.Key == nil {
		return true
	}
	if s.Period == nil {
		return false
	}
	want := s.Period
	switch a.Field {
	case FieldNextPaid, FieldNextBilling, FieldNextBaseFees:
		want = subscription.NextPeriod(s.Period)
	}
	return want.Cmp(a.Key) == 0
}

func withBig(s State, value any, set func(*State, *big.Int)) (State, bool) {
	v, ok := bigValue(value)
	if !ok {
		return s, false
	}
	set(&s, v)
	return s, true
}

// bigValue copies integer values into a fresh *big.Int.
func bigValue(value any) (*big.Int, bool) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, false
		}
		return new(big.Int).Set(v), true
	case int64:
		return big.NewInt(v), true
	case uint64:
		return new(big.Int).SetUint64(v), true
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), true
	case int:
		return big.NewInt(int64(v)), true
	default:
		return nil, false
	}
}
