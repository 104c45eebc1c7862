// Package ritual provides the DKG ritual value type and pure functions for
// deriving its lifecycle phase and participant progress.
package ritual

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ritual is the coordinator record of one DKG ritual (value type).
type Ritual struct {
	ID                  *big.Int
	Initiator           common.Address
	InitTimestamp       uint32
	EndTimestamp        uint32
	TotalTranscripts    uint16
	TotalAggregations   uint16
	Authority           common.Address
	DKGSize             uint16
	Threshold           uint16
	AggregationMismatch bool
	AccessController    common.Address
	PublicKeyX          *big.Int
	PublicKeyY          *big.Int
	FeeModel            common.Address
}

// Exists reports whether the coordinator returned an initiated ritual.
func (r Ritual) Exists() bool {
	return r.InitTimestamp != 0
}

// Phase is the lifecycle phase of a ritual.
type Phase string

const (
	PhaseNonInitiated         Phase = "non_initiated"
	PhaseAwaitingTranscripts  Phase = "awaiting_transcripts"
	PhaseAwaitingAggregations Phase = "awaiting_aggregations"
	PhaseTimeout              Phase = "timeout"
	PhaseInvalid              Phase = "invalid"
	PhaseActive               Phase = "active"
	PhaseExpired              Phase = "expired"
)

// Label returns the display label for the phase.
func (p Phase) Label() string {
	switch p {
	case PhaseNonInitiated:
		return "Not initiated"
	case PhaseAwaitingTranscripts:
		return "Awaiting transcripts"
	case PhaseAwaitingAggregations:
		return "Awaiting aggregations"
	case PhaseTimeout:
		return "Timeout"
	case PhaseInvalid:
		return "Invalid"
	case PhaseActive:
		return "Active"
	case PhaseExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Finalized reports whether every participant posted its aggregation.
func (r Ritual) Finalized() bool {
	return r.DKGSize > 0 && r.TotalAggregations == r.DKGSize && !r.AggregationMismatch
}

// PhaseAt derives the phase at now (unix seconds). timeout is the coordinator's
// DKG timeout in seconds; a zero timeout disables the timeout phase.
// This is a PURE function.
func PhaseAt(r Ritual, now int64, timeout uint32) Phase {
	switch {
	case !r.Exists():
		return PhaseNonInitiated
	case r.AggregationMismatch:
		return PhaseInvalid
	case r.Finalized():
		if now > int64(r.EndTimestamp) {
			return PhaseExpired
		}
		return PhaseActive
	case timeout > 0 && now > int64(r.InitTimestamp)+int64(timeout):
		return PhaseTimeout
	case r.TotalTranscripts < r.DKGSize:
		return PhaseAwaitingTranscripts
	default:
		return PhaseAwaitingAggregations
	}
}

// Progress counts posted transcripts and aggregations against the DKG size.
type Progress struct {
	Transcripts  uint16
	Aggregations uint16
	Participants uint16
	Threshold    uint16
}

// ProgressOf returns the participant progress of r.
func ProgressOf(r Ritual) Progress {
	return Progress{
		Transcripts:  r.TotalTranscripts,
		Aggregations: r.TotalAggregations,
		Participants: r.DKGSize,
		Threshold:    r.Threshold,
	}
}

// Percent returns the share of required submissions already posted, 0..100.
// Each participant posts one transcript and one aggregation.
func (p Progress) Percent() int {
	if p.Participants == 0 {
		return 0
	}
	done := int(p.Transcripts) + int(p.Aggregations)
	return done * 100 / (2 * int(p.Participants))
}
