package app_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/tacoscan/adapters/clock"
	"github.com/artpar/tacoscan/adapters/memory"
	"github.com/artpar/tacoscan/app"
	"github.com/artpar/tacoscan/domain/ritual"
	"github.com/artpar/tacoscan/domain/subscription"
	"github.com/artpar/tacoscan/ports"
)

var (
	initiatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	authorityAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// ritualOutputs mirrors the decoded outputs of Coordinator.rituals.
func ritualOutputs(initTs, endTs uint32, dkgSize, aggregations uint16, mismatch bool) []any {
	publicKey := struct {
		X *big.Int `json:"x"`
		Y *big.Int `json:"y"`
	}{X: big.NewInt(11), Y: big.NewInt(12)}

	return []any{
		initiatorAddr,
		initTs,
		endTs,
		dkgSize, // transcripts
		aggregations,
		authorityAddr,
		dkgSize,
		uint16(3),
		mismatch,
		accessAddr,
		publicKey,
		[]byte{0x01},
		feeModelAddr,
	}
}

func newRitualService(l *memory.Ledger, now int64) *app.RitualService {
	return app.NewRitualService(l, coordAddr, clock.NewFakeUnix(now), zerolog.Nop())
}

func TestRitualService_Get(t *testing.T) {
	l := memory.NewLedger()
	l.Set(ports.Coordinator, "rituals", ritualOutputs(100, 500, 4, 4, false)...)

	r, err := newRitualService(l, 200).Get(context.Background(), bi(7))
	require.NoError(t, err)

	assert.Equal(t, int64(7), r.ID.Int64())
	assert.Equal(t, initiatorAddr, r.Initiator)
	assert.Equal(t, uint32(100), r.InitTimestamp)
	assert.Equal(t, uint32(500), r.EndTimestamp)
	assert.Equal(t, uint16(4), r.DKGSize)
	assert.Equal(t, uint16(3), r.Threshold)
	assert.Equal(t, authorityAddr, r.Authority)
	assert.Equal(t, accessAddr, r.AccessController)
	assert.Equal(t, feeModelAddr, r.FeeModel)
	assert.Equal(t, int64(11), r.PublicKeyX.Int64())
	assert.Equal(t, int64(12), r.PublicKeyY.Int64())
	assert.True(t, r.Exists())

	calls := l.Reads("rituals")
	require.Len(t, calls, 1)
	assert.Equal(t, coordAddr, calls[0].Contract.Address)
}

func TestRitualService_Describe(t *testing.T) {
	tests := []struct {
		name         string
		now          int64
		aggregations uint16
		mismatch     bool
		want         ritual.Phase
	}{
		{"finalized", 200, 4, false, ritual.PhaseActive},
		{"finalized past end", 600, 4, false, ritual.PhaseExpired},
		{"awaiting aggregations", 120, 2, false, ritual.PhaseAwaitingAggregations},
		{"timed out", 200, 2, false, ritual.PhaseTimeout},
		{"mismatch", 120, 4, true, ritual.PhaseInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := memory.NewLedger()
			l.Set(ports.Coordinator, "rituals", ritualOutputs(100, 500, 4, tt.aggregations, tt.mismatch)...)
			l.Set(ports.Coordinator, "timeout", uint32(60))

			d, err := newRitualService(l, tt.now).Describe(context.Background(), bi(7))
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Phase)
			assert.Equal(t, uint32(60), d.Timeout)
			assert.Equal(t, uint16(4), d.Progress.Participants)
		})
	}
}

func TestRitualService_DescribeWithoutTimeout(t *testing.T) {
	l := memory.NewLedger()
	l.Set(ports.Coordinator, "rituals", ritualOutputs(100, 500, 4, 2, false)...)
	l.Fail("timeout", errors.New("rpc down"))

	d, err := newRitualService(l, 10_000).Describe(context.Background(), bi(7))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), d.Timeout)
	assert.Equal(t, ritual.PhaseAwaitingAggregations, d.Phase)
}

func TestRitualService_Errors(t *testing.T) {
	ctx := context.Background()

	unconfigured := app.NewRitualService(memory.NewLedger(), common.Address{}, clock.NewFakeUnix(0), zerolog.Nop())
	assert.False(t, unconfigured.Configured())
	_, err := unconfigured.Get(ctx, bi(7))
	assert.ErrorIs(t, err, subscription.ErrMissingConfiguration)

	l := memory.NewLedger()
	l.Fail("rituals", errors.New("rpc down"))
	_, err = newRitualService(l, 0).Get(ctx, bi(7))
	assert.ErrorIs(t, err, subscription.ErrReadUnavailable)

	short := memory.NewLedger()
	short.Set(ports.Coordinator, "rituals", initiatorAddr, uint32(1))
	_, err = newRitualService(short, 0).Get(ctx, bi(7))
	assert.ErrorIs(t, err, subscription.ErrReadUnavailable)
}

func TestParseRitualID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"7", 7, false},
		{" 42 ", 42, false},
		{"0", 0, false},
		{"4294967295", 4294967295, false},
		{"4294967296", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		id, err := app.ParseRitualID(tt.raw)
		if tt.wantErr {
			assert.ErrorIs(t, err, subscription.ErrInvalidInput, "ParseRitualID(%q)", tt.raw)
			continue
		}
		require.NoError(t, err, "ParseRitualID(%q)", tt.raw)
		assert.Equal(t, tt.want, id.Int64())
	}
}
