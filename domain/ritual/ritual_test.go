package ritual_test

import (
	"testing"

	"github.com/artpar/tacoscan/domain/ritual"
)

func base() ritual.Ritual {
	return ritual.Ritual{
		InitTimestamp: 1000,
		EndTimestamp:  5000,
		DKGSize:       4,
		Threshold:     3,
	}
}

func TestPhaseAt(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ritual.Ritual)
		now     int64
		timeout uint32
		want    ritual.Phase
	}{
		{"not initiated", func(r *ritual.Ritual) { r.InitTimestamp = 0 }, 1500, 0, ritual.PhaseNonInitiated},
		{"awaiting transcripts", func(r *ritual.Ritual) { r.TotalTranscripts = 2 }, 1500, 3600, ritual.PhaseAwaitingTranscripts},
		{"awaiting aggregations", func(r *ritual.Ritual) { r.TotalTranscripts = 4; r.TotalAggregations = 1 }, 1500, 3600, ritual.PhaseAwaitingAggregations},
		{"timeout", func(r *ritual.Ritual) { r.TotalTranscripts = 2 }, 1000 + 3601, 3600, ritual.PhaseTimeout},
		{"no timeout configured", func(r *ritual.Ritual) { r.TotalTranscripts = 2 }, 100000, 0, ritual.PhaseAwaitingTranscripts},
		{"invalid", func(r *ritual.Ritual) { r.TotalTranscripts = 4; r.TotalAggregations = 4; r.AggregationMismatch = true }, 1500, 0, ritual.PhaseInvalid},
		{"active", func(r *ritual.Ritual) { r.TotalTranscripts = 4; r.TotalAggregations = 4 }, 5000, 3600, ritual.PhaseActive},
		{"expired", func(r *ritual.Ritual) { r.TotalTranscripts = 4; r.TotalAggregations = 4 }, 5001, 3600, ritual.PhaseExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(&r)
			if got := ritual.PhaseAt(r, tt.now, tt.timeout); got != tt.want {
				t.Errorf("PhaseAt() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPhase_Label(t *testing.T) {
	if got := ritual.PhaseAwaitingTranscripts.Label(); got != "Awaiting transcripts" {
		t.Errorf("Label() = %q", got)
	}
	if got := ritual.Phase("x").Label(); got != "Unknown" {
		t.Errorf("Label() = %q", got)
	}
}

func TestProgress(t *testing.T) {
	r := base()
	r.TotalTranscripts = 4
	r.TotalAggregations = 2

	p := ritual.ProgressOf(r)
	if p.Participants != 4 || p.Threshold != 3 {
		t.Errorf("progress = %+v", p)
	}
	if got := p.Percent(); got != 75 {
		t.Errorf("Percent() = %d, want 75", got)
	}
	if got := (ritual.Progress{}).Percent(); got != 0 {
		t.Errorf("empty Percent() = %d", got)
	}
}
