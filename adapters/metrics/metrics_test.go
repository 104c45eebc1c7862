package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/artpar/tacoscan/adapters/metrics"
)

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m.RequestsTotal == nil || m.LedgerReads == nil || m.Payments == nil || m.SubscriptionState == nil {
		t.Fatal("collector fields not initialized")
	}
}

func TestObserveLedgerRead(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveLedgerRead("maxNodes", 20*time.Millisecond, nil)
	m.ObserveLedgerRead("maxNodes", 30*time.Millisecond, errors.New("rpc"))
	m.ObserveLedgerRead("baseFees", 10*time.Millisecond, nil)

	f := family(t, reg, "tacoscan_ledger_reads_total")
	if len(f.GetMetric()) != 3 {
		t.Errorf("expected 3 series, got %d", len(f.GetMetric()))
	}
	h := family(t, reg, "tacoscan_ledger_read_duration_seconds")
	var samples uint64
	for _, m := range h.GetMetric() {
		samples += m.GetHistogram().GetSampleCount()
	}
	if samples != 3 {
		t.Errorf("expected 3 samples, got %d", samples)
	}
}

func TestObserveLedgerWrite(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveLedgerWrite("approve", time.Second, nil)

	f := family(t, reg, "tacoscan_ledger_writes_total")
	labels := f.GetMetric()[0].GetLabel()
	got := map[string]string{}
	for _, l := range labels {
		got[l.GetName()] = l.GetValue()
	}
	if got["method"] != "approve" || got["result"] != "ok" {
		t.Errorf("labels = %v", got)
	}
}

func TestSetStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.SetStatus("7", "active", 120)
	m.SetStatus("7", "grace", 30)

	f := family(t, reg, "tacoscan_subscription_state")
	if len(f.GetMetric()) != 4 {
		t.Fatalf("expected one series per state, got %d", len(f.GetMetric()))
	}
	for _, series := range f.GetMetric() {
		var state string
		for _, l := range series.GetLabel() {
			if l.GetName() == "state" {
				state = l.GetValue()
			}
		}
		want := 0.0
		if state == "grace" {
			want = 1
		}
		if series.GetGauge().GetValue() != want {
			t.Errorf("state %s = %v, want %v", state, series.GetGauge().GetValue(), want)
		}
	}

	left := family(t, reg, "tacoscan_subscription_time_left_seconds")
	if v := left.GetMetric()[0].GetGauge().GetValue(); v != 30 {
		t.Errorf("time left = %v", v)
	}
}

func TestPaymentsAndChecks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObservePayment("subscription", "paid")
	m.AddPaymentsInFlight(1)
	m.AddPaymentsInFlight(-1)
	m.ObserveAuthorizationCheck(true)
	m.ObserveAuthorizationCheck(true)
	m.ObserveRefresh("7", "tick")

	if v := family(t, reg, "tacoscan_payments_in_flight").GetMetric()[0].GetGauge().GetValue(); v != 0 {
		t.Errorf("in flight = %v", v)
	}
	if v := family(t, reg, "tacoscan_authorization_checks_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("checks = %v", v)
	}
	if v := family(t, reg, "tacoscan_dashboard_refreshes_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("refreshes = %v", v)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/health", "/health"},
		{"/api/rituals/42", "/api/rituals/:id"},
		{"/api/rituals/42/payments", "/api/rituals/:id/payments"},
		{"/api/rituals/abc", "/api/rituals/abc"},
		{"/", "/"},
	}

	for _, tt := range tests {
		if got := metrics.NormalizePath(tt.input); got != tt.expected {
			t.Errorf("NormalizePath(%s) = %s, want %s", tt.input, got, tt.expected)
		}
	}

	longPath := "/very/long/path/that/exceeds/fifty/characters/in/total/length"
	got := metrics.NormalizePath(longPath)
	if len(got) != 53 || got[50:] != "..." {
		t.Errorf("NormalizePath should truncate long paths, got %q", got)
	}
}
