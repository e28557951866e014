package metrics

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe(http.MethodGet, "/api/v1/orders", http.StatusOK, 120*time.Millisecond)
	m.Observe(http.MethodGet, "/api/v1/orders", http.StatusOK, 80*time.Millisecond)
	m.Observe(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "crm_http_requests_total", map[string]string{"route": "/api/v1/orders", "status": "200"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)

	got, err = fetchCounterValue(mfs, "crm_http_requests_total", map[string]string{"route": "unknown", "status": "404"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)
}

func TestAllocationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAllocationMetrics(reg)

	m.IncOutcome(OutcomeAllocated)
	m.IncOutcome(OutcomeDuplicate)
	m.IncOutcome(OutcomeAllocated)
	m.AddBonus(decimal.RequireFromString("1800.50"))
	m.AddBonus(decimal.Zero)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "crm_allocations_total", map[string]string{"outcome": OutcomeAllocated})
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)

	got, err = fetchCounterValue(mfs, "crm_bonus_amount_total", nil)
	require.NoError(t, err)
	assert.InDelta(t, 1800.50, got, 0.001)
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var httpMetrics *HTTPMetrics
	var allocationMetrics *AllocationMetrics

	assert.NotPanics(t, func() {
		httpMetrics.Observe(http.MethodGet, "/", http.StatusOK, time.Second)
		allocationMetrics.IncOutcome(OutcomeFailed)
		allocationMetrics.AddBonus(decimal.NewFromInt(10))
		NewHTTPMetrics(nil).Observe(http.MethodGet, "/", http.StatusOK, time.Second)
		Get().Allocations.IncOutcome(OutcomeAllocated)
	})
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchesLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue(), nil
			}
		}
		return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}

func matchesLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	for name, value := range labels {
		found := false
		for _, pair := range pairs {
			if pair.GetName() == name && pair.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
