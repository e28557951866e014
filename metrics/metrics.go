package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Allocation outcomes recorded by AllocationMetrics
const (
	OutcomeAllocated  = "allocated"
	OutcomeDuplicate  = "duplicate"
	OutcomeRejected   = "rejected"
	OutcomeFailed     = "failed"
	OutcomeNormalized = "normalized"
)

// Set groups every collector the API exports
type Set struct {
	HTTP        *HTTPMetrics
	Allocations *AllocationMetrics
}

var global = &Set{}

// New registers all collectors on the provided registerer
func New(reg prometheus.Registerer) *Set {
	return &Set{
		HTTP:        NewHTTPMetrics(reg),
		Allocations: NewAllocationMetrics(reg),
	}
}

// Init installs the process-wide collector set
func Init(set *Set) {
	if set == nil {
		set = &Set{}
	}
	global = set
}

// Get returns the process-wide collector set; its collectors may be nil and are safe to call
func Get() *Set {
	return global
}

// HTTPMetrics records request counts and latencies
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP metrics on the provided registerer
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_http_requests_total",
		Help: "HTTP requests processed, by method, route and status.",
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	reg.MustRegister(requests, duration)
	return &HTTPMetrics{
		requests: requests,
		duration: duration,
	}
}

// Observe records one finished request
func (m *HTTPMetrics) Observe(method, route string, status int, elapsed time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	route = normalizeLabel(route)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// AllocationMetrics records order completion outcomes and distributed bonus money
type AllocationMetrics struct {
	outcomes *prometheus.CounterVec
	bonus    prometheus.Counter
}

// NewAllocationMetrics registers the allocation metrics on the provided registerer
func NewAllocationMetrics(reg prometheus.Registerer) *AllocationMetrics {
	if reg == nil {
		return &AllocationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_allocations_total",
		Help: "Order completion allocations, by outcome.",
	}, []string{"outcome"})
	bonus := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crm_bonus_amount_total",
		Help: "Sum of bonus money allocated to masters.",
	})
	reg.MustRegister(outcomes, bonus)
	return &AllocationMetrics{
		outcomes: outcomes,
		bonus:    bonus,
	}
}

// IncOutcome increments the counter for the given outcome
func (m *AllocationMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddBonus adds distributed bonus money
func (m *AllocationMetrics) AddBonus(amount decimal.Decimal) {
	if m == nil || m.bonus == nil || !amount.IsPositive() {
		return
	}
	m.bonus.Add(amount.InexactFloat64())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
