package observability

import (
	"strconv"
	"sync"
	"time"
)

// Security decision counters.
const (
	CounterClaimsWon           = "claims_won"
	CounterClaimsLost          = "claims_lost"
	CounterVerificationsPassed = "verifications_passed"
	CounterVerificationsFailed = "verifications_failed"
	CounterLockouts            = "lockouts"
	CounterResetsExecuted      = "resets_executed"
	CounterResetsDenied        = "resets_denied"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	decisions    map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		decisions:    make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordDecision increments a security decision counter.
func (m *Metrics) RecordDecision(counter string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[counter]++
}

// DecisionCounts returns a snapshot of the security decision counters.
func (m *Metrics) DecisionCounts() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]int64, len(m.decisions))
	for k, v := range m.decisions {
		snapshot[k] = v
	}
	return snapshot
}
