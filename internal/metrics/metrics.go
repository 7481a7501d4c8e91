package metrics

import (
	"sort"
	"sync"
	"time"
)

// ForwardRule keys forward proxy traffic, which matched no rule.
const ForwardRule = "(forward)"

type Metrics struct {
	mutex            sync.RWMutex
	rewrites         map[string]int64
	cookieRewrites   map[string]int64
	upstreamFailures map[string]int64
	responseTimes    map[string][]time.Duration
	statusCodes      map[string]map[int]int64
	denied           int64
	passThrough      int64
	startTime        time.Time
}

type Snapshot struct {
	TotalRequests int64                  `json:"total_requests"`
	Denied        int64                  `json:"denied"`
	PassThrough   int64                  `json:"pass_through"`
	Uptime        time.Duration          `json:"uptime"`
	Rules         map[string]RuleMetrics `json:"rules"`
}

type RuleMetrics struct {
	Rewrites         int64         `json:"rewrites"`
	CookieRewrites   int64         `json:"cookie_rewrites"`
	UpstreamFailures int64         `json:"upstream_failures"`
	Responses        int64         `json:"responses"`
	AvgResponse      time.Duration `json:"avg_response"`
	P50Response      time.Duration `json:"p50_response"`
	P95Response      time.Duration `json:"p95_response"`
	P99Response      time.Duration `json:"p99_response"`
	StatusCodes      map[int]int64 `json:"status_codes"`
}

func (m *Metrics) RecordRewrite(rule string, viaCookie bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if viaCookie {
		m.cookieRewrites[rule]++
		return
	}
	m.rewrites[rule]++
}

func (m *Metrics) RecordDenied() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.denied++
}

func (m *Metrics) RecordPassThrough() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.passThrough++
}

func (m *Metrics) RecordUpstreamFailure(rule string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.upstreamFailures[ruleKey(rule)]++
}

func (m *Metrics) RecordResponse(rule string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	rule = ruleKey(rule)
	m.responseTimes[rule] = append(m.responseTimes[rule], duration)

	if len(m.responseTimes[rule]) > 1000 {
		m.responseTimes[rule] = m.responseTimes[rule][1:]
	}

	if m.statusCodes[rule] == nil {
		m.statusCodes[rule] = make(map[int]int64)
	}
	m.statusCodes[rule][statusCode]++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Denied:      m.denied,
		PassThrough: m.passThrough,
		Uptime:      time.Since(m.startTime),
		Rules:       make(map[string]RuleMetrics),
	}

	allRules := make(map[string]bool)
	for rule := range m.rewrites {
		allRules[rule] = true
	}
	for rule := range m.cookieRewrites {
		allRules[rule] = true
	}
	for rule := range m.upstreamFailures {
		allRules[rule] = true
	}
	for rule := range m.responseTimes {
		allRules[rule] = true
	}

	for rule := range allRules {
		snap.TotalRequests += m.rewrites[rule] + m.cookieRewrites[rule]

		rm := RuleMetrics{
			Rewrites:         m.rewrites[rule],
			CookieRewrites:   m.cookieRewrites[rule],
			UpstreamFailures: m.upstreamFailures[rule],
			StatusCodes:      copyCodes(m.statusCodes[rule]),
		}

		durations := m.responseTimes[rule]
		rm.Responses = int64(len(durations))
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			rm.AvgResponse = average(sorted)
			rm.P50Response = percentile(sorted, 0.50)
			rm.P95Response = percentile(sorted, 0.95)
			rm.P99Response = percentile(sorted, 0.99)
		}

		snap.Rules[rule] = rm
	}
	snap.TotalRequests += m.denied + m.passThrough

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		rewrites:         make(map[string]int64),
		cookieRewrites:   make(map[string]int64),
		upstreamFailures: make(map[string]int64),
		responseTimes:    make(map[string][]time.Duration),
		statusCodes:      make(map[string]map[int]int64),
		startTime:        time.Now(),
	}
}

func ruleKey(rule string) string {
	if rule == "" {
		return ForwardRule
	}
	return rule
}

func copyCodes(codes map[int]int64) map[int]int64 {
	out := make(map[int]int64, len(codes))
	for code, n := range codes {
		out[code] = n
	}
	return out
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
