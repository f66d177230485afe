package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex            sync.RWMutex
	connections      int64
	rejections       map[string]int64
	selections       map[string]int64
	sessionsClosed   map[string]int64
	closeReasons     map[string]map[string]int64
	sessionDurations map[string][]time.Duration
	droppedMessages  map[string]int64
	healthStatus     map[string]bool
	startTime        time.Time
}

type Snapshot struct {
	TotalConnections int64                     `json:"total_connections"`
	Rejections       map[string]int64          `json:"rejections"`
	Uptime           time.Duration             `json:"uptime"`
	Backends         map[string]BackendMetrics `json:"backends"`
	Algorithm        string                    `json:"algorithm"`
}

type BackendMetrics struct {
	Selections      int64            `json:"selections"`
	SessionsClosed  int64            `json:"sessions_closed"`
	DroppedMessages int64            `json:"dropped_messages"`
	Healthy         bool             `json:"healthy"`
	AvgSession      time.Duration    `json:"avg_session"`
	P50Session      time.Duration    `json:"p50_session"`
	P95Session      time.Duration    `json:"p95_session"`
	P99Session      time.Duration    `json:"p99_session"`
	CloseReasons    map[string]int64 `json:"close_reasons"`
}

func (m *Metrics) IncrementConnections() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.connections++
}

func (m *Metrics) RecordRejection(reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejections[reason]++
}

func (m *Metrics) RecordBackendSelection(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[backend]++
}

func (m *Metrics) RecordSessionClosed(backend string, duration time.Duration, reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.sessionsClosed[backend]++

	m.sessionDurations[backend] = append(m.sessionDurations[backend], duration)
	if len(m.sessionDurations[backend]) > 1000 {
		m.sessionDurations[backend] = m.sessionDurations[backend][1:]
	}

	if m.closeReasons[backend] == nil {
		m.closeReasons[backend] = make(map[string]int64)
	}
	m.closeReasons[backend][reason]++
}

func (m *Metrics) RecordDroppedMessage(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.droppedMessages[backend]++
}

func (m *Metrics) UpdateHealthStatus(backend string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[backend] = healthy
}

func (m *Metrics) Snapshot(algorithm string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalConnections: m.connections,
		Rejections:       make(map[string]int64, len(m.rejections)),
		Uptime:           time.Since(m.startTime),
		Backends:         make(map[string]BackendMetrics),
		Algorithm:        algorithm,
	}

	for reason, n := range m.rejections {
		snap.Rejections[reason] = n
	}

	allBackends := make(map[string]bool)
	for backend := range m.selections {
		allBackends[backend] = true
	}
	for backend := range m.sessionsClosed {
		allBackends[backend] = true
	}
	for backend := range m.droppedMessages {
		allBackends[backend] = true
	}
	for backend := range m.healthStatus {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		bm := BackendMetrics{
			Selections:      m.selections[backend],
			SessionsClosed:  m.sessionsClosed[backend],
			DroppedMessages: m.droppedMessages[backend],
			Healthy:         m.healthStatus[backend],
			CloseReasons:    make(map[string]int64, len(m.closeReasons[backend])),
		}

		for reason, n := range m.closeReasons[backend] {
			bm.CloseReasons[reason] = n
		}

		durations := m.sessionDurations[backend]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgSession = average(sorted)
			bm.P50Session = percentile(sorted, 0.50)
			bm.P95Session = percentile(sorted, 0.95)
			bm.P99Session = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		rejections:       make(map[string]int64),
		selections:       make(map[string]int64),
		sessionsClosed:   make(map[string]int64),
		closeReasons:     make(map[string]map[string]int64),
		sessionDurations: make(map[string][]time.Duration),
		droppedMessages:  make(map[string]int64),
		healthStatus:     make(map[string]bool),
		startTime:        time.Now(),
	}
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
