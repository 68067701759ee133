// Package metrics provides in-memory, best-effort request instrumentation.
// It backs no HTTP endpoint of its own — main.go logs periodic snapshots
// through internal/httpx.Logger (spec.md §1 "out of scope: ... logging
// setup", carried here only as observability, never as persistent state).
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

type routeKey struct{ kind string }
type statusKey struct{ code int }

// Metrics holds one proxy instance's counters. Safe for concurrent use.
type Metrics struct {
	routeCounts  syncMap[routeKey, uint64]
	statusCounts syncMap[statusKey, uint64]
	activeWS     atomic.Int64
}

// New returns a zeroed Metrics ready for concurrent use.
func New() *Metrics {
	return &Metrics{}
}

// syncMap is a tiny generic copy-on-write map over atomic.Value.
type syncMap[K comparable, V any] struct{ m atomic.Value } // stores map[K]V

func (s *syncMap[K, V]) load() map[K]V {
	if v := s.m.Load(); v != nil {
		return v.(map[K]V)
	}
	return map[K]V{}
}
func (s *syncMap[K, V]) swap(m map[K]V) { s.m.Store(m) }

// IncRoute increments the per-route-kind request counter ("port", "cmux",
// "workspace", "invalid", "apex").
func (m *Metrics) IncRoute(kind string) {
	cur := m.routeCounts.load()
	next := make(map[routeKey]uint64, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	k := routeKey{kind: kind}
	next[k] = next[k] + 1
	m.routeCounts.swap(next)
}

// IncStatus increments the per-final-status-code response counter.
func (m *Metrics) IncStatus(code int) {
	cur := m.statusCounts.load()
	next := make(map[statusKey]uint64, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	k := statusKey{code: code}
	next[k] = next[k] + 1
	m.statusCounts.swap(next)
}

// WSBridgeOpen increments the active-WebSocket-bridge gauge.
func (m *Metrics) WSBridgeOpen() { m.activeWS.Add(1) }

// WSBridgeClosed decrements the active-WebSocket-bridge gauge.
func (m *Metrics) WSBridgeClosed() { m.activeWS.Add(-1) }

// Snapshot is the JSON-able shape main.go logs on a timer.
type Snapshot struct {
	Timestamp   time.Time      `json:"ts"`
	Routes      map[string]uint64 `json:"routes"`
	Statuses    map[string]uint64 `json:"statuses"`
	ActiveWS    int64          `json:"active_ws_bridges"`
}

func (m *Metrics) Export() Snapshot {
	routes := m.routeCounts.load()
	flatRoutes := make(map[string]uint64, len(routes))
	for k, v := range routes {
		flatRoutes[k.kind] = v
	}
	statuses := m.statusCounts.load()
	flatStatuses := make(map[string]uint64, len(statuses))
	for k, v := range statuses {
		flatStatuses[strconv.Itoa(k.code)] = v
	}
	return Snapshot{
		Timestamp: time.Now(),
		Routes:    flatRoutes,
		Statuses:  flatStatuses,
		ActiveWS:  m.activeWS.Load(),
	}
}

