// Package observability records per-route request statistics.
package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Monitor aggregates request counts and latency per route key.
// It is safe for concurrent use.
type Monitor struct {
	enabled atomic.Bool
	routes  sync.Map // route key -> *RouteMetrics
	total   atomic.Uint64
}

// RouteMetrics stores per-route metrics
type RouteMetrics struct {
	Route         string
	Count         atomic.Uint64
	TotalDuration atomic.Uint64
	MinDuration   atomic.Uint64
	MaxDuration   atomic.Uint64
	byClass       [6]atomic.Uint64 // index status/100, 0 for out-of-range codes
}

// RouteStats is a point-in-time copy of RouteMetrics.
type RouteStats struct {
	Route       string
	Count       uint64
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
	ByClass     map[string]uint64 // "2xx" -> count
}

// NewMonitor creates an enabled monitor.
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.enabled.Store(true)
	return m
}

// SetEnabled turns recording on or off.
func (m *Monitor) SetEnabled(on bool) {
	m.enabled.Store(on)
}

// RecordRequest records one completed request/response cycle.
func (m *Monitor) RecordRequest(route string, duration time.Duration, status int) {
	if !m.enabled.Load() {
		return
	}

	val, _ := m.routes.LoadOrStore(route, &RouteMetrics{Route: route})
	metrics := val.(*RouteMetrics)

	d := uint64(duration.Nanoseconds())
	metrics.Count.Add(1)
	metrics.TotalDuration.Add(d)
	updateMinMax(metrics, d)

	class := status / 100
	if class < 1 || class > 5 {
		class = 0
	}
	metrics.byClass[class].Add(1)

	m.total.Add(1)
}

func updateMinMax(m *RouteMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if min != 0 && d >= min {
			break
		}
		if m.MinDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := m.MaxDuration.Load()
		if d <= max {
			break
		}
		if m.MaxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

// Total returns the number of recorded requests.
func (m *Monitor) Total() uint64 {
	return m.total.Load()
}

// Snapshot returns per-route statistics sorted by route key.
func (m *Monitor) Snapshot() []RouteStats {
	var out []RouteStats

	m.routes.Range(func(_, value any) bool {
		rm := value.(*RouteMetrics)
		count := rm.Count.Load()
		if count == 0 {
			return true
		}

		stats := RouteStats{
			Route:       rm.Route,
			Count:       count,
			AvgDuration: time.Duration(rm.TotalDuration.Load() / count),
			MinDuration: time.Duration(rm.MinDuration.Load()),
			MaxDuration: time.Duration(rm.MaxDuration.Load()),
			ByClass:     make(map[string]uint64),
		}
		for i := range rm.byClass {
			if n := rm.byClass[i].Load(); n > 0 {
				stats.ByClass[className(i)] = n
			}
		}
		out = append(out, stats)
		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

func className(i int) string {
	if i == 0 {
		return "other"
	}
	return string(rune('0'+i)) + "xx"
}

// SnapshotJSON encodes Snapshot as protobuf JSON.
func (m *Monitor) SnapshotJSON() ([]byte, error) {
	routes := make([]any, 0)
	for _, rs := range m.Snapshot() {
		classes := make(map[string]any, len(rs.ByClass))
		for k, v := range rs.ByClass {
			classes[k] = v
		}
		routes = append(routes, map[string]any{
			"route":  rs.Route,
			"count":  rs.Count,
			"avgMs":  durationMillis(rs.AvgDuration),
			"minMs":  durationMillis(rs.MinDuration),
			"maxMs":  durationMillis(rs.MaxDuration),
			"status": classes,
		})
	}

	s, err := structpb.NewStruct(map[string]any{
		"total":  m.Total(),
		"routes": routes,
	})
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
