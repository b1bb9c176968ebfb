package model

import (
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/agri-ml/internal/mathutil"
)

// Stats collects advisory usage counters for one model. Counters are
// updated atomically but read without a consistent snapshot.
type Stats struct {
	loadedAt    time.Time
	loaded      atomic.Bool
	count       atomic.Int64
	totalMicros atomic.Int64
}

// StatsSnapshot is the JSON view of Stats.
type StatsSnapshot struct {
	IsLoaded        bool     `json:"is_loaded"`
	PredictionCount int64    `json:"prediction_count"`
	AvgInferenceMS  float64  `json:"avg_inference_ms"`
	LoadTime        *float64 `json:"load_time,omitempty"`
}

// NewStats starts counting from loadedAt.
func NewStats(loadedAt time.Time) *Stats {
	s := &Stats{loadedAt: loadedAt}
	s.loaded.Store(true)
	return s
}

// MarkUnloaded flags the model as no longer serving.
func (s *Stats) MarkUnloaded() {
	s.loaded.Store(false)
}

// Record adds one prediction of duration d.
func (s *Stats) Record(d time.Duration) {
	s.count.Add(1)
	s.totalMicros.Add(d.Microseconds())
}

// Snapshot reports the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	count := s.count.Load()
	totalMS := float64(s.totalMicros.Load()) / 1000
	loaded := float64(s.loadedAt.UnixMilli()) / 1000

	return StatsSnapshot{
		IsLoaded:        s.loaded.Load(),
		PredictionCount: count,
		AvgInferenceMS:  mathutil.Round(totalMS/float64(max(count, 1)), 2),
		LoadTime:        &loaded,
	}
}
