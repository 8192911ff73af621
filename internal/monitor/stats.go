package monitor

import (
	"sync/atomic"
	"time"
)

// Stats counts probe traffic since the monitor started.
type Stats struct {
	started         time.Time
	probes          atomic.Uint64
	reachable       atomic.Uint64
	unreachable     atomic.Uint64
	published       atomic.Uint64
	publishFailed   atomic.Uint64
	skippedInFlight atomic.Uint64
	canceled        atomic.Uint64
}

type StatsSnapshot struct {
	Uptime          time.Duration `json:"uptime_ns"`
	Probes          uint64        `json:"probes"`
	Reachable       uint64        `json:"reachable"`
	Unreachable     uint64        `json:"unreachable"`
	Published       uint64        `json:"published"`
	PublishFailed   uint64        `json:"publish_failed"`
	SkippedInFlight uint64        `json:"skipped_in_flight"`
	Canceled        uint64        `json:"canceled"`
	ProbesPerSecond float64       `json:"probes_per_second"`
}

func newStats() *Stats {
	return &Stats{started: time.Now()}
}

func (s *Stats) Snapshot() StatsSnapshot {
	elapsed := time.Since(s.started)
	probes := s.probes.Load()

	snap := StatsSnapshot{
		Uptime:          elapsed,
		Probes:          probes,
		Reachable:       s.reachable.Load(),
		Unreachable:     s.unreachable.Load(),
		Published:       s.published.Load(),
		PublishFailed:   s.publishFailed.Load(),
		SkippedInFlight: s.skippedInFlight.Load(),
		Canceled:        s.canceled.Load(),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		snap.ProbesPerSecond = float64(probes) / secs
	}
	return snap
}
