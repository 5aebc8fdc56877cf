// Package stats implements the pure Stats Accumulator (spec.md §4.I):
// time-bucket accumulation and cost computation. No I/O, no clock of its
// own — callers pass `now` explicitly so the logic is exhaustively
// testable (spec.md §8).
package stats

import (
	"fmt"
	"time"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/store"
)

// GreenStatuses is the explicit set of activity statuses counted as
// "green" (productively running) time, per spec.md §4.I ("The set of
// green statuses is an explicit constant; any status outside it is
// non-green"). heartbeat_start is included because it marks the first
// tick a heartbeat-nudged agent is observed running again.
var GreenStatuses = map[detect.ActivityStatus]bool{
	detect.StatusRunning:          true,
	detect.StatusRunningHeartbeat: true,
	detect.StatusHeartbeatStart:   true,
}

// IsGreen reports whether status counts as green time.
func IsGreen(status detect.ActivityStatus) bool {
	return GreenStatuses[status]
}

// Prices are the configured per-token unit costs (spec.md §4.I "Cost":
// cost = input×p_in + output×p_out + cache_write×p_cw + cache_read×p_cr).
// Units are USD per token; config.yaml carries these as USD-per-million-
// token figures and divides them down before constructing Prices.
type Prices struct {
	Input      float64
	Output     float64
	CacheWrite float64
	CacheRead  float64
}

// Cost computes estimated_cost_usd for the given token totals.
func Cost(input, output, cacheWrite, cacheRead int64, p Prices) float64 {
	return float64(input)*p.Input +
		float64(output)*p.Output +
		float64(cacheWrite)*p.CacheWrite +
		float64(cacheRead)*p.CacheRead
}

// WarnFunc receives a one-line message when the accumulator resets a
// drifted clock; callers wire it to their logger.
type WarnFunc func(msg string)

// AccumulateTime applies one tick of the time-accumulation rules to
// stats in place, given the *previous* tick's observed status
// (previousStatus), the status just observed (newStatus), the session's
// start time, and the current wall time. lifecycle distinguishes a
// terminated session, whose accumulation is permanently frozen.
//
// On first call for a session (stats.LastTimeAccumulation is the zero
// value), no time has yet elapsed to distribute; the call only seeds
// last_tick and state_since.
func AccumulateTime(
	stats *store.SessionStats,
	lifecycle store.Lifecycle,
	previousStatus, newStatus detect.ActivityStatus,
	startTime, now time.Time,
	warn WarnFunc,
) {
	if previousStatus != newStatus {
		stats.StateSince = store.ISOTime(now)
	}
	stats.CurrentState = string(newStatus)

	if stats.LastTimeAccumulation == "" {
		stats.LastTimeAccumulation = store.ISOTime(now)
		if stats.StateSince == "" {
			stats.StateSince = store.ISOTime(now)
		}
		return
	}

	lastTick, err := store.ParseISOTime(stats.LastTimeAccumulation)
	if err != nil {
		// Unparseable last_tick: treat as "no time elapsed" rather than
		// raising, and reseed so the next tick is well-formed.
		stats.LastTimeAccumulation = store.ISOTime(now)
		return
	}

	elapsed := now.Sub(lastTick).Seconds()
	if elapsed <= 0 {
		return
	}

	if lifecycle != store.LifecycleTerminated {
		switch {
		case previousStatus == detect.StatusAsleep:
			stats.SleepTimeSeconds += elapsed
		case IsGreen(previousStatus):
			stats.GreenTimeSeconds += elapsed
		default:
			stats.NonGreenTimeSeconds += elapsed
		}
	}

	total := stats.GreenTimeSeconds + stats.NonGreenTimeSeconds + stats.SleepTimeSeconds
	budget := now.Sub(startTime).Seconds()
	if total > budget {
		if warn != nil {
			warn(fmt.Sprintf("time accumulator exceeded wall-clock budget (%.0fs > %.0fs); resetting", total, budget))
		}
		stats.GreenTimeSeconds = 0
		stats.NonGreenTimeSeconds = 0
		stats.SleepTimeSeconds = 0
	}

	stats.LastTimeAccumulation = store.ISOTime(now)
}
