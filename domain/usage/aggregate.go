package usage

import (
	"math"
	"time"
)

// Merge folds an event into an existing aggregate and returns the new row.
// A zero-value aggregate (Relays == 0) is treated as a fresh row.
//
// Relays add up. Latency is a relay-weighted mean in which zero-latency
// (cache-hit) samples never lower a non-zero average. Error rate is
// last-write-wins.
// This is a PURE function.
func Merge(existing DailyAggregate, relays, latencyMs int64, errorRate float64, at time.Time) DailyAggregate {
	merged := existing
	merged.AvgLatencyMs = MergeLatency(existing.AvgLatencyMs, existing.Relays, latencyMs, relays)
	merged.Relays = existing.Relays + relays
	merged.ErrorRate = errorRate
	merged.UpdatedAt = at
	return merged
}

// MergeLatency computes the rolling average latency after adding count
// observations of latencyMs to an average avgOld over relaysOld relays.
// This is a PURE function.
func MergeLatency(avgOld, relaysOld, latencyMs, count int64) int64 {
	switch {
	case relaysOld == 0:
		return latencyMs
	case latencyMs == 0:
		// covers both "keep the real average" and "both zero"
		return avgOld
	}
	total := float64(avgOld)*float64(relaysOld) + float64(latencyMs)*float64(count)
	return int64(math.Round(total / float64(relaysOld+count)))
}

// Apply folds a validated event into existing, keyed on the event's day.
// This is a PURE function.
func Apply(existing DailyAggregate, e Event, at time.Time) DailyAggregate {
	if existing.EndpointID == "" {
		existing = DailyAggregate{EndpointID: e.EndpointID, Day: e.Day()}
	}
	return Merge(existing, e.Relays, e.LatencyMs, e.ErrorRate, at)
}

// Summarize rolls daily rows up into a range summary.
// Latency is weighted by relays over days that reported a non-zero average;
// error rate is weighted by relays over all days.
// This is a PURE function.
func Summarize(endpointID, from, to string, rows []DailyAggregate) Summary {
	s := Summary{EndpointID: endpointID, From: from, To: to}

	var (
		latencyWeight int64
		latencySum    float64
		errorSum      float64
	)
	for _, r := range rows {
		s.Days++
		s.Relays += r.Relays
		errorSum += r.ErrorRate * float64(r.Relays)
		if r.AvgLatencyMs > 0 {
			latencySum += float64(r.AvgLatencyMs) * float64(r.Relays)
			latencyWeight += r.Relays
		}
	}

	if latencyWeight > 0 {
		s.AvgLatencyMs = int64(math.Round(latencySum / float64(latencyWeight)))
	}
	if s.Relays > 0 {
		s.ErrorRate = errorSum / float64(s.Relays)
	}
	return s
}
