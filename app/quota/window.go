package quota

import (
	"fmt"
	"time"
)

// ResetConfig describes the provider's daily quota reset time, expressed
// in the provider's documented timezone.
type ResetConfig struct {
	Hour     int
	Minute   int
	Timezone string // IANA zone name
}

// DefaultResetConfig matches the YouTube Data API, which resets quota at
// midnight Pacific Time.
func DefaultResetConfig() ResetConfig {
	return ResetConfig{Hour: 0, Minute: 0, Timezone: "America/Los_Angeles"}
}

// NextDailyResetUTC returns the next reset instant in UTC. The candidate
// reset is computed in the configured zone and rolled forward one day if
// it has already passed, so daylight-saving transitions are handled by
// zone-aware arithmetic rather than fixed offsets.
func NextDailyResetUTC(rc ResetConfig, now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(rc.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load reset timezone %q: %w", rc.Timezone, err)
	}

	nowLocal := now.In(loc)
	candidate := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(),
		rc.Hour, rc.Minute, 0, 0, loc)

	if !candidate.After(nowLocal) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	return candidate.UTC(), nil
}

// CurrentWindowUTC returns the [start, end) boundaries of the reset
// window containing now. The end is the next reset; the start is the
// reset one day earlier.
func CurrentWindowUTC(rc ResetConfig, now time.Time) (time.Time, time.Time, error) {
	end, err := NextDailyResetUTC(rc, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	loc, err := time.LoadLocation(rc.Timezone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to load reset timezone %q: %w", rc.Timezone, err)
	}

	start := end.In(loc).AddDate(0, 0, -1).UTC()
	return start, end, nil
}
