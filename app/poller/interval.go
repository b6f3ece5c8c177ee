package poller

import (
	"time"
)

const (
	// dailyUnitBudget is the provider's daily quota for a single
	// credential.
	dailyUnitBudget = 10000

	// listingPageSize is the maximum page size of the subscription
	// listing; it determines how many units one full sweep costs.
	listingPageSize = 50

	secondsPerDay = 24 * 60 * 60
)

// ComputeCycleInterval spreads the daily unit budget evenly across the
// day. One cycle costs ceil((N+1)/50) units: the paginated subscription
// listing plus one playlist lookup slot. Recomputed every cycle because
// the channel count grows over time.
func ComputeCycleInterval(channelCount int) time.Duration {
	unitsPerCycle := (channelCount + 1 + listingPageSize - 1) / listingPageSize
	cyclesPerDay := dailyUnitBudget / unitsPerCycle
	// A sweep costing more than the whole daily budget still runs once a day
	if cyclesPerDay < 1 {
		cyclesPerDay = 1
	}
	intervalSeconds := (secondsPerDay + cyclesPerDay - 1) / cyclesPerDay
	return time.Duration(intervalSeconds) * time.Second
}
