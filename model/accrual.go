package model

import (
	"math/big"
	"time"
)

// ClaimableNow returns how much of the route's deposit the beneficiary may
// claim at now. It is zero for routes that are not funded.
func ClaimableNow(route *Route, now time.Time) *big.Int {
	route.InitializeRouteFields()
	if !route.IsFunded() {
		return big.NewInt(0)
	}

	var unlocked *big.Int
	switch route.Kind {
	case RouteKindMilestone:
		unlocked = new(big.Int).Set(route.ApprovedAmount)
	case RouteKindLinear, RouteKindInvoice:
		unlocked = UnlockedAmount(route, now)
	default:
		return big.NewInt(0)
	}

	claimable := unlocked.Sub(unlocked, route.ClaimedAmount)
	if claimable.Sign() < 0 {
		return big.NewInt(0)
	}
	return claimable
}

// PeriodsElapsed is min(max_periods, floor((now - start) / period)).
func PeriodsElapsed(schedule Schedule, now time.Time) uint64 {
	if schedule.PeriodSeconds == 0 {
		return 0
	}
	elapsed := now.Unix() - schedule.StartTimestamp
	if elapsed <= 0 {
		return 0
	}
	periods := uint64(elapsed) / schedule.PeriodSeconds
	if periods > schedule.MaxPeriods {
		periods = schedule.MaxPeriods
	}
	return periods
}

// UnlockedAmount is min(deposit, periods_elapsed * payout) for schedule-gated routes.
func UnlockedAmount(route *Route, now time.Time) *big.Int {
	route.InitializeRouteFields()
	periods := PeriodsElapsed(route.Schedule, now)
	unlocked := new(big.Int).SetUint64(periods)
	unlocked.Mul(unlocked, route.Schedule.PayoutAmount)
	if unlocked.Cmp(route.DepositAmount) > 0 {
		unlocked.Set(route.DepositAmount)
	}
	return unlocked
}

// NextUnlock returns the time the next period boundary releases value, and
// false when nothing further unlocks on schedule (milestone routes, routes
// fully unlocked, or routes that are not funded).
func NextUnlock(route *Route, now time.Time) (time.Time, bool) {
	route.InitializeRouteFields()
	if route.Kind == RouteKindMilestone || !route.IsFunded() || route.Status == RouteStatusCompleted {
		return time.Time{}, false
	}
	schedule := route.Schedule
	if schedule.PeriodSeconds == 0 {
		return time.Time{}, false
	}
	if UnlockedAmount(route, now).Cmp(route.DepositAmount) >= 0 {
		return time.Time{}, false
	}
	periods := PeriodsElapsed(schedule, now)
	if periods >= schedule.MaxPeriods {
		return time.Time{}, false
	}
	next := schedule.StartTimestamp + int64((periods+1)*schedule.PeriodSeconds)
	return time.Unix(next, 0).UTC(), true
}
