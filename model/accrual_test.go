package model

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const accrualStart = int64(1_700_000_000)

func fundedRoute(kind RouteKind, deposit, payout int64, period, maxPeriods uint64) *Route {
	status := RouteStatusActive
	if kind == RouteKindInvoice {
		status = RouteStatusFunded
	}
	return &Route{
		RouteID: "rte_1",
		Kind:    kind,
		Status:  status,
		Schedule: Schedule{
			StartTimestamp: accrualStart,
			PeriodSeconds:  period,
			PayoutAmount:   big.NewInt(payout),
			MaxPeriods:     maxPeriods,
		},
		DepositAmount: big.NewInt(deposit),
	}
}

func at(offset int64) time.Time {
	return time.Unix(accrualStart+offset, 0)
}

func TestPeriodsElapsed(t *testing.T) {
	schedule := Schedule{StartTimestamp: accrualStart, PeriodSeconds: 100, MaxPeriods: 5}
	assert.Equal(t, uint64(0), PeriodsElapsed(schedule, at(-50)))
	assert.Equal(t, uint64(0), PeriodsElapsed(schedule, at(0)))
	assert.Equal(t, uint64(0), PeriodsElapsed(schedule, at(99)))
	assert.Equal(t, uint64(1), PeriodsElapsed(schedule, at(100)))
	assert.Equal(t, uint64(3), PeriodsElapsed(schedule, at(399)))
	assert.Equal(t, uint64(5), PeriodsElapsed(schedule, at(10_000)))
}

func TestClaimableNow_Linear(t *testing.T) {
	route := fundedRoute(RouteKindLinear, 950, 100, 60, 10)

	assert.Equal(t, "0", ClaimableNow(route, at(-1)).String())
	assert.Equal(t, "0", ClaimableNow(route, at(59)).String())
	assert.Equal(t, "100", ClaimableNow(route, at(60)).String())
	assert.Equal(t, "300", ClaimableNow(route, at(200)).String())
	// deposit caps the last period
	assert.Equal(t, "950", ClaimableNow(route, at(600)).String())
	assert.Equal(t, "950", ClaimableNow(route, at(60_000)).String())

	route.ClaimedAmount = big.NewInt(300)
	assert.Equal(t, "0", ClaimableNow(route, at(200)).String())
	assert.Equal(t, "100", ClaimableNow(route, at(240)).String())
}

func TestClaimableNow_Monotonic(t *testing.T) {
	route := fundedRoute(RouteKindInvoice, 1_000, 7, 13, 200)
	previous := big.NewInt(0)
	for offset := int64(-100); offset < 5_000; offset += 11 {
		current := UnlockedAmount(route, at(offset))
		assert.True(t, current.Cmp(previous) >= 0, "unlocked fell at offset %d", offset)
		assert.True(t, current.Cmp(route.DepositAmount) <= 0)
		previous = current
	}
}

func TestClaimableNow_Milestone(t *testing.T) {
	route := fundedRoute(RouteKindMilestone, 1_000, 100, 60, 10)
	assert.Equal(t, "0", ClaimableNow(route, at(100_000)).String())

	route.ApprovedAmount = big.NewInt(400)
	assert.Equal(t, "400", ClaimableNow(route, at(0)).String())

	route.ClaimedAmount = big.NewInt(400)
	assert.Equal(t, "0", ClaimableNow(route, at(0)).String())
}

func TestClaimableNow_Unfunded(t *testing.T) {
	route := fundedRoute(RouteKindInvoice, 1_000, 100, 60, 10)
	route.Status = RouteStatusPending
	assert.Equal(t, "0", ClaimableNow(route, at(10_000)).String())

	route.Status = RouteStatusDeclined
	assert.Equal(t, "0", ClaimableNow(route, at(10_000)).String())
}

func TestNextUnlock(t *testing.T) {
	route := fundedRoute(RouteKindLinear, 300, 100, 60, 10)

	next, ok := NextUnlock(route, at(-30))
	assert.True(t, ok)
	assert.Equal(t, accrualStart+60, next.Unix())

	next, ok = NextUnlock(route, at(61))
	assert.True(t, ok)
	assert.Equal(t, accrualStart+120, next.Unix())

	_, ok = NextUnlock(route, at(180))
	assert.False(t, ok)

	milestone := fundedRoute(RouteKindMilestone, 300, 100, 60, 10)
	_, ok = NextUnlock(milestone, at(0))
	assert.False(t, ok)
}
