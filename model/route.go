package model

import (
	"encoding/json"
	"math/big"
	"time"
)

type RouteKind string

const (
	RouteKindLinear    RouteKind = "linear"
	RouteKindMilestone RouteKind = "milestone"
	RouteKindInvoice   RouteKind = "invoice"
)

type RouteStatus string

const (
	RouteStatusCreated   RouteStatus = "created"
	RouteStatusPending   RouteStatus = "pending"
	RouteStatusActive    RouteStatus = "active"
	RouteStatusFunded    RouteStatus = "funded"
	RouteStatusCompleted RouteStatus = "completed"
	RouteStatusDeclined  RouteStatus = "declined"
	RouteStatusCancelled RouteStatus = "cancelled"
)

// Schedule describes how a funded deposit unlocks over time.
type Schedule struct {
	StartTimestamp int64    `json:"start_timestamp"`
	PeriodSeconds  uint64   `json:"period_seconds"`
	PayoutAmount   *big.Int `json:"payout_amount"`
	MaxPeriods     uint64   `json:"max_periods"`
}

// Route is the persistent ledger entry of one escrow instance.
type Route struct {
	ID                 int64                  `json:"-"`
	RouteID            string                 `json:"route_id"`
	Kind               RouteKind              `json:"kind"`
	Depositor          string                 `json:"depositor"`
	Beneficiary        string                 `json:"beneficiary"`
	Requester          string                 `json:"requester,omitempty"`
	Payer              string                 `json:"payer,omitempty"`
	TokenID            string                 `json:"token_id"`
	Schedule           Schedule               `json:"schedule"`
	GrossDepositAmount *big.Int               `json:"gross_deposit_amount"`
	DepositAmount      *big.Int               `json:"deposit_amount"`
	FeeAmount          *big.Int               `json:"fee_amount"`
	FeeBps             uint32                 `json:"fee_bps"`
	ClaimedAmount      *big.Int               `json:"claimed_amount"`
	ApprovedAmount     *big.Int               `json:"approved_amount"`
	Status             RouteStatus            `json:"status"`
	EscrowBalanceID    string                 `json:"escrow_balance_id"`
	Version            int64                  `json:"version"`
	CreatedAt          time.Time              `json:"created_at"`
	FundedAt           *time.Time             `json:"funded_at,omitempty"`
	MetaData           map[string]interface{} `json:"meta_data,omitempty"`
}

// RouteView is the read-only projection handed to dashboards and eligibility checks.
type RouteView struct {
	RouteID            string      `json:"route_id"`
	Kind               RouteKind   `json:"route_kind"`
	Depositor          string      `json:"depositor"`
	Beneficiary        string      `json:"beneficiary"`
	Requester          *string     `json:"requester,omitempty"`
	Payer              *string     `json:"payer,omitempty"`
	TokenID            string      `json:"token_id"`
	StartTimestamp     int64       `json:"start_timestamp"`
	PeriodSeconds      uint64      `json:"period_seconds"`
	PayoutAmount       *big.Int    `json:"payout_amount"`
	MaxPeriods         uint64      `json:"max_periods"`
	GrossDepositAmount *big.Int    `json:"gross_deposit_amount"`
	DepositAmount      *big.Int    `json:"deposit_amount"`
	ClaimedAmount      *big.Int    `json:"claimed_amount"`
	ApprovedAmount     *big.Int    `json:"approved_amount,omitempty"`
	FeeAmount          *big.Int    `json:"fee_amount"`
	FeeBps             uint32      `json:"fee_bps"`
	Status             RouteStatus `json:"route_status"`
	EscrowBalance      *big.Int    `json:"escrow_balance,omitempty"`
	ClaimableNow       *big.Int    `json:"claimable_now"`
}

// RouteReceipt is returned by every successful state-changing operation.
type RouteReceipt struct {
	RouteID        string      `json:"route_id"`
	Status         RouteStatus `json:"route_status"`
	Amount         *big.Int    `json:"amount"`
	ClaimedAmount  *big.Int    `json:"claimed_amount"`
	ApprovedAmount *big.Int    `json:"approved_amount,omitempty"`
	Transfers      []Transfer  `json:"transfers,omitempty"`
}

// RouteChange is the unit of work the host ledger commits atomically.
// Create marks Route as a new record; a nil Route commits balances and transfers only.
type RouteChange struct {
	Route     *Route
	Create    bool
	Balances  []*Balance
	Transfers []Transfer
}

// InitializeRouteFields replaces nil amounts with zero so arithmetic never dereferences nil.
func (r *Route) InitializeRouteFields() {
	for _, f := range []**big.Int{
		&r.GrossDepositAmount, &r.DepositAmount, &r.FeeAmount,
		&r.ClaimedAmount, &r.ApprovedAmount, &r.Schedule.PayoutAmount,
	} {
		if *f == nil {
			*f = big.NewInt(0)
		}
	}
}

// IsFunded reports whether the funding transition has happened.
func (r *Route) IsFunded() bool {
	switch r.Status {
	case RouteStatusActive, RouteStatusFunded, RouteStatusCompleted:
		return true
	}
	return false
}

// Clone returns a deep copy so a failed transition never leaks into the caller's record.
func (r *Route) Clone() *Route {
	c := *r
	c.Schedule.PayoutAmount = cloneInt(r.Schedule.PayoutAmount)
	c.GrossDepositAmount = cloneInt(r.GrossDepositAmount)
	c.DepositAmount = cloneInt(r.DepositAmount)
	c.FeeAmount = cloneInt(r.FeeAmount)
	c.ClaimedAmount = cloneInt(r.ClaimedAmount)
	c.ApprovedAmount = cloneInt(r.ApprovedAmount)
	if r.FundedAt != nil {
		t := *r.FundedAt
		c.FundedAt = &t
	}
	if r.MetaData != nil {
		c.MetaData = make(map[string]interface{}, len(r.MetaData))
		for k, v := range r.MetaData {
			c.MetaData[k] = v
		}
	}
	return &c
}

// View projects the route for read-only callers. escrow may be nil when the
// escrow balance was not loaded.
func (r *Route) View(now time.Time, escrow *Balance) RouteView {
	r.InitializeRouteFields()
	v := RouteView{
		RouteID:            r.RouteID,
		Kind:               r.Kind,
		Depositor:          r.Depositor,
		Beneficiary:        r.Beneficiary,
		TokenID:            r.TokenID,
		StartTimestamp:     r.Schedule.StartTimestamp,
		PeriodSeconds:      r.Schedule.PeriodSeconds,
		PayoutAmount:       cloneInt(r.Schedule.PayoutAmount),
		MaxPeriods:         r.Schedule.MaxPeriods,
		GrossDepositAmount: cloneInt(r.GrossDepositAmount),
		DepositAmount:      cloneInt(r.DepositAmount),
		ClaimedAmount:      cloneInt(r.ClaimedAmount),
		FeeAmount:          cloneInt(r.FeeAmount),
		FeeBps:             r.FeeBps,
		Status:             r.Status,
		ClaimableNow:       ClaimableNow(r, now),
	}
	if r.Kind == RouteKindInvoice {
		requester, payer := r.Requester, r.Payer
		v.Requester, v.Payer = &requester, &payer
	}
	if r.Kind == RouteKindMilestone {
		v.ApprovedAmount = cloneInt(r.ApprovedAmount)
	}
	if escrow != nil {
		escrow.InitializeBalanceFields()
		v.EscrowBalance = cloneInt(escrow.Balance)
	}
	return v
}

func (r *Route) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
