package model

import (
	"math"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

type RouteOperation string

const (
	OperationCreate        RouteOperation = "create"
	OperationCreateAndFund RouteOperation = "create_and_fund"
	OperationAccept        RouteOperation = "accept"
	OperationDecline       RouteOperation = "decline"
	OperationApprove       RouteOperation = "approve"
	OperationClaim         RouteOperation = "claim"
)

// transitionTable lists, per kind and operation, the statuses an operation may start from.
var transitionTable = map[RouteKind]map[RouteOperation][]RouteStatus{
	RouteKindLinear: {
		OperationCreateAndFund: {RouteStatusCreated},
		OperationClaim:         {RouteStatusActive},
	},
	RouteKindMilestone: {
		OperationCreateAndFund: {RouteStatusCreated},
		OperationApprove:       {RouteStatusActive},
		OperationClaim:         {RouteStatusActive},
	},
	RouteKindInvoice: {
		OperationAccept:  {RouteStatusPending},
		OperationDecline: {RouteStatusPending},
		OperationClaim:   {RouteStatusFunded},
	},
}

// Supports reports whether op is defined for kind at all.
func Supports(kind RouteKind, op RouteOperation) bool {
	_, ok := transitionTable[kind][op]
	return ok
}

func canStart(route *Route, op RouteOperation) bool {
	for _, s := range transitionTable[route.Kind][op] {
		if s == route.Status {
			return true
		}
	}
	return false
}

// RouteTerms are the caller-supplied fields of a new route.
type RouteTerms struct {
	Kind        RouteKind
	Depositor   string
	Beneficiary string
	Requester   string
	Payer       string
	TokenID     string
	Schedule    Schedule
	GrossAmount *big.Int
	MetaData    map[string]interface{}
}

// FundingHandles are the balances a funding transition moves value between.
type FundingHandles struct {
	Funder       *Balance
	Escrow       *Balance
	FeeCollector *Balance
}

// ClaimHandles are the balances a claim moves value between.
type ClaimHandles struct {
	Escrow      *Balance
	Beneficiary *Balance
}

// ValidateSchedule rejects schedules that could never release value.
func ValidateSchedule(schedule Schedule) error {
	if schedule.PeriodSeconds == 0 {
		return errors.Wrap(ErrInvalidSchedule, "period_seconds must be greater than zero")
	}
	if schedule.MaxPeriods < 1 {
		return errors.Wrap(ErrInvalidSchedule, "max_periods must be at least 1")
	}
	if schedule.PeriodSeconds > math.MaxInt64 || schedule.MaxPeriods > math.MaxInt64 {
		return errors.Wrap(ErrInvalidSchedule, "period_seconds and max_periods must fit in a signed 64-bit integer")
	}
	if schedule.PayoutAmount == nil || schedule.PayoutAmount.Sign() <= 0 {
		return errors.Wrap(ErrInvalidSchedule, "payout_amount must be greater than zero")
	}
	return nil
}

// validateCoverage requires schedule-gated routes to unlock at least the gross
// amount by their last period. Milestone schedules do not gate release.
func validateCoverage(terms RouteTerms) error {
	if terms.Kind == RouteKindMilestone {
		return nil
	}
	total := new(big.Int).SetUint64(terms.Schedule.MaxPeriods)
	total.Mul(total, terms.Schedule.PayoutAmount)
	if total.Cmp(terms.GrossAmount) < 0 {
		return errors.Wrapf(ErrInvalidSchedule, "payout_amount * max_periods (%s) is below the gross amount %s", total, terms.GrossAmount)
	}
	return nil
}

// NewRoute validates terms and builds an unpersisted route in its initial
// status: created for linear and milestone routes, pending for invoices.
func NewRoute(terms RouteTerms, now time.Time) (*Route, error) {
	if err := ValidateSchedule(terms.Schedule); err != nil {
		return nil, err
	}
	if terms.TokenID == "" {
		return nil, errors.Wrap(ErrInvalidSchedule, "token_id is required")
	}
	if terms.GrossAmount == nil || terms.GrossAmount.Sign() <= 0 {
		return nil, errors.Wrap(ErrInvalidSchedule, "gross amount must be greater than zero")
	}

	route := &Route{
		RouteID:            GenerateUUIDWithSuffix("rte"),
		Kind:               terms.Kind,
		Beneficiary:        terms.Beneficiary,
		TokenID:            terms.TokenID,
		GrossDepositAmount: new(big.Int).Set(terms.GrossAmount),
		CreatedAt:          now.UTC(),
		MetaData:           terms.MetaData,
		Schedule: Schedule{
			StartTimestamp: terms.Schedule.StartTimestamp,
			PeriodSeconds:  terms.Schedule.PeriodSeconds,
			PayoutAmount:   new(big.Int).Set(terms.Schedule.PayoutAmount),
			MaxPeriods:     terms.Schedule.MaxPeriods,
		},
	}

	var parties []string
	switch terms.Kind {
	case RouteKindLinear, RouteKindMilestone:
		route.Depositor = terms.Depositor
		route.Status = RouteStatusCreated
		parties = []string{terms.Depositor, terms.Beneficiary}
	case RouteKindInvoice:
		route.Requester = terms.Requester
		route.Payer = terms.Payer
		route.Depositor = terms.Payer
		route.Status = RouteStatusPending
		parties = []string{terms.Requester, terms.Beneficiary, terms.Payer}
	default:
		return nil, errors.Wrapf(ErrUnsupportedOperation, "unknown route kind %q", terms.Kind)
	}
	for _, party := range parties {
		if err := ValidateAddress(party); err != nil {
			return nil, err
		}
	}
	if err := validateCoverage(terms); err != nil {
		return nil, err
	}
	route.Depositor = CanonicalAddress(route.Depositor)
	route.Beneficiary = CanonicalAddress(route.Beneficiary)
	if route.Kind == RouteKindInvoice {
		route.Requester = CanonicalAddress(route.Requester)
		route.Payer = CanonicalAddress(route.Payer)
	}

	route.InitializeRouteFields()
	route.EscrowBalanceID = GenerateUUIDWithSuffix("bln")
	return route, nil
}

// NewEscrowBalance builds the custody balance owned by route.
func NewEscrowBalance(route *Route, now time.Time) *Balance {
	escrow := &Balance{
		BalanceID: route.EscrowBalanceID,
		Indicator: EscrowIndicator(route.RouteID),
		TokenID:   route.TokenID,
		CreatedAt: now.UTC(),
	}
	escrow.InitializeBalanceFields()
	return escrow
}

// roles maps each operation to the party allowed to perform it and the error
// returned to anyone else.
var roles = map[RouteOperation]struct {
	party func(*Route) string
	err   error
}{
	OperationCreateAndFund: {func(r *Route) string { return r.Depositor }, ErrNotDepositor},
	OperationApprove:       {func(r *Route) string { return r.Depositor }, ErrNotDepositor},
	OperationAccept:        {func(r *Route) string { return r.Payer }, ErrNotPayer},
	OperationDecline:       {func(r *Route) string { return r.Payer }, ErrNotPayer},
	OperationClaim:         {func(r *Route) string { return r.Beneficiary }, ErrNotBeneficiary},
}

// Authorize checks, in order, that op is defined for the route's kind, that
// caller holds the role op requires, and that the route's status allows op.
// A claim on a route that is not yet funded or already settled reports
// ErrNothingClaimable; on a declined or cancelled route it reports
// ErrAlreadyDecided.
func Authorize(route *Route, op RouteOperation, caller string) error {
	if !Supports(route.Kind, op) {
		return errors.Wrapf(ErrUnsupportedOperation, "%s on %s route", op, route.Kind)
	}
	role, ok := roles[op]
	if !ok {
		return errors.Wrapf(ErrUnsupportedOperation, "%s is not a caller operation", op)
	}
	if !SameAddress(caller, role.party(route)) {
		return role.err
	}
	if canStart(route, op) {
		return nil
	}
	if op == OperationClaim && route.Status != RouteStatusDeclined && route.Status != RouteStatusCancelled {
		return errors.Wrapf(ErrNothingClaimable, "route %s is %s", route.RouteID, route.Status)
	}
	return errors.Wrapf(ErrAlreadyDecided, "route %s is %s", route.RouteID, route.Status)
}

// Fund performs the create-and-fund transition of a linear or milestone route.
func Fund(route *Route, caller string, handles FundingHandles, tier uint32, fees FeeSchedule, now time.Time) ([]Transfer, error) {
	if err := Authorize(route, OperationCreateAndFund, caller); err != nil {
		return nil, err
	}
	transfers, err := fundRoute(route, handles, tier, fees, now)
	if err != nil {
		return nil, err
	}
	route.Status = RouteStatusActive
	completeIfSettled(route)
	return transfers, nil
}

// Accept funds a pending invoice from its payer. The schedule starts at the
// later of the requested start and the acceptance time.
func Accept(route *Route, caller string, handles FundingHandles, tier uint32, fees FeeSchedule, now time.Time) ([]Transfer, error) {
	if err := Authorize(route, OperationAccept, caller); err != nil {
		return nil, err
	}
	transfers, err := fundRoute(route, handles, tier, fees, now)
	if err != nil {
		return nil, err
	}
	if now.Unix() > route.Schedule.StartTimestamp {
		route.Schedule.StartTimestamp = now.Unix()
	}
	route.Status = RouteStatusFunded
	completeIfSettled(route)
	return transfers, nil
}

// Decline closes a pending invoice without moving value.
func Decline(route *Route, caller string) error {
	if err := Authorize(route, OperationDecline, caller); err != nil {
		return err
	}
	route.Status = RouteStatusDeclined
	return nil
}

// Approve raises a milestone route's approved amount. It moves no tokens.
func Approve(route *Route, caller string, amount *big.Int) error {
	route.InitializeRouteFields()
	if err := Authorize(route, OperationApprove, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errors.Wrap(ErrInvalidAmount, "approval amount must not be negative")
	}
	approved := new(big.Int).Add(route.ApprovedAmount, amount)
	if approved.Cmp(route.DepositAmount) > 0 {
		return errors.Wrapf(ErrExceedsDeposit, "approved %s + %s exceeds deposit %s", route.ApprovedAmount, amount, route.DepositAmount)
	}
	route.ApprovedAmount = approved
	return nil
}

// Claim releases everything currently claimable to the beneficiary and
// returns the amount released with its transfer.
func Claim(route *Route, caller string, handles ClaimHandles, now time.Time) (*big.Int, []Transfer, error) {
	route.InitializeRouteFields()
	if err := Authorize(route, OperationClaim, caller); err != nil {
		return nil, nil, err
	}
	amount := ClaimableNow(route, now)
	if amount.Sign() == 0 {
		return nil, nil, ErrNothingClaimable
	}
	transfer, err := Move(handles.Escrow, handles.Beneficiary, amount, TransferPurposeClaim, route.RouteID, now)
	if err != nil {
		return nil, nil, err
	}
	route.ClaimedAmount = new(big.Int).Add(route.ClaimedAmount, amount)
	completeIfSettled(route)
	return amount, []Transfer{transfer}, nil
}

// fundRoute moves gross out of the funder: the net deposit into escrow and the
// fee to the collector. The funder is checked for the full gross before any
// balance is touched.
func fundRoute(route *Route, handles FundingHandles, tier uint32, fees FeeSchedule, now time.Time) ([]Transfer, error) {
	route.InitializeRouteFields()
	gross := route.GrossDepositAmount
	for _, b := range []*Balance{handles.Funder, handles.Escrow, handles.FeeCollector} {
		if b.TokenID != route.TokenID {
			return nil, errors.Errorf("balance %s holds %s, route is denominated in %s", b.BalanceID, b.TokenID, route.TokenID)
		}
	}
	if err := canDebit(handles.Funder, gross); err != nil {
		return nil, err
	}

	feeBps := fees.ComputeFeeBps(gross, fees.ClassOf(route.TokenID), tier)
	fee := FeeAmount(gross, feeBps)
	deposit := new(big.Int).Sub(gross, fee)

	var transfers []Transfer
	if deposit.Sign() > 0 {
		t, err := Move(handles.Funder, handles.Escrow, deposit, TransferPurposeDeposit, route.RouteID, now)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	if fee.Sign() > 0 {
		t, err := Move(handles.Funder, handles.FeeCollector, fee, TransferPurposeFee, route.RouteID, now)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}

	fundedAt := now.UTC()
	route.FeeBps = feeBps
	route.FeeAmount = fee
	route.DepositAmount = deposit
	route.FundedAt = &fundedAt
	return transfers, nil
}

func completeIfSettled(route *Route) {
	if route.ClaimedAmount.Cmp(route.DepositAmount) == 0 {
		route.Status = RouteStatusCompleted
	}
}
