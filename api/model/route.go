package model

import (
	"math"

	"github.com/blnkfinance/payroute/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Schedule struct {
	StartTimestamp int64           `json:"start_timestamp"`
	PeriodSeconds  uint64          `json:"period_seconds"`
	PayoutAmount   decimal.Decimal `json:"payout_amount"`
	MaxPeriods     uint64          `json:"max_periods"`
}

// CreateRoute is the body of POST /routes/linear and POST /routes/milestone.
type CreateRoute struct {
	Caller      string                 `json:"caller"`
	Depositor   string                 `json:"depositor"`
	Beneficiary string                 `json:"beneficiary"`
	TokenID     string                 `json:"token_id"`
	Schedule    Schedule               `json:"schedule"`
	GrossAmount decimal.Decimal        `json:"gross_amount"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

// CreateInvoice is the body of POST /invoices.
type CreateInvoice struct {
	Caller      string                 `json:"caller"`
	Requester   string                 `json:"requester"`
	Beneficiary string                 `json:"beneficiary"`
	Payer       string                 `json:"payer"`
	TokenID     string                 `json:"token_id"`
	Schedule    Schedule               `json:"schedule"`
	GrossAmount decimal.Decimal        `json:"gross_amount"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

// RouteAction is the body of accept, decline and claim.
type RouteAction struct {
	Caller string `json:"caller"`
}

type Approve struct {
	Caller string          `json:"caller"`
	Amount decimal.Decimal `json:"amount"`
}

// ValidateSchedule checks the schedule on its own. Failures wrap
// model.ErrInvalidSchedule.
func (s *Schedule) ValidateSchedule() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.PeriodSeconds, validation.Required, validation.Max(uint64(math.MaxInt64))),
		validation.Field(&s.MaxPeriods, validation.Required, validation.Max(uint64(math.MaxInt64))),
		validation.Field(&s.PayoutAmount, validation.By(positiveAmount)),
	)
	if err != nil {
		return errors.Wrap(model.ErrInvalidSchedule, err.Error())
	}
	return nil
}

func (r *CreateRoute) ValidateCreateRoute() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Caller, requiredAddress...),
		validation.Field(&r.Depositor, requiredAddress...),
		validation.Field(&r.Beneficiary, requiredAddress...),
		validation.Field(&r.TokenID, validation.Required),
		validation.Field(&r.GrossAmount, validation.By(positiveAmount)),
		validation.Field(&r.Schedule, validation.By(func(interface{}) error { return r.Schedule.ValidateSchedule() })),
	)
}

func (i *CreateInvoice) ValidateCreateInvoice() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.Caller, requiredAddress...),
		validation.Field(&i.Requester, requiredAddress...),
		validation.Field(&i.Payer, requiredAddress...),
		validation.Field(&i.Beneficiary, optionalAddress...),
		validation.Field(&i.TokenID, validation.Required),
		validation.Field(&i.GrossAmount, validation.By(positiveAmount)),
		validation.Field(&i.Schedule, validation.By(func(interface{}) error { return i.Schedule.ValidateSchedule() })),
	)
}

func (a *RouteAction) ValidateRouteAction() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Caller, requiredAddress...),
	)
}

func (a *Approve) ValidateApprove() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Caller, requiredAddress...),
		validation.Field(&a.Amount, validation.By(nonNegativeAmount)),
	)
}

func (s Schedule) toSchedule(decimals int32) (model.Schedule, error) {
	payout, err := ToMinorUnits(s.PayoutAmount, decimals)
	if err != nil {
		return model.Schedule{}, err
	}
	return model.Schedule{
		StartTimestamp: s.StartTimestamp,
		PeriodSeconds:  s.PeriodSeconds,
		PayoutAmount:   payout,
		MaxPeriods:     s.MaxPeriods,
	}, nil
}

// ToRouteTerms converts the request into route terms of kind, scaling amounts
// by the token's decimals.
func (r *CreateRoute) ToRouteTerms(kind model.RouteKind, decimals Decimals) (model.RouteTerms, error) {
	places := decimals(r.TokenID)
	schedule, err := r.Schedule.toSchedule(places)
	if err != nil {
		return model.RouteTerms{}, err
	}
	gross, err := ToMinorUnits(r.GrossAmount, places)
	if err != nil {
		return model.RouteTerms{}, err
	}
	return model.RouteTerms{
		Kind:        kind,
		Depositor:   r.Depositor,
		Beneficiary: r.Beneficiary,
		TokenID:     r.TokenID,
		Schedule:    schedule,
		GrossAmount: gross,
		MetaData:    r.MetaData,
	}, nil
}

func (i *CreateInvoice) ToRouteTerms(decimals Decimals) (model.RouteTerms, error) {
	places := decimals(i.TokenID)
	schedule, err := i.Schedule.toSchedule(places)
	if err != nil {
		return model.RouteTerms{}, err
	}
	gross, err := ToMinorUnits(i.GrossAmount, places)
	if err != nil {
		return model.RouteTerms{}, err
	}
	return model.RouteTerms{
		Kind:        model.RouteKindInvoice,
		Requester:   i.Requester,
		Beneficiary: i.Beneficiary,
		Payer:       i.Payer,
		TokenID:     i.TokenID,
		Schedule:    schedule,
		GrossAmount: gross,
		MetaData:    i.MetaData,
	}, nil
}
