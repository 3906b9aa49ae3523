package payroute

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/blnkfinance/payroute/database/mocks"
	"github.com/blnkfinance/payroute/internal/apierror"
	"github.com/blnkfinance/payroute/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fundedLinearRoute() *model.Route {
	route := &model.Route{
		RouteID:     "rte_mock",
		Kind:        model.RouteKindLinear,
		Depositor:   depositor,
		Beneficiary: beneficiary,
		TokenID:     testToken,
		Schedule: model.Schedule{
			StartTimestamp: t0.Unix(),
			PeriodSeconds:  3600,
			PayoutAmount:   big.NewInt(1000),
			MaxPeriods:     10,
		},
		GrossDepositAmount: big.NewInt(10_000),
		DepositAmount:      big.NewInt(9_950),
		FeeAmount:          big.NewInt(50),
		FeeBps:             50,
		Status:             model.RouteStatusActive,
		EscrowBalanceID:    "bln_escrow",
		Version:            1,
	}
	route.InitializeRouteFields()
	return route
}

func escrowFor(route *model.Route) *model.Balance {
	escrow := &model.Balance{
		BalanceID: route.EscrowBalanceID,
		Indicator: model.EscrowIndicator(route.RouteID),
		TokenID:   route.TokenID,
		Balance:   new(big.Int).Set(route.DepositAmount),
		Version:   1,
	}
	escrow.InitializeBalanceFields()
	return escrow
}

func notFound(what string) error {
	return apierror.NewAPIError(apierror.ErrNotFound, what+" not found", nil)
}

func TestGetRoute_MissingEscrow(t *testing.T) {
	ds := new(mocks.MockDataSource)
	p := NewPayroute(ds, WithClock(func() time.Time { return t0.Add(time.Hour) }))
	route := fundedLinearRoute()

	ds.On("GetRouteByID", mock.Anything, route.RouteID).Return(route, nil)
	ds.On("GetBalanceByID", mock.Anything, route.EscrowBalanceID).Return(nil, notFound("escrow"))

	view, err := p.GetRoute(context.Background(), route.RouteID)
	require.NoError(t, err)
	assert.Nil(t, view.EscrowBalance)
	assert.Equal(t, "1000", view.ClaimableNow.String())
	ds.AssertExpectations(t)
}

func TestGetRoute_EscrowLookupFails(t *testing.T) {
	ds := new(mocks.MockDataSource)
	p := NewPayroute(ds)
	route := fundedLinearRoute()

	ds.On("GetRouteByID", mock.Anything, route.RouteID).Return(route, nil)
	ds.On("GetBalanceByID", mock.Anything, route.EscrowBalanceID).Return(nil, errors.New("connection reset"))

	_, err := p.GetRoute(context.Background(), route.RouteID)
	assert.EqualError(t, err, "connection reset")
}

func TestClaim_StaleVersionIsConflict(t *testing.T) {
	ds := new(mocks.MockDataSource)
	dispatcher := &recordingDispatcher{}
	p := NewPayroute(ds,
		WithDispatcher(dispatcher),
		WithClock(func() time.Time { return t0.Add(2 * time.Hour) }),
	)
	route := fundedLinearRoute()
	conflict := apierror.NewAPIError(apierror.ErrConflict, "route rte_mock was modified concurrently", nil)

	ds.On("GetRouteByID", mock.Anything, route.RouteID).Return(route, nil)
	ds.On("GetBalanceByID", mock.Anything, route.EscrowBalanceID).Return(escrowFor(route), nil)
	ds.On("GetBalanceByIndicator", mock.Anything, beneficiary, testToken).Return(nil, notFound("wallet"))
	ds.On("CommitChange", mock.Anything, mock.MatchedBy(func(change model.RouteChange) bool {
		return change.Route.RouteID == route.RouteID && !change.Create &&
			len(change.Balances) == 2 && len(change.Transfers) == 1 &&
			change.Transfers[0].Amount.Cmp(big.NewInt(2000)) == 0
	})).Return(conflict)

	_, err := p.Claim(context.Background(), route.RouteID, beneficiary)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))
	assert.Empty(t, dispatcher.takeEvents())
	assert.Empty(t, dispatcher.notices)
	ds.AssertExpectations(t)
}

func TestClaim_WrongCallerTouchesNoBalance(t *testing.T) {
	ds := new(mocks.MockDataSource)
	p := NewPayroute(ds)
	route := fundedLinearRoute()

	ds.On("GetRouteByID", mock.Anything, route.RouteID).Return(route, nil)

	_, err := p.Claim(context.Background(), route.RouteID, depositor)
	assert.ErrorIs(t, err, model.ErrNotBeneficiary)
	ds.AssertNotCalled(t, "GetBalanceByID", mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "CommitChange", mock.Anything, mock.Anything)
}
