package database

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/payroute/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var routeRowColumns = []string{"route_id", "kind", "depositor", "beneficiary", "requester", "payer", "token_id",
	"start_timestamp", "period_seconds", "payout_amount", "max_periods", "gross_deposit_amount", "deposit_amount",
	"fee_amount", "fee_bps", "claimed_amount", "approved_amount", "status", "escrow_balance_id", "version",
	"created_at", "funded_at", "meta_data"}

func invoiceRow(rows *sqlmock.Rows, id string, fundedAt interface{}) *sqlmock.Rows {
	return rows.AddRow(id, "invoice", "0xpayer", "0xbeneficiary", "0xrequester", "0xpayer", "usdc",
		int64(1700000000), int64(86400), "100", int64(10), "1000", "995", "5", int64(50), "200", "0",
		"funded", "bln_escrow", int64(3), time.Now(), fundedAt, nil)
}

func TestGetRouteByID_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	fundedAt := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM payroute.routes WHERE route_id = \$1`).
		WithArgs("rte_1").
		WillReturnRows(invoiceRow(sqlmock.NewRows(routeRowColumns), "rte_1", fundedAt))

	route, err := ds.GetRouteByID(context.Background(), "rte_1")
	require.NoError(t, err)
	assert.Equal(t, model.RouteKindInvoice, route.Kind)
	assert.Equal(t, model.RouteStatusFunded, route.Status)
	assert.Equal(t, "0xrequester", route.Requester)
	assert.Equal(t, uint64(86400), route.Schedule.PeriodSeconds)
	assert.Equal(t, uint32(50), route.FeeBps)
	assert.Equal(t, 0, big.NewInt(995).Cmp(route.DepositAmount))
	assert.Equal(t, 0, big.NewInt(200).Cmp(route.ClaimedAmount))
	require.NotNil(t, route.FundedAt)
	assert.Equal(t, int64(3), route.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRouteByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectQuery(`SELECT .* FROM payroute.routes WHERE route_id = \$1`).
		WithArgs("rte_missing").
		WillReturnRows(sqlmock.NewRows(routeRowColumns))

	_, err = ds.GetRouteByID(context.Background(), "rte_missing")
	assert.True(t, errors.Is(err, model.ErrRouteNotFound))
}

func TestGetRoutesByParty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	rows := sqlmock.NewRows(routeRowColumns)
	invoiceRow(rows, "rte_1", nil)
	invoiceRow(rows, "rte_2", nil)
	mock.ExpectQuery(`SELECT .* FROM payroute.routes\s+WHERE \$1 IN \(depositor, beneficiary, requester, payer\)`).
		WithArgs("0xpayer", 20, 0).
		WillReturnRows(rows)

	routes, err := ds.GetRoutesByParty(context.Background(), "0xpayer", 20, 0)
	require.NoError(t, err)
	assert.Len(t, routes, 2)
	assert.Nil(t, routes[0].FundedAt)
	assert.Equal(t, "rte_2", routes[1].RouteID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllRoutes_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectQuery(`SELECT .* FROM payroute.routes\s+ORDER BY created_at DESC`).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(routeRowColumns))

	routes, err := ds.GetAllRoutes(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, routes)
}
