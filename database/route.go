package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/big"

	"github.com/blnkfinance/payroute/internal/apierror"
	"github.com/blnkfinance/payroute/model"
	"github.com/pkg/errors"
)

const routeColumns = `route_id, kind, depositor, beneficiary, requester, payer, token_id, start_timestamp, period_seconds,
	payout_amount, max_periods, gross_deposit_amount, deposit_amount, fee_amount, fee_bps, claimed_amount,
	approved_amount, status, escrow_balance_id, version, created_at, funded_at, meta_data`

func scanRoute(row rowScanner) (*model.Route, error) {
	route := &model.Route{}
	var requester, payer sql.NullString
	var fundedAt sql.NullTime
	var payout, gross, deposit, fee, claimed, approved string
	var metaDataJSON []byte

	err := row.Scan(&route.RouteID, &route.Kind, &route.Depositor, &route.Beneficiary, &requester, &payer,
		&route.TokenID, &route.Schedule.StartTimestamp, &route.Schedule.PeriodSeconds, &payout,
		&route.Schedule.MaxPeriods, &gross, &deposit, &fee, &route.FeeBps, &claimed, &approved,
		&route.Status, &route.EscrowBalanceID, &route.Version, &route.CreatedAt, &fundedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}

	amounts := []struct {
		column string
		value  string
		dest   **big.Int
	}{
		{"payout_amount", payout, &route.Schedule.PayoutAmount},
		{"gross_deposit_amount", gross, &route.GrossDepositAmount},
		{"deposit_amount", deposit, &route.DepositAmount},
		{"fee_amount", fee, &route.FeeAmount},
		{"claimed_amount", claimed, &route.ClaimedAmount},
		{"approved_amount", approved, &route.ApprovedAmount},
	}
	for _, a := range amounts {
		if *a.dest, err = parseAmount(a.column, a.value); err != nil {
			return nil, err
		}
	}

	route.Requester = requester.String
	route.Payer = payer.String
	if fundedAt.Valid {
		t := fundedAt.Time
		route.FundedAt = &t
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &route.MetaData); err != nil {
			return nil, err
		}
	}
	return route, nil
}

func scanRoutes(rows *sql.Rows) ([]model.Route, error) {
	defer rows.Close()
	routes := []model.Route{}
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, *route)
	}
	return routes, rows.Err()
}

// GetRouteByID returns the route or an error wrapping model.ErrRouteNotFound.
func (d Datasource) GetRouteByID(ctx context.Context, id string) (*model.Route, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM payroute.routes WHERE route_id = $1`, id)
	route, err := scanRoute(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(model.ErrRouteNotFound, "route %s", id)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve route", err)
	}
	return route, nil
}

// GetAllRoutes lists routes, newest first.
func (d Datasource) GetAllRoutes(ctx context.Context, limit, offset int) ([]model.Route, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+routeColumns+` FROM payroute.routes
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list routes", err)
	}
	routes, err := scanRoutes(rows)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read routes", err)
	}
	return routes, nil
}

// GetRoutesByParty lists routes where party holds any role, newest first.
func (d Datasource) GetRoutesByParty(ctx context.Context, party string, limit, offset int) ([]model.Route, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+routeColumns+` FROM payroute.routes
		WHERE $1 IN (depositor, beneficiary, requester, payer)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, party, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list routes", err)
	}
	routes, err := scanRoutes(rows)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read routes", err)
	}
	return routes, nil
}
