package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/blnkfinance/payroute/internal/apierror"
	"github.com/blnkfinance/payroute/model"
)

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func marshalMeta(meta map[string]interface{}) (interface{}, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

// CommitChange writes a route change in one transaction: the route row, every
// touched balance, then the transfers. Rows that already exist are updated
// only if their version is unchanged since they were read; otherwise the whole
// change is rolled back with a CONFLICT error. Versions on the passed records
// are advanced after a successful commit.
func (d Datasource) CommitChange(ctx context.Context, change model.RouteChange) error {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if change.Route != nil {
		if change.Create {
			err = insertRoute(ctx, tx, change.Route)
		} else {
			err = updateRoute(ctx, tx, change.Route)
		}
		if err != nil {
			return err
		}
	}

	for _, balance := range change.Balances {
		if balance.Version == 0 {
			err = insertBalance(ctx, tx, balance)
		} else {
			err = updateBalance(ctx, tx, balance)
		}
		if err != nil {
			return err
		}
	}

	for i := range change.Transfers {
		if err := insertTransfer(ctx, tx, &change.Transfers[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit route change", err)
	}

	if change.Route != nil {
		change.Route.Version++
	}
	for _, balance := range change.Balances {
		balance.Version++
	}
	return nil
}

func insertRoute(ctx context.Context, tx *sql.Tx, r *model.Route) error {
	r.InitializeRouteFields()
	meta, err := marshalMeta(r.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payroute.routes (route_id, kind, depositor, beneficiary, requester, payer, token_id, start_timestamp,
			period_seconds, payout_amount, max_periods, gross_deposit_amount, deposit_amount, fee_amount, fee_bps,
			claimed_amount, approved_amount, status, escrow_balance_id, version, created_at, funded_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, 1, $20, $21, $22)
	`, r.RouteID, r.Kind, r.Depositor, r.Beneficiary, nullString(r.Requester), nullString(r.Payer), r.TokenID,
		r.Schedule.StartTimestamp, r.Schedule.PeriodSeconds, r.Schedule.PayoutAmount.String(), r.Schedule.MaxPeriods,
		r.GrossDepositAmount.String(), r.DepositAmount.String(), r.FeeAmount.String(), r.FeeBps,
		r.ClaimedAmount.String(), r.ApprovedAmount.String(), r.Status, r.EscrowBalanceID, r.CreatedAt, r.FundedAt, meta)
	if err != nil {
		return mapPqError(err, "Route")
	}
	return nil
}

func updateRoute(ctx context.Context, tx *sql.Tx, r *model.Route) error {
	r.InitializeRouteFields()
	result, err := tx.ExecContext(ctx, `
		UPDATE payroute.routes
		SET start_timestamp = $1, deposit_amount = $2, fee_amount = $3, fee_bps = $4, claimed_amount = $5,
			approved_amount = $6, status = $7, funded_at = $8, version = version + 1
		WHERE route_id = $9 AND version = $10
	`, r.Schedule.StartTimestamp, r.DepositAmount.String(), r.FeeAmount.String(), r.FeeBps, r.ClaimedAmount.String(),
		r.ApprovedAmount.String(), r.Status, r.FundedAt, r.RouteID, r.Version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update route", err)
	}
	return expectOneRow(result, fmt.Sprintf("route %s", r.RouteID))
}

func insertBalance(ctx context.Context, tx *sql.Tx, b *model.Balance) error {
	b.InitializeBalanceFields()
	meta, err := marshalMeta(b.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payroute.balances (balance_id, indicator, token_id, balance, credit_balance, debit_balance, allow_overdraft, version, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9)
	`, b.BalanceID, b.Indicator, b.TokenID, b.Balance.String(), b.CreditBalance.String(), b.DebitBalance.String(),
		b.AllowOverdraft, b.CreatedAt, meta)
	if err != nil {
		return mapPqError(err, "Balance")
	}
	return nil
}

func updateBalance(ctx context.Context, tx *sql.Tx, b *model.Balance) error {
	b.InitializeBalanceFields()
	result, err := tx.ExecContext(ctx, `
		UPDATE payroute.balances
		SET balance = $1, credit_balance = $2, debit_balance = $3, version = version + 1
		WHERE balance_id = $4 AND version = $5
	`, b.Balance.String(), b.CreditBalance.String(), b.DebitBalance.String(), b.BalanceID, b.Version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update balance", err)
	}
	return expectOneRow(result, fmt.Sprintf("balance %s", b.BalanceID))
}

func insertTransfer(ctx context.Context, tx *sql.Tx, t *model.Transfer) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payroute.transfers (transfer_id, route_id, source, destination, token_id, amount, purpose, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.TransferID, nullString(t.RouteID), t.Source, t.Destination, t.TokenID, t.Amount.String(), t.Purpose, t.Hash, t.CreatedAt)
	if err != nil {
		return mapPqError(err, "Transfer")
	}
	return nil
}

func expectOneRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if n != 1 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s was modified concurrently", what), nil)
	}
	return nil
}
