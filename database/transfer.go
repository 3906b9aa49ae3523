package database

import (
	"context"
	"database/sql"

	"github.com/blnkfinance/payroute/internal/apierror"
	"github.com/blnkfinance/payroute/model"
)

const transferColumns = `transfer_id, route_id, source, destination, token_id, amount, purpose, hash, created_at`

func scanTransfers(rows *sql.Rows) ([]model.Transfer, error) {
	defer rows.Close()
	transfers := []model.Transfer{}
	for rows.Next() {
		var t model.Transfer
		var routeID sql.NullString
		var amount string
		if err := rows.Scan(&t.TransferID, &routeID, &t.Source, &t.Destination, &t.TokenID, &amount,
			&t.Purpose, &t.Hash, &t.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := parseAmount("amount", amount)
		if err != nil {
			return nil, err
		}
		t.Amount = parsed
		t.RouteID = routeID.String
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// GetTransfersByRoute returns a route's audit trail in commit order.
func (d Datasource) GetTransfersByRoute(ctx context.Context, routeID string) ([]model.Transfer, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transferColumns+` FROM payroute.transfers
		WHERE route_id = $1
		ORDER BY id ASC
	`, routeID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list transfers", err)
	}
	transfers, err := scanTransfers(rows)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read transfers", err)
	}
	return transfers, nil
}

// GetTransfersByBalance lists transfers into or out of a balance, newest first.
func (d Datasource) GetTransfersByBalance(ctx context.Context, balanceID string, limit, offset int) ([]model.Transfer, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transferColumns+` FROM payroute.transfers
		WHERE source = $1 OR destination = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, balanceID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list transfers", err)
	}
	transfers, err := scanTransfers(rows)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read transfers", err)
	}
	return transfers, nil
}
