/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/blnkfinance/payroute/internal/apierror"
	"github.com/blnkfinance/payroute/model"
	"github.com/lib/pq"
)

const balanceColumns = `balance_id, indicator, token_id, balance, credit_balance, debit_balance, allow_overdraft, version, created_at, meta_data`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// parseAmount converts a NUMERIC column read as text into a big.Int.
func parseAmount(column, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("column %s holds a non-integer amount %q", column, value)
	}
	return amount, nil
}

func scanBalance(row rowScanner) (*model.Balance, error) {
	balance := &model.Balance{}
	var balanceStr, creditStr, debitStr string
	var metaDataJSON []byte

	err := row.Scan(&balance.BalanceID, &balance.Indicator, &balance.TokenID, &balanceStr, &creditStr, &debitStr,
		&balance.AllowOverdraft, &balance.Version, &balance.CreatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}

	if balance.Balance, err = parseAmount("balance", balanceStr); err != nil {
		return nil, err
	}
	if balance.CreditBalance, err = parseAmount("credit_balance", creditStr); err != nil {
		return nil, err
	}
	if balance.DebitBalance, err = parseAmount("debit_balance", debitStr); err != nil {
		return nil, err
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &balance.MetaData); err != nil {
			return nil, err
		}
	}
	return balance, nil
}

func mapPqError(err error, entity string) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s already exists", entity), err)
		case "foreign_key_violation":
			return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("%s references a missing record", entity), err)
		}
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to write %s", entity), err)
}

// CreateBalance inserts a balance. A balance id is generated when none is set.
func (d Datasource) CreateBalance(ctx context.Context, balance model.Balance) (model.Balance, error) {
	metaDataJSON, err := json.Marshal(balance.MetaData)
	if err != nil {
		return model.Balance{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}
	if balance.BalanceID == "" {
		balance.BalanceID = model.GenerateUUIDWithSuffix("bln")
	}
	if balance.CreatedAt.IsZero() {
		balance.CreatedAt = time.Now().UTC()
	}
	balance.InitializeBalanceFields()
	balance.Version = 1

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO payroute.balances (balance_id, indicator, token_id, balance, credit_balance, debit_balance, allow_overdraft, version, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, balance.BalanceID, balance.Indicator, balance.TokenID, balance.Balance.String(), balance.CreditBalance.String(),
		balance.DebitBalance.String(), balance.AllowOverdraft, balance.Version, balance.CreatedAt, metaDataJSON)
	if err != nil {
		return model.Balance{}, mapPqError(err, "Balance")
	}
	return balance, nil
}

func (d Datasource) GetBalanceByID(ctx context.Context, id string) (*model.Balance, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+balanceColumns+` FROM payroute.balances WHERE balance_id = $1`, id)
	balance, err := scanBalance(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Balance with ID '%s' not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve balance", err)
	}
	return balance, nil
}

// GetBalanceByIndicator returns the balance a party or system account holds in tokenID.
func (d Datasource) GetBalanceByIndicator(ctx context.Context, indicator, tokenID string) (*model.Balance, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+balanceColumns+` FROM payroute.balances WHERE indicator = $1 AND token_id = $2`, indicator, tokenID)
	balance, err := scanBalance(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Balance with indicator '%s' and token '%s' not found", indicator, tokenID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve balance", err)
	}
	return balance, nil
}
