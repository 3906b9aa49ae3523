package mocks

import (
	"context"
	"math/big"
	"testing"

	"github.com/blnkfinance/payroute/database"
	"github.com/blnkfinance/payroute/internal/apierror"
	"github.com/blnkfinance/payroute/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ database.IDataSource = (*MemoryDataSource)(nil)
	_ database.IDataSource = (*MockDataSource)(nil)
)

func TestMemoryDataSource_StaleBalanceLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()

	created, err := ds.CreateBalance(ctx, model.Balance{Indicator: "0xa", TokenID: "usdc", Balance: big.NewInt(10), CreditBalance: big.NewInt(10)})
	require.NoError(t, err)

	first, _ := ds.GetBalanceByID(ctx, created.BalanceID)
	second, _ := ds.GetBalanceByID(ctx, created.BalanceID)

	first.Balance = big.NewInt(5)
	require.NoError(t, ds.CommitChange(ctx, model.RouteChange{Balances: []*model.Balance{first}}))

	second.Balance = big.NewInt(1)
	err = ds.CommitChange(ctx, model.RouteChange{Balances: []*model.Balance{second}})
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))

	stored, _ := ds.GetBalanceByID(ctx, created.BalanceID)
	assert.Equal(t, "5", stored.Balance.String())
	assert.Equal(t, int64(2), stored.Version)
}

func TestMemoryDataSource_DuplicateIndicator(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	_, err := ds.CreateBalance(ctx, model.Balance{Indicator: "@fees", TokenID: "usdc"})
	require.NoError(t, err)
	_, err = ds.CreateBalance(ctx, model.Balance{Indicator: "@fees", TokenID: "usdc"})
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))
}
