package payroute

import (
	"context"
	"math/big"
	"time"

	"github.com/blnkfinance/payroute/internal/apierror"
	"github.com/blnkfinance/payroute/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// getOrNewBalance loads the balance keyed by (indicator, token) or builds an
// unsaved one that the next commit inserts. The @world source may overdraw.
func (l *Payroute) getOrNewBalance(ctx context.Context, indicator, tokenID string) (*model.Balance, error) {
	balance, err := l.datasource.GetBalanceByIndicator(ctx, indicator, tokenID)
	if err == nil {
		balance.InitializeBalanceFields()
		return balance, nil
	}
	if !apierror.HasCode(err, apierror.ErrNotFound) {
		return nil, err
	}
	balance = &model.Balance{
		BalanceID:      model.GenerateUUIDWithSuffix("bln"),
		Indicator:      indicator,
		TokenID:        tokenID,
		AllowOverdraft: indicator == model.WorldIndicator,
		CreatedAt:      l.now().UTC(),
	}
	balance.InitializeBalanceFields()
	return balance, nil
}

// FundWallet credits address's wallet for tokenID with amount drawn from @world.
func (l *Payroute) FundWallet(ctx context.Context, address, tokenID string, amount *big.Int) (model.Transfer, error) {
	started := time.Now()
	transfer, err := l.fundWallet(ctx, address, tokenID, amount)
	l.metrics.Observe("fund_wallet", started, err)
	return transfer, err
}

func (l *Payroute) fundWallet(ctx context.Context, address, tokenID string, amount *big.Int) (model.Transfer, error) {
	ctx, span := tracer.Start(ctx, "Funding wallet")
	defer span.End()

	if err := model.ValidateAddress(address); err != nil {
		return model.Transfer{}, logAndRecordError(span, "invalid wallet address", err)
	}
	if tokenID == "" {
		return model.Transfer{}, apierror.NewAPIError(apierror.ErrInvalidInput, "token_id is required", nil)
	}
	if amount == nil || amount.Sign() <= 0 {
		return model.Transfer{}, model.ErrInvalidAmount
	}
	address = model.CanonicalAddress(address)

	release, err := l.lockBalances(ctx, tokenID, model.WorldIndicator, address)
	if err != nil {
		return model.Transfer{}, logAndRecordError(span, "lock error", err)
	}
	defer release()

	world, err := l.getOrNewBalance(ctx, model.WorldIndicator, tokenID)
	if err != nil {
		return model.Transfer{}, logAndRecordError(span, "balance error", err)
	}
	wallet, err := l.getOrNewBalance(ctx, address, tokenID)
	if err != nil {
		return model.Transfer{}, logAndRecordError(span, "balance error", err)
	}

	transfer, err := model.Move(world, wallet, amount, model.TransferPurposeTopUp, "", l.now())
	if err != nil {
		return model.Transfer{}, logAndRecordError(span, "top up failed", err)
	}
	err = l.datasource.CommitChange(ctx, model.RouteChange{
		Balances:  []*model.Balance{world, wallet},
		Transfers: []model.Transfer{transfer},
	})
	if err != nil {
		return model.Transfer{}, logAndRecordError(span, "commit balance error", err)
	}
	span.AddEvent("Wallet funded", trace.WithAttributes(attribute.String("balance.id", wallet.BalanceID)))
	l.countTransfers([]model.Transfer{transfer})
	return transfer, nil
}

func (l *Payroute) GetBalance(ctx context.Context, balanceID string) (*model.Balance, error) {
	ctx, span := tracer.Start(ctx, "Fetching balance")
	defer span.End()
	balance, err := l.datasource.GetBalanceByID(ctx, balanceID)
	if err != nil {
		return nil, logAndRecordError(span, "balance lookup error", err)
	}
	return balance, nil
}

// GetWalletBalance returns address's wallet for tokenID.
func (l *Payroute) GetWalletBalance(ctx context.Context, address, tokenID string) (*model.Balance, error) {
	if err := model.ValidateAddress(address); err != nil {
		return nil, err
	}
	return l.datasource.GetBalanceByIndicator(ctx, model.CanonicalAddress(address), tokenID)
}

// GetBalanceTransfers returns the movements in and out of a balance, newest first.
func (l *Payroute) GetBalanceTransfers(ctx context.Context, balanceID string, limit, offset int) ([]model.Transfer, error) {
	if _, err := l.datasource.GetBalanceByID(ctx, balanceID); err != nil {
		return nil, err
	}
	return l.datasource.GetTransfersByBalance(ctx, balanceID, limit, offset)
}
