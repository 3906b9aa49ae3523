package model

import (
	"math/big"
	"time"

	"github.com/pkg/errors"
)

const (
	// WorldIndicator is the external source that wallet top-ups are drawn from.
	WorldIndicator = "@world"
	// FeeCollectorIndicator is the default balance that collects funding fees.
	FeeCollectorIndicator = "@fees"
)

type Balance struct {
	ID             int64                  `json:"-"`
	BalanceID      string                 `json:"balance_id"`
	Indicator      string                 `json:"indicator"`
	TokenID        string                 `json:"token_id"`
	Balance        *big.Int               `json:"balance"`
	CreditBalance  *big.Int               `json:"credit_balance"`
	DebitBalance   *big.Int               `json:"debit_balance"`
	AllowOverdraft bool                   `json:"allow_overdraft"`
	Version        int64                  `json:"version"`
	CreatedAt      time.Time              `json:"created_at"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
}

// EscrowIndicator names the balance that holds a route's custody.
func EscrowIndicator(routeID string) string {
	return "@escrow:" + routeID
}

// InitializeBalanceFields initializes all the fields of the Balance struct that might be nil.
func (balance *Balance) InitializeBalanceFields() {
	if balance.DebitBalance == nil {
		balance.DebitBalance = big.NewInt(0)
	}
	if balance.CreditBalance == nil {
		balance.CreditBalance = big.NewInt(0)
	}
	if balance.Balance == nil {
		balance.Balance = big.NewInt(0)
	}
}

func (balance *Balance) addCredit(amount *big.Int) {
	balance.InitializeBalanceFields()
	balance.CreditBalance.Add(balance.CreditBalance, amount)
	balance.computeBalance()
}

func (balance *Balance) addDebit(amount *big.Int) {
	balance.InitializeBalanceFields()
	balance.DebitBalance.Add(balance.DebitBalance, amount)
	balance.computeBalance()
}

func (balance *Balance) computeBalance() {
	balance.Balance.Sub(balance.CreditBalance, balance.DebitBalance)
}

// Clone returns a deep copy of the balance.
func (balance *Balance) Clone() *Balance {
	c := *balance
	c.Balance = cloneInt(balance.Balance)
	c.CreditBalance = cloneInt(balance.CreditBalance)
	c.DebitBalance = cloneInt(balance.DebitBalance)
	return &c
}

// canDebit returns ErrInsufficientBalance when the balance cannot cover amount.
func canDebit(source *Balance, amount *big.Int) error {
	if source.AllowOverdraft {
		return nil
	}
	source.InitializeBalanceFields()
	if source.Balance.Cmp(amount) < 0 {
		return errors.Wrapf(ErrInsufficientBalance, "balance %s holds %s, needs %s", source.Indicator, source.Balance, amount)
	}
	return nil
}

// Move debits source and credits destination by amount and returns the audit record.
// Both balances must denominate the same token.
func Move(source, destination *Balance, amount *big.Int, purpose TransferPurpose, routeID string, now time.Time) (Transfer, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Transfer{}, ErrInvalidAmount
	}
	if source.TokenID != destination.TokenID {
		return Transfer{}, errors.Errorf("token mismatch: %s -> %s", source.TokenID, destination.TokenID)
	}
	if err := canDebit(source, amount); err != nil {
		return Transfer{}, err
	}
	source.addDebit(amount)
	destination.addCredit(amount)

	transfer := Transfer{
		TransferID:  GenerateUUIDWithSuffix("trf"),
		RouteID:     routeID,
		Source:      source.BalanceID,
		Destination: destination.BalanceID,
		TokenID:     source.TokenID,
		Amount:      new(big.Int).Set(amount),
		Purpose:     purpose,
		CreatedAt:   now.UTC(),
	}
	transfer.Hash = transfer.HashTransfer()
	return transfer, nil
}
