package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// FundWallet is the body of POST /wallets/deposit.
type FundWallet struct {
	Address string          `json:"address"`
	TokenID string          `json:"token_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func (f *FundWallet) ValidateFundWallet() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Address, requiredAddress...),
		validation.Field(&f.TokenID, validation.Required),
		validation.Field(&f.Amount, validation.By(positiveAmount)),
	)
}
