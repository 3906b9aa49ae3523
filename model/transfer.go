package model

import (
	"encoding/json"
	"math/big"
	"time"
)

type TransferPurpose string

const (
	TransferPurposeDeposit TransferPurpose = "deposit"
	TransferPurposeFee     TransferPurpose = "fee"
	TransferPurposeClaim   TransferPurpose = "claim"
	TransferPurposeTopUp   TransferPurpose = "topup"
)

// Transfer is the immutable audit record of one token movement between balances.
type Transfer struct {
	ID          int64           `json:"-"`
	TransferID  string          `json:"transfer_id"`
	RouteID     string          `json:"route_id,omitempty"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	TokenID     string          `json:"token_id"`
	Amount      *big.Int        `json:"amount"`
	Purpose     TransferPurpose `json:"purpose"`
	Hash        string          `json:"hash"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (transfer *Transfer) ToJSON() ([]byte, error) {
	return json.Marshal(transfer)
}
