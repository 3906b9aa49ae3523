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
package model

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/blnkfinance/payroute/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Decimals returns how many decimal places a token's whole unit is split into.
type Decimals func(tokenID string) int32

// ToMinorUnits converts a whole-unit amount into the token's smallest unit.
// Amounts finer than the token's precision are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, errors.New("amount must not be negative")
	}
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}

func positiveAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount type")
	}
	if !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

func nonNegativeAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount type")
	}
	if amount.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func address(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return errors.New("invalid address type")
	}
	if s == "" {
		return nil
	}
	if err := model.ValidateAddress(s); err != nil {
		return errors.New("must be a 0x hex account or a base58 public key")
	}
	return nil
}

var (
	requiredAddress = []validation.Rule{validation.Required, validation.By(address)}
	optionalAddress = []validation.Rule{validation.By(address)}
)
