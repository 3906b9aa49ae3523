package model

import (
	"fmt"
	"math/big"
)

// BasisPointsDenominator is the number of basis points in one whole.
const BasisPointsDenominator = 10_000

type TokenClass string

const (
	TokenClassGeneric   TokenClass = "generic"
	TokenClassPreferred TokenClass = "preferred"
)

// FeeSchedule maps token classes to base rates and discount tiers to
// percentage reductions of that rate.
type FeeSchedule struct {
	BaseRates     map[TokenClass]uint32 `json:"base_rates" yaml:"base_rates"`
	DefaultRate   uint32                `json:"default_rate" yaml:"default_rate"`
	TierDiscounts []uint32              `json:"tier_discounts" yaml:"tier_discounts"`
	TokenClasses  map[string]TokenClass `json:"token_classes" yaml:"token_classes"`
}

// DefaultFeeSchedule returns the built-in rates: generic 50 bps, preferred
// 30 bps, with tiers 0/25/50/75 percent off.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		BaseRates: map[TokenClass]uint32{
			TokenClassGeneric:   50,
			TokenClassPreferred: 30,
		},
		DefaultRate:   50,
		TierDiscounts: []uint32{0, 25, 50, 75},
		TokenClasses:  map[string]TokenClass{},
	}
}

// Validate rejects schedules whose rates exceed 100% or whose discounts shrink with tier.
func (s FeeSchedule) Validate() error {
	if s.DefaultRate > BasisPointsDenominator {
		return fmt.Errorf("default rate %d bps exceeds %d", s.DefaultRate, BasisPointsDenominator)
	}
	for class, rate := range s.BaseRates {
		if rate > BasisPointsDenominator {
			return fmt.Errorf("base rate for %s is %d bps, exceeds %d", class, rate, BasisPointsDenominator)
		}
	}
	for i, pct := range s.TierDiscounts {
		if pct > 100 {
			return fmt.Errorf("tier %d discount %d%% exceeds 100%%", i, pct)
		}
		if i > 0 && pct < s.TierDiscounts[i-1] {
			return fmt.Errorf("tier %d discount %d%% is lower than tier %d", i, pct, i-1)
		}
	}
	return nil
}

// ClassOf returns the configured class of a token, generic when unlisted.
func (s FeeSchedule) ClassOf(tokenID string) TokenClass {
	if class, ok := s.TokenClasses[tokenID]; ok {
		return class
	}
	return TokenClassGeneric
}

// ComputeFeeBps returns the fee rate in basis points for a funding of gross in
// the given class at the given discount tier. It never fails: unknown classes
// fall back to DefaultRate and tiers past the table use its last step.
// Rates do not currently vary with gross.
func (s FeeSchedule) ComputeFeeBps(_ *big.Int, class TokenClass, tier uint32) uint32 {
	base, ok := s.BaseRates[class]
	if !ok {
		base = s.DefaultRate
	}
	if base > BasisPointsDenominator {
		base = BasisPointsDenominator
	}

	// the effective discount is the largest step at or below the tier, so a
	// misordered table still cannot make a higher tier more expensive
	var discount uint32
	for i, pct := range s.TierDiscounts {
		if uint32(i) > tier {
			break
		}
		if pct > discount {
			discount = pct
		}
	}
	if discount > 100 {
		discount = 100
	}
	return base * (100 - discount) / 100
}

// FeeAmount is floor(gross * feeBps / 10_000).
func FeeAmount(gross *big.Int, feeBps uint32) *big.Int {
	if gross == nil || gross.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(gross, big.NewInt(int64(feeBps)))
	return fee.Quo(fee, big.NewInt(BasisPointsDenominator))
}
