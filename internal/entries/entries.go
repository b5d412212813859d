// Package entries derives giveaway entry counts from prices, the active
// promotion multiplier and the customer's tier tags. Every function here is
// pure and degrades malformed input to zero entries instead of failing.
package entries

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type tierRule struct {
	tag        string
	multiplier int64
}

// tierRules are checked in order; the first tag present wins.
var tierRules = []tierRule{
	{tag: "VIP Platinum", multiplier: 10},
	{tag: "VIP Gold", multiplier: 5},
	{tag: "VIP Silver", multiplier: 2},
	{tag: "Inactive Subscriber", multiplier: 1},
}

const defaultTierMultiplier int64 = 1

// TierMultiplier maps customer tags onto the loyalty multiplier. Tags match
// exactly, as Shopify stores them; only surrounding whitespace is ignored.
func TierMultiplier(tags []string) int64 {
	if len(tags) == 0 {
		return defaultTierMultiplier
	}
	present := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		present[strings.TrimSpace(tag)] = struct{}{}
	}
	for _, rule := range tierRules {
		if _, ok := present[rule.tag]; ok {
			return rule.multiplier
		}
	}
	return defaultTierMultiplier
}

// Compute returns floor(amount × multiplier × tier × quantity).
func Compute(amount, multiplier decimal.Decimal, tags []string, quantity int) int64 {
	if !multiplier.IsPositive() || amount.IsNegative() || quantity <= 0 {
		return 0
	}
	total := amount.
		Mul(multiplier).
		Mul(decimal.NewFromInt(TierMultiplier(tags))).
		Mul(decimal.NewFromInt(int64(quantity))).
		Floor()
	if !total.IsPositive() {
		return 0
	}
	return total.IntPart()
}

// ComputeRaw is Compute for an amount of unknown shape, as found in loosely
// typed payloads.
func ComputeRaw(amount any, multiplier decimal.Decimal, tags []string, quantity int) int64 {
	value, ok := ParseAmount(amount)
	if !ok {
		return 0
	}
	return Compute(value, multiplier, tags, quantity)
}

// ParseAmount accepts strings, Go numbers, json.Number and decimals. It
// rejects anything negative, non-finite or non-numeric.
func ParseAmount(raw any) (decimal.Decimal, bool) {
	var (
		value decimal.Decimal
		err   error
	)
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		value = v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, false
		}
		value = *v
	case string:
		value, err = decimal.NewFromString(strings.TrimSpace(v))
	case json.Number:
		value, err = decimal.NewFromString(v.String())
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		value = decimal.NewFromFloat(v)
	case float32:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		value = decimal.NewFromFloat32(v)
	case int:
		value = decimal.NewFromInt(int64(v))
	case int32:
		value = decimal.NewFromInt32(v)
	case int64:
		value = decimal.NewFromInt(v)
	case uint:
		value = decimal.NewFromUint64(uint64(v))
	case uint64:
		value = decimal.NewFromUint64(v)
	default:
		return decimal.Zero, false
	}
	if err != nil || value.IsNegative() {
		return decimal.Zero, false
	}
	return value, true
}
