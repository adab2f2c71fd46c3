// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package billing

import (
	"github.com/shopspring/decimal"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/config"
	"github.com/marketforge/cpv/pkg/crypto"
)

// ChargeAmount computes the cost of one qualified view:
//
//	clamp(baseViewRate * competitiveness * bidFactor, minBid, maxBid)
//
// bidFactor scales linearly from the configured floor at minBid up to
// 1.0 at maxBid, so a higher bid always costs at least as much as a
// lower one and identical inputs always price identically.
func ChargeAmount(profile *core.CategoryRateProfile, bid decimal.Decimal, policy config.Billing) decimal.Decimal {
	mult := policy.CompetitivenessMedium
	switch profile.Competitiveness {
	case core.CompetitivenessLow:
		mult = policy.CompetitivenessLow
	case core.CompetitivenessHigh:
		mult = policy.CompetitivenessHigh
	}

	factor := bidFactor(profile, bid, policy.BidFactorFloor)
	amount := profile.BaseViewRate.Mul(mult).Mul(factor)

	if amount.LessThan(profile.MinBidAmount) {
		return profile.MinBidAmount
	}
	if amount.GreaterThan(profile.MaxBidAmount) {
		return profile.MaxBidAmount
	}
	return amount.Round(4)
}

func bidFactor(profile *core.CategoryRateProfile, bid decimal.Decimal, floor decimal.Decimal) decimal.Decimal {
	span := profile.MaxBidAmount.Sub(profile.MinBidAmount)
	if !span.IsPositive() {
		return decimal.NewFromInt(1)
	}

	position := bid.Sub(profile.MinBidAmount).Div(span)
	if position.IsNegative() {
		position = decimal.Zero
	}
	one := decimal.NewFromInt(1)
	if position.GreaterThan(one) {
		position = one
	}

	return floor.Add(one.Sub(floor).Mul(position))
}

// chainCommitment hashes the previous commitment together with the
// balance movement, giving each account a tamper-evident transaction
// chain in the audit trail.
func chainCommitment(prev []byte, vendorID string, amount, balanceAfter decimal.Decimal) []byte {
	data := make([]byte, 0, len(prev)+len(vendorID)+32)
	data = append(data, prev...)
	data = append(data, vendorID...)
	data = append(data, amount.String()...)
	data = append(data, balanceAfter.String()...)
	return crypto.CreateCommitment(data)
}
