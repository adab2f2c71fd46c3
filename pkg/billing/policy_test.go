// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/config"
)

func testProfile(comp core.Competitiveness) *core.CategoryRateProfile {
	return &core.CategoryRateProfile{
		CategoryID:      "cat-1",
		BaseViewRate:    decimal.NewFromFloat(0.10),
		MinBidAmount:    decimal.NewFromFloat(0.05),
		MaxBidAmount:    decimal.NewFromFloat(0.50),
		Competitiveness: comp,
	}
}

func TestChargeAmountDeterministic(t *testing.T) {
	require := require.New(t)
	policy := config.DefaultConfig().Billing
	profile := testProfile(core.CompetitivenessMedium)
	bid := decimal.NewFromFloat(0.20)

	a := ChargeAmount(profile, bid, policy)
	b := ChargeAmount(profile, bid, policy)
	require.True(a.Equal(b))
}

func TestChargeAmountMonotonicInBid(t *testing.T) {
	require := require.New(t)
	policy := config.DefaultConfig().Billing
	profile := testProfile(core.CompetitivenessHigh)

	prev := decimal.Zero
	for _, bid := range []float64{0.05, 0.10, 0.20, 0.35, 0.50} {
		amount := ChargeAmount(profile, decimal.NewFromFloat(bid), policy)
		require.True(amount.GreaterThanOrEqual(prev),
			"charge must not decrease as bid rises: bid=%v amount=%s prev=%s", bid, amount, prev)
		prev = amount
	}
}

func TestChargeAmountClamped(t *testing.T) {
	require := require.New(t)
	policy := config.DefaultConfig().Billing
	profile := testProfile(core.CompetitivenessLow)

	// Low competitiveness with the floor bid factor lands below minBid
	// and must clamp up.
	low := ChargeAmount(profile, decimal.Zero, policy)
	require.True(low.GreaterThanOrEqual(profile.MinBidAmount))

	// An absurd base rate clamps down to maxBid.
	expensive := testProfile(core.CompetitivenessHigh)
	expensive.BaseViewRate = decimal.NewFromInt(100)
	high := ChargeAmount(expensive, expensive.MaxBidAmount, policy)
	require.True(high.Equal(expensive.MaxBidAmount))
}

func TestChargeAmountCompetitivenessScaling(t *testing.T) {
	require := require.New(t)
	policy := config.DefaultConfig().Billing
	bid := decimal.NewFromFloat(0.30)

	low := ChargeAmount(testProfile(core.CompetitivenessLow), bid, policy)
	med := ChargeAmount(testProfile(core.CompetitivenessMedium), bid, policy)
	high := ChargeAmount(testProfile(core.CompetitivenessHigh), bid, policy)

	require.True(low.LessThan(med))
	require.True(med.LessThan(high))
}

func TestChargeAmountDegenerateRange(t *testing.T) {
	require := require.New(t)
	policy := config.DefaultConfig().Billing

	profile := testProfile(core.CompetitivenessMedium)
	profile.MinBidAmount = decimal.NewFromFloat(0.10)
	profile.MaxBidAmount = decimal.NewFromFloat(0.10)

	amount := ChargeAmount(profile, decimal.NewFromFloat(0.10), policy)
	require.True(amount.Equal(decimal.NewFromFloat(0.10)))
}
