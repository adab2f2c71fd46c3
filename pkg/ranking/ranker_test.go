// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ranking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/catalog"
	"github.com/marketforge/cpv/pkg/config"
	"github.com/marketforge/cpv/pkg/log"
)

// stubBalances maps vendorID to a fixed balance.
type stubBalances map[string]decimal.Decimal

func (s stubBalances) Balance(vendorID string) decimal.Decimal {
	if b, ok := s[vendorID]; ok {
		return b
	}
	return decimal.Zero
}

func testCatalog() (*catalog.Directory, *catalog.Rates) {
	dir := catalog.NewDirectory()
	dir.AddProduct(&core.Product{
		ProductID:  "prod-1",
		VendorID:   "vendor-1",
		CategoryID: "cat-1",
		Active:     true,
		Rating:     decimal.NewFromFloat(4.5),
	})
	dir.AddProduct(&core.Product{
		ProductID:  "prod-2",
		VendorID:   "vendor-2",
		CategoryID: "cat-1",
		Active:     true,
		Rating:     decimal.NewFromFloat(3.9),
	})

	rates := catalog.NewRates()
	rates.SetProfile(&core.CategoryRateProfile{
		CategoryID:      "cat-1",
		BaseViewRate:    decimal.NewFromFloat(0.10),
		MinBidAmount:    decimal.NewFromFloat(0.05),
		MaxBidAmount:    decimal.NewFromFloat(1.00),
		Competitiveness: core.CompetitivenessMedium,
	})
	return dir, rates
}

func newRanker(balances BalanceSource) *Ranker {
	dir, rates := testCatalog()
	return NewRanker(dir, rates, balances, config.DefaultConfig().Ranking, log.NoOp())
}

func TestGetRankingSignalDefaults(t *testing.T) {
	require := require.New(t)
	ranker := newRanker(stubBalances{})

	// No bid, no balance: minimum bid, demoted tier.
	sig, err := ranker.GetRankingSignal("prod-1")
	require.NoError(err)
	require.Equal(0, sig.PlacementTier)
	require.True(sig.CurrentBid.Equal(decimal.NewFromFloat(0.05)))
}

func TestGetRankingSignalUnknownProduct(t *testing.T) {
	require := require.New(t)
	ranker := newRanker(stubBalances{})

	_, err := ranker.GetRankingSignal("prod-missing")
	require.ErrorIs(err, core.ErrNotFound)
}

func TestTierRisesWithBidAndHeadroom(t *testing.T) {
	require := require.New(t)
	ranker := newRanker(stubBalances{"vendor-1": decimal.NewFromInt(100)})

	// Funded vendor at the category minimum sits in tier 1.
	sig, err := ranker.GetRankingSignal("prod-1")
	require.NoError(err)
	require.Equal(1, sig.PlacementTier)

	// A mid-range bid with deep headroom reaches tier 2.
	require.NoError(ranker.SetBid("prod-1", decimal.NewFromFloat(0.50)))
	sig, err = ranker.GetRankingSignal("prod-1")
	require.NoError(err)
	require.Equal(2, sig.PlacementTier)

	// A top-range bid with enough headroom reaches tier 3.
	require.NoError(ranker.SetBid("prod-1", decimal.NewFromFloat(0.80)))
	sig, err = ranker.GetRankingSignal("prod-1")
	require.NoError(err)
	require.Equal(3, sig.PlacementTier)
}

func TestExhaustedBalanceDemotesToTierZero(t *testing.T) {
	require := require.New(t)
	balances := stubBalances{"vendor-1": decimal.NewFromInt(100)}
	ranker := newRanker(balances)

	require.NoError(ranker.SetBid("prod-1", decimal.NewFromFloat(0.80)))
	sig, err := ranker.GetRankingSignal("prod-1")
	require.NoError(err)
	require.Equal(3, sig.PlacementTier)

	// Balance crosses zero: the next recompute demotes the product.
	balances["vendor-1"] = decimal.Zero
	ranker.PlacementChanged("prod-1")
	sig, err = ranker.GetRankingSignal("prod-1")
	require.NoError(err)
	require.Equal(0, sig.PlacementTier)
}

func TestRecomputeIdempotent(t *testing.T) {
	require := require.New(t)
	ranker := newRanker(stubBalances{"vendor-1": decimal.NewFromInt(100)})

	require.NoError(ranker.SetBid("prod-1", decimal.NewFromFloat(0.50)))
	first, err := ranker.GetRankingSignal("prod-1")
	require.NoError(err)

	for i := 0; i < 5; i++ {
		ranker.RecomputeRanking("prod-1")
	}
	again, err := ranker.GetRankingSignal("prod-1")
	require.NoError(err)
	require.Equal(first.PlacementTier, again.PlacementTier)
	require.True(first.CurrentBid.Equal(again.CurrentBid))
	require.Equal(first.ComputedAt, again.ComputedAt, "no underlying change must not rewrite the signal")
}

func TestSetBidClampsToCategoryRange(t *testing.T) {
	require := require.New(t)
	ranker := newRanker(stubBalances{"vendor-1": decimal.NewFromInt(100)})

	require.NoError(ranker.SetBid("prod-1", decimal.NewFromInt(50)))
	require.True(ranker.CurrentBid("prod-1").Equal(decimal.NewFromInt(1)))

	require.NoError(ranker.SetBid("prod-1", decimal.NewFromFloat(0.001)))
	require.True(ranker.CurrentBid("prod-1").Equal(decimal.NewFromFloat(0.05)))

	err := ranker.SetBid("prod-1", decimal.NewFromInt(-1))
	require.ErrorIs(err, core.ErrValidation)

	err = ranker.SetBid("prod-missing", decimal.NewFromInt(1))
	require.ErrorIs(err, core.ErrNotFound)
}

func TestVendorChangedRecomputesAllProducts(t *testing.T) {
	require := require.New(t)
	balances := stubBalances{"vendor-1": decimal.Zero}
	ranker := newRanker(balances)

	sig, err := ranker.GetRankingSignal("prod-1")
	require.NoError(err)
	require.Equal(0, sig.PlacementTier)

	// Top-up lands, vendor-wide recompute lifts the demotion.
	balances["vendor-1"] = decimal.NewFromInt(100)
	ranker.VendorChanged("vendor-1")

	sig, err = ranker.GetRankingSignal("prod-1")
	require.NoError(err)
	require.Equal(1, sig.PlacementTier)
}

func TestRankedProductsOrder(t *testing.T) {
	require := require.New(t)
	ranker := newRanker(stubBalances{
		"vendor-1": decimal.NewFromInt(100),
		"vendor-2": decimal.NewFromInt(100),
	})

	require.NoError(ranker.SetBid("prod-1", decimal.NewFromFloat(0.80)))
	require.NoError(ranker.SetBid("prod-2", decimal.NewFromFloat(0.10)))

	listings := ranker.RankedProducts()
	require.Len(listings, 2)
	require.Equal("prod-1", listings[0].ProductID)
	require.Equal("prod-2", listings[1].ProductID)

	// Equal tier and bid fall back to rating.
	require.NoError(ranker.SetBid("prod-2", decimal.NewFromFloat(0.80)))
	listings = ranker.RankedProducts()
	require.Equal("prod-1", listings[0].ProductID, "higher rating wins the tie")
}
