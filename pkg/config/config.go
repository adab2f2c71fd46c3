// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrBadThreshold = errors.New("invalid qualification threshold")
	ErrBadWindow    = errors.New("invalid window duration")
	ErrBadTier      = errors.New("tier thresholds must be ascending")
)

// Qualification holds the engagement thresholds a view must clear.
// Direct page loads have a longer natural dwell than listing impressions,
// so they are held to their own threshold.
type Qualification struct {
	MinDwellMsDirect  int64 // minimum dwell for viewType=direct
	MinDwellMsListing int64 // minimum dwell for search/related impressions
	MinScrollDepth    int   // percent, 0-100
}

// Billing holds the charge-amount policy knobs. The charge for a
// qualified view is
//
//	clamp(baseViewRate * competitiveness multiplier * bidFactor, minBid, maxBid)
//
// where bidFactor scales linearly from BidFactorFloor at minBid to 1.0 at
// maxBid. Monotonic in bid, deterministic given the same inputs.
type Billing struct {
	CompetitivenessLow    decimal.Decimal
	CompetitivenessMedium decimal.Decimal
	CompetitivenessHigh   decimal.Decimal
	BidFactorFloor        decimal.Decimal
}

// Ranking holds the placement-tier thresholds. A product lands in the
// highest tier whose bid-ratio and headroom requirements it meets;
// a vendor whose balance cannot cover one more charge drops to tier 0.
type Ranking struct {
	Tier1BidRatio decimal.Decimal
	Tier2BidRatio decimal.Decimal
	Tier3BidRatio decimal.Decimal
	Tier2Headroom int64 // charges the remaining balance can cover
	Tier3Headroom int64
}

// Limiter holds the sliding-lockout parameters shared by the investor
// gate and any other sensitive low-frequency endpoint.
type Limiter struct {
	MaxAttempts   int
	LockoutWindow time.Duration
}

// Config is the full engine configuration.
type Config struct {
	Qualification Qualification
	Billing       Billing
	Ranking       Ranking
	Limiter       Limiter

	// DedupWindow is the rolling window within which a second view for
	// the same (product, session) pair collapses into the first.
	DedupWindow time.Duration

	// RawViewTTL is how long a view may sit in state raw before the
	// housekeeping sweep expires it to rejected.
	RawViewTTL time.Duration

	// OpTimeout bounds ledger lookups and balance checks so no request
	// blocks indefinitely.
	OpTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Qualification: Qualification{
			MinDwellMsDirect:  30000,
			MinDwellMsListing: 10000,
			MinScrollDepth:    50,
		},
		Billing: Billing{
			CompetitivenessLow:    decimal.NewFromFloat(1.0),
			CompetitivenessMedium: decimal.NewFromFloat(1.25),
			CompetitivenessHigh:   decimal.NewFromFloat(1.5),
			BidFactorFloor:        decimal.NewFromFloat(0.5),
		},
		Ranking: Ranking{
			Tier1BidRatio: decimal.NewFromFloat(0.10),
			Tier2BidRatio: decimal.NewFromFloat(0.50),
			Tier3BidRatio: decimal.NewFromFloat(0.75),
			Tier2Headroom: 10,
			Tier3Headroom: 50,
		},
		Limiter: Limiter{
			MaxAttempts:   5,
			LockoutWindow: 15 * time.Minute,
		},
		DedupWindow: 5 * time.Second,
		RawViewTTL:  24 * time.Hour,
		OpTimeout:   2 * time.Second,
	}
}

// Validate rejects configurations that would corrupt qualification or
// ranking behavior.
func (c Config) Validate() error {
	if c.Qualification.MinDwellMsDirect <= 0 || c.Qualification.MinDwellMsListing <= 0 {
		return ErrBadThreshold
	}
	if c.Qualification.MinScrollDepth < 0 || c.Qualification.MinScrollDepth > 100 {
		return ErrBadThreshold
	}
	if c.DedupWindow <= 0 || c.OpTimeout <= 0 {
		return ErrBadWindow
	}
	if c.Limiter.MaxAttempts <= 0 || c.Limiter.LockoutWindow <= 0 {
		return ErrBadWindow
	}
	r := c.Ranking
	if !r.Tier1BidRatio.LessThan(r.Tier2BidRatio) || !r.Tier2BidRatio.LessThan(r.Tier3BidRatio) {
		return ErrBadTier
	}
	return nil
}
