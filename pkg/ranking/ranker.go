// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ranking

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/config"
	"github.com/marketforge/cpv/pkg/log"
)

// BalanceSource supplies a vendor's committed balance. The ranker never
// writes to the billing or view ledgers; it reads committed state and
// owns only its derived signal.
type BalanceSource interface {
	Balance(vendorID string) decimal.Decimal
}

// Ranker derives the per-product placement signal consumed by listing
// queries, recomputed whenever a debit lands, a balance crosses zero, or
// a vendor changes a bid.
type Ranker struct {
	mu      sync.RWMutex
	signals map[string]*core.PlacementSignal
	bids    map[string]decimal.Decimal

	dir      core.ProductDirectory
	rates    core.CategoryRates
	balances BalanceSource
	cfg      config.Ranking
	now      func() time.Time
	log      log.Logger
}

// NewRanker creates a placement ranker.
func NewRanker(dir core.ProductDirectory, rates core.CategoryRates, balances BalanceSource, cfg config.Ranking, logger log.Logger) *Ranker {
	return &Ranker{
		signals:  make(map[string]*core.PlacementSignal),
		bids:     make(map[string]decimal.Decimal),
		dir:      dir,
		rates:    rates,
		balances: balances,
		cfg:      cfg,
		now:      time.Now,
		log:      logger,
	}
}

// SetBalanceSource wires the billing ledger in after construction; the
// ranker and the billing ledger reference each other only through
// interfaces, so one of the two links is attached late.
func (r *Ranker) SetBalanceSource(balances BalanceSource) {
	r.mu.Lock()
	r.balances = balances
	r.mu.Unlock()
}

// SetBid applies a bid update from the vendor-facing bidding feed. Bids
// are clamped into the category's [min, max] range before they can
// influence either pricing or placement.
func (r *Ranker) SetBid(productID string, bid decimal.Decimal) error {
	product, err := r.dir.Product(productID)
	if err != nil {
		return err
	}
	profile, err := r.rates.Profile(product.CategoryID)
	if err != nil {
		return err
	}
	if bid.IsNegative() {
		return fmt.Errorf("bid must be non-negative: %w", core.ErrValidation)
	}

	if bid.LessThan(profile.MinBidAmount) {
		bid = profile.MinBidAmount
	}
	if bid.GreaterThan(profile.MaxBidAmount) {
		bid = profile.MaxBidAmount
	}

	r.mu.Lock()
	r.bids[productID] = bid
	r.mu.Unlock()

	r.log.Debug("bid updated", "product", productID, "bid", bid.String())
	r.RecomputeRanking(productID)
	return nil
}

// CurrentBid returns the vendor's effective bid for a product. A vendor
// who never bid rides at the category minimum.
func (r *Ranker) CurrentBid(productID string) decimal.Decimal {
	r.mu.RLock()
	bid, ok := r.bids[productID]
	r.mu.RUnlock()
	if ok {
		return bid
	}

	product, err := r.dir.Product(productID)
	if err != nil {
		return decimal.Zero
	}
	profile, err := r.rates.Profile(product.CategoryID)
	if err != nil {
		return decimal.Zero
	}
	return profile.MinBidAmount
}

// RecomputeRanking rebuilds the placement signal for one product. It is
// cheap and idempotent: with no underlying change it produces the same
// tier and bid, and the stored signal is only rewritten when one of them
// moved.
func (r *Ranker) RecomputeRanking(productID string) {
	product, err := r.dir.Product(productID)
	if err != nil {
		return
	}
	profile, err := r.rates.Profile(product.CategoryID)
	if err != nil {
		return
	}

	bid := r.CurrentBid(productID)
	balance := decimal.Zero
	r.mu.RLock()
	balances := r.balances
	r.mu.RUnlock()
	if balances != nil {
		balance = balances.Balance(product.VendorID)
	}
	tier := r.tierFor(profile, bid, balance)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.signals[productID]; ok &&
		existing.PlacementTier == tier && existing.CurrentBid.Equal(bid) {
		return
	}

	r.signals[productID] = &core.PlacementSignal{
		ProductID:     productID,
		PlacementTier: tier,
		CurrentBid:    bid,
		ComputedAt:    r.now(),
	}

	r.log.Debug("placement signal recomputed",
		"product", productID,
		"tier", tier,
		"bid", bid.String())
}

// GetRankingSignal returns the placement signal for a product, computing
// it on first read.
func (r *Ranker) GetRankingSignal(productID string) (*core.PlacementSignal, error) {
	r.mu.RLock()
	sig, ok := r.signals[productID]
	r.mu.RUnlock()
	if ok {
		copied := *sig
		return &copied, nil
	}

	if _, err := r.dir.Product(productID); err != nil {
		return nil, err
	}
	r.RecomputeRanking(productID)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if sig, ok = r.signals[productID]; ok {
		copied := *sig
		return &copied, nil
	}
	return nil, fmt.Errorf("product %s has no placement signal: %w", productID, core.ErrNotFound)
}

// PlacementChanged implements the billing ledger's notifier: a debit
// landed or a balance crossed zero for this product.
func (r *Ranker) PlacementChanged(productID string) {
	r.RecomputeRanking(productID)
}

// VendorChanged recomputes every product of a vendor, used after
// top-ups to lift demotions.
func (r *Ranker) VendorChanged(vendorID string) {
	for _, p := range r.dir.VendorProducts(vendorID) {
		r.RecomputeRanking(p.ProductID)
	}
}

// Listing is one row of the recommended sort.
type Listing struct {
	ProductID     string          `json:"product_id"`
	PlacementTier int             `json:"placement_tier"`
	CurrentBid    decimal.Decimal `json:"current_bid"`
	Rating        decimal.Decimal `json:"rating"`
}

// RankedProducts returns the known products in recommended order:
// placementTier desc, currentBid desc, rating desc.
func (r *Ranker) RankedProducts() []Listing {
	r.mu.RLock()
	listings := make([]Listing, 0, len(r.signals))
	for id, sig := range r.signals {
		row := Listing{
			ProductID:     id,
			PlacementTier: sig.PlacementTier,
			CurrentBid:    sig.CurrentBid,
		}
		if p, err := r.dir.Product(id); err == nil {
			row.Rating = p.Rating
		}
		listings = append(listings, row)
	}
	r.mu.RUnlock()

	sort.Slice(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		if a.PlacementTier != b.PlacementTier {
			return a.PlacementTier > b.PlacementTier
		}
		if !a.CurrentBid.Equal(b.CurrentBid) {
			return a.CurrentBid.GreaterThan(b.CurrentBid)
		}
		return a.Rating.GreaterThan(b.Rating)
	})
	return listings
}

// tierFor buckets a product by bid strength and balance headroom. A
// vendor whose balance cannot cover even the category minimum is
// exhausted and drops to tier 0 regardless of bid.
func (r *Ranker) tierFor(profile *core.CategoryRateProfile, bid, balance decimal.Decimal) int {
	if balance.LessThan(profile.MinBidAmount) || !bid.IsPositive() {
		return 0
	}

	ratio := decimal.NewFromInt(1)
	if profile.MaxBidAmount.IsPositive() {
		ratio = bid.Div(profile.MaxBidAmount)
	}
	headroom := int64(0)
	if bid.IsPositive() {
		headroom = balance.Div(bid).IntPart()
	}

	switch {
	case ratio.GreaterThanOrEqual(r.cfg.Tier3BidRatio) && headroom >= r.cfg.Tier3Headroom:
		return 3
	case ratio.GreaterThanOrEqual(r.cfg.Tier2BidRatio) && headroom >= r.cfg.Tier2Headroom:
		return 2
	case ratio.GreaterThanOrEqual(r.cfg.Tier1BidRatio):
		return 1
	default:
		return 1
	}
}
