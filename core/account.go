// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// VendorAccount is a vendor's prepaid credit account. Balance is always
// non-negative; every change is backed by exactly one transaction record.
type VendorAccount struct {
	VendorID  string          `json:"vendor_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TxType is the business reason for a balance change.
type TxType string

const (
	TxCharge TxType = "charge"
	TxTopUp  TxType = "topup"
)

// Transaction is a single row in the append-only per-vendor transaction
// log. Charge transactions are keyed by ViewID, which is what makes a
// replayed charge for the same view a no-op.
type Transaction struct {
	TxID         string          `json:"tx_id"`
	VendorID     string          `json:"vendor_id"`
	Type         TxType          `json:"type"`
	ViewID       string          `json:"view_id,omitempty"`
	ProductID    string          `json:"product_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Commitment   []byte          `json:"commitment"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Competitiveness buckets a category's bid pressure.
type Competitiveness string

const (
	CompetitivenessLow    Competitiveness = "low"
	CompetitivenessMedium Competitiveness = "medium"
	CompetitivenessHigh   Competitiveness = "high"
)

// CategoryRateProfile is the read-only pricing input for a category,
// owned by category administration.
type CategoryRateProfile struct {
	CategoryID      string          `json:"category_id"`
	BaseViewRate    decimal.Decimal `json:"base_view_rate"`
	MinBidAmount    decimal.Decimal `json:"min_bid_amount"`
	MaxBidAmount    decimal.Decimal `json:"max_bid_amount"`
	Competitiveness Competitiveness `json:"competitiveness"`
}

// PlacementSignal is the derived ranking input consumed by listing
// queries. Written only by the placement ranker.
type PlacementSignal struct {
	ProductID     string          `json:"product_id"`
	PlacementTier int             `json:"placement_tier"`
	CurrentBid    decimal.Decimal `json:"current_bid"`
	ComputedAt    time.Time       `json:"computed_at"`
}

// Product is the slice of catalog state this engine needs: ownership,
// category, active flag and rating for the recommended sort.
type Product struct {
	ProductID  string          `json:"product_id"`
	VendorID   string          `json:"vendor_id"`
	CategoryID string          `json:"category_id"`
	Active     bool            `json:"active"`
	Rating     decimal.Decimal `json:"rating"`
}

// ProductDirectory is the external catalog collaborator.
type ProductDirectory interface {
	Product(productID string) (*Product, error)
	VendorProducts(vendorID string) []*Product
}

// CategoryRates is the external category-administration collaborator.
type CategoryRates interface {
	Profile(categoryID string) (*CategoryRateProfile, error)
}
