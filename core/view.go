// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ViewState is the lifecycle state of a recorded view.
type ViewState string

const (
	// ViewStateRaw is the initial state of every recorded view.
	ViewStateRaw ViewState = "raw"
	// ViewStateQualified means the view passed engagement thresholds
	// and is awaiting (or lost) its billing outcome.
	ViewStateQualified ViewState = "qualified"
	// ViewStateRejected means the view failed engagement thresholds.
	ViewStateRejected ViewState = "rejected"
	// ViewStateCharged means the view qualified and the vendor was debited.
	ViewStateCharged ViewState = "charged"
	// ViewStateQualifiedUnbilled means the view qualified but the vendor
	// had insufficient credit; the view is counted but not monetized.
	ViewStateQualifiedUnbilled ViewState = "qualified-unbilled"
)

// transitions is the full state machine table. A transition not listed
// here is an invariant violation.
var transitions = map[ViewState][]ViewState{
	ViewStateRaw:       {ViewStateQualified, ViewStateRejected},
	ViewStateQualified: {ViewStateCharged, ViewStateQualifiedUnbilled},
	// rejected, charged and qualified-unbilled are terminal
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to ViewState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a view in this state can never change again.
func (s ViewState) Terminal() bool {
	return len(transitions[s]) == 0
}

// ViewType distinguishes a product page load from listing impressions.
type ViewType string

const (
	ViewTypeDirect  ViewType = "direct"
	ViewTypeSearch  ViewType = "search"
	ViewTypeRelated ViewType = "related"
)

// Valid reports whether t is a known view type.
func (t ViewType) Valid() bool {
	switch t {
	case ViewTypeDirect, ViewTypeSearch, ViewTypeRelated:
		return true
	}
	return false
}

// View is a single append-only view record. Identity fields are set once
// at record time; the mutable fields change only through the lifecycle
// transitions enforced by the view ledger.
type View struct {
	ViewID      string   `json:"view_id"`
	ProductID   string   `json:"product_id"`
	VendorID    string   `json:"vendor_id"`
	CategoryID  string   `json:"category_id"`
	SessionID   string   `json:"session_id"`
	ViewType    ViewType `json:"view_type"`
	UserID      string   `json:"user_id,omitempty"`
	SearchQuery string   `json:"search_query,omitempty"`
	Referrer    string   `json:"referrer,omitempty"`
	UserAgent   string   `json:"user_agent,omitempty"`
	IPAddress   string   `json:"ip_address"`
	CreatedAt   time.Time `json:"created_at"`

	State          ViewState       `json:"state"`
	DurationMs     int64           `json:"duration_ms"`
	ScrollDepth    int             `json:"scroll_depth"`
	ClickedContact bool            `json:"clicked_contact"`
	ChargeAmount   decimal.Decimal `json:"charge_amount"`
	ChargedAt      time.Time       `json:"charged_at,omitzero"`
}
