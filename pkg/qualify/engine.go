// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package qualify

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/billing"
	"github.com/marketforge/cpv/pkg/config"
	"github.com/marketforge/cpv/pkg/log"
)

// ViewStore is the slice of the view ledger the engine needs.
type ViewStore interface {
	Get(viewID string) (*core.View, error)
	Transition(viewID string, from, to core.ViewState, mutate func(*core.View)) error
}

// Charger is the billing ledger's charge surface. Only this engine may
// invoke it.
type Charger interface {
	Charge(ctx context.Context, viewID, vendorID, productID, categoryID string) (*billing.ChargeResult, error)
}

// Engine decides whether a raw view is genuine and billable. It is the
// only path by which a view leaves state raw.
type Engine struct {
	views      ViewStore
	charger    Charger
	thresholds config.Qualification
	log        log.Logger
}

// Result is the caller-visible qualification outcome. AlreadyProcessed
// and below-threshold are normal outcomes, not errors.
type Result struct {
	Success      bool   `json:"success"`
	Charged      bool   `json:"charged"`
	Reason       string `json:"reason,omitempty"`
	NeedsCredits bool   `json:"needs_credits,omitempty"`
}

// Signal carries the client-reported engagement measurements.
type Signal struct {
	DurationMs     int64
	ScrollDepth    int
	ClickedContact bool
}

// NewEngine creates a qualification engine.
func NewEngine(views ViewStore, charger Charger, thresholds config.Qualification, logger log.Logger) *Engine {
	return &Engine{
		views:      views,
		charger:    charger,
		thresholds: thresholds,
		log:        logger,
	}
}

// Qualify evaluates a view against the engagement thresholds and, on
// success, synchronously attempts the charge. Retried signals for a view
// that already left state raw are idempotent no-ops.
func (e *Engine) Qualify(ctx context.Context, viewID string, sig Signal) (*Result, error) {
	if viewID == "" {
		return nil, fmt.Errorf("viewId is required: %w", core.ErrValidation)
	}
	if sig.DurationMs < 0 {
		return nil, fmt.Errorf("duration must be non-negative: %w", core.ErrValidation)
	}
	if sig.ScrollDepth < 0 || sig.ScrollDepth > 100 {
		return nil, fmt.Errorf("scrollDepth must be 0-100: %w", core.ErrValidation)
	}

	view, err := e.views.Get(viewID)
	if err != nil {
		return nil, err
	}
	if view.State != core.ViewStateRaw {
		return &Result{Success: true, Charged: false, Reason: "already-qualified"}, nil
	}

	if !e.meetsThresholds(view.ViewType, sig) {
		err := e.views.Transition(viewID, core.ViewStateRaw, core.ViewStateRejected, func(v *core.View) {
			v.DurationMs = sig.DurationMs
			v.ScrollDepth = sig.ScrollDepth
			v.ClickedContact = sig.ClickedContact
		})
		if errors.Is(err, core.ErrAlreadyProcessed) {
			return &Result{Success: true, Charged: false, Reason: "already-qualified"}, nil
		}
		if err != nil {
			return nil, err
		}
		e.log.Debug("view rejected",
			"view", viewID,
			"duration_ms", sig.DurationMs,
			"scroll_depth", sig.ScrollDepth)
		return &Result{Success: true, Charged: false, Reason: "below-threshold"}, nil
	}

	err = e.views.Transition(viewID, core.ViewStateRaw, core.ViewStateQualified, func(v *core.View) {
		v.DurationMs = sig.DurationMs
		v.ScrollDepth = sig.ScrollDepth
		v.ClickedContact = sig.ClickedContact
	})
	if errors.Is(err, core.ErrAlreadyProcessed) {
		return &Result{Success: true, Charged: false, Reason: "already-qualified"}, nil
	}
	if err != nil {
		return nil, err
	}

	e.log.Debug("view qualified", "view", viewID, "vendor", view.VendorID)

	charge, err := e.charger.Charge(ctx, viewID, view.VendorID, view.ProductID, view.CategoryID)
	if err != nil {
		// The view stays qualified; a transient billing failure can be
		// retried by replaying the charge, never by re-qualifying.
		return nil, err
	}

	return &Result{
		Success:      true,
		Charged:      charge.Charged,
		Reason:       charge.Reason,
		NeedsCredits: charge.NeedsCredits,
	}, nil
}

// meetsThresholds applies the engagement policy: enough dwell for the
// view type, plus either enough scroll or a contact click. Direct page
// loads carry a stricter dwell threshold than listing impressions.
func (e *Engine) meetsThresholds(viewType core.ViewType, sig Signal) bool {
	minDwell := e.thresholds.MinDwellMsListing
	if viewType == core.ViewTypeDirect {
		minDwell = e.thresholds.MinDwellMsDirect
	}
	if sig.DurationMs < minDwell {
		return false
	}
	return sig.ScrollDepth >= e.thresholds.MinScrollDepth || sig.ClickedContact
}
