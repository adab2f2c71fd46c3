// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import "errors"

// Error taxonomy. Callers classify with errors.Is; wrapped detail travels
// alongside via fmt.Errorf("...: %w", ...).
var (
	// ErrValidation is a caller error: missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means an unknown viewID, productID or vendorID.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyProcessed marks an idempotent no-op, not a true failure.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrInsufficientCredit is a business outcome: the view qualified but
	// the vendor balance cannot cover the charge.
	ErrInsufficientCredit = errors.New("insufficient credit")
	// ErrTransient means storage was unavailable; the caller may retry.
	ErrTransient = errors.New("transient storage failure")
	// ErrInvariant marks a would-be double charge or out-of-order state
	// transition. It indicates a bug, is logged loudly, and only fails
	// the single operation that detected it.
	ErrInvariant = errors.New("ledger invariant violated")
)
