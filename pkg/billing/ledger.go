// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/config"
	"github.com/marketforge/cpv/pkg/ids"
	"github.com/marketforge/cpv/pkg/log"
	"github.com/marketforge/cpv/pkg/storage"
)

// ViewTransitioner is the slice of the view ledger the billing ledger
// is allowed to touch: state-guarded transitions only.
type ViewTransitioner interface {
	Transition(viewID string, from, to core.ViewState, mutate func(*core.View)) error
}

// BidSource supplies a vendor's current bid standing for a product.
type BidSource interface {
	CurrentBid(productID string) decimal.Decimal
}

// RankNotifier is poked after any billing event that can move a
// placement signal.
type RankNotifier interface {
	PlacementChanged(productID string)
	VendorChanged(vendorID string)
}

// Ledger holds vendor credit accounts and the append-only transaction
// log. Debits against one account are serialized by that account's
// mutex; accounts do not contend with each other.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account

	store    *storage.Storage
	rates    core.CategoryRates
	views    ViewTransitioner
	bids     BidSource
	notifier RankNotifier
	policy   config.Billing
	now      func() time.Time
	log      log.Logger
}

// account pairs the balance state with its serialization lock and the
// rolling commitment over its transaction chain.
type account struct {
	mu         sync.Mutex
	vendorID   string
	balance    decimal.Decimal
	currency   string
	commitment []byte
	updatedAt  time.Time
}

// ChargeResult is the outcome of a charge attempt.
type ChargeResult struct {
	Charged      bool            `json:"charged"`
	Reason       string          `json:"reason,omitempty"`
	NeedsCredits bool            `json:"needs_credits,omitempty"`
	Amount       decimal.Decimal `json:"amount,omitempty"`
}

// NewLedger creates a billing ledger.
func NewLedger(store *storage.Storage, rates core.CategoryRates, views ViewTransitioner, bids BidSource, notifier RankNotifier, policy config.Billing, logger log.Logger) *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		store:    store,
		rates:    rates,
		views:    views,
		bids:     bids,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
		log:      logger,
	}
}

// CreateAccount registers a vendor credit account with a zero balance.
// Creating an existing account is a no-op.
func (l *Ledger) CreateAccount(vendorID, currency string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[vendorID]; ok {
		return
	}
	l.accounts[vendorID] = &account{
		vendorID:  vendorID,
		balance:   decimal.Zero,
		currency:  currency,
		updatedAt: l.now(),
	}
}

// Balance returns the vendor's current balance, or zero for an unknown
// vendor.
func (l *Ledger) Balance(vendorID string) decimal.Decimal {
	l.mu.RLock()
	acct, ok := l.accounts[vendorID]
	l.mu.RUnlock()
	if !ok {
		return decimal.Zero
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance
}

// Account returns a snapshot of the vendor account.
func (l *Ledger) Account(vendorID string) (*core.VendorAccount, error) {
	l.mu.RLock()
	acct, ok := l.accounts[vendorID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vendor %s: %w", vendorID, core.ErrNotFound)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	return &core.VendorAccount{
		VendorID:  acct.vendorID,
		Balance:   acct.balance,
		Currency:  acct.currency,
		UpdatedAt: acct.updatedAt,
	}, nil
}

// Charge debits a vendor for one qualified view. Invoked only by the
// qualification engine. The idempotency gate is the charge-transaction
// log keyed by viewID: a replayed charge for an already-charged view is
// a no-op, and under concurrent duplicates only one debit can succeed.
// The balance check, the debit and the view transition to charged (or
// qualified-unbilled) happen inside the account's critical section.
func (l *Ledger) Charge(ctx context.Context, viewID, vendorID, productID, categoryID string) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("charge: %w", core.ErrTransient)
	}

	profile, err := l.rates.Profile(categoryID)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	acct, ok := l.accounts[vendorID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vendor %s has no credit account: %w", vendorID, core.ErrNotFound)
	}

	amount := ChargeAmount(profile, l.bids.CurrentBid(productID), l.policy)

	acct.mu.Lock()
	defer acct.mu.Unlock()

	charged, err := l.store.HasChargeFor(viewID)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", core.ErrTransient)
	}
	if charged {
		l.log.Debug("charge replayed, no-op", "view", viewID, "vendor", vendorID)
		return &ChargeResult{Charged: true, Reason: "already-charged"}, nil
	}

	if acct.balance.LessThan(amount) {
		err := l.views.Transition(viewID, core.ViewStateQualified, core.ViewStateQualifiedUnbilled, nil)
		if err != nil && !errors.Is(err, core.ErrAlreadyProcessed) {
			return nil, err
		}
		l.log.Info("qualified view left unbilled",
			"view", viewID,
			"vendor", vendorID,
			"amount", amount.String(),
			"balance", acct.balance.String())
		l.notifier.PlacementChanged(productID)
		return &ChargeResult{
			Charged:      false,
			Reason:       "insufficient-credit",
			NeedsCredits: true,
			Amount:       amount,
		}, nil
	}

	newBalance := acct.balance.Sub(amount)
	tx := &core.Transaction{
		TxID:         ids.NewTxID(),
		VendorID:     vendorID,
		Type:         core.TxCharge,
		ViewID:       viewID,
		ProductID:    productID,
		Amount:       amount,
		BalanceAfter: newBalance,
		Commitment:   chainCommitment(acct.commitment, vendorID, amount, newBalance),
		CreatedAt:    l.now(),
	}

	// The transaction write is the point of no return: once the viewID
	// index entry exists, no second debit for this view can get past the
	// idempotency gate.
	if err := l.store.PutTransaction(tx); err != nil {
		return nil, fmt.Errorf("persist charge: %w", core.ErrTransient)
	}

	acct.balance = newBalance
	acct.commitment = tx.Commitment
	acct.updatedAt = tx.CreatedAt

	chargedAt := tx.CreatedAt
	if err := l.views.Transition(viewID, core.ViewStateQualified, core.ViewStateCharged, func(v *core.View) {
		v.ChargeAmount = amount
		v.ChargedAt = chargedAt
	}); err != nil {
		// The debit landed but the view refused the transition. The
		// idempotency gate makes this unreachable; if it fires anyway,
		// reject the operation and leave the ledger to the audit trail.
		l.log.Error("charge transition failed after debit",
			"view", viewID,
			"vendor", vendorID,
			"tx", tx.TxID,
			"error", err.Error())
		return nil, fmt.Errorf("view %s debit recorded but not marked charged: %w", viewID, core.ErrInvariant)
	}

	l.log.Info("view charged",
		"view", viewID,
		"vendor", vendorID,
		"amount", amount.String(),
		"balance", newBalance.String())

	l.notifier.PlacementChanged(productID)
	return &ChargeResult{Charged: true, Amount: amount}, nil
}

// TopUp credits a vendor account, creating it on first use. Top-ups
// restore placement for the vendor's demoted products; they never
// retroactively bill qualified-unbilled views.
func (l *Ledger) TopUp(ctx context.Context, vendorID string, amount decimal.Decimal, currency string) (*core.VendorAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("topup: %w", core.ErrTransient)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("topup amount must be positive: %w", core.ErrValidation)
	}

	l.mu.Lock()
	acct, ok := l.accounts[vendorID]
	if !ok {
		acct = &account{
			vendorID: vendorID,
			balance:  decimal.Zero,
			currency: currency,
		}
		l.accounts[vendorID] = acct
	}
	l.mu.Unlock()

	acct.mu.Lock()
	newBalance := acct.balance.Add(amount)
	tx := &core.Transaction{
		TxID:         ids.NewTxID(),
		VendorID:     vendorID,
		Type:         core.TxTopUp,
		Amount:       amount,
		BalanceAfter: newBalance,
		Commitment:   chainCommitment(acct.commitment, vendorID, amount, newBalance),
		CreatedAt:    l.now(),
	}
	if err := l.store.PutTransaction(tx); err != nil {
		acct.mu.Unlock()
		return nil, fmt.Errorf("persist topup: %w", core.ErrTransient)
	}
	acct.balance = newBalance
	acct.commitment = tx.Commitment
	acct.updatedAt = tx.CreatedAt
	snapshot := &core.VendorAccount{
		VendorID:  acct.vendorID,
		Balance:   acct.balance,
		Currency:  acct.currency,
		UpdatedAt: acct.updatedAt,
	}
	acct.mu.Unlock()

	l.log.Info("account topped up",
		"vendor", vendorID,
		"amount", amount.String(),
		"balance", snapshot.Balance.String())

	l.notifier.VendorChanged(vendorID)
	return snapshot, nil
}

// Transactions returns the persisted transaction log for a vendor.
func (l *Ledger) Transactions(vendorID string) ([]*core.Transaction, error) {
	txs, err := l.store.VendorTransactions(vendorID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", core.ErrTransient)
	}
	return txs, nil
}
