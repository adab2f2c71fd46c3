// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package viewledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/ids"
	"github.com/marketforge/cpv/pkg/log"
	"github.com/marketforge/cpv/pkg/storage"
)

// Ledger is the append-only record of every raw view event and the sole
// owner of view lifecycle transitions. The in-memory index is the
// serialization point; the storage backend is the durable audit trail.
type Ledger struct {
	mu    sync.Mutex
	views map[string]*core.View
	dedup map[string]string // dedup bucket key -> viewID

	store  *storage.Storage
	dir    core.ProductDirectory
	window time.Duration
	now    func() time.Time
	log    log.Logger

	stats map[string]*ProductStats
}

// ProductStats are the per-product analytics tallies. Unbilled and
// rejected views land here too: a view that is not monetized is still
// counted.
type ProductStats struct {
	Recorded  uint64 `json:"recorded"`
	Qualified uint64 `json:"qualified"`
	Rejected  uint64 `json:"rejected"`
	Charged   uint64 `json:"charged"`
	Unbilled  uint64 `json:"unbilled"`
}

// RecordRequest carries the raw view event.
type RecordRequest struct {
	ProductID   string
	SessionID   string
	ViewType    core.ViewType
	UserID      string
	SearchQuery string
	Referrer    string
	UserAgent   string
	IPAddress   string
}

// RecordResult is returned to the caller of RecordView. Deduped marks a
// call that collapsed into an existing raw view.
type RecordResult struct {
	ViewID    string `json:"view_id"`
	SessionID string `json:"session_id"`
	Deduped   bool   `json:"-"`
}

// NewLedger creates a view ledger over the given storage backend.
func NewLedger(store *storage.Storage, dir core.ProductDirectory, dedupWindow time.Duration, logger log.Logger) *Ledger {
	return NewLedgerWithClock(store, dir, dedupWindow, time.Now, logger)
}

// NewLedgerWithClock injects the clock for deterministic dedup tests.
func NewLedgerWithClock(store *storage.Storage, dir core.ProductDirectory, dedupWindow time.Duration, now func() time.Time, logger log.Logger) *Ledger {
	return &Ledger{
		views:  make(map[string]*core.View),
		dedup:  make(map[string]string),
		store:  store,
		dir:    dir,
		window: dedupWindow,
		now:    now,
		log:    logger,
		stats:  make(map[string]*ProductStats),
	}
}

// RecordView validates and persists a raw view. Two calls for the same
// (product, session) pair within the dedup window return the same
// viewID; the check and the insert happen under one lock so concurrent
// identical requests can never race two raw records into existence.
func (l *Ledger) RecordView(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("record view: %w", core.ErrTransient)
	}
	if req.ProductID == "" {
		return nil, fmt.Errorf("productId is required: %w", core.ErrValidation)
	}
	if req.IPAddress == "" {
		return nil, fmt.Errorf("ipAddress is required: %w", core.ErrValidation)
	}
	if !req.ViewType.Valid() {
		return nil, fmt.Errorf("unknown viewType %q: %w", req.ViewType, core.ErrValidation)
	}

	product, err := l.dir.Product(req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("product %s is inactive: %w", req.ProductID, core.ErrNotFound)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = ids.NewSessionID()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket := now.UnixNano() / int64(l.window)

	// A request landing just past a bucket boundary still dedupes
	// against the previous bucket.
	for _, b := range []int64{bucket, bucket - 1} {
		key := dedupKey(req.ProductID, sessionID, b)
		if existingID, ok := l.dedup[key]; ok {
			if v := l.views[existingID]; v != nil && v.State == core.ViewStateRaw && now.Sub(v.CreatedAt) < l.window {
				l.log.Debug("view deduplicated",
					"view", existingID,
					"product", req.ProductID,
					"session", sessionID)
				return &RecordResult{ViewID: existingID, SessionID: sessionID, Deduped: true}, nil
			}
		}
	}

	view := &core.View{
		ViewID:      ids.NewViewID(),
		ProductID:   req.ProductID,
		VendorID:    product.VendorID,
		CategoryID:  product.CategoryID,
		SessionID:   sessionID,
		ViewType:    req.ViewType,
		UserID:      req.UserID,
		SearchQuery: req.SearchQuery,
		Referrer:    req.Referrer,
		UserAgent:   req.UserAgent,
		IPAddress:   req.IPAddress,
		CreatedAt:   now,
		State:       core.ViewStateRaw,
	}

	if err := l.store.PutView(view); err != nil {
		return nil, fmt.Errorf("persist view: %w", core.ErrTransient)
	}
	if err := l.store.Put(storage.DedupKey(req.ProductID, sessionID, bucket), []byte(view.ViewID)); err != nil {
		return nil, fmt.Errorf("persist dedup marker: %w", core.ErrTransient)
	}

	l.views[view.ViewID] = view
	l.dedup[dedupKey(req.ProductID, sessionID, bucket)] = view.ViewID
	l.bumpStats(req.ProductID, func(s *ProductStats) { s.Recorded++ })

	l.log.Debug("view recorded",
		"view", view.ViewID,
		"product", view.ProductID,
		"vendor", view.VendorID,
		"type", string(view.ViewType))

	return &RecordResult{ViewID: view.ViewID, SessionID: sessionID}, nil
}

// Get returns a copy of the view, or a NotFound error.
func (l *Ledger) Get(viewID string) (*core.View, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.views[viewID]
	if !ok {
		return nil, fmt.Errorf("view %s: %w", viewID, core.ErrNotFound)
	}
	copied := *v
	return &copied, nil
}

// Transition applies a state-guarded lifecycle transition: it succeeds
// only if the stored state equals from, so concurrent duplicate requests
// converge instead of corrupting state. mutate, if non-nil, runs inside
// the critical section to set transition-specific fields.
func (l *Ledger) Transition(viewID string, from, to core.ViewState, mutate func(*core.View)) error {
	if !core.CanTransition(from, to) {
		return fmt.Errorf("transition %s -> %s: %w", from, to, core.ErrInvariant)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.views[viewID]
	if !ok {
		return fmt.Errorf("view %s: %w", viewID, core.ErrNotFound)
	}
	if v.State != from {
		if v.State == to || v.State.Terminal() {
			return fmt.Errorf("view %s already %s: %w", viewID, v.State, core.ErrAlreadyProcessed)
		}
		return fmt.Errorf("view %s is %s, expected %s: %w", viewID, v.State, from, core.ErrInvariant)
	}

	v.State = to
	if mutate != nil {
		mutate(v)
	}

	if err := l.store.PutView(v); err != nil {
		// Roll the in-memory state back so a retry can reapply.
		v.State = from
		return fmt.Errorf("persist transition: %w", core.ErrTransient)
	}

	switch to {
	case core.ViewStateQualified:
		l.bumpStats(v.ProductID, func(s *ProductStats) { s.Qualified++ })
	case core.ViewStateRejected:
		l.bumpStats(v.ProductID, func(s *ProductStats) { s.Rejected++ })
	case core.ViewStateCharged:
		l.bumpStats(v.ProductID, func(s *ProductStats) { s.Charged++ })
	case core.ViewStateQualifiedUnbilled:
		l.bumpStats(v.ProductID, func(s *ProductStats) { s.Unbilled++ })
	}

	return nil
}

// Stats returns a copy of the analytics tallies for a product.
func (l *Ledger) Stats(productID string) ProductStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.stats[productID]; ok {
		return *s
	}
	return ProductStats{}
}

// SweepStaleRaw rejects raw views older than ttl. Clients that never
// sent a qualification signal abandoned the page; the view stays in the
// audit trail as rejected.
func (l *Ledger) SweepStaleRaw(ttl time.Duration) int {
	l.mu.Lock()
	cutoff := l.now().Add(-ttl)
	var stale []string
	for id, v := range l.views {
		if v.State == core.ViewStateRaw && v.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	l.mu.Unlock()

	expired := 0
	for _, id := range stale {
		if err := l.Transition(id, core.ViewStateRaw, core.ViewStateRejected, nil); err == nil {
			expired++
		}
	}
	if expired > 0 {
		l.log.Info("stale raw views expired", "count", expired)
	}
	return expired
}

func (l *Ledger) bumpStats(productID string, f func(*ProductStats)) {
	s, ok := l.stats[productID]
	if !ok {
		s = &ProductStats{}
		l.stats[productID] = s
	}
	f(s)
}

func dedupKey(productID, sessionID string, bucket int64) string {
	return fmt.Sprintf("%s/%s/%d", productID, sessionID, bucket)
}
