// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"encoding/json"
	"fmt"

	"github.com/marketforge/cpv/core"
)

// Key layout. Everything is append-oriented: view records are updated
// in place only through lifecycle transitions, transactions never change.
//
//	view/<viewID>          -> core.View
//	dedup/<product>/<session>/<bucket> -> viewID
//	tx/<vendorID>/<txID>   -> core.Transaction
//	txview/<viewID>        -> txID (charge idempotency index)
const (
	prefixView   = "view/"
	prefixDedup  = "dedup/"
	prefixTx     = "tx/"
	prefixTxView = "txview/"
)

// ViewKey returns the storage key for a view record.
func ViewKey(viewID string) []byte {
	return []byte(prefixView + viewID)
}

// DedupKey returns the storage key for a dedup window bucket.
func DedupKey(productID, sessionID string, bucket int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%d", prefixDedup, productID, sessionID, bucket))
}

// TxKey returns the storage key for a transaction record.
func TxKey(vendorID, txID string) []byte {
	return []byte(prefixTx + vendorID + "/" + txID)
}

// TxViewKey returns the charge-idempotency index key for a view.
func TxViewKey(viewID string) []byte {
	return []byte(prefixTxView + viewID)
}

// PutView persists a view record.
func (s *Storage) PutView(v *core.View) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ViewKey(v.ViewID), data)
}

// GetView loads a view record, or (nil, nil) when absent.
func (s *Storage) GetView(viewID string) (*core.View, error) {
	data, err := s.Get(ViewKey(viewID))
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v core.View
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// PutTransaction persists a transaction and, for charges, its viewID
// index entry in one batch.
func (s *Storage) PutTransaction(tx *core.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	batch := s.NewBatch()
	if err := batch.Put(TxKey(tx.VendorID, tx.TxID), data); err != nil {
		return err
	}
	if tx.Type == core.TxCharge {
		if err := batch.Put(TxViewKey(tx.ViewID), []byte(tx.TxID)); err != nil {
			return err
		}
	}
	return batch.Write()
}

// VendorTransactions returns all persisted transactions for a vendor.
func (s *Storage) VendorTransactions(vendorID string) ([]*core.Transaction, error) {
	iter := s.NewIteratorWithPrefix([]byte(prefixTx + vendorID + "/"))
	defer iter.Release()

	var txs []*core.Transaction
	for iter.Next() {
		var tx core.Transaction
		if err := json.Unmarshal(iter.Value(), &tx); err != nil {
			return nil, err
		}
		txs = append(txs, &tx)
	}
	return txs, iter.Error()
}

// HasChargeFor reports whether a charge transaction was ever written for
// this view.
func (s *Storage) HasChargeFor(viewID string) (bool, error) {
	return s.Has(TxViewKey(viewID))
}
