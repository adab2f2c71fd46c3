// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package catalog

import (
	"fmt"
	"sync"

	"github.com/marketforge/cpv/core"
)

// Directory is an in-process product directory. In production the
// marketplace catalog service sits behind the core.ProductDirectory
// interface; this implementation backs tests and the demo binary.
type Directory struct {
	mu       sync.RWMutex
	products map[string]*core.Product
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		products: make(map[string]*core.Product),
	}
}

// AddProduct registers a product.
func (d *Directory) AddProduct(p *core.Product) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.products[p.ProductID] = p
}

// Product returns the product or core.ErrNotFound. Inactive products
// are returned; callers that require an active product check the flag.
func (d *Directory) Product(productID string) (*core.Product, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, core.ErrNotFound)
	}
	return p, nil
}

// VendorProducts returns all products owned by a vendor.
func (d *Directory) VendorProducts(vendorID string) []*core.Product {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*core.Product
	for _, p := range d.products {
		if p.VendorID == vendorID {
			out = append(out, p)
		}
	}
	return out
}

// Rates is an in-process category rate profile store, owned by category
// administration in production.
type Rates struct {
	mu       sync.RWMutex
	profiles map[string]*core.CategoryRateProfile
}

// NewRates creates an empty rate store.
func NewRates() *Rates {
	return &Rates{
		profiles: make(map[string]*core.CategoryRateProfile),
	}
}

// SetProfile registers or replaces a category rate profile.
func (r *Rates) SetProfile(p *core.CategoryRateProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.CategoryID] = p
}

// Profile returns the rate profile or core.ErrNotFound.
func (r *Rates) Profile(categoryID string) (*core.CategoryRateProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[categoryID]
	if !ok {
		return nil, fmt.Errorf("category %s: %w", categoryID, core.ErrNotFound)
	}
	return p, nil
}
