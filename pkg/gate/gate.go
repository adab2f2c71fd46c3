// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gate implements the investor-access verification gate: a
// bcrypt-hashed access code checked behind the sliding-lockout attempt
// limiter. Session/cookie issuance on success belongs to the web layer.
package gate

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/limiter"
	"github.com/marketforge/cpv/pkg/log"
)

var ErrNoCode = errors.New("no access code configured")

// Gate verifies access codes, throttling repeated failures per
// requester origin.
type Gate struct {
	codeHash []byte
	limiter  *limiter.AttemptLimiter
	log      log.Logger
}

// VerifyResult is the outcome of an access-code check.
type VerifyResult struct {
	Granted                 bool  `json:"granted"`
	Limited                 bool  `json:"limited"`
	RemainingLockoutSeconds int64 `json:"remaining_lockout_seconds,omitempty"`
}

// New creates a gate from a plaintext access code, hashing it at
// construction so the plaintext never lives beyond startup.
func New(accessCode string, lim *limiter.AttemptLimiter, logger log.Logger) (*Gate, error) {
	if accessCode == "" {
		return nil, ErrNoCode
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(accessCode), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash access code: %w", err)
	}
	return &Gate{codeHash: hash, limiter: lim, log: logger}, nil
}

// NewFromHash creates a gate from a pre-computed bcrypt hash.
func NewFromHash(codeHash []byte, lim *limiter.AttemptLimiter, logger log.Logger) *Gate {
	return &Gate{codeHash: codeHash, limiter: lim, log: logger}
}

// Verify checks an access code for the given requester origin. A locked
// origin is rejected without touching bcrypt; a failure is recorded
// against the origin; a success clears it unconditionally.
func (g *Gate) Verify(origin, code string) (*VerifyResult, error) {
	if origin == "" {
		return nil, fmt.Errorf("origin is required: %w", core.ErrValidation)
	}

	if status := g.limiter.CheckAndRecord(origin); status.Limited {
		return &VerifyResult{
			Limited:                 true,
			RemainingLockoutSeconds: status.RemainingLockoutSeconds,
		}, nil
	}

	if bcrypt.CompareHashAndPassword(g.codeHash, []byte(code)) != nil {
		g.limiter.RecordFailure(origin)
		g.log.Info("access code rejected", "origin", origin)
		return &VerifyResult{}, nil
	}

	g.limiter.ClearOnSuccess(origin)
	return &VerifyResult{Granted: true}, nil
}
