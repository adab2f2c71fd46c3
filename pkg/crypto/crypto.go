// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/sha256"

	"github.com/luxfi/crypto/hashing"
)

// CreateCommitment creates a cryptographic commitment using luxfi's hashing
func CreateCommitment(data []byte) []byte {
	return hashing.ComputeHash256(data)
}

// HashData hashes data using SHA256
func HashData(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}
