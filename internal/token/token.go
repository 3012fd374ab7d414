// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token generates opaque state tokens for the OAuth2 round-trip.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Length is the number of random bytes in a state token.
const Length = 32

// Generate returns a new random state token encoded as 64 hex characters.
func Generate() (string, error) {
	bytes := make([]byte, Length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// Valid reports whether s has the shape of a generated token.
// It says nothing about whether the token was ever issued.
func Valid(s string) bool {
	if len(s) != Length*2 {
		return false
	}
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isHexLetter := c >= 'a' && c <= 'f'
		if !isDigit && !isHexLetter {
			return false
		}
	}
	return true
}
