// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package textutil provides question normalization and fingerprinting.
//
// Two textually different but equivalent questions (case, accents,
// punctuation, or whitespace differences) must normalize to the same string
// and therefore hash to the same fingerprint. This is the correctness
// contract for the answer cache: the fingerprint is the cache key.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes input to NFD, removes combining marks (accents,
// diacritics), and recomposes to NFC. "energía" becomes "energia".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases text, strips diacritics, removes every rune that is
// not a letter, digit, underscore, or whitespace, collapses consecutive
// whitespace to a single space, and trims the result.
//
// Normalize is pure and idempotent: Normalize(Normalize(x)) == Normalize(x).
// The empty string normalizes to the empty string.
func Normalize(text string) string {
	text = strings.ToLower(text)

	stripped, _, err := transform.String(stripMarks, text)
	if err == nil {
		text = stripped
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Hash returns the SHA-256 digest of text, hex-encoded (64 characters).
// The empty string produces a valid, stable digest like any other input.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Fingerprint normalizes text and hashes the result. This is the canonical
// cache key for a question.
func Fingerprint(text string) string {
	return Hash(Normalize(text))
}

// Truncate shortens text to at most max characters, appending "..." when
// anything was cut. Used for log-friendly question previews.
func Truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}
