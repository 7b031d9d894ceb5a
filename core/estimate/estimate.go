// Package estimate converts file content into approximate token counts and
// short content fingerprints used for drift detection.
package estimate

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	// CharsPerToken is the fixed heuristic ratio: roughly four UTF-8 bytes per token.
	CharsPerToken = 4

	FingerprintPrefix = "sha256:"
	FingerprintLength = 12
)

// Estimate returns floor(len(content) / CharsPerToken). Content is measured in
// encoded bytes, never in runes, so the count is stable across locales.
func Estimate(content []byte) int {
	return len(content) / CharsPerToken
}

// Fingerprint returns the tagged, truncated sha256 of content, for example
// "sha256:3a7bd3e2360a". Truncation keeps manifests compact; it is not a
// tamper-evidence mechanism.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return FingerprintPrefix + hex.EncodeToString(sum[:])[:FingerprintLength]
}
