// Package fingerprint computes content fingerprints of raw rows.
//
// A fingerprint is the lowercase hex MD5 of the row's canonical JSON
// rendering (see payload.CanonicalJSON). Key order, whitespace and the
// storage engine's JSON normalization do not affect it; any change to a key or
// value does. It is a change-detection key, not a security primitive.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"

	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// Length is the length of a fingerprint string.
const Length = 2 * md5.Size

var validPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Compute returns the fingerprint of a row.
func Compute(row payload.Object) string {
	sum := md5.Sum(payload.CanonicalJSON(row))
	return hex.EncodeToString(sum[:])
}

// ComputeValue fingerprints any document, including non-object rows.
func ComputeValue(v payload.Value) string {
	sum := md5.Sum(payload.AppendCanonical(nil, v))
	return hex.EncodeToString(sum[:])
}

// ComputeJSON decodes a stored JSON row and fingerprints it.
func ComputeJSON(data []byte) (string, error) {
	row, err := payload.ParseObject(data)
	if err != nil {
		return "", err
	}
	return Compute(row), nil
}

// Valid reports whether s looks like a fingerprint.
func Valid(s string) bool {
	return validPattern.MatchString(s)
}
