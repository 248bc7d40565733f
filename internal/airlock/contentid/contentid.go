// Package contentid computes the stable identity pinned to a file's bytes
// when it is added to a release request. The identifier is re-derived from
// the live workspace copy before release; a mismatch means the workspace
// file changed after review started.
package contentid

import (
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Prefix versions the identifier scheme in the stored value, so a future
// hash change can coexist with rows written under the current one.
const Prefix = "b2:"

// Resolve streams r through BLAKE2b-256 and returns the prefixed hex digest.
func Resolve(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("init hash: %w", err)
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return Prefix + hex.EncodeToString(h.Sum(nil)), nil
}

// ResolveBytes is Resolve for in-memory content.
func ResolveBytes(b []byte) string {
	sum := blake2b.Sum256(b)
	return Prefix + hex.EncodeToString(sum[:])
}
