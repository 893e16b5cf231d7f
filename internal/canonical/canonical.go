// Package canonical fixes the one canonicalization algorithm used on both
// the issuing and the verifying side of the intent-token protocol: RFC 8785
// (JSON Canonicalization Scheme) over the parameter mapping, hashed with
// SHA-256. Any drift between the two sides would break parameter binding,
// so nothing else in the repo is allowed to hash parameters directly.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Digest returns the lowercase hex SHA-256 of the RFC 8785 canonical JSON
// encoding of params. Key order is irrelevant; value changes, added keys and
// removed keys all change the digest. A nil map digests identically to an
// empty one.
func Digest(params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("canonical.Digest: marshal: %w", err)
	}

	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonical.Digest: transform: %w", err)
	}

	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the lowercase hex SHA-256 of raw bytes. Shared by the
// audit ledger's hash chain.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
