// Package ids generates opaque, kind-tagged identifiers and computes
// stable content hashes over typed values.
//
// Every identifier produced here is a plain string of the form
// "<kind>_<uuid>" (e.g. "art_5b1b...", "ver_9c2e..."). The kind prefix
// is advisory only — callers must not parse it to recover type
// information, it exists purely so that ids are recognisable in logs
// and error messages.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind tags the entity an identifier was generated for.
type Kind string

const (
	KindArtifact   Kind = "art"
	KindVersion    Kind = "ver"
	KindProject    Kind = "prj"
	KindHistory    Kind = "his"
	KindChange     Kind = "chg"
	KindSavePoint  Kind = "sav"
	KindWorkspace  Kind = "wks"
	KindConflict   Kind = "cfl"
)

// New generates a fresh, globally unique identifier for the given kind.
func New(kind Kind) string {
	return fmt.Sprintf("%s_%s", kind, uuid.NewString())
}

// ContentHash computes a stable digest over a typed value by
// marshalling it to JSON with sorted map keys (Go's encoding/json
// already sorts map[string]... keys) and hashing the result with
// SHA-256. Two values that marshal identically hash identically,
// regardless of in-memory field order.
func ContentHash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("content hash: marshal: %w", err)
	}
	return HashBytes(data), nil
}

// HashBytes hashes raw bytes directly, for agents whose content is
// already a byte sequence (e.g. text artifacts) rather than a
// structured value.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
