package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// domainFields prefixes field-payload hashes. The version suffix leaves
// room to migrate the algorithm without confusing old state databases.
const domainFields = "witcopy/fields/v1"

// hashWithDomain computes SHA-256 over domain + 0x00 + data. The null
// separator keeps domain and payload bytes unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FieldHash computes the content hash of a mapped field payload. Equal
// payloads hash equal regardless of map iteration order; the hash is what
// re-runs compare to decide whether an update call is needed at all.
func FieldHash(targetType string, fields map[string]any) (string, error) {
	obj := map[string]any{
		"type":   targetType,
		"fields": fields,
	}
	canonical, err := marshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("FieldHash: failed to marshal: %w", err)
	}
	return hashWithDomain(domainFields, canonical), nil
}

// MustFieldHash is like FieldHash but panics on error. Use only in tests
// or when inputs are known to be valid.
func MustFieldHash(targetType string, fields map[string]any) string {
	h, err := FieldHash(targetType, fields)
	if err != nil {
		panic(err)
	}
	return h
}
