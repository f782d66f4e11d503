package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// HashBytes computes the SHA-256 digest of a byte buffer and returns it as a
// lowercase hex string. Deterministic and unsalted: the same bytes always
// produce the same hash, which is what makes baseline comparison possible.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader computes the SHA-256 digest of everything readable from r.
// A read failure returns an empty hash and the error — never a partial or
// fabricated digest that could be mistaken for a real match.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChainHash computes the hash of a record given its predecessor's hash.
// The formula covers every identity field, so modifying any of them (or the
// link itself) invalidates the record and every record after it:
//
//	SHA-256(prev_hash | id | created_at | event_type | actor_id | resource_id)
func ChainHash(prevHash string, r *AuditRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s",
		prevHash, r.ID, r.CreatedAt,
		r.EventType, r.ActorID, r.ResourceID)
	return hex.EncodeToString(h.Sum(nil))
}
