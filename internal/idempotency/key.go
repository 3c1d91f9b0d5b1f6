package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"example.com/signinledger/internal/domain"
)

// DeriveKey returns a stable archive key for ev: the hex SHA-256 of its
// identity (name, action, occurredAt rounded down to the tolerance window),
// so retries of the same scan land on one row whatever ID the ledger gave
// them.
func DeriveKey(ev domain.Event, tolerance time.Duration) string {
	sum := sha256.Sum256([]byte(ev.Identity(tolerance)))
	return hex.EncodeToString(sum[:])
}
