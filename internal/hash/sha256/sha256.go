// Package sha256 derives stable keys for records.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Hasher computes hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RecordKey identifies one attempt's Record: the same address scraped at a
// different time, or with a different block outcome, gets a different key.
func (h Hasher) RecordKey(rec harvest.Record) string {
	key := rec.URL + "\x00" + rec.ScrapedAt.UTC().Format(time.RFC3339Nano) + "\x00" + strconv.FormatBool(rec.Blocked)
	return h.Hash([]byte(key))
}
