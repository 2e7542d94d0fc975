// Package calculations provides an ephemeral, content-addressed cache for
// expensive numeric results. Payloads are msgpack-encoded blobs in the cache
// database; keys are short sha256 content hashes so a change in any input
// produces a fresh entry.
package calculations

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// TTLCovariance is how long cached covariance matrices stay valid.
const TTLCovariance = 24 * time.Hour

// Cache is a TTL'd key/value store backed by the calculations database.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates a cache over an opened calculations database.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "calc_cache").Logger(),
	}
}

// Key builds a deterministic cache key from namespace + input parts.
// Uses the first 16 bytes of the sha256 for compact keys.
func Key(namespace string, parts ...string) string {
	h := sha256.Sum256([]byte(namespace + "|" + strings.Join(parts, "|")))
	return namespace + ":" + hex.EncodeToString(h[:16])
}

// Get decodes a cached value into dst. Returns false on miss or expiry;
// a decode failure is logged and treated as a miss so the caller recomputes.
func (c *Cache) Get(key string, dst interface{}) bool {
	var payload []byte
	err := c.db.QueryRow(
		`SELECT payload FROM calculations WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UTC().Format(time.RFC3339),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return false
	}
	if err := msgpack.Unmarshal(payload, dst); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to decode cached payload, treating as miss")
		return false
	}
	return true
}

// Set encodes value with msgpack and upserts it under key with the given TTL.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = c.db.Exec(`INSERT INTO calculations (cache_key, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, payload, now.Format(time.RFC3339), now.Add(ttl).Format(time.RFC3339))
	return err
}

// PurgeExpired deletes entries past their expiry. Returns the rows removed.
func (c *Cache) PurgeExpired() (int64, error) {
	res, err := c.db.Exec(`DELETE FROM calculations WHERE expires_at <= ?`,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.log.Debug().Int64("removed", n).Msg("Purged expired cache entries")
	}
	return n, nil
}
