package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Deduper is a SETNX-based idempotency guard. The first caller to claim a
// fingerprint wins; repeat claims within the TTL are reported as duplicates.
type Deduper struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewDeduper(client goredis.UniversalClient, prefix string, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{client: client, prefix: prefix, ttl: ttl}
}

// Fingerprint derives a stable dedupe key from owner and content.
func Fingerprint(ownerID, content string) string {
	sum := sha256.Sum256([]byte(ownerID + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// Claim attempts to claim the fingerprint for value. It returns true when this
// caller is the first, false when an earlier claim is still live.
func (d *Deduper) Claim(ctx context.Context, fingerprint, value string) (bool, error) {
	key := d.prefix + ":" + fingerprint
	ok, err := d.client.SetNX(ctx, key, value, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim dedupe key: %w", err)
	}
	return ok, nil
}

// Holder returns the value stored by the live claim, if any.
func (d *Deduper) Holder(ctx context.Context, fingerprint string) (string, bool, error) {
	key := d.prefix + ":" + fingerprint
	val, err := d.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read dedupe key: %w", err)
	}
	return val, true, nil
}

// Release drops a claim early, allowing the content to be ingested again.
func (d *Deduper) Release(ctx context.Context, fingerprint string) error {
	key := d.prefix + ":" + fingerprint
	if err := d.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release dedupe key: %w", err)
	}
	return nil
}
