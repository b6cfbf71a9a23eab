// Package redisledger provides a Redis implementation of scan.Ledger.
//
// Entries for one (entity, rule) pair live in a single hash keyed by bucket;
// HSETNX is the atomic check-and-set that guarantees at-most-once per key
// across concurrent runs. The escalation/de-escalation classification reads
// the hash first and is therefore best-effort under a concurrent write to a
// sibling bucket; the at-most-once guarantee per key is unaffected.
package redisledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/warden/internal/scan"
)

const keyPrefix = "warden:ledger:"

// Ledger persists deduplication entries in Redis.
type Ledger struct {
	client *redis.Client
}

// New creates a Ledger from a Redis URL and verifies connectivity.
func New(ctx context.Context, url string) (*Ledger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Ledger{client: client}, nil
}

// NewWithClient wraps an existing client (tests).
func NewWithClient(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

// Close releases the underlying connection pool.
func (l *Ledger) Close() error {
	return l.client.Close()
}

// PairKey returns the hash key holding all buckets for one (entity, rule).
func PairKey(entityID, ruleID string) string {
	return keyPrefix + entityID + ":" + ruleID
}

func alertKey(alertID string) string {
	return keyPrefix + "alert:" + alertID
}

// Reserve implements scan.Ledger.
func (l *Ledger) Reserve(ctx context.Context, key scan.LedgerKey, rank int) (scan.Decision, error) {
	pair := PairKey(key.EntityID, key.RuleID)

	existing, err := l.client.HGetAll(ctx, pair).Result()
	if err != nil {
		return "", fmt.Errorf("hgetall %s: %w", pair, err)
	}

	d := classify(existing, key.Bucket, rank)
	if d == scan.DecisionAlreadyHandled {
		return d, nil
	}

	set, err := l.client.HSetNX(ctx, pair, key.Bucket, strconv.Itoa(rank)).Result()
	if err != nil {
		return "", fmt.Errorf("hsetnx %s %s: %w", pair, key.Bucket, err)
	}
	if !set {
		// A concurrent run won the race for this bucket.
		return scan.DecisionAlreadyHandled, nil
	}
	return d, nil
}

// Peek implements scan.Ledger.
func (l *Ledger) Peek(ctx context.Context, key scan.LedgerKey, rank int) (scan.Decision, error) {
	pair := PairKey(key.EntityID, key.RuleID)
	existing, err := l.client.HGetAll(ctx, pair).Result()
	if err != nil {
		return "", fmt.Errorf("hgetall %s: %w", pair, err)
	}
	return classify(existing, key.Bucket, rank), nil
}

// Attach implements scan.Ledger.
func (l *Ledger) Attach(ctx context.Context, key scan.LedgerKey, alertID string) error {
	pair := PairKey(key.EntityID, key.RuleID)

	rank, err := l.client.HGet(ctx, pair, key.Bucket).Result()
	if err != nil {
		return fmt.Errorf("attach: no ledger entry for %s: %w", key, err)
	}

	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, pair, key.Bucket, fieldValue(rank, alertID))
	pipe.Set(ctx, alertKey(alertID), key.String(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("attach %s: %w", key, err)
	}
	return nil
}

// Release implements scan.Ledger.
func (l *Ledger) Release(ctx context.Context, key scan.LedgerKey) error {
	pair := PairKey(key.EntityID, key.RuleID)

	val, err := l.client.HGet(ctx, pair, key.Bucket).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}

	pipe := l.client.TxPipeline()
	pipe.HDel(ctx, pair, key.Bucket)
	if _, id, ok := parseField(val); ok && id != "" {
		pipe.Del(ctx, alertKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// ReleaseAlert implements scan.Ledger.
func (l *Ledger) ReleaseAlert(ctx context.Context, alertID string) error {
	raw, err := l.client.Get(ctx, alertKey(alertID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release alert %s: %w", alertID, err)
	}

	key, ok := parseKey(raw)
	if !ok {
		return fmt.Errorf("release alert %s: malformed key %q", alertID, raw)
	}

	pipe := l.client.TxPipeline()
	pipe.HDel(ctx, PairKey(key.EntityID, key.RuleID), key.Bucket)
	pipe.Del(ctx, alertKey(alertID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release alert %s: %w", alertID, err)
	}
	return nil
}

// classify computes the verdict from the pair's existing bucket fields.
func classify(existing map[string]string, bucket string, rank int) scan.Decision {
	if _, ok := existing[bucket]; ok {
		return scan.DecisionAlreadyHandled
	}
	if len(existing) == 0 {
		return scan.DecisionNew
	}
	for _, val := range existing {
		if r, _, ok := parseField(val); ok && r <= rank {
			return scan.DecisionAlreadyHandled
		}
	}
	return scan.DecisionEscalated
}

// fieldValue encodes "rank" or "rank|alertID".
func fieldValue(rank, alertID string) string {
	if alertID == "" {
		return rank
	}
	return rank + "|" + alertID
}

func parseField(val string) (rank int, alertID string, ok bool) {
	rankPart, idPart, _ := strings.Cut(val, "|")
	r, err := strconv.Atoi(rankPart)
	if err != nil {
		return 0, "", false
	}
	return r, idPart, true
}

func parseKey(raw string) (scan.LedgerKey, bool) {
	parts := strings.SplitN(raw, "|", 3)
	if len(parts) != 3 {
		return scan.LedgerKey{}, false
	}
	return scan.LedgerKey{EntityID: parts[0], RuleID: parts[1], Bucket: parts[2]}, true
}
