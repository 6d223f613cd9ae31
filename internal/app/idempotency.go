package app

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/transfa/payout-gateway/internal/domain"
	"golang.org/x/crypto/blake2b"
)

const (
	entryStateProcessing = "PROCESSING"
	entryStateComplete   = "COMPLETE"
)

// IdempotencyGuard serialises dispatch of a payout leg across retries and replicas.
type IdempotencyGuard interface {
	// Claim returns a previously completed leg, nil when the caller now owns the key,
	// or domain.ErrDispatchInFlight when another dispatch holds it.
	Claim(ctx context.Context, key string) (*domain.PayoutLeg, error)
	Complete(ctx context.Context, key string, leg domain.PayoutLeg) error
	Release(ctx context.Context, key string) error
}

// PayoutIdempotencyKey derives a deterministic key for one leg of an instruction.
// A redelivered webhook reproduces it; identical instructions at different positions
// of the same document do not share it.
func PayoutIdempotencyKey(instr domain.CreditTransferInstruction, leg int) string {
	parts := []string{
		instr.SourceDigest,
		strconv.Itoa(instr.Position),
		instr.Reference,
		instr.Recipient,
		instr.Currency,
		domain.QuantizeAmount(instr.Amount).StringFixed(2),
		strconv.Itoa(leg),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

type idempotencyEntry struct {
	State string            `json:"state"`
	Leg   *domain.PayoutLeg `json:"leg,omitempty"`
}

var claimScript = redis.NewScript(`
local existing = redis.call("GET", KEYS[1])
if existing then
  return existing
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return ""
`)

// RedisIdempotencyGuard stores claim and completion state in Redis.
type RedisIdempotencyGuard struct {
	client        redis.UniversalClient
	prefix        string
	processingTTL time.Duration
	completeTTL   time.Duration
}

func NewRedisIdempotencyGuard(client redis.UniversalClient, prefix string, processingTTL, completeTTL time.Duration) *RedisIdempotencyGuard {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "payout_gateway:idempotency"
	}
	if processingTTL < time.Second {
		processingTTL = time.Minute
	}
	if completeTTL < processingTTL {
		completeTTL = 24 * time.Hour
	}
	return &RedisIdempotencyGuard{
		client:        client,
		prefix:        trimmedPrefix,
		processingTTL: processingTTL,
		completeTTL:   completeTTL,
	}
}

func (g *RedisIdempotencyGuard) key(key string) string {
	return g.prefix + ":" + key
}

func (g *RedisIdempotencyGuard) Claim(ctx context.Context, key string) (*domain.PayoutLeg, error) {
	marker, err := json.Marshal(idempotencyEntry{State: entryStateProcessing})
	if err != nil {
		return nil, err
	}
	raw, err := claimScript.Run(ctx, g.client, []string{g.key(key)}, string(marker), g.processingTTL.Milliseconds()).Text()
	if err != nil {
		return nil, err
	}
	return decodeClaim(raw)
}

func (g *RedisIdempotencyGuard) Complete(ctx context.Context, key string, leg domain.PayoutLeg) error {
	payload, err := json.Marshal(idempotencyEntry{State: entryStateComplete, Leg: &leg})
	if err != nil {
		return err
	}
	return g.client.Set(ctx, g.key(key), payload, g.completeTTL).Err()
}

func (g *RedisIdempotencyGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.key(key)).Err()
}

// decodeClaim interprets the claim script's reply: empty means the key was free.
func decodeClaim(raw string) (*domain.PayoutLeg, error) {
	if raw == "" {
		return nil, nil
	}
	var entry idempotencyEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode idempotency entry: %w", err)
	}
	switch entry.State {
	case entryStateComplete:
		if entry.Leg == nil {
			return nil, errors.New("completed idempotency entry has no leg")
		}
		leg := *entry.Leg
		leg.Replayed = true
		return &leg, nil
	case entryStateProcessing:
		return nil, domain.ErrDispatchInFlight
	default:
		return nil, fmt.Errorf("unknown idempotency state %q", entry.State)
	}
}

// NoopIdempotencyGuard is used when Redis is not configured. The provider-side
// Idempotency-Key header still applies.
type NoopIdempotencyGuard struct{}

func (NoopIdempotencyGuard) Claim(ctx context.Context, key string) (*domain.PayoutLeg, error) {
	return nil, nil
}

func (NoopIdempotencyGuard) Complete(ctx context.Context, key string, leg domain.PayoutLeg) error {
	return nil
}

func (NoopIdempotencyGuard) Release(ctx context.Context, key string) error {
	return nil
}
