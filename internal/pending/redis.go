package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
	"github.com/dropDatabas3/oauthlink/internal/security/secretbox"
)

// redisGrace extiende el TTL de Redis más allá de ExpiresAt para que sea el
// Reaper quien barra (y cuente) los intentos vencidos.
const redisGrace = 5 * time.Minute

// Redis es un Store compartido entre instancias.
//
// Layout:
//
//	<prefix>:attempt:<state>  sealed JSON del Attempt
//	<prefix>:expiry           ZSET state -> ExpiresAt (µs)
//
// GETDEL y DEL son atómicos por key: entre TakeIfValid y SweepExpired
// exactamente uno ve la key.
type Redis struct {
	rdb    redis.UniversalClient
	box    *secretbox.Box
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis usa un cliente ya construido. box cifra el payload (trae el PKCE verifier).
func NewRedis(rdb redis.UniversalClient, box *secretbox.Box, prefix string) *Redis {
	if prefix == "" {
		prefix = "oauthlink:pending"
	}
	return &Redis{rdb: rdb, box: box, prefix: prefix}
}

func (r *Redis) attemptKey(state string) string { return r.prefix + ":attempt:" + state }
func (r *Redis) indexKey() string               { return r.prefix + ":expiry" }

// score redondea hacia arriba a µs: score <= floor(now) implica ExpiresAt <= now.
func score(t time.Time) float64 {
	us := t.UnixMicro()
	if t.Nanosecond()%1000 != 0 {
		us++
	}
	return float64(us)
}

func (r *Redis) Put(ctx context.Context, a Attempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("pending: encode: %w", err)
	}
	sealed, err := r.box.Seal(raw)
	if err != nil {
		return err
	}

	ttl := time.Until(a.ExpiresAt) + redisGrace
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	ok, err := r.rdb.SetNX(ctx, r.attemptKey(a.StateToken), sealed, ttl).Result()
	if err != nil {
		return fmt.Errorf("pending: redis setnx: %w", err)
	}
	if !ok {
		return ErrDuplicateToken
	}
	if err := r.rdb.ZAdd(ctx, r.indexKey(), redis.Z{Score: score(a.ExpiresAt), Member: a.StateToken}).Err(); err != nil {
		// sin índice el Reaper no lo vería; deshacer
		_ = r.rdb.Del(ctx, r.attemptKey(a.StateToken)).Err()
		return fmt.Errorf("pending: redis zadd: %w", err)
	}
	return nil
}

func (r *Redis) TakeIfValid(ctx context.Context, stateToken string, now time.Time) (Attempt, error) {
	if stateToken == "" {
		return Attempt{}, ErrInvalidState
	}
	sealed, err := r.rdb.GetDel(ctx, r.attemptKey(stateToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Attempt{}, ErrInvalidState
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("pending: redis getdel: %w", err)
	}
	if err := r.rdb.ZRem(ctx, r.indexKey(), stateToken).Err(); err != nil {
		// el intento ya se consumió; el Reaper limpia la entrada huérfana
		logger.From(ctx).With(logger.Component("pending.redis")).
			Warn("index cleanup failed", logger.StateHash(stateToken), logger.Err(err))
	}

	raw, err := r.box.Open(sealed)
	if err != nil {
		return Attempt{}, ErrInvalidState
	}
	var a Attempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return Attempt{}, ErrInvalidState
	}
	if a.StateToken != stateToken || a.Expired(now) {
		return Attempt{}, ErrInvalidState
	}
	return a, nil
}

func (r *Redis) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	maxScore := strconv.FormatInt(now.UnixMicro(), 10)
	states, err := r.rdb.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, fmt.Errorf("pending: redis zrange: %w", err)
	}
	if len(states) == 0 {
		return 0, nil
	}

	pipe := r.rdb.Pipeline()
	dels := make([]*redis.IntCmd, len(states))
	for i, s := range states {
		dels[i] = pipe.Del(ctx, r.attemptKey(s))
	}
	members := make([]any, len(states))
	for i, s := range states {
		members[i] = s
	}
	pipe.ZRem(ctx, r.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("pending: redis sweep: %w", err)
	}

	n := 0
	for _, d := range dels {
		// 0 = ya consumido por TakeIfValid (o vencido por TTL de Redis)
		n += int(d.Val())
	}
	return n, nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("pending: redis zcard: %w", err)
	}
	return int(n), nil
}
