// Package cache holds the Redis-backed reservation store. Redis expires keys
// on its own, so the expiry sweep is a no-op for this backend.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/spk-service/internal/domain"
)

const (
	// reservationKeyPrefix is the prefix for all reservation keys
	reservationKeyPrefix = "spk:reservation:"

	// extendRetries bounds the compare-and-set loop in Extend
	extendRetries = 3
)

// casScript replaces the value only if it still matches what the caller read.
var casScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
		return 1
	end
	return 0
`)

// ReservationStore keeps reservations as Redis keys with a PX expiry.
// Format: spk:reservation:{number} -> "{created_us}:{expires_us}"
type ReservationStore struct {
	client *redis.Client
}

// NewReservationStore creates a new ReservationStore instance
func NewReservationStore(client *redis.Client) *ReservationStore {
	return &ReservationStore{client: client}
}

func (s *ReservationStore) buildKey(number string) string {
	return reservationKeyPrefix + number
}

// Claim sets the key only when it is absent (SET NX PX).
func (s *ReservationStore) Claim(ctx context.Context, number string, now time.Time, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("reservation ttl must be positive")
	}
	val := encodeTimes(now, now.Add(ttl))
	ok, err := s.client.SetNX(ctx, s.buildKey(number), val, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim reservation: %w", err)
	}
	return ok, nil
}

// Extend pushes a live reservation's expiry to now+ttl, always strictly
// later than before. Missing or lapsed keys return domain.ErrReservationNotFound.
func (s *ReservationStore) Extend(ctx context.Context, number string, now time.Time, ttl time.Duration) (*domain.Reservation, error) {
	key := s.buildKey(number)
	for i := 0; i < extendRetries; i++ {
		cur, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil, domain.ErrReservationNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read reservation: %w", err)
		}
		created, old, err := decodeTimes(cur)
		if err != nil {
			return nil, err
		}
		if !old.After(now) {
			return nil, domain.ErrReservationNotFound
		}

		next := now.Add(ttl).Truncate(time.Microsecond)
		if !next.After(old) {
			next = old.Add(time.Microsecond)
		}
		px := next.Sub(now).Milliseconds()
		if px < 1 {
			px = 1
		}

		swapped, err := casScript.Run(ctx, s.client, []string{key}, cur, encodeTimes(created, next), px).Int()
		if err != nil {
			return nil, fmt.Errorf("failed to extend reservation: %w", err)
		}
		if swapped == 1 {
			return &domain.Reservation{Number: number, CreatedAt: created, ExpiresAt: next}, nil
		}
	}
	return nil, errors.New("reservation extend: concurrent update, giving up")
}

// SweepExpired is a no-op: Redis evicts expired keys itself.
func (s *ReservationStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Release deletes the reservation key.
func (s *ReservationStore) Release(ctx context.Context, number string) error {
	if err := s.client.Del(ctx, s.buildKey(number)).Err(); err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	return nil
}

func encodeTimes(created, expires time.Time) string {
	return strconv.FormatInt(created.UnixMicro(), 10) + ":" + strconv.FormatInt(expires.UnixMicro(), 10)
}

func decodeTimes(v string) (created, expires time.Time, err error) {
	a, b, ok := strings.Cut(v, ":")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("corrupt reservation value %q", v)
	}
	c, err1 := strconv.ParseInt(a, 10, 64)
	e, err2 := strconv.ParseInt(b, 10, 64)
	if err1 != nil || err2 != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("corrupt reservation value %q", v)
	}
	return time.UnixMicro(c).UTC(), time.UnixMicro(e).UTC(), nil
}
