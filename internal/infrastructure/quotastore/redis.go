package quotastore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diysmart/productinfo/internal/domain"
)

const (
	redisKeyPrefix    = "productinfo:quota:"
	redisCounterTTL   = 48 * time.Hour
	connectionTimeout = 5 * time.Second
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// ErrEmptyAddress is returned when no Redis address is configured
var ErrEmptyAddress = errors.New("redis address is required")

// NewRedisClient connects and pings Redis
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisStore keeps each counter in a hash that expires two days after its
// last write.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// consumeScript resets a counter from another day, then charges it when the
// limit allows. It returns {count, admitted}.
var consumeScript = redis.NewScript(`
	local count = 0
	if redis.call("HGET", KEYS[1], "day") == ARGV[1] then
		count = tonumber(redis.call("HGET", KEYS[1], "count") or "0")
	end
	local cost = tonumber(ARGV[2])
	if count + cost > tonumber(ARGV[3]) then
		return {count, 0}
	end
	count = count + cost
	redis.call("HSET", KEYS[1], "day", ARGV[1], "count", count)
	redis.call("PEXPIRE", KEYS[1], ARGV[4])
	return {count, 1}
`)

func redisKey(identityID string) string {
	return redisKeyPrefix + identityID
}

// Get returns the stored counter, or a zero counter for unknown identities
func (s *RedisStore) Get(ctx context.Context, identityID string) (domain.QuotaCounter, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(identityID)).Result()
	if err != nil {
		return domain.QuotaCounter{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	counter := domain.QuotaCounter{IdentityID: identityID}
	if len(fields) == 0 {
		return counter, nil
	}
	counter.Day = fields["day"]
	if raw, ok := fields["count"]; ok {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return domain.QuotaCounter{}, fmt.Errorf("%w: corrupt count %q", domain.ErrStoreUnavailable, raw)
		}
		counter.Count = n
	}
	return counter, nil
}

// Set writes the counter and refreshes its expiry
func (s *RedisStore) Set(ctx context.Context, counter domain.QuotaCounter) error {
	key := redisKey(counter.IdentityID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "day", counter.Day, "count", counter.Count)
		pipe.Expire(ctx, key, redisCounterTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Consume checks and charges the counter in a single Lua script
func (s *RedisStore) Consume(ctx context.Context, identityID, day string, cost, limit int) (domain.QuotaCounter, bool, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{redisKey(identityID)},
		day, cost, limit, redisCounterTTL.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.QuotaCounter{}, false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return domain.QuotaCounter{}, false, fmt.Errorf("%w: unexpected script reply %v", domain.ErrStoreUnavailable, res)
	}

	counter := domain.QuotaCounter{IdentityID: identityID, Day: day, Count: int(res[0])}
	return counter, res[1] == 1, nil
}
