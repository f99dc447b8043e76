package redis

import (
	"context"
	"os"
	"testing"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/logger"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence/testonly"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure RedisPersistence implements IRewardsPersistence
var _ persistence.IRewardsPersistence = (*RedisPersistence)(nil)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis returns a store namespaced to a fresh key prefix, skipping the test if Redis is not available
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: "test:" + uuid.New().String() + ":",
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}

	t.Cleanup(func() { cleanupRedis(t, cfg) })
	return rp
}

// cleanupRedis removes every key written under the test prefix
func cleanupRedis(t *testing.T, cfg *RedisConfig) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB})
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	iter := client.Scan(ctx, 0, cfg.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		t.Logf("failed to clean up redis keys: %v", err)
	}
}

func TestRedisPersistence(t *testing.T) {
	testonly.RunPersistenceTests(t, func(t *testing.T) persistence.IRewardsPersistence {
		return requireRedis(t)
	})
}

func TestRedisPersistence_KeyPrefixIsolation(t *testing.T) {
	a := requireRedis(t)
	defer func() { _ = a.Close() }()
	b := requireRedis(t)
	defer func() { _ = b.Close() }()

	require.NoError(t, a.SetRewarder(common.HexToAddress("0x01"), true))

	ok, err := b.IsRewarder(common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisPersistence_BitmapLimit(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	_, err := rp.IsClaimed(common.Hash{}, 1<<32)
	require.Error(t, err)
	_, err = rp.CompareAndSwapClaimed(common.Hash{}, 1<<32, false, true)
	require.Error(t, err)
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
}
