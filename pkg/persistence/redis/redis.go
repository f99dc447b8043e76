package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key names for namespacing in Redis
const (
	keyRoots             = "rewards:roots"
	keyRootCount         = "rewards:roots:count"
	keyPrefixCumulative  = "rewards:cumulative:"
	keyPrefixClaimed     = "rewards:claimed:"
	keyRewarders         = "rewards:rewarders"
	keyParams            = "rewards:params"
	keyAddresses         = "rewards:addresses"
	keySchemaVersion     = "rewards:metadata:schema_version"
	currentSchemaVersion = "v1"

	// maxWatchRetries bounds re-running an optimistic transaction after a watched key changed
	maxWatchRetries = 64

	// maxBitmapPosition is the largest bit offset accepted by SETBIT (512MB strings)
	maxBitmapPosition = 1<<32 - 1

	operationTimeout = 5 * time.Second
)

// RedisPersistence is a production-ready persistence implementation using Redis.
// Read-modify-write operations use WATCH/MULTI so several processes can share one instance.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// If set, this prefix is prepended to all keys, e.g., "myapp:" would result in
	// keys like "myapp:rewards:roots". If empty, keys use the default "rewards:" prefix.
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.KeyPrefix != "" {
		logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)
	} else {
		logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB)
	}

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if errors.Is(err, redis.Nil) {
		// First time setup - set schema version
		return r.client.SetNX(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

func (r *RedisPersistence) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), operationTimeout)
}

// watch runs fn as an optimistic transaction over keys, re-running it while another client wins the race
func (r *RedisPersistence) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("transaction aborted after %d attempts: %w", maxWatchRetries, redis.TxFailedErr)
}

func (r *RedisPersistence) cumulativeKey(account common.Address) string {
	return r.prefixKey(keyPrefixCumulative + common.Bytes2Hex(account[:]))
}

func (r *RedisPersistence) claimedKey(root common.Hash) string {
	return r.prefixKey(keyPrefixClaimed + common.Bytes2Hex(root[:]))
}

func rootField(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func readCount(ctx context.Context, c redis.Cmdable, key string) (uint32, error) {
	v, err := c.Get(ctx, key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// AppendDistributionRoot persists root under the next sequential id
func (r *RedisPersistence) AppendDistributionRoot(root *types.DistributionRoot) (uint32, error) {
	if root == nil {
		return 0, fmt.Errorf("cannot save nil DistributionRoot")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	countKey := r.prefixKey(keyRootCount)
	rootsKey := r.prefixKey(keyRoots)

	var id uint32
	err := r.watch(ctx, func(tx *redis.Tx) error {
		count, err := readCount(ctx, tx, countKey)
		if err != nil {
			return err
		}

		stored := root.Copy()
		stored.ID = count
		data, err := persistence.MarshalDistributionRoot(stored)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rootsKey, rootField(count), data)
			pipe.Set(ctx, countKey, count+1, 0)
			return nil
		})
		if err != nil {
			return err
		}
		id = count
		return nil
	}, countKey)
	if err != nil {
		return 0, fmt.Errorf("failed to append DistributionRoot: %w", err)
	}

	return id, nil
}

// LoadDistributionRoot retrieves a root by id
func (r *RedisPersistence) LoadDistributionRoot(id uint32) (*types.DistributionRoot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	data, err := r.client.HGet(ctx, r.prefixKey(keyRoots), rootField(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load DistributionRoot: %w", err)
	}

	root, err := persistence.UnmarshalDistributionRoot(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal DistributionRoot: %w", err)
	}

	return root, nil
}

// ListDistributionRoots returns all roots sorted by id
func (r *RedisPersistence) ListDistributionRoots() ([]*types.DistributionRoot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	values, err := r.client.HGetAll(ctx, r.prefixKey(keyRoots)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list DistributionRoots: %w", err)
	}

	roots := make([]*types.DistributionRoot, 0, len(values))
	for field, data := range values {
		root, err := persistence.UnmarshalDistributionRoot([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal DistributionRoot, skipping",
				"field", field, "error", err)
			continue
		}
		roots = append(roots, root)
	}

	sort.Slice(roots, func(i, j int) bool {
		return roots[i].ID < roots[j].ID
	})

	return roots, nil
}

func (r *RedisPersistence) GetDistributionRootCount() (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	count, err := readCount(ctx, r.client, r.prefixKey(keyRootCount))
	if err != nil {
		return 0, fmt.Errorf("failed to get root count: %w", err)
	}
	return count, nil
}

func (r *RedisPersistence) CompareAndSwapRootEnabled(id uint32, old, updated bool) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	rootsKey := r.prefixKey(keyRoots)

	var swapped bool
	err := r.watch(ctx, func(tx *redis.Tx) error {
		swapped = false

		data, err := tx.HGet(ctx, rootsKey, rootField(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return persistence.ErrRootNotFound
		}
		if err != nil {
			return err
		}

		root, err := persistence.UnmarshalDistributionRoot(data)
		if err != nil {
			return err
		}
		if root.Enabled != old {
			return nil
		}

		root.Enabled = updated
		data, err = persistence.MarshalDistributionRoot(root)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rootsKey, rootField(id), data)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, rootsKey)
	if err != nil {
		return false, fmt.Errorf("failed to update root %d: %w", id, err)
	}
	return swapped, nil
}

func readAmount(ctx context.Context, c redis.Cmdable, key string) (*big.Int, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return persistence.UnmarshalAmount(data)
}

func (r *RedisPersistence) GetCumulativeClaimed(account common.Address) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	amount, err := readAmount(ctx, r.client, r.cumulativeKey(account))
	if err != nil {
		return nil, fmt.Errorf("failed to load cumulative claimed: %w", err)
	}
	return amount, nil
}

func (r *RedisPersistence) CompareAndSwapCumulativeClaimed(account common.Address, old, updated *big.Int) (bool, error) {
	if old == nil || updated == nil {
		return false, fmt.Errorf("cumulative amounts cannot be nil")
	}
	encoded, err := persistence.MarshalAmount(updated)
	if err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	key := r.cumulativeKey(account)

	var swapped bool
	err = r.watch(ctx, func(tx *redis.Tx) error {
		swapped = false

		current, err := readAmount(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Cmp(old) != 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key)
	if err != nil {
		return false, fmt.Errorf("failed to update cumulative claimed: %w", err)
	}
	return swapped, nil
}

func checkBitmapPosition(position uint64) error {
	if position > maxBitmapPosition {
		return fmt.Errorf("position %d exceeds the redis bitmap limit", position)
	}
	return nil
}

func (r *RedisPersistence) IsClaimed(root common.Hash, position uint64) (bool, error) {
	if err := checkBitmapPosition(position); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	bit, err := r.client.GetBit(ctx, r.claimedKey(root), int64(position)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to load claimed bitmap: %w", err)
	}
	return bit == 1, nil
}

func (r *RedisPersistence) CompareAndSwapClaimed(root common.Hash, position uint64, old, updated bool) (bool, error) {
	if err := checkBitmapPosition(position); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	key := r.claimedKey(root)
	value := 0
	if updated {
		value = 1
	}

	var swapped bool
	err := r.watch(ctx, func(tx *redis.Tx) error {
		swapped = false

		bit, err := tx.GetBit(ctx, key, int64(position)).Result()
		if err != nil {
			return err
		}
		if (bit == 1) != old {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetBit(ctx, key, int64(position), value)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key)
	if err != nil {
		return false, fmt.Errorf("failed to update claimed bitmap: %w", err)
	}
	return swapped, nil
}

func (r *RedisPersistence) SetRewarder(account common.Address, enabled bool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	member := common.Bytes2Hex(account[:])
	if enabled {
		return r.client.SAdd(ctx, r.prefixKey(keyRewarders), member).Err()
	}
	return r.client.SRem(ctx, r.prefixKey(keyRewarders), member).Err()
}

func (r *RedisPersistence) IsRewarder(account common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	ok, err := r.client.SIsMember(ctx, r.prefixKey(keyRewarders), common.Bytes2Hex(account[:])).Result()
	if err != nil {
		return false, fmt.Errorf("failed to load rewarder: %w", err)
	}
	return ok, nil
}

func (r *RedisPersistence) ListRewarders() ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	members, err := r.client.SMembers(ctx, r.prefixKey(keyRewarders)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rewarders: %w", err)
	}

	rewarders := make([]common.Address, 0, len(members))
	for _, m := range members {
		rewarders = append(rewarders, common.HexToAddress(m))
	}
	sort.Slice(rewarders, func(i, j int) bool {
		return bytes.Compare(rewarders[i][:], rewarders[j][:]) < 0
	})
	return rewarders, nil
}

func (r *RedisPersistence) SetParamValue(key common.Hash, value *big.Int) error {
	data, err := persistence.MarshalAmount(value)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	return r.client.HSet(ctx, r.prefixKey(keyParams), common.Bytes2Hex(key[:]), data).Err()
}

func (r *RedisPersistence) GetParamValue(key common.Hash) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	data, err := r.client.HGet(ctx, r.prefixKey(keyParams), common.Bytes2Hex(key[:])).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load param: %w", err)
	}
	return persistence.UnmarshalAmount(data)
}

func (r *RedisPersistence) SetAddressValue(key string, value common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	return r.client.HSet(ctx, r.prefixKey(keyAddresses), key, value.Hex()).Err()
}

func (r *RedisPersistence) GetAddressValue(key string) (common.Address, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return common.Address{}, false, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	value, err := r.client.HGet(ctx, r.prefixKey(keyAddresses), key).Result()
	if errors.Is(err, redis.Nil) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, fmt.Errorf("failed to load address %s: %w", key, err)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, false, fmt.Errorf("invalid address stored under %s: %q", key, value)
	}
	return common.HexToAddress(value), true, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	// Verify schema version exists
	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
