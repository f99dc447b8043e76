package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixRoot        = "root:"
	keyRootCount         = "meta:root_count"
	keyPrefixCumulative  = "cumulative:"
	keyPrefixClaimed     = "claimed:"
	keyPrefixRewarder    = "rewarder:"
	keyPrefixParam       = "param:"
	keyPrefixAddress     = "address:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	// maxConflictRetries bounds re-running a read-modify-write transaction after badger reports a conflict
	maxConflictRetries = 16
)

// BadgerPersistence is a production-ready persistence implementation using Badger.
// Provides durable, disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool

	// serializes read-modify-write transactions within this process
	writeMu sync.Mutex
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	// Convert to absolute path
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// Configure Badger for production use
	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newBadgerLogger(logger, absPath)
	opts.SyncWrites = true // Ensure durability (fsync on every write)
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Start background GC
	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			// First time setup - set schema version
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Run value log GC with 0.5 discard ratio
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// getValue returns a copy of the value at key, or nil when the key does not exist
func getValue(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// update runs fn in a read-write transaction, re-running it when badger reports a conflict
func (b *BadgerPersistence) update(fn func(txn *badgerdb.Txn) error) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
		b.logger.Sugar().Debugw("Badger transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

func rootKey(id uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d", keyPrefixRoot, id))
}

func cumulativeKey(account common.Address) []byte {
	return []byte(keyPrefixCumulative + common.Bytes2Hex(account[:]))
}

func claimedKey(root common.Hash, word uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", keyPrefixClaimed, common.Bytes2Hex(root[:]), word))
}

func rewarderKey(account common.Address) []byte {
	return []byte(keyPrefixRewarder + common.Bytes2Hex(account[:]))
}

func paramKey(key common.Hash) []byte {
	return []byte(keyPrefixParam + common.Bytes2Hex(key[:]))
}

func addressKey(key string) []byte {
	return []byte(keyPrefixAddress + key)
}

func readRootCount(txn *badgerdb.Txn) (uint32, error) {
	data, err := getValue(txn, []byte(keyRootCount))
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("invalid root count data length: %d", len(data))
	}
	return binary.BigEndian.Uint32(data), nil
}

// AppendDistributionRoot persists root under the next sequential id
func (b *BadgerPersistence) AppendDistributionRoot(root *types.DistributionRoot) (uint32, error) {
	if root == nil {
		return 0, fmt.Errorf("cannot save nil DistributionRoot")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, persistence.ErrClosed
	}

	var id uint32
	err := b.update(func(txn *badgerdb.Txn) error {
		count, err := readRootCount(txn)
		if err != nil {
			return err
		}

		stored := root.Copy()
		stored.ID = count

		data, err := persistence.MarshalDistributionRoot(stored)
		if err != nil {
			return err
		}
		if err := txn.Set(rootKey(count), data); err != nil {
			return err
		}

		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, count+1)
		if err := txn.Set([]byte(keyRootCount), buf); err != nil {
			return err
		}
		id = count
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append DistributionRoot: %w", err)
	}

	return id, nil
}

// LoadDistributionRoot retrieves a root by id
func (b *BadgerPersistence) LoadDistributionRoot(id uint32) (*types.DistributionRoot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, rootKey(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load DistributionRoot: %w", err)
	}

	if data == nil {
		return nil, nil // Not found
	}

	root, err := persistence.UnmarshalDistributionRoot(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal DistributionRoot: %w", err)
	}

	return root, nil
}

// ListDistributionRoots returns all roots sorted by id
func (b *BadgerPersistence) ListDistributionRoots() ([]*types.DistributionRoot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	roots := make([]*types.DistributionRoot, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixRoot)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			root, err := persistence.UnmarshalDistributionRoot(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal DistributionRoot, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			roots = append(roots, root)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list DistributionRoots: %w", err)
	}

	sort.Slice(roots, func(i, j int) bool {
		return roots[i].ID < roots[j].ID
	})

	return roots, nil
}

func (b *BadgerPersistence) GetDistributionRootCount() (uint32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, persistence.ErrClosed
	}

	var count uint32
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		count, err = readRootCount(txn)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get root count: %w", err)
	}
	return count, nil
}

func (b *BadgerPersistence) CompareAndSwapRootEnabled(id uint32, old, updated bool) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, persistence.ErrClosed
	}

	var swapped bool
	err := b.update(func(txn *badgerdb.Txn) error {
		swapped = false

		data, err := getValue(txn, rootKey(id))
		if err != nil {
			return err
		}
		if data == nil {
			return persistence.ErrRootNotFound
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
		if err := txn.Set(rootKey(id), data); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update root %d: %w", id, err)
	}
	return swapped, nil
}

func (b *BadgerPersistence) GetCumulativeClaimed(account common.Address) (*big.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, cumulativeKey(account))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load cumulative claimed: %w", err)
	}
	if data == nil {
		return new(big.Int), nil
	}
	return persistence.UnmarshalAmount(data)
}

func (b *BadgerPersistence) CompareAndSwapCumulativeClaimed(account common.Address, old, updated *big.Int) (bool, error) {
	if old == nil || updated == nil {
		return false, fmt.Errorf("cumulative amounts cannot be nil")
	}
	encoded, err := persistence.MarshalAmount(updated)
	if err != nil {
		return false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, persistence.ErrClosed
	}

	var swapped bool
	err = b.update(func(txn *badgerdb.Txn) error {
		swapped = false

		data, err := getValue(txn, cumulativeKey(account))
		if err != nil {
			return err
		}
		current := new(big.Int)
		if data != nil {
			if current, err = persistence.UnmarshalAmount(data); err != nil {
				return err
			}
		}
		if current.Cmp(old) != 0 {
			return nil
		}

		if err := txn.Set(cumulativeKey(account), encoded); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update cumulative claimed: %w", err)
	}
	return swapped, nil
}

func readWord(txn *badgerdb.Txn, key []byte) (uint64, error) {
	data, err := getValue(txn, key)
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid bitmap word length: %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (b *BadgerPersistence) IsClaimed(root common.Hash, position uint64) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, persistence.ErrClosed
	}

	wordIndex, mask := persistence.ClaimedBitmapIndex(position)

	var word uint64
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		word, err = readWord(txn, claimedKey(root, wordIndex))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to load claimed bitmap: %w", err)
	}
	return word&mask != 0, nil
}

func (b *BadgerPersistence) CompareAndSwapClaimed(root common.Hash, position uint64, old, updated bool) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, persistence.ErrClosed
	}

	wordIndex, mask := persistence.ClaimedBitmapIndex(position)
	key := claimedKey(root, wordIndex)

	var swapped bool
	err := b.update(func(txn *badgerdb.Txn) error {
		swapped = false

		word, err := readWord(txn, key)
		if err != nil {
			return err
		}
		if (word&mask != 0) != old {
			return nil
		}

		if updated {
			word |= mask
		} else {
			word &^= mask
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, word)
		if err := txn.Set(key, buf); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update claimed bitmap: %w", err)
	}
	return swapped, nil
}

func (b *BadgerPersistence) SetRewarder(account common.Address, enabled bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		if enabled {
			return txn.Set(rewarderKey(account), []byte{1})
		}
		return txn.Delete(rewarderKey(account))
	})
}

func (b *BadgerPersistence) IsRewarder(account common.Address) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, rewarderKey(account))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to load rewarder: %w", err)
	}
	return data != nil, nil
}

func (b *BadgerPersistence) ListRewarders() ([]common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	rewarders := make([]common.Address, 0)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixRewarder)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			suffix := strings.TrimPrefix(string(it.Item().Key()), keyPrefixRewarder)
			rewarders = append(rewarders, common.HexToAddress(suffix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list rewarders: %w", err)
	}

	sort.Slice(rewarders, func(i, j int) bool {
		return bytes.Compare(rewarders[i][:], rewarders[j][:]) < 0
	})
	return rewarders, nil
}

func (b *BadgerPersistence) SetParamValue(key common.Hash, value *big.Int) error {
	data, err := persistence.MarshalAmount(value)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(paramKey(key), data)
	})
}

func (b *BadgerPersistence) GetParamValue(key common.Hash) (*big.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, paramKey(key))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load param: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalAmount(data)
}

func (b *BadgerPersistence) SetAddressValue(key string, value common.Address) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(addressKey(key), value.Bytes())
	})
}

func (b *BadgerPersistence) GetAddressValue(key string) (common.Address, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return common.Address{}, false, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, addressKey(key))
		return err
	})
	if err != nil {
		return common.Address{}, false, fmt.Errorf("failed to load address %s: %w", key, err)
	}
	if data == nil {
		return common.Address{}, false, nil
	}
	if len(data) != common.AddressLength {
		return common.Address{}, false, fmt.Errorf("invalid address data length: %d", len(data))
	}
	return common.BytesToAddress(data), true, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	// Stop GC goroutine
	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	// Try a simple read operation to verify database is accessible
	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
