package memory

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// MemoryPersistence is an in-memory implementation of IRewardsPersistence.
// This implementation is intended for TESTING and local development.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Root sequence, index == id
	roots []*types.DistributionRoot

	// account -> cumulative amount paid
	cumulative map[common.Address]*big.Int

	// root -> word -> bits
	claimed map[common.Hash]map[uint64]uint64

	rewarders map[common.Address]struct{}
	params    map[common.Hash]*big.Int
	addresses map[string]common.Address

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL DATA WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set REWARDS_PERSISTENCE_TYPE=badger for production")

	return &MemoryPersistence{
		roots:      make([]*types.DistributionRoot, 0),
		cumulative: make(map[common.Address]*big.Int),
		claimed:    make(map[common.Hash]map[uint64]uint64),
		rewarders:  make(map[common.Address]struct{}),
		params:     make(map[common.Hash]*big.Int),
		addresses:  make(map[string]common.Address),
	}
}

// AppendDistributionRoot stores a copy of root under the next id.
func (m *MemoryPersistence) AppendDistributionRoot(root *types.DistributionRoot) (uint32, error) {
	if root == nil {
		return 0, fmt.Errorf("cannot save nil DistributionRoot")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, persistence.ErrClosed
	}

	stored := root.Copy()
	stored.ID = uint32(len(m.roots))
	m.roots = append(m.roots, stored)

	return stored.ID, nil
}

// LoadDistributionRoot retrieves a root by id.
func (m *MemoryPersistence) LoadDistributionRoot(id uint32) (*types.DistributionRoot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	if int(id) >= len(m.roots) {
		return nil, nil
	}

	// Return deep copy to prevent external mutation
	return m.roots[id].Copy(), nil
}

// ListDistributionRoots returns every root in id order.
func (m *MemoryPersistence) ListDistributionRoots() ([]*types.DistributionRoot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	roots := make([]*types.DistributionRoot, 0, len(m.roots))
	for _, r := range m.roots {
		roots = append(roots, r.Copy())
	}
	return roots, nil
}

func (m *MemoryPersistence) GetDistributionRootCount() (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, persistence.ErrClosed
	}
	return uint32(len(m.roots)), nil
}

func (m *MemoryPersistence) CompareAndSwapRootEnabled(id uint32, old, updated bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, persistence.ErrClosed
	}
	if int(id) >= len(m.roots) {
		return false, persistence.ErrRootNotFound
	}

	root := m.roots[id]
	if root.Enabled != old {
		return false, nil
	}
	root.Enabled = updated
	return true, nil
}

func (m *MemoryPersistence) GetCumulativeClaimed(account common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}
	return types.CopyBig(m.cumulative[account]), nil
}

func (m *MemoryPersistence) CompareAndSwapCumulativeClaimed(account common.Address, old, updated *big.Int) (bool, error) {
	if old == nil || updated == nil {
		return false, fmt.Errorf("cumulative amounts cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, persistence.ErrClosed
	}

	current := types.CopyBig(m.cumulative[account])
	if current.Cmp(old) != 0 {
		return false, nil
	}
	m.cumulative[account] = new(big.Int).Set(updated)
	return true, nil
}

func (m *MemoryPersistence) IsClaimed(root common.Hash, position uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, persistence.ErrClosed
	}

	word, mask := persistence.ClaimedBitmapIndex(position)
	return m.claimed[root][word]&mask != 0, nil
}

func (m *MemoryPersistence) CompareAndSwapClaimed(root common.Hash, position uint64, old, updated bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, persistence.ErrClosed
	}

	word, mask := persistence.ClaimedBitmapIndex(position)
	bitmap, ok := m.claimed[root]
	if !ok {
		bitmap = make(map[uint64]uint64)
		m.claimed[root] = bitmap
	}

	if (bitmap[word]&mask != 0) != old {
		return false, nil
	}
	if updated {
		bitmap[word] |= mask
	} else {
		bitmap[word] &^= mask
	}
	return true, nil
}

func (m *MemoryPersistence) SetRewarder(account common.Address, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	if enabled {
		m.rewarders[account] = struct{}{}
	} else {
		delete(m.rewarders, account)
	}
	return nil
}

func (m *MemoryPersistence) IsRewarder(account common.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, persistence.ErrClosed
	}
	_, ok := m.rewarders[account]
	return ok, nil
}

func (m *MemoryPersistence) ListRewarders() ([]common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	out := make([]common.Address, 0, len(m.rewarders))
	for addr := range m.rewarders {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out, nil
}

func (m *MemoryPersistence) SetParamValue(key common.Hash, value *big.Int) error {
	if value == nil {
		return fmt.Errorf("cannot save nil param value")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	m.params[key] = new(big.Int).Set(value)
	return nil
}

func (m *MemoryPersistence) GetParamValue(key common.Hash) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	v, ok := m.params[key]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(v), nil
}

func (m *MemoryPersistence) SetAddressValue(key string, value common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	m.addresses[key] = value
	return nil
}

func (m *MemoryPersistence) GetAddressValue(key string) (common.Address, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return common.Address{}, false, persistence.ErrClosed
	}
	v, ok := m.addresses[key]
	return v, ok, nil
}

// Close shuts down the persistence layer.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
