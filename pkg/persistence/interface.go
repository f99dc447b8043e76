package persistence

import (
	"math/big"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// IRewardsPersistence defines the storage used by the registry, the ledgers and
// the protocol settings. All implementations must be thread-safe, and the
// compare-and-swap operations must be atomic with respect to every other process
// sharing the same store.
//
// The interface supports:
// - Distribution root sequence (append-only, ids assigned by the store)
// - Cumulative claim records (account -> total paid)
// - Claimed bitmaps for one-shot distributions (root, position -> bool)
// - Rewarder set
// - Protocol parameters and named addresses (owner, treasury)
// - Lifecycle management (close, health check)
type IRewardsPersistence interface {
	// Distribution Roots

	// AppendDistributionRoot stores root under the next sequential id and returns it.
	// root.ID is ignored on input.
	AppendDistributionRoot(root *types.DistributionRoot) (uint32, error)

	// LoadDistributionRoot retrieves a root by id.
	// Returns nil if the id has not been assigned, error only on storage failure.
	LoadDistributionRoot(id uint32) (*types.DistributionRoot, error)

	// ListDistributionRoots returns every root sorted by id (ascending).
	ListDistributionRoots() ([]*types.DistributionRoot, error)

	// GetDistributionRootCount returns the number of roots ever appended.
	GetDistributionRootCount() (uint32, error)

	// CompareAndSwapRootEnabled sets the enabled flag of root id to updated if it currently equals old.
	// Returns ErrRootNotFound for an unassigned id.
	CompareAndSwapRootEnabled(id uint32, old, updated bool) (bool, error)

	// Cumulative Claims

	// GetCumulativeClaimed returns the total paid to account, zero if it never claimed.
	GetCumulativeClaimed(account common.Address) (*big.Int, error)

	// CompareAndSwapCumulativeClaimed replaces the total for account with updated if it currently equals old.
	CompareAndSwapCumulativeClaimed(account common.Address, old, updated *big.Int) (bool, error)

	// Claimed Bitmaps

	// IsClaimed reports the claimed bit for position in the distribution committed to by root.
	IsClaimed(root common.Hash, position uint64) (bool, error)

	// CompareAndSwapClaimed sets the claimed bit to updated if it currently equals old.
	CompareAndSwapClaimed(root common.Hash, position uint64, old, updated bool) (bool, error)

	// Rewarders

	SetRewarder(account common.Address, enabled bool) error
	IsRewarder(account common.Address) (bool, error)
	// ListRewarders returns enabled rewarders sorted by address.
	ListRewarders() ([]common.Address, error)

	// Protocol Settings

	SetParamValue(key common.Hash, value *big.Int) error
	// GetParamValue returns nil if the parameter was never set.
	GetParamValue(key common.Hash) (*big.Int, error)

	SetAddressValue(key string, value common.Address) error
	// GetAddressValue reports false if the address was never set.
	GetAddressValue(key string) (common.Address, bool, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return ErrClosed.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
