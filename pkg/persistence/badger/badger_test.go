package badger

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/logger"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence/testonly"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure BadgerPersistence implements IRewardsPersistence
var _ persistence.IRewardsPersistence = (*BadgerPersistence)(nil)

func TestBadgerPersistence(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	testonly.RunPersistenceTests(t, func(t *testing.T) persistence.IRewardsPersistence {
		bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
		require.NoError(t, err)
		return bp
	})
}

// TestBadgerPersistence_Restart verifies state survives closing and reopening the database
func TestBadgerPersistence_Restart(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	alice := common.HexToAddress("0xA11CE")
	root := common.HexToHash("0x1234")

	// First "process"
	bp1, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	id, err := bp1.AppendDistributionRoot(&types.DistributionRoot{Root: root, SubmissionTimestamp: 100, Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)

	swapped, err := bp1.CompareAndSwapCumulativeClaimed(alice, big.NewInt(0), big.NewInt(1005))
	require.NoError(t, err)
	require.True(t, swapped)

	swapped, err = bp1.CompareAndSwapClaimed(root, 3, false, true)
	require.NoError(t, err)
	require.True(t, swapped)

	require.NoError(t, bp1.SetRewarder(alice, true))
	require.NoError(t, bp1.SetAddressValue(persistence.AddressKeyOwner, alice))
	require.NoError(t, bp1.Close())

	// Second "process"
	bp2, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp2.Close() }()

	count, err := bp2.GetDistributionRootCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)

	loaded, err := bp2.LoadDistributionRoot(0)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, root, loaded.Root)

	amount, err := bp2.GetCumulativeClaimed(alice)
	require.NoError(t, err)
	assert.Equal(t, "1005", amount.String())

	claimed, err := bp2.IsClaimed(root, 3)
	require.NoError(t, err)
	assert.True(t, claimed)

	isRewarder, err := bp2.IsRewarder(alice)
	require.NoError(t, err)
	assert.True(t, isRewarder)

	owner, ok, err := bp2.GetAddressValue(persistence.AddressKeyOwner)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, alice, owner)

	// Appending continues the sequence
	id, err = bp2.AppendDistributionRoot(&types.DistributionRoot{Root: root})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
}

func TestBadgerPersistence_SchemaVersionMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	require.NoError(t, bp.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keySchemaVersion), []byte("v0"))
	}))
	require.NoError(t, bp.Close())

	_, err = NewBadgerPersistence(tmpDir, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestBadgerPersistence_KeysSortById(t *testing.T) {
	assert.Less(t, string(rootKey(9)), string(rootKey(10)))
	assert.Less(t, string(claimedKey(common.Hash{}, 9)), string(claimedKey(common.Hash{}, 10)))
}
