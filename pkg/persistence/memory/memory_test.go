package memory

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence/testonly"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure MemoryPersistence implements IRewardsPersistence
var _ persistence.IRewardsPersistence = (*MemoryPersistence)(nil)

func TestMemoryPersistence(t *testing.T) {
	testonly.RunPersistenceTests(t, func(t *testing.T) persistence.IRewardsPersistence {
		return NewMemoryPersistence()
	})
}

func TestMemoryPersistence_AppendCopiesInput(t *testing.T) {
	mp := NewMemoryPersistence()
	defer func() { _ = mp.Close() }()

	root := &types.DistributionRoot{Root: common.HexToHash("0x01"), Enabled: true}
	id, err := mp.AppendDistributionRoot(root)
	require.NoError(t, err)

	root.Enabled = false
	root.Root = common.HexToHash("0x02")

	loaded, err := mp.LoadDistributionRoot(id)
	require.NoError(t, err)
	assert.True(t, loaded.Enabled)
	assert.Equal(t, common.HexToHash("0x01"), loaded.Root)
}

func TestMemoryPersistence_CumulativeCopiesInput(t *testing.T) {
	mp := NewMemoryPersistence()
	defer func() { _ = mp.Close() }()

	account := common.HexToAddress("0x01")
	value := big.NewInt(10)
	swapped, err := mp.CompareAndSwapCumulativeClaimed(account, big.NewInt(0), value)
	require.NoError(t, err)
	require.True(t, swapped)

	value.SetInt64(99)
	stored, err := mp.GetCumulativeClaimed(account)
	require.NoError(t, err)
	assert.Equal(t, "10", stored.String())

	_, err = mp.CompareAndSwapCumulativeClaimed(account, nil, big.NewInt(1))
	require.Error(t, err)
}
