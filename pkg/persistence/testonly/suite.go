// Package testonly holds a conformance suite shared by the persistence backends.
package testonly

import (
	"math/big"
	"sort"
	"sync"
	"testing"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) persistence.IRewardsPersistence

// RunPersistenceTests runs every conformance test against stores built by newStore.
func RunPersistenceTests(t *testing.T, newStore Factory) {
	tests := map[string]func(t *testing.T, s persistence.IRewardsPersistence){
		"AppendAndLoadRoots":          testAppendAndLoadRoots,
		"LoadRoot_NotFound":           testLoadRootNotFound,
		"RootEnabledCompareAndSwap":   testRootEnabledCompareAndSwap,
		"CumulativeClaimed":           testCumulativeClaimed,
		"ClaimedBitmap":               testClaimedBitmap,
		"Rewarders":                   testRewarders,
		"ParamsAndAddresses":          testParamsAndAddresses,
		"ConcurrentAppend":            testConcurrentAppend,
		"ConcurrentCumulativeCAS":     testConcurrentCumulativeCAS,
		"ConcurrentClaimedCAS":        testConcurrentClaimedCAS,
		"ClosedStoreRejectsOperation": testClosed,
	}

	names := make([]string, 0, len(tests))
	for name := range tests {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		test := tests[name]
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer func() { _ = s.Close() }()
			test(t, s)
		})
	}
}

func newRoot(b byte, submitted int64) *types.DistributionRoot {
	return &types.DistributionRoot{
		ID:                          999, // ignored by the store
		Root:                        common.BytesToHash([]byte{b}),
		EpochID:                     uint64(b),
		CalculationEndTimestamp:     submitted - 100,
		SubmissionTimestamp:         submitted,
		ActivationDelayAtSubmission: 60,
		Enabled:                     true,
	}
}

func testAppendAndLoadRoots(t *testing.T, s persistence.IRewardsPersistence) {
	count, err := s.GetDistributionRootCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), count)

	for i := 0; i < 3; i++ {
		id, err := s.AppendDistributionRoot(newRoot(byte(i+1), int64(1000+i)))
		require.NoError(t, err)
		assert.Equal(t, uint32(i), id)
	}

	count, err = s.GetDistributionRootCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), count)

	loaded, err := s.LoadDistributionRoot(1)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint32(1), loaded.ID)
	assert.Equal(t, common.BytesToHash([]byte{2}), loaded.Root)
	assert.Equal(t, int64(1001), loaded.SubmissionTimestamp)
	assert.Equal(t, int64(60), loaded.ActivationDelayAtSubmission)
	assert.True(t, loaded.Enabled)

	// Mutating the loaded copy must not affect the store
	loaded.Enabled = false
	again, err := s.LoadDistributionRoot(1)
	require.NoError(t, err)
	assert.True(t, again.Enabled)

	roots, err := s.ListDistributionRoots()
	require.NoError(t, err)
	require.Len(t, roots, 3)
	for i, r := range roots {
		assert.Equal(t, uint32(i), r.ID)
	}
}

func testLoadRootNotFound(t *testing.T, s persistence.IRewardsPersistence) {
	loaded, err := s.LoadDistributionRoot(42)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	roots, err := s.ListDistributionRoots()
	require.NoError(t, err)
	assert.Empty(t, roots)

	_, err = s.AppendDistributionRoot(nil)
	require.Error(t, err)
}

func testRootEnabledCompareAndSwap(t *testing.T, s persistence.IRewardsPersistence) {
	id, err := s.AppendDistributionRoot(newRoot(1, 1000))
	require.NoError(t, err)

	swapped, err := s.CompareAndSwapRootEnabled(id, true, false)
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = s.CompareAndSwapRootEnabled(id, true, false)
	require.NoError(t, err)
	assert.False(t, swapped)

	loaded, err := s.LoadDistributionRoot(id)
	require.NoError(t, err)
	assert.False(t, loaded.Enabled)

	swapped, err = s.CompareAndSwapRootEnabled(id, false, true)
	require.NoError(t, err)
	assert.True(t, swapped)

	_, err = s.CompareAndSwapRootEnabled(id+1, true, false)
	require.ErrorIs(t, err, persistence.ErrRootNotFound)
}

func testCumulativeClaimed(t *testing.T, s persistence.IRewardsPersistence) {
	alice := common.HexToAddress("0xA11CE")
	bob := common.HexToAddress("0xB0B")

	amount, err := s.GetCumulativeClaimed(alice)
	require.NoError(t, err)
	assert.Equal(t, 0, amount.Sign())

	swapped, err := s.CompareAndSwapCumulativeClaimed(alice, big.NewInt(0), big.NewInt(100))
	require.NoError(t, err)
	assert.True(t, swapped)

	// Stale expected value
	swapped, err = s.CompareAndSwapCumulativeClaimed(alice, big.NewInt(0), big.NewInt(200))
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = s.CompareAndSwapCumulativeClaimed(alice, big.NewInt(100), big.NewInt(250))
	require.NoError(t, err)
	assert.True(t, swapped)

	amount, err = s.GetCumulativeClaimed(alice)
	require.NoError(t, err)
	assert.Equal(t, "250", amount.String())

	// Returned values are copies
	amount.SetInt64(1)
	amount, err = s.GetCumulativeClaimed(alice)
	require.NoError(t, err)
	assert.Equal(t, "250", amount.String())

	amount, err = s.GetCumulativeClaimed(bob)
	require.NoError(t, err)
	assert.Equal(t, 0, amount.Sign())

	huge := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	swapped, err = s.CompareAndSwapCumulativeClaimed(bob, big.NewInt(0), huge)
	require.NoError(t, err)
	assert.True(t, swapped)
	amount, err = s.GetCumulativeClaimed(bob)
	require.NoError(t, err)
	assert.Zero(t, huge.Cmp(amount))
}

func testClaimedBitmap(t *testing.T, s persistence.IRewardsPersistence) {
	rootA := common.HexToHash("0xaaaa")
	rootB := common.HexToHash("0xbbbb")

	for _, position := range []uint64{0, 1, 63, 64, 1000} {
		claimed, err := s.IsClaimed(rootA, position)
		require.NoError(t, err)
		assert.False(t, claimed)

		swapped, err := s.CompareAndSwapClaimed(rootA, position, false, true)
		require.NoError(t, err)
		assert.True(t, swapped, "position %d", position)

		swapped, err = s.CompareAndSwapClaimed(rootA, position, false, true)
		require.NoError(t, err)
		assert.False(t, swapped, "position %d", position)

		claimed, err = s.IsClaimed(rootA, position)
		require.NoError(t, err)
		assert.True(t, claimed)
	}

	// Neighbouring positions and other roots are untouched
	for _, position := range []uint64{2, 62, 65, 999} {
		claimed, err := s.IsClaimed(rootA, position)
		require.NoError(t, err)
		assert.False(t, claimed, "position %d", position)
	}
	claimed, err := s.IsClaimed(rootB, 0)
	require.NoError(t, err)
	assert.False(t, claimed)

	// Restoring a bit
	swapped, err := s.CompareAndSwapClaimed(rootA, 63, true, false)
	require.NoError(t, err)
	assert.True(t, swapped)
	claimed, err = s.IsClaimed(rootA, 63)
	require.NoError(t, err)
	assert.False(t, claimed)
	claimed, err = s.IsClaimed(rootA, 64)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func testRewarders(t *testing.T, s persistence.IRewardsPersistence) {
	alice := common.HexToAddress("0x0A")
	bob := common.HexToAddress("0x0B")

	ok, err := s.IsRewarder(alice)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetRewarder(bob, true))
	require.NoError(t, s.SetRewarder(alice, true))
	require.NoError(t, s.SetRewarder(alice, true))

	list, err := s.ListRewarders()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{alice, bob}, list)

	require.NoError(t, s.SetRewarder(alice, false))
	ok, err = s.IsRewarder(alice)
	require.NoError(t, err)
	assert.False(t, ok)

	// Disabling an unknown account is a no-op
	require.NoError(t, s.SetRewarder(common.HexToAddress("0x0C"), false))

	list, err = s.ListRewarders()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{bob}, list)
}

func testParamsAndAddresses(t *testing.T, s persistence.IRewardsPersistence) {
	key := common.BytesToHash([]byte("delay"))

	v, err := s.GetParamValue(key)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.SetParamValue(key, big.NewInt(3600)))
	v, err = s.GetParamValue(key)
	require.NoError(t, err)
	assert.Equal(t, "3600", v.String())

	require.NoError(t, s.SetParamValue(key, big.NewInt(0)))
	v, err = s.GetParamValue(key)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 0, v.Sign())

	_, ok, err := s.GetAddressValue(persistence.AddressKeyTreasury)
	require.NoError(t, err)
	assert.False(t, ok)

	treasury := common.HexToAddress("0x7EA5")
	require.NoError(t, s.SetAddressValue(persistence.AddressKeyTreasury, treasury))
	got, ok, err := s.GetAddressValue(persistence.AddressKeyTreasury)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, treasury, got)
}

func testConcurrentAppend(t *testing.T, s persistence.IRewardsPersistence) {
	const n = 20

	var wg sync.WaitGroup
	ids := make(chan uint32, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.AppendDistributionRoot(newRoot(byte(i), int64(i)))
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint32]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	count, err := s.GetDistributionRootCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(n), count)
}

func testConcurrentCumulativeCAS(t *testing.T, s persistence.IRewardsPersistence) {
	const n = 20
	account := common.HexToAddress("0xC0FFEE")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			swapped, err := s.CompareAndSwapCumulativeClaimed(account, big.NewInt(0), big.NewInt(int64(i)))
			assert.NoError(t, err)
			if swapped {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func testConcurrentClaimedCAS(t *testing.T, s persistence.IRewardsPersistence) {
	const n = 20
	root := common.HexToHash("0x1234")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			swapped, err := s.CompareAndSwapClaimed(root, 7, false, true)
			assert.NoError(t, err)
			if swapped {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func testClosed(t *testing.T, s persistence.IRewardsPersistence) {
	require.NoError(t, s.HealthCheck())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Error(t, s.HealthCheck())

	_, err := s.AppendDistributionRoot(newRoot(1, 1))
	assert.ErrorIs(t, err, persistence.ErrClosed)
	_, err = s.LoadDistributionRoot(0)
	assert.ErrorIs(t, err, persistence.ErrClosed)
	_, err = s.GetCumulativeClaimed(common.Address{})
	assert.ErrorIs(t, err, persistence.ErrClosed)
	_, err = s.CompareAndSwapClaimed(common.Hash{}, 0, false, true)
	assert.ErrorIs(t, err, persistence.ErrClosed)
	assert.ErrorIs(t, s.SetRewarder(common.Address{}, true), persistence.ErrClosed)
	_, err = s.GetParamValue(common.Hash{})
	assert.ErrorIs(t, err, persistence.ErrClosed)
}
