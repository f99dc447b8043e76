package settings

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/access"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence/memory"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const oneDay = 24 * 60 * 60

var (
	alice = common.HexToAddress("0xA11CE")
	bob   = common.HexToAddress("0xB0B")
)

func TestProtocolSettings(t *testing.T) {
	store := memory.NewMemoryPersistence()
	log := events.NewLog()

	p, err := protocol.NewProtocol(store, alice, log, zap.NewNop())
	require.NoError(t, err)

	s, err := NewProtocolSettings(store, p, Defaults{ActivationDelay: 3600}, log, zap.NewNop())
	require.NoError(t, err)

	delay, err := s.ActivationDelay()
	require.NoError(t, err)
	assert.Equal(t, int64(3600), delay)

	t.Run("Only owner can change settings", func(t *testing.T) {
		err := s.UpsertParamValue(bob, ParamRewardsActivationDelay, big.NewInt(oneDay))
		require.ErrorIs(t, err, access.ErrNotOwner)
		assert.Contains(t, err.Error(), "caller is not the owner")

		require.ErrorIs(t, s.SetTreasury(bob, bob), access.ErrNotOwner)
	})

	t.Run("Owner updates activation delay", func(t *testing.T) {
		require.NoError(t, s.UpsertParamValue(alice, ParamRewardsActivationDelay, big.NewInt(oneDay)))

		v, err := s.ParamValue(ParamRewardsActivationDelay)
		require.NoError(t, err)
		assert.Equal(t, int64(oneDay), v.Int64())
	})

	t.Run("Owner updates treasury", func(t *testing.T) {
		require.NoError(t, s.SetTreasury(alice, bob))
		treasury, err := s.Treasury()
		require.NoError(t, err)
		assert.Equal(t, bob, treasury)

		require.ErrorIs(t, s.SetTreasury(alice, common.Address{}), ErrZeroTreasury)
	})

	t.Run("New owner takes over", func(t *testing.T) {
		require.NoError(t, p.TransferOwnership(alice, bob))
		require.ErrorIs(t, s.SetTreasury(alice, alice), access.ErrNotOwner)
		require.NoError(t, s.SetTreasury(bob, alice))
	})

	t.Run("Invalid values", func(t *testing.T) {
		require.ErrorIs(t, s.UpsertParamValue(bob, ParamRewardsActivationDelay, big.NewInt(-1)), ErrInvalidParam)
		require.ErrorIs(t, s.UpsertParamValue(bob, ParamRewardsActivationDelay, nil), ErrInvalidParam)
		tooLarge := new(big.Int).Lsh(big.NewInt(1), 70)
		require.ErrorIs(t, s.UpsertParamValue(bob, ParamRewardsActivationDelay, tooLarge), ErrInvalidParam)

		// Other keys accept any uint256
		other := common.BytesToHash([]byte("Other"))
		require.NoError(t, s.UpsertParamValue(bob, other, tooLarge))
	})

	assert.Equal(t, []events.Event{
		events.UpsertParamValue{Key: ParamRewardsActivationDelay, Value: big.NewInt(oneDay)},
	}, log.Events(events.NameUpsertParamValue)[:1])
	assert.Equal(t, []events.Event{
		events.UpdateTreasury{PreviousTreasury: common.Address{}, NewTreasury: bob},
		events.UpdateTreasury{PreviousTreasury: bob, NewTreasury: alice},
	}, log.Events(events.NameUpdateTreasury))
}

func TestProtocolSettings_DefaultsDoNotOverwrite(t *testing.T) {
	store := memory.NewMemoryPersistence()
	owner := access.StaticOwner(alice)

	s1, err := NewProtocolSettings(store, owner, Defaults{ActivationDelay: 10, Treasury: bob}, events.Discard{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s1.UpsertParamValue(alice, ParamRewardsActivationDelay, big.NewInt(20)))

	s2, err := NewProtocolSettings(store, owner, Defaults{ActivationDelay: 10, Treasury: alice}, events.Discard{}, zap.NewNop())
	require.NoError(t, err)

	delay, err := s2.ActivationDelay()
	require.NoError(t, err)
	assert.Equal(t, int64(20), delay)

	treasury, err := s2.Treasury()
	require.NoError(t, err)
	assert.Equal(t, bob, treasury)

	_, err = NewProtocolSettings(store, owner, Defaults{ActivationDelay: -1}, events.Discard{}, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidParam)
}

func TestParamKeyEncoding(t *testing.T) {
	assert.Equal(t, byte('R'), ParamRewardsActivationDelay[0])
	assert.Equal(t, byte(0), ParamRewardsActivationDelay[31])
}
