package rewardsDistributor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/access"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence/memory"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/protocol"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/rootRegistry"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/settings"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token/memoryToken"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	clocktesting "k8s.io/utils/clock/testing"
)

const (
	decimals        = 18
	activationDelay = 7 * 24 * 60 * 60
)

var (
	owner    = common.HexToAddress("0x0A11")
	rewarder = common.HexToAddress("0xBEEF")
	custody  = common.HexToAddress("0xC057")
	relayer  = common.HexToAddress("0x5E1F")
	alice    = common.HexToAddress("0xA11CE")
	bob      = common.HexToAddress("0xB0B")
)

var bigIntComparer = cmp.Comparer(func(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
})

func units(v string) *big.Int {
	return token.MustParseUnits(v, decimals)
}

type fixture struct {
	distributor *RewardsDistributor
	registry    *rootRegistry.RootRegistry
	protocol    *protocol.Protocol
	clock       *clocktesting.FakePassiveClock
	log         *events.Log
	store       *memory.MemoryPersistence
}

func newFixture(t *testing.T, tk token.IToken) *fixture {
	store := memory.NewMemoryPersistence()
	log := events.NewLog()
	p, err := protocol.NewProtocol(store, owner, events.Discard{}, zap.NewNop())
	require.NoError(t, err)
	s, err := settings.NewProtocolSettings(store, p, settings.Defaults{ActivationDelay: activationDelay}, events.Discard{}, zap.NewNop())
	require.NoError(t, err)

	c := clocktesting.NewFakePassiveClock(time.Unix(1_700_000_000, 0))
	registry := rootRegistry.NewRootRegistry(&rootRegistry.Config{
		Store:  store,
		Owners: p,
		Delays: s,
		Clock:  c,
		Sink:   log,
		Logger: zap.NewNop(),
	})
	d := NewRewardsDistributor(&Config{
		Store:    store,
		Registry: registry,
		Owners:   p,
		Token:    tk,
		Custody:  custody,
		Sink:     log,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, d.SetRewarder(context.Background(), owner, rewarder, true))
	return &fixture{distributor: d, registry: registry, protocol: p, clock: c, log: log, store: store}
}

func (f *fixture) advance(d time.Duration) {
	f.clock.SetTime(f.clock.Now().Add(d))
}

// epoch builds a tree over the cumulative totals, submits it and waits for activation
func (f *fixture) epoch(t *testing.T, totals map[common.Address]*big.Int, wait bool) (uint32, *merkle.BalanceTree) {
	var distributions []types.Distribution
	for _, account := range []common.Address{alice, bob} {
		if amount, ok := totals[account]; ok {
			distributions = append(distributions, types.Distribution{Account: account, Amount: amount})
		}
	}
	tree, err := merkle.BuildBalanceTree(distributions)
	require.NoError(t, err)

	epochID, err := f.registry.GetRootCount()
	require.NoError(t, err)
	id, err := f.registry.SubmitRoot(context.Background(), rewarder, tree.Root, uint64(epochID), f.clock.Now().Unix())
	require.NoError(t, err)
	if wait {
		f.advance(activationDelay * time.Second)
	}
	return id, tree
}

func (f *fixture) claim(t *testing.T, id uint32, tree *merkle.BalanceTree, account common.Address) (*big.Int, error) {
	position, ok := tree.PositionOf(account)
	require.True(t, ok)
	proof, err := tree.GenerateProof(position)
	require.NoError(t, err)
	return f.distributor.Claim(context.Background(), relayer, id, tree.Root, proof.Position, proof.Account, proof.Amount, proof.Proof)
}

func TestRewardsDistributor_CumulativeClaims(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		totals []string
		deltas []string
	}{
		{name: "Equal epochs", totals: []string{"100.5", "201", "301.5"}, deltas: []string{"100.5", "100.5", "100.5"}},
		{name: "Uneven epochs", totals: []string{"100.5", "103.0", "203.5"}, deltas: []string{"100.5", "2.5", "100.5"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tk := memoryToken.NewMemoryToken("RWD", decimals, nil)
			require.NoError(t, tk.Mint(custody, units("1000")))
			f := newFixture(t, tk)

			var want []events.Event
			for i, total := range tc.totals {
				id, tree := f.epoch(t, map[common.Address]*big.Int{alice: units(total), bob: units("1")}, true)

				paid, err := f.claim(t, id, tree, alice)
				require.NoError(t, err)
				assert.Equal(t, 0, units(tc.deltas[i]).Cmp(paid))

				claimed, err := f.distributor.CumulativeClaimed(alice)
				require.NoError(t, err)
				assert.Equal(t, 0, units(total).Cmp(claimed))

				_, err = f.claim(t, id, tree, alice)
				require.ErrorIs(t, err, ErrNothingToClaim)

				want = append(want, events.RewardsClaimed{RootID: id, Account: alice, Amount: units(tc.deltas[i])})
			}

			balance, err := tk.BalanceOf(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, 0, units(tc.totals[len(tc.totals)-1]).Cmp(balance))

			if diff := cmp.Diff(want, f.log.Events(events.NameRewardsClaimed), bigIntComparer); diff != "" {
				t.Errorf("RewardsClaimed mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRewardsDistributor_MissedEpochs(t *testing.T) {
	tk := memoryToken.NewMemoryToken("RWD", decimals, nil)
	require.NoError(t, tk.Mint(custody, units("1000")))
	f := newFixture(t, tk)

	f.epoch(t, map[common.Address]*big.Int{alice: units("10"), bob: units("5")}, true)
	f.epoch(t, map[common.Address]*big.Int{alice: units("20"), bob: units("15")}, true)
	id, tree := f.epoch(t, map[common.Address]*big.Int{alice: units("30"), bob: units("25")}, true)

	paid, err := f.claim(t, id, tree, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, units("25").Cmp(paid))
}

func TestRewardsDistributor_OlderRootAfterNewer(t *testing.T) {
	tk := memoryToken.NewMemoryToken("RWD", decimals, nil)
	require.NoError(t, tk.Mint(custody, units("1000")))
	f := newFixture(t, tk)

	oldID, oldTree := f.epoch(t, map[common.Address]*big.Int{alice: units("10")}, true)
	newID, newTree := f.epoch(t, map[common.Address]*big.Int{alice: units("20")}, true)

	_, err := f.claim(t, newID, newTree, alice)
	require.NoError(t, err)

	_, err = f.claim(t, oldID, oldTree, alice)
	require.ErrorIs(t, err, ErrNothingToClaim)
}

func TestRewardsDistributor_ActivationBoundary(t *testing.T) {
	tk := memoryToken.NewMemoryToken("RWD", decimals, nil)
	require.NoError(t, tk.Mint(custody, units("1000")))
	f := newFixture(t, tk)

	id, tree := f.epoch(t, map[common.Address]*big.Int{alice: units("1")}, false)

	_, err := f.claim(t, id, tree, alice)
	require.ErrorIs(t, err, ErrRootNotActivated)
	assert.Contains(t, err.Error(), "root not activated yet")

	f.advance((activationDelay - 1) * time.Second)
	_, err = f.claim(t, id, tree, alice)
	require.ErrorIs(t, err, ErrRootNotActivated)

	f.advance(time.Second)
	_, err = f.claim(t, id, tree, alice)
	require.NoError(t, err)
}

func TestRewardsDistributor_DisabledRoot(t *testing.T) {
	ctx := context.Background()
	tk := memoryToken.NewMemoryToken("RWD", decimals, nil)
	require.NoError(t, tk.Mint(custody, units("1000")))
	f := newFixture(t, tk)

	id, tree := f.epoch(t, map[common.Address]*big.Int{alice: units("1")}, false)
	require.NoError(t, f.registry.DisableRoot(ctx, rewarder, id, tree.Root))
	f.advance(activationDelay * time.Second)

	_, err := f.claim(t, id, tree, alice)
	require.ErrorIs(t, err, ErrRootNotActivated)
}

func TestRewardsDistributor_Rejections(t *testing.T) {
	ctx := context.Background()
	tk := memoryToken.NewMemoryToken("RWD", decimals, nil)
	require.NoError(t, tk.Mint(custody, units("1000")))
	f := newFixture(t, tk)

	id, tree := f.epoch(t, map[common.Address]*big.Int{alice: units("10"), bob: units("5")}, true)
	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)

	t.Run("Unknown root", func(t *testing.T) {
		_, err := f.distributor.Claim(ctx, relayer, 9, tree.Root, 0, alice, units("10"), proof.Proof)
		require.ErrorIs(t, err, rootRegistry.ErrRootNotFound)
	})

	t.Run("Root hash mismatch", func(t *testing.T) {
		_, err := f.distributor.Claim(ctx, relayer, id, common.HexToHash("0x01"), 0, alice, units("10"), proof.Proof)
		require.ErrorIs(t, err, merkle.ErrInvalidProof)
	})

	t.Run("Inflated amount", func(t *testing.T) {
		_, err := f.distributor.Claim(ctx, relayer, id, tree.Root, 0, alice, units("11"), proof.Proof)
		require.ErrorIs(t, err, merkle.ErrInvalidProof)
		assert.Contains(t, err.Error(), "invalid proof")
	})

	t.Run("Wrong account", func(t *testing.T) {
		_, err := f.distributor.Claim(ctx, relayer, id, tree.Root, 0, bob, units("10"), proof.Proof)
		require.ErrorIs(t, err, merkle.ErrInvalidProof)
	})

	claimed, err := f.distributor.CumulativeClaimed(alice)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed.Sign())
	assert.Empty(t, f.log.Events(events.NameRewardsClaimed))
}

func TestRewardsDistributor_InsufficientBalance(t *testing.T) {
	tk := memoryToken.NewMemoryToken("RWD", decimals, nil)
	require.NoError(t, tk.Mint(custody, units("5")))
	f := newFixture(t, tk)

	id, tree := f.epoch(t, map[common.Address]*big.Int{alice: units("10")}, true)

	_, err := f.claim(t, id, tree, alice)
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	claimed, err := f.distributor.CumulativeClaimed(alice)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed.Sign())

	// retry after funding is the caller's responsibility
	require.NoError(t, tk.Mint(custody, units("5")))
	paid, err := f.claim(t, id, tree, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, units("10").Cmp(paid))
}

type mockToken struct {
	mock.Mock
}

func (m *mockToken) Symbol() string  { return "RWD" }
func (m *mockToken) Decimals() uint8 { return decimals }

func (m *mockToken) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockToken) Transfer(ctx context.Context, from common.Address, to common.Address, amount *big.Int) error {
	args := m.Called(ctx, from, to, amount)
	return args.Error(0)
}

func TestRewardsDistributor_TransferFailureRollsBack(t *testing.T) {
	tk := new(mockToken)
	boom := errors.New("transfer reverted")
	tk.On("BalanceOf", mock.Anything, custody).Return(units("1000"), nil)
	tk.On("Transfer", mock.Anything, custody, alice, mock.Anything).Return(boom).Once()

	f := newFixture(t, tk)
	id, tree := f.epoch(t, map[common.Address]*big.Int{alice: units("10")}, true)

	_, err := f.claim(t, id, tree, alice)
	require.ErrorIs(t, err, boom)

	claimed, err := f.distributor.CumulativeClaimed(alice)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed.Sign())
	assert.Empty(t, f.log.Events(events.NameRewardsClaimed))

	tk.On("Transfer", mock.Anything, custody, alice, mock.Anything).Return(nil).Once()
	paid, err := f.claim(t, id, tree, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, units("10").Cmp(paid))
	tk.AssertExpectations(t)
}

func TestRewardsDistributor_Withdraw(t *testing.T) {
	ctx := context.Background()
	tk := memoryToken.NewMemoryToken("RWD", decimals, nil)
	require.NoError(t, tk.Mint(custody, units("100")))
	f := newFixture(t, tk)

	err := f.distributor.Withdraw(ctx, alice, alice, units("1"))
	require.ErrorIs(t, err, access.ErrNotOwner)

	require.ErrorIs(t, f.distributor.Withdraw(ctx, owner, common.Address{}, units("1")), ErrZeroRecipient)
	require.ErrorIs(t, f.distributor.Withdraw(ctx, owner, bob, units("101")), token.ErrInsufficientBalance)

	require.NoError(t, f.distributor.Withdraw(ctx, owner, bob, units("40")))
	balance, err := tk.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, units("40").Cmp(balance))

	// ownership transfer hands withdrawal rights to the new owner
	require.NoError(t, f.protocol.TransferOwnership(owner, alice))
	require.ErrorIs(t, f.distributor.Withdraw(ctx, owner, bob, units("1")), access.ErrNotOwner)
	require.NoError(t, f.distributor.Withdraw(ctx, alice, alice, units("1")))

	want := []events.Event{
		events.Withdrawn{Caller: owner, To: bob, Amount: units("40")},
		events.Withdrawn{Caller: alice, To: alice, Amount: units("1")},
	}
	if diff := cmp.Diff(want, f.log.Events(events.NameWithdrawn), bigIntComparer); diff != "" {
		t.Errorf("Withdrawn mismatch (-want +got):\n%s", diff)
	}

	claimed, err := f.distributor.CumulativeClaimed(bob)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed.Sign())
}

func TestRewardsDistributor_Rewarders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memoryToken.NewMemoryToken("RWD", decimals, nil))

	require.ErrorIs(t, f.distributor.SetRewarder(ctx, rewarder, alice, true), access.ErrNotOwner)

	require.NoError(t, f.distributor.SetRewarder(ctx, owner, alice, true))
	ok, err := f.distributor.IsRewarder(alice)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.registry.SubmitRoot(ctx, alice, common.HexToHash("0x01"), 0, 0)
	require.NoError(t, err)

	require.NoError(t, f.distributor.SetRewarder(ctx, owner, alice, false))
	_, err = f.registry.SubmitRoot(ctx, alice, common.HexToHash("0x02"), 0, 0)
	require.ErrorIs(t, err, access.ErrUnauthorized)

	rewarders, err := f.distributor.ListRewarders()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{rewarder}, rewarders)

	assert.Equal(t, []events.Event{
		events.RewarderUpdated{Account: rewarder, Enabled: true},
		events.RewarderUpdated{Account: alice, Enabled: true},
		events.RewarderUpdated{Account: alice, Enabled: false},
	}, f.log.Events(events.NameRewarderUpdated))
}

// unconfirmedToken moves the funds and then reports the outcome as unknown, once
type unconfirmedToken struct {
	*memoryToken.MemoryToken
	reported bool
}

func (u *unconfirmedToken) Transfer(ctx context.Context, from common.Address, to common.Address, amount *big.Int) error {
	if err := u.MemoryToken.Transfer(ctx, from, to, amount); err != nil {
		return err
	}
	if !u.reported {
		u.reported = true
		return fmt.Errorf("%w: %w", token.ErrTransferPending, context.Canceled)
	}
	return nil
}

func TestRewardsDistributor_PendingTransferKeepsRecord(t *testing.T) {
	ctx := context.Background()
	tk := &unconfirmedToken{MemoryToken: memoryToken.NewMemoryToken("RWD", decimals, nil)}
	require.NoError(t, tk.Mint(custody, units("1000")))
	f := newFixture(t, tk)

	id, tree := f.epoch(t, map[common.Address]*big.Int{alice: units("100")}, true)

	_, err := f.claim(t, id, tree, alice)
	require.ErrorIs(t, err, token.ErrTransferPending)
	require.ErrorIs(t, err, context.Canceled)

	claimed, err := f.distributor.CumulativeClaimed(alice)
	require.NoError(t, err)
	assert.Equal(t, 0, units("100").Cmp(claimed))

	_, err = f.claim(t, id, tree, alice)
	require.ErrorIs(t, err, ErrNothingToClaim)

	balance, err := tk.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, units("100").Cmp(balance))
	assert.Empty(t, f.log.Events(events.NameRewardsClaimed))
}
