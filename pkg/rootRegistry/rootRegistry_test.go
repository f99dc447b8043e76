package rootRegistry

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/access"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence/memory"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/protocol"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/settings"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	clocktesting "k8s.io/utils/clock/testing"
)

const activationDelay = 3600

var (
	owner    = common.HexToAddress("0x0A11")
	rewarder = common.HexToAddress("0xBEEF")
	stranger = common.HexToAddress("0xBAD")

	rootA = common.HexToHash("0xaaaa")
	rootB = common.HexToHash("0xbbbb")
)

type fixture struct {
	registry *RootRegistry
	settings *settings.ProtocolSettings
	clock    *clocktesting.FakePassiveClock
	log      *events.Log
	store    *memory.MemoryPersistence
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	store := memory.NewMemoryPersistence()
	log := events.NewLog()
	p, err := protocol.NewProtocol(store, owner, events.Discard{}, zap.NewNop())
	require.NoError(t, err)
	s, err := settings.NewProtocolSettings(store, p, settings.Defaults{ActivationDelay: activationDelay}, events.Discard{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.SetRewarder(rewarder, true))

	c := clocktesting.NewFakePassiveClock(time.Unix(1_700_000_000, 0))
	registry := NewRootRegistry(&Config{
		Store:  store,
		Owners: p,
		Delays: s,
		Clock:  c,
		Sink:   log,
		Logger: logger,
	})
	return &fixture{registry: registry, settings: s, clock: c, log: log, store: store}
}

func (f *fixture) advance(d time.Duration) {
	f.clock.SetTime(f.clock.Now().Add(d))
}

func TestRootRegistry_Submit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zap.NewNop())

	id, err := f.registry.SubmitRoot(ctx, owner, rootA, 7, 1_699_999_000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)

	id, err = f.registry.SubmitRoot(ctx, rewarder, rootB, 8, 1_699_999_500)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	_, err = f.registry.SubmitRoot(ctx, stranger, rootB, 9, 0)
	require.ErrorIs(t, err, access.ErrUnauthorized)
	assert.Contains(t, err.Error(), "caller is not owner or rewarder")

	count, err := f.registry.GetRootCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), count)

	entry, err := f.registry.GetRoot(0)
	require.NoError(t, err)
	assert.Equal(t, rootA, entry.Root)
	assert.Equal(t, uint64(7), entry.EpochID)
	assert.True(t, entry.Enabled)
	assert.Equal(t, int64(1_700_000_000), entry.SubmissionTimestamp)
	assert.Equal(t, int64(activationDelay), entry.ActivationDelayAtSubmission)

	_, err = f.registry.GetRoot(2)
	require.ErrorIs(t, err, ErrRootNotFound)

	assert.Equal(t, []events.Event{
		events.RootSubmitted{RootID: 0, Root: rootA, EpochID: 7, CalculationEndTimestamp: 1_699_999_000, SubmissionTimestamp: 1_700_000_000},
		events.RootSubmitted{RootID: 1, Root: rootB, EpochID: 8, CalculationEndTimestamp: 1_699_999_500, SubmissionTimestamp: 1_700_000_000},
	}, f.log.Events())
}

func TestRootRegistry_StateMachine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zap.NewNop())

	id, err := f.registry.SubmitRoot(ctx, owner, rootA, 1, 0)
	require.NoError(t, err)

	status, err := f.registry.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingEnabled, status)

	require.ErrorIs(t, f.registry.EnableRoot(ctx, owner, id, rootA), ErrRootAlreadyEnabled)

	require.NoError(t, f.registry.DisableRoot(ctx, rewarder, id, rootA))
	status, _ = f.registry.Status(id)
	assert.Equal(t, StatusPendingDisabled, status)

	err = f.registry.DisableRoot(ctx, owner, id, rootA)
	require.ErrorIs(t, err, ErrRootAlreadyDisabled)
	assert.Contains(t, err.Error(), "root already disabled")

	require.NoError(t, f.registry.EnableRoot(ctx, owner, id, rootA))
	require.NoError(t, f.registry.DisableRoot(ctx, owner, id, rootA))

	t.Run("Rejects stale id", func(t *testing.T) {
		require.ErrorIs(t, f.registry.EnableRoot(ctx, owner, id, rootB), ErrRootHashMismatch)
		require.ErrorIs(t, f.registry.EnableRoot(ctx, owner, 5, rootA), ErrRootNotFound)
	})

	t.Run("Rejects strangers", func(t *testing.T) {
		require.ErrorIs(t, f.registry.EnableRoot(ctx, stranger, id, rootA), access.ErrUnauthorized)
	})

	f.advance(activationDelay * time.Second)

	status, _ = f.registry.Status(id)
	assert.Equal(t, StatusActivatedDisabled, status)
	assert.True(t, status.IsActivated())

	// Activated is terminal regardless of the desired target state
	require.ErrorIs(t, f.registry.EnableRoot(ctx, owner, id, rootA), ErrRootAlreadyActivated)
	require.ErrorIs(t, f.registry.DisableRoot(ctx, owner, id, rootA), ErrRootAlreadyActivated)

	assert.Equal(t, []events.Event{
		events.RootDisabled{RootID: id, Root: rootA},
		events.RootEnabled{RootID: id, Root: rootA},
		events.RootDisabled{RootID: id, Root: rootA},
	}, f.log.Events(events.NameRootDisabled, events.NameRootEnabled))
}

func TestRootRegistry_ActivationBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zap.NewNop())

	id, err := f.registry.SubmitRoot(ctx, owner, rootA, 1, 0)
	require.NoError(t, err)

	activatedAt, err := f.registry.ActivatedAt(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000+activationDelay), activatedAt)

	f.advance((activationDelay - 1) * time.Second)
	activated, err := f.registry.IsActivated(id)
	require.NoError(t, err)
	assert.False(t, activated)

	_, err = f.registry.GetLatestActivatedRoot()
	require.ErrorIs(t, err, ErrRootNotFound)

	f.advance(time.Second)
	activated, err = f.registry.IsActivated(id)
	require.NoError(t, err)
	assert.True(t, activated)

	status, _ := f.registry.Status(id)
	assert.Equal(t, StatusActivatedEnabled, status)

	latest, err := f.registry.GetLatestActivatedRoot()
	require.NoError(t, err)
	assert.Equal(t, id, latest.ID)
}

func TestRootRegistry_LatestActivatedSkipsDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zap.NewNop())

	_, err := f.registry.SubmitRoot(ctx, owner, rootA, 1, 0)
	require.NoError(t, err)
	second, err := f.registry.SubmitRoot(ctx, owner, rootB, 2, 0)
	require.NoError(t, err)
	require.NoError(t, f.registry.DisableRoot(ctx, owner, second, rootB))

	f.advance(activationDelay * time.Second)

	latest, err := f.registry.GetLatestActivatedRoot()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), latest.ID)
}

func TestRootRegistry_GetRootIndexFromHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zap.NewNop())

	for _, root := range []common.Hash{rootA, rootB, rootA} {
		_, err := f.registry.SubmitRoot(ctx, owner, root, 0, 0)
		require.NoError(t, err)
	}

	id, err := f.registry.GetRootIndexFromHash(rootA)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id)

	id, err = f.registry.GetRootIndexFromHash(rootB)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	_, err = f.registry.GetRootIndexFromHash(common.HexToHash("0xcccc"))
	require.ErrorIs(t, err, ErrRootNotFound)

	roots, err := f.registry.ListRoots()
	require.NoError(t, err)
	require.Len(t, roots, 3)
}

func TestRootRegistry_DelayReadAtEvaluation(t *testing.T) {
	ctx := context.Background()
	core, observed := observer.New(zap.WarnLevel)
	f := newFixture(t, zap.New(core))

	id, err := f.registry.SubmitRoot(ctx, owner, rootA, 1, 0)
	require.NoError(t, err)

	f.advance(activationDelay * time.Second)
	activated, err := f.registry.IsActivated(id)
	require.NoError(t, err)
	require.True(t, activated)
	assert.Equal(t, 0, observed.Len())

	// Raising the delay pushes an activated root back behind its threshold
	require.NoError(t, f.settings.UpsertParamValue(owner, settings.ParamRewardsActivationDelay, big.NewInt(2*activationDelay)))
	activated, err = f.registry.IsActivated(id)
	require.NoError(t, err)
	assert.False(t, activated)

	warnings := observed.FilterMessage("Activation delay changed since root submission").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(activationDelay), warnings[0].ContextMap()["delay_at_submission"])
	assert.Equal(t, int64(2*activationDelay), warnings[0].ContextMap()["current_delay"])
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "pending_enabled", StatusPendingEnabled.String())
	assert.Equal(t, "activated_disabled", StatusActivatedDisabled.String())
	assert.Equal(t, "unknown(9)", Status(9).String())
	assert.False(t, StatusPendingDisabled.IsActivated())
}
