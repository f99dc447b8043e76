package rootRegistry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/access"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const eventSource = "rootRegistry"

var (
	ErrRootNotFound         = errors.New("root not found")
	ErrRootHashMismatch     = errors.New("root hash does not match stored root")
	ErrRootAlreadyActivated = errors.New("root already activated")
	ErrRootAlreadyEnabled   = errors.New("root already enabled")
	ErrRootAlreadyDisabled  = errors.New("root already disabled")
)

// Status is the derived lifecycle state of a distribution root
type Status int

const (
	StatusPendingEnabled Status = iota
	StatusPendingDisabled
	StatusActivatedEnabled
	StatusActivatedDisabled
)

func (s Status) String() string {
	switch s {
	case StatusPendingEnabled:
		return "pending_enabled"
	case StatusPendingDisabled:
		return "pending_disabled"
	case StatusActivatedEnabled:
		return "activated_enabled"
	case StatusActivatedDisabled:
		return "activated_disabled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsActivated reports whether the state is terminal
func (s Status) IsActivated() bool {
	return s == StatusActivatedEnabled || s == StatusActivatedDisabled
}

// IActivationDelaySource supplies the current activation delay in seconds
type IActivationDelaySource interface {
	ActivationDelay() (int64, error)
}

// RootRegistry is the append-only sequence of submitted distribution roots
type RootRegistry struct {
	mu        sync.Mutex
	store     persistence.IRewardsPersistence
	owners    access.IOwnerSource
	rewarders access.IRewarderSource
	delays    IActivationDelaySource
	clock     clock.PassiveClock
	sink      events.ISink
	logger    *zap.Logger
}

type Config struct {
	Store     persistence.IRewardsPersistence
	Owners    access.IOwnerSource
	Rewarders access.IRewarderSource
	Delays    IActivationDelaySource
	Clock     clock.PassiveClock
	Sink      events.ISink
	Logger    *zap.Logger
}

func NewRootRegistry(cfg *Config) *RootRegistry {
	c := cfg.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = events.Discard{}
	}
	rewarders := cfg.Rewarders
	if rewarders == nil {
		rewarders = cfg.Store
	}
	return &RootRegistry{
		store:     cfg.Store,
		owners:    cfg.Owners,
		rewarders: rewarders,
		delays:    cfg.Delays,
		clock:     c,
		sink:      sink,
		logger:    cfg.Logger,
	}
}

// Now returns the registry's current unix time
func (r *RootRegistry) Now() int64 {
	return r.clock.Now().Unix()
}

// SubmitRoot appends root as a new enabled entry and returns its id.
// Owner or rewarder only.
func (r *RootRegistry) SubmitRoot(_ context.Context, caller common.Address, root common.Hash, epochID uint64, calculationEndTimestamp int64) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := access.OnlyOwnerOrRewarder(r.owners, r.rewarders, caller); err != nil {
		return 0, err
	}

	delay, err := r.delays.ActivationDelay()
	if err != nil {
		return 0, err
	}

	entry := &types.DistributionRoot{
		Root:                        root,
		EpochID:                     epochID,
		CalculationEndTimestamp:     calculationEndTimestamp,
		SubmissionTimestamp:         r.Now(),
		ActivationDelayAtSubmission: delay,
		Enabled:                     true,
	}
	id, err := r.store.AppendDistributionRoot(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to append root: %w", err)
	}

	r.logger.Sugar().Infow("Distribution root submitted",
		"root_id", id,
		"root", root.Hex(),
		"epoch_id", epochID,
		"submitted_by", caller.Hex(),
		"activates_at", entry.ActivatedAt(delay),
	)
	r.sink.Emit(eventSource, events.RootSubmitted{
		RootID:                  id,
		Root:                    root,
		EpochID:                 epochID,
		CalculationEndTimestamp: calculationEndTimestamp,
		SubmissionTimestamp:     entry.SubmissionTimestamp,
	})
	return id, nil
}

// DisableRoot disables a pending root. Owner or rewarder only.
func (r *RootRegistry) DisableRoot(_ context.Context, caller common.Address, id uint32, root common.Hash) error {
	return r.setEnabled(caller, id, root, false)
}

// EnableRoot re-enables a pending root. Owner or rewarder only.
func (r *RootRegistry) EnableRoot(_ context.Context, caller common.Address, id uint32, root common.Hash) error {
	return r.setEnabled(caller, id, root, true)
}

func (r *RootRegistry) setEnabled(caller common.Address, id uint32, root common.Hash, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := access.OnlyOwnerOrRewarder(r.owners, r.rewarders, caller); err != nil {
		return err
	}

	entry, err := r.GetRoot(id)
	if err != nil {
		return err
	}
	if entry.Root != root {
		return fmt.Errorf("%w: root %d is %s, got %s", ErrRootHashMismatch, id, entry.Root.Hex(), root.Hex())
	}

	activated, err := r.isActivated(entry)
	if err != nil {
		return err
	}
	if activated {
		return fmt.Errorf("%w: root %d", ErrRootAlreadyActivated, id)
	}

	swapped, err := r.store.CompareAndSwapRootEnabled(id, !enabled, enabled)
	if err != nil {
		return fmt.Errorf("failed to update root %d: %w", id, err)
	}
	if !swapped {
		if enabled {
			return fmt.Errorf("%w: root %d", ErrRootAlreadyEnabled, id)
		}
		return fmt.Errorf("%w: root %d", ErrRootAlreadyDisabled, id)
	}

	r.logger.Sugar().Infow("Distribution root toggled",
		"root_id", id,
		"root", root.Hex(),
		"enabled", enabled,
		"caller", caller.Hex(),
	)
	if enabled {
		r.sink.Emit(eventSource, events.RootEnabled{RootID: id, Root: root})
	} else {
		r.sink.Emit(eventSource, events.RootDisabled{RootID: id, Root: root})
	}
	return nil
}

// GetRoot returns the root with the given id
func (r *RootRegistry) GetRoot(id uint32) (*types.DistributionRoot, error) {
	entry, err := r.store.LoadDistributionRoot(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load root %d: %w", id, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %d", ErrRootNotFound, id)
	}
	return entry, nil
}

func (r *RootRegistry) GetRootCount() (uint32, error) {
	return r.store.GetDistributionRootCount()
}

func (r *RootRegistry) ListRoots() ([]*types.DistributionRoot, error) {
	return r.store.ListDistributionRoots()
}

// Status derives the lifecycle state of root id at the current time
func (r *RootRegistry) Status(id uint32) (Status, error) {
	entry, err := r.GetRoot(id)
	if err != nil {
		return 0, err
	}
	return r.status(entry)
}

func (r *RootRegistry) status(entry *types.DistributionRoot) (Status, error) {
	activated, err := r.isActivated(entry)
	if err != nil {
		return 0, err
	}
	switch {
	case activated && entry.Enabled:
		return StatusActivatedEnabled, nil
	case activated:
		return StatusActivatedDisabled, nil
	case entry.Enabled:
		return StatusPendingEnabled, nil
	default:
		return StatusPendingDisabled, nil
	}
}

// IsActivated reports whether root id has passed its activation instant
func (r *RootRegistry) IsActivated(id uint32) (bool, error) {
	entry, err := r.GetRoot(id)
	if err != nil {
		return false, err
	}
	return r.isActivated(entry)
}

// IsRedeemable reports whether entry is activated and enabled
func (r *RootRegistry) IsRedeemable(entry *types.DistributionRoot) (bool, error) {
	s, err := r.status(entry)
	if err != nil {
		return false, err
	}
	return s == StatusActivatedEnabled, nil
}

// ActivatedAt returns the unix time root id becomes redeemable under the current delay
func (r *RootRegistry) ActivatedAt(id uint32) (int64, error) {
	entry, err := r.GetRoot(id)
	if err != nil {
		return 0, err
	}
	delay, err := r.activationDelayFor(entry)
	if err != nil {
		return 0, err
	}
	return entry.ActivatedAt(delay), nil
}

func (r *RootRegistry) isActivated(entry *types.DistributionRoot) (bool, error) {
	delay, err := r.activationDelayFor(entry)
	if err != nil {
		return false, err
	}
	return entry.IsActivated(r.Now(), delay), nil
}

// activationDelayFor returns the delay currently in effect. The delay is read at
// evaluation time, a root submitted under a different delay is reported.
func (r *RootRegistry) activationDelayFor(entry *types.DistributionRoot) (int64, error) {
	delay, err := r.delays.ActivationDelay()
	if err != nil {
		return 0, err
	}
	if delay != entry.ActivationDelayAtSubmission {
		r.logger.Sugar().Warnw("Activation delay changed since root submission",
			"root_id", entry.ID,
			"delay_at_submission", entry.ActivationDelayAtSubmission,
			"current_delay", delay,
		)
	}
	return delay, nil
}

// GetRootIndexFromHash returns the highest id whose root equals root
func (r *RootRegistry) GetRootIndexFromHash(root common.Hash) (uint32, error) {
	roots, err := r.store.ListDistributionRoots()
	if err != nil {
		return 0, fmt.Errorf("failed to list roots: %w", err)
	}
	for i := len(roots) - 1; i >= 0; i-- {
		if roots[i].Root == root {
			return roots[i].ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrRootNotFound, root.Hex())
}

// GetLatestActivatedRoot returns the highest id root that is activated and enabled
func (r *RootRegistry) GetLatestActivatedRoot() (*types.DistributionRoot, error) {
	roots, err := r.store.ListDistributionRoots()
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	for i := len(roots) - 1; i >= 0; i-- {
		ok, err := r.IsRedeemable(roots[i])
		if err != nil {
			return nil, err
		}
		if ok {
			return roots[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no activated root", ErrRootNotFound)
}
