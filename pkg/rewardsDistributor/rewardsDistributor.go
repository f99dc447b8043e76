package rewardsDistributor

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/access"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/rootRegistry"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const eventSource = "rewardsDistributor"

var (
	ErrRootNotActivated = errors.New("root not activated yet")
	ErrNothingToClaim   = errors.New("nothing to claim")
	ErrZeroRecipient    = errors.New("recipient is the zero address")
)

// RewardsDistributor pays the positive difference between an account's cumulative
// entitlement in an activated root and what it has already been paid
type RewardsDistributor struct {
	mu       sync.Mutex
	store    persistence.IRewardsPersistence
	registry *rootRegistry.RootRegistry
	owners   access.IOwnerSource
	token    token.IToken
	custody  common.Address
	sink     events.ISink
	logger   *zap.Logger
}

type Config struct {
	Store    persistence.IRewardsPersistence
	Registry *rootRegistry.RootRegistry
	Owners   access.IOwnerSource
	Token    token.IToken
	// Custody is the address claims and withdrawals are paid from
	Custody common.Address
	Sink    events.ISink
	Logger  *zap.Logger
}

func NewRewardsDistributor(cfg *Config) *RewardsDistributor {
	sink := cfg.Sink
	if sink == nil {
		sink = events.Discard{}
	}
	return &RewardsDistributor{
		store:    cfg.Store,
		registry: cfg.Registry,
		owners:   cfg.Owners,
		token:    cfg.Token,
		custody:  cfg.Custody,
		sink:     sink,
		logger:   cfg.Logger,
	}
}

func (d *RewardsDistributor) Custody() common.Address {
	return d.custody
}

func (d *RewardsDistributor) Token() token.IToken {
	return d.token
}

// Claim redeems account's cumulative entitlement in root rootID and returns the amount paid.
// Any caller may claim on behalf of the account named in the leaf.
func (d *RewardsDistributor) Claim(
	ctx context.Context,
	caller common.Address,
	rootID uint32,
	rootHash common.Hash,
	position uint64,
	account common.Address,
	cumulativeAmount *big.Int,
	proof merkle.AuthenticationPath,
) (*big.Int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, err := d.registry.GetRoot(rootID)
	if err != nil {
		return nil, err
	}
	redeemable, err := d.registry.IsRedeemable(entry)
	if err != nil {
		return nil, err
	}
	if !redeemable {
		return nil, fmt.Errorf("%w: root %d", ErrRootNotActivated, rootID)
	}

	if entry.Root != rootHash || !merkle.VerifyProof(position, account, cumulativeAmount, proof, rootHash) {
		return nil, fmt.Errorf("%w: root %d position %d account %s", merkle.ErrInvalidProof, rootID, position, account.Hex())
	}

	claimed, err := d.store.GetCumulativeClaimed(account)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load cumulative claimed for %s", account.Hex())
	}
	delta := new(big.Int).Sub(cumulativeAmount, claimed)
	if delta.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s already claimed %s", ErrNothingToClaim, account.Hex(), claimed)
	}

	balance, err := d.token.BalanceOf(ctx, d.custody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load custody balance")
	}
	if balance.Cmp(delta) < 0 {
		return nil, fmt.Errorf("%w: custody holds %s, claim needs %s", token.ErrInsufficientBalance, balance, delta)
	}

	swapped, err := d.store.CompareAndSwapCumulativeClaimed(account, claimed, cumulativeAmount)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update cumulative claimed for %s", account.Hex())
	}
	if !swapped {
		// another process paid this account since it was read
		return nil, fmt.Errorf("%w: %s claimed concurrently", ErrNothingToClaim, account.Hex())
	}

	if err := d.token.Transfer(ctx, d.custody, account, delta); err != nil {
		if token.IsTransferPending(err) {
			// the payment may land, so the record keeps the new cumulative amount
			d.logger.Sugar().Warnw("Rewards payment pending, cumulative claimed kept",
				"root_id", rootID,
				"account", account.Hex(),
				"amount", delta.String(),
				"cumulative", cumulativeAmount.String(),
				"error", err,
			)
			return nil, errors.Wrapf(err, "payment to %s pending", account.Hex())
		}
		if _, rerr := d.store.CompareAndSwapCumulativeClaimed(account, cumulativeAmount, claimed); rerr != nil {
			d.logger.Sugar().Errorw("Failed to restore cumulative claimed after transfer failure",
				"account", account.Hex(),
				"error", rerr,
			)
		}
		return nil, errors.Wrapf(err, "failed to pay %s", account.Hex())
	}

	d.logger.Sugar().Infow("Rewards claimed",
		"root_id", rootID,
		"account", account.Hex(),
		"amount", delta.String(),
		"cumulative", cumulativeAmount.String(),
		"caller", caller.Hex(),
	)
	d.sink.Emit(eventSource, events.RewardsClaimed{RootID: rootID, Account: account, Amount: new(big.Int).Set(delta)})
	return delta, nil
}

// CumulativeClaimed returns the total paid to account
func (d *RewardsDistributor) CumulativeClaimed(account common.Address) (*big.Int, error) {
	return d.store.GetCumulativeClaimed(account)
}

// Withdraw moves amount of custody funds to to. Owner only.
func (d *RewardsDistributor) Withdraw(ctx context.Context, caller common.Address, to common.Address, amount *big.Int) error {
	if to == types.ZeroAddress {
		return ErrZeroRecipient
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid withdraw amount %v", amount)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := access.OnlyOwner(d.owners, caller); err != nil {
		return err
	}

	if err := d.token.Transfer(ctx, d.custody, to, amount); err != nil {
		return errors.Wrapf(err, "failed to withdraw to %s", to.Hex())
	}

	d.logger.Sugar().Infow("Withdrawn",
		"caller", caller.Hex(),
		"to", to.Hex(),
		"amount", amount.String(),
	)
	d.sink.Emit(eventSource, events.Withdrawn{Caller: caller, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// SetRewarder grants or revokes the rewarder capability. Owner only.
func (d *RewardsDistributor) SetRewarder(_ context.Context, caller common.Address, account common.Address, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := access.OnlyOwner(d.owners, caller); err != nil {
		return err
	}
	if err := d.store.SetRewarder(account, enabled); err != nil {
		return errors.Wrapf(err, "failed to update rewarder %s", account.Hex())
	}

	d.logger.Sugar().Infow("Rewarder updated", "account", account.Hex(), "enabled", enabled)
	d.sink.Emit(eventSource, events.RewarderUpdated{Account: account, Enabled: enabled})
	return nil
}

func (d *RewardsDistributor) IsRewarder(account common.Address) (bool, error) {
	return d.store.IsRewarder(account)
}

func (d *RewardsDistributor) ListRewarders() ([]common.Address, error) {
	return d.store.ListRewarders()
}
