// Package merkleDistributor pays out a single fixed distribution, each leaf at most once.
package merkleDistributor

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const eventSource = "merkleDistributor"

var ErrAlreadyClaimed = errors.New("already claimed")

// MerkleDistributor redeems leaves of the distribution committed to by Root
type MerkleDistributor struct {
	mu      sync.Mutex
	root    common.Hash
	custody common.Address
	store   persistence.IRewardsPersistence
	token   token.IToken
	sink    events.ISink
	logger  *zap.Logger
}

// NewMerkleDistributor creates a ledger for root. Claims are paid from custody.
func NewMerkleDistributor(
	root common.Hash,
	custody common.Address,
	store persistence.IRewardsPersistence,
	tk token.IToken,
	sink events.ISink,
	logger *zap.Logger,
) *MerkleDistributor {
	if sink == nil {
		sink = events.Discard{}
	}
	return &MerkleDistributor{
		root:    root,
		custody: custody,
		store:   store,
		token:   tk,
		sink:    sink,
		logger:  logger,
	}
}

func (d *MerkleDistributor) Root() common.Hash {
	return d.root
}

func (d *MerkleDistributor) Custody() common.Address {
	return d.custody
}

// IsClaimed reports whether position has been redeemed
func (d *MerkleDistributor) IsClaimed(position uint64) (bool, error) {
	return d.store.IsClaimed(d.root, position)
}

// Claim verifies the leaf (position, account, amount) and pays amount to account.
// Any caller may claim on behalf of the account named in the leaf.
func (d *MerkleDistributor) Claim(
	ctx context.Context,
	caller common.Address,
	position uint64,
	account common.Address,
	amount *big.Int,
	proof merkle.AuthenticationPath,
) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	claimed, err := d.store.IsClaimed(d.root, position)
	if err != nil {
		return errors.Wrapf(err, "failed to load claimed bit %d", position)
	}
	if claimed {
		return fmt.Errorf("%w: position %d", ErrAlreadyClaimed, position)
	}

	if !merkle.VerifyProof(position, account, amount, proof, d.root) {
		return fmt.Errorf("%w: position %d account %s", merkle.ErrInvalidProof, position, account.Hex())
	}

	swapped, err := d.store.CompareAndSwapClaimed(d.root, position, false, true)
	if err != nil {
		return errors.Wrapf(err, "failed to set claimed bit %d", position)
	}
	if !swapped {
		return fmt.Errorf("%w: position %d", ErrAlreadyClaimed, position)
	}

	if err := d.token.Transfer(ctx, d.custody, account, amount); err != nil {
		if token.IsTransferPending(err) {
			d.logger.Sugar().Warnw("Claim payment pending, claimed bit kept",
				"position", position,
				"account", account.Hex(),
				"amount", amount.String(),
				"error", err,
			)
			return errors.Wrapf(err, "claim %d payment pending", position)
		}
		if _, rerr := d.store.CompareAndSwapClaimed(d.root, position, true, false); rerr != nil {
			d.logger.Sugar().Errorw("Failed to restore claimed bit after transfer failure",
				"position", position,
				"error", rerr,
			)
		}
		return errors.Wrapf(err, "claim %d failed", position)
	}

	d.logger.Sugar().Infow("Claimed",
		"position", position,
		"account", account.Hex(),
		"amount", amount.String(),
		"caller", caller.Hex(),
	)
	d.sink.Emit(eventSource, events.Claimed{Index: position, Account: account, Amount: new(big.Int).Set(amount)})
	return nil
}
