package protocol

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/access"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const eventSource = "protocol"

// ErrZeroAddress is returned when ownership would be handed to the zero address
var ErrZeroAddress = errors.New("new owner is the zero address")

// Protocol holds the protocol owner. Every component resolves its owner through
// Protocol, so a transfer takes effect everywhere at once.
type Protocol struct {
	mu     sync.Mutex
	store  persistence.IRewardsPersistence
	sink   events.ISink
	logger *zap.Logger
}

// NewProtocol loads the owner from store, initializing it to initialOwner on first run.
func NewProtocol(store persistence.IRewardsPersistence, initialOwner common.Address, sink events.ISink, logger *zap.Logger) (*Protocol, error) {
	owner, ok, err := store.GetAddressValue(persistence.AddressKeyOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}

	if !ok {
		if initialOwner == (common.Address{}) {
			return nil, ErrZeroAddress
		}
		if err := store.SetAddressValue(persistence.AddressKeyOwner, initialOwner); err != nil {
			return nil, fmt.Errorf("failed to initialize owner: %w", err)
		}
		owner = initialOwner
		sink.Emit(eventSource, events.OwnershipTransferred{PreviousOwner: common.Address{}, NewOwner: initialOwner})
	}

	logger.Sugar().Infow("Protocol initialized", "owner", owner.Hex())

	return &Protocol{
		store:  store,
		sink:   sink,
		logger: logger,
	}, nil
}

// Owner returns the current owner
func (p *Protocol) Owner() (common.Address, error) {
	owner, ok, err := p.store.GetAddressValue(persistence.AddressKeyOwner)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, fmt.Errorf("owner is not initialized")
	}
	return owner, nil
}

// TransferOwnership hands the protocol to newOwner. Only the current owner may call it.
func (p *Protocol) TransferOwnership(caller common.Address, newOwner common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := access.OnlyOwner(p, caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}

	if err := p.store.SetAddressValue(persistence.AddressKeyOwner, newOwner); err != nil {
		return fmt.Errorf("failed to store owner: %w", err)
	}

	p.logger.Sugar().Infow("Ownership transferred", "previous_owner", caller.Hex(), "new_owner", newOwner.Hex())
	p.sink.Emit(eventSource, events.OwnershipTransferred{PreviousOwner: caller, NewOwner: newOwner})
	return nil
}
