package settings

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/access"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const eventSource = "settings"

// ParamRewardsActivationDelay is the delay in seconds between root submission and activation
var ParamRewardsActivationDelay = common.Hash(util.MustEncodeBytes32String("RewardsActivationDelay"))

var (
	ErrZeroTreasury = errors.New("treasury is the zero address")
	ErrInvalidParam = errors.New("invalid param value")
)

// Defaults are written to the store only when the corresponding value was never set
type Defaults struct {
	ActivationDelay int64
	Treasury        common.Address
}

// ProtocolSettings is the key-value parameter store of the protocol
type ProtocolSettings struct {
	mu     sync.Mutex
	store  persistence.IRewardsPersistence
	owners access.IOwnerSource
	sink   events.ISink
	logger *zap.Logger
}

func NewProtocolSettings(
	store persistence.IRewardsPersistence,
	owners access.IOwnerSource,
	defaults Defaults,
	sink events.ISink,
	logger *zap.Logger,
) (*ProtocolSettings, error) {
	if defaults.ActivationDelay < 0 {
		return nil, fmt.Errorf("%w: negative activation delay", ErrInvalidParam)
	}

	existing, err := store.GetParamValue(ParamRewardsActivationDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to load activation delay: %w", err)
	}
	if existing == nil {
		if err := store.SetParamValue(ParamRewardsActivationDelay, big.NewInt(defaults.ActivationDelay)); err != nil {
			return nil, fmt.Errorf("failed to seed activation delay: %w", err)
		}
		logger.Sugar().Infow("Seeded activation delay", "seconds", defaults.ActivationDelay)
	}

	if defaults.Treasury != (common.Address{}) {
		_, ok, err := store.GetAddressValue(persistence.AddressKeyTreasury)
		if err != nil {
			return nil, fmt.Errorf("failed to load treasury: %w", err)
		}
		if !ok {
			if err := store.SetAddressValue(persistence.AddressKeyTreasury, defaults.Treasury); err != nil {
				return nil, fmt.Errorf("failed to seed treasury: %w", err)
			}
		}
	}

	return &ProtocolSettings{
		store:  store,
		owners: owners,
		sink:   sink,
		logger: logger,
	}, nil
}

// ParamValue returns the value stored under key, zero when unset
func (s *ProtocolSettings) ParamValue(key common.Hash) (*big.Int, error) {
	v, err := s.store.GetParamValue(key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return new(big.Int), nil
	}
	return v, nil
}

// UpsertParamValue sets key to value. Owner only.
func (s *ProtocolSettings) UpsertParamValue(caller common.Address, key common.Hash, value *big.Int) error {
	if value == nil || value.Sign() < 0 || value.BitLen() > 256 {
		return fmt.Errorf("%w: %v", ErrInvalidParam, value)
	}
	if key == ParamRewardsActivationDelay && !value.IsInt64() {
		return fmt.Errorf("%w: activation delay %s does not fit in seconds", ErrInvalidParam, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := access.OnlyOwner(s.owners, caller); err != nil {
		return err
	}

	if err := s.store.SetParamValue(key, value); err != nil {
		return fmt.Errorf("failed to store param: %w", err)
	}

	name, _ := util.DecodeBytes32String(key)
	s.logger.Sugar().Infow("Param value updated", "key", key.Hex(), "name", name, "value", value.String())
	s.sink.Emit(eventSource, events.UpsertParamValue{Key: key, Value: new(big.Int).Set(value)})
	return nil
}

// ActivationDelay returns the current RewardsActivationDelay in seconds
func (s *ProtocolSettings) ActivationDelay() (int64, error) {
	v, err := s.ParamValue(ParamRewardsActivationDelay)
	if err != nil {
		return 0, fmt.Errorf("failed to load activation delay: %w", err)
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("%w: activation delay %s out of range", ErrInvalidParam, v)
	}
	return v.Int64(), nil
}

// Treasury returns the treasury address, the zero address when unset
func (s *ProtocolSettings) Treasury() (common.Address, error) {
	treasury, _, err := s.store.GetAddressValue(persistence.AddressKeyTreasury)
	return treasury, err
}

// SetTreasury updates the treasury address. Owner only.
func (s *ProtocolSettings) SetTreasury(caller common.Address, treasury common.Address) error {
	if treasury == (common.Address{}) {
		return ErrZeroTreasury
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := access.OnlyOwner(s.owners, caller); err != nil {
		return err
	}

	previous, err := s.Treasury()
	if err != nil {
		return fmt.Errorf("failed to load treasury: %w", err)
	}
	if err := s.store.SetAddressValue(persistence.AddressKeyTreasury, treasury); err != nil {
		return fmt.Errorf("failed to store treasury: %w", err)
	}

	s.logger.Sugar().Infow("Treasury updated", "previous", previous.Hex(), "treasury", treasury.Hex())
	s.sink.Emit(eventSource, events.UpdateTreasury{PreviousTreasury: previous, NewTreasury: treasury})
	return nil
}
