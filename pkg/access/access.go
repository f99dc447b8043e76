// Package access implements the owner and rewarder capability checks shared by
// every privileged operation.
package access

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnauthorized is the category of every capability failure
	ErrUnauthorized = errors.New("unauthorized")

	ErrNotOwner           = fmt.Errorf("%w: caller is not the owner", ErrUnauthorized)
	ErrNotOwnerOrRewarder = fmt.Errorf("%w: caller is not owner or rewarder", ErrUnauthorized)
)

// IOwnerSource supplies the current protocol owner
type IOwnerSource interface {
	Owner() (common.Address, error)
}

// IRewarderSource reports rewarder membership
type IRewarderSource interface {
	IsRewarder(account common.Address) (bool, error)
}

// IsOwner reports whether caller is the current owner
func IsOwner(owners IOwnerSource, caller common.Address) (bool, error) {
	owner, err := owners.Owner()
	if err != nil {
		return false, fmt.Errorf("failed to load owner: %w", err)
	}
	return owner == caller, nil
}

// OnlyOwner returns ErrNotOwner unless caller is the owner
func OnlyOwner(owners IOwnerSource, caller common.Address) error {
	ok, err := IsOwner(owners, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOwner
	}
	return nil
}

// OnlyOwnerOrRewarder returns ErrNotOwnerOrRewarder unless caller is the owner or an enabled rewarder
func OnlyOwnerOrRewarder(owners IOwnerSource, rewarders IRewarderSource, caller common.Address) error {
	ok, err := IsOwner(owners, caller)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	ok, err = rewarders.IsRewarder(caller)
	if err != nil {
		return fmt.Errorf("failed to load rewarder: %w", err)
	}
	if !ok {
		return ErrNotOwnerOrRewarder
	}
	return nil
}

// StaticOwner is an IOwnerSource with a fixed owner
type StaticOwner common.Address

func (s StaticOwner) Owner() (common.Address, error) {
	return common.Address(s), nil
}
