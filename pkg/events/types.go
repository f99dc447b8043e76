package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a structured record of a completed state change
type Event interface {
	EventName() string
}

const (
	NameClaimed              = "Claimed"
	NameRootSubmitted        = "RewardsDistributionRootSubmitted"
	NameRootDisabled         = "RewardsDistributionRootDisabled"
	NameRootEnabled          = "RewardsDistributionRootEnabled"
	NameRewardsClaimed       = "RewardsClaimed"
	NameWithdrawn            = "Withdrawn"
	NameRewarderUpdated      = "UpdateRewarder"
	NameTransfer             = "Transfer"
	NameOwnershipTransferred = "OwnershipTransferred"
	NameUpsertParamValue     = "UpsertParamValue"
	NameUpdateTreasury       = "UpdateTreasury"
)

// Claimed is emitted by the one-shot distributor
type Claimed struct {
	Index   uint64         `json:"index"`
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

func (Claimed) EventName() string { return NameClaimed }

type RootSubmitted struct {
	RootID                  uint32      `json:"rootId"`
	Root                    common.Hash `json:"root"`
	EpochID                 uint64      `json:"epochId"`
	CalculationEndTimestamp int64       `json:"calculationEndTimestamp"`
	SubmissionTimestamp     int64       `json:"submissionTimestamp"`
}

func (RootSubmitted) EventName() string { return NameRootSubmitted }

type RootDisabled struct {
	RootID uint32      `json:"rootId"`
	Root   common.Hash `json:"root"`
}

func (RootDisabled) EventName() string { return NameRootDisabled }

type RootEnabled struct {
	RootID uint32      `json:"rootId"`
	Root   common.Hash `json:"root"`
}

func (RootEnabled) EventName() string { return NameRootEnabled }

// RewardsClaimed carries the paid delta, not the cumulative total
type RewardsClaimed struct {
	RootID  uint32         `json:"rootId"`
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

func (RewardsClaimed) EventName() string { return NameRewardsClaimed }

type Withdrawn struct {
	Caller common.Address `json:"caller"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func (Withdrawn) EventName() string { return NameWithdrawn }

type RewarderUpdated struct {
	Account common.Address `json:"account"`
	Enabled bool           `json:"enabled"`
}

func (RewarderUpdated) EventName() string { return NameRewarderUpdated }

type Transfer struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
}

func (Transfer) EventName() string { return NameTransfer }

type OwnershipTransferred struct {
	PreviousOwner common.Address `json:"previousOwner"`
	NewOwner      common.Address `json:"newOwner"`
}

func (OwnershipTransferred) EventName() string { return NameOwnershipTransferred }

type UpsertParamValue struct {
	Key   common.Hash `json:"key"`
	Value *big.Int    `json:"value"`
}

func (UpsertParamValue) EventName() string { return NameUpsertParamValue }

type UpdateTreasury struct {
	PreviousTreasury common.Address `json:"previousTreasury"`
	NewTreasury      common.Address `json:"newTreasury"`
}

func (UpdateTreasury) EventName() string { return NameUpdateTreasury }
