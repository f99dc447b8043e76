package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the unset address.
var ZeroAddress = common.Address{}

// Distribution is one line of an off-system distribution list.
type Distribution struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// LeafEntry is a distribution line with its position in the list.
// Positions are zero-based and contiguous.
type LeafEntry struct {
	Position uint64         `json:"index"`
	Account  common.Address `json:"account"`
	Amount   *big.Int       `json:"amount"`
}

// DistributionRoot is one entry of the append-only root registry.
// Whether a root is activated is derived from SubmissionTimestamp and the
// activation delay, it is never stored.
type DistributionRoot struct {
	// ID is the append index in the registry, starting at 0
	ID uint32 `json:"id"`

	// Root is the merkle root of the cumulative distribution
	Root common.Hash `json:"root"`

	// EpochID is an operator-defined period identifier, not used for verification
	EpochID uint64 `json:"epochId"`

	// CalculationEndTimestamp is the unix time the rewards calculation covered up to
	CalculationEndTimestamp int64 `json:"calculationEndTimestamp"`

	// SubmissionTimestamp is the unix time the root was appended
	SubmissionTimestamp int64 `json:"submissionTimestamp"`

	// ActivationDelayAtSubmission records the delay parameter (seconds) in effect when the
	// root was submitted.
	ActivationDelayAtSubmission int64 `json:"activationDelayAtSubmission"`

	Enabled bool `json:"enabled"`
}

// ActivatedAt returns the unix time the root becomes redeemable under the given delay.
func (r *DistributionRoot) ActivatedAt(activationDelay int64) int64 {
	return r.SubmissionTimestamp + activationDelay
}

// IsActivated reports whether now is at or past the activation instant.
func (r *DistributionRoot) IsActivated(now int64, activationDelay int64) bool {
	return now >= r.ActivatedAt(activationDelay)
}

// Copy returns a deep copy of the root record.
func (r *DistributionRoot) Copy() *DistributionRoot {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// CopyBig returns a copy of v, or zero when v is nil.
func CopyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
