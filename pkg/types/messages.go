package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Actions bound into signed payloads
const (
	ActionSubmitRoot  = "submit_root"
	ActionDisableRoot = "disable_root"
	ActionEnableRoot  = "enable_root"
	ActionSetRewarder = "set_rewarder"
	ActionWithdraw    = "withdraw"
)

// RequestAuth ties a signed payload to one action and one moment
type RequestAuth struct {
	Action string `json:"action"`
	// IssuedAt is the unix time the request was signed
	IssuedAt int64 `json:"issuedAt"`
	// Nonce makes otherwise identical signed requests distinct
	Nonce string `json:"nonce"`
}

func (a *RequestAuth) GetAuth() *RequestAuth { return a }

// SubmitRootRequest is the signed payload for POST /roots
type SubmitRootRequest struct {
	RequestAuth
	Root                    common.Hash `json:"root"`
	EpochID                 uint64      `json:"epochId"`
	CalculationEndTimestamp int64       `json:"calculationEndTimestamp"`
}

type SubmitRootResponse struct {
	ID uint32 `json:"id"`
}

// ToggleRootRequest is the signed payload for POST /roots/{id}/disable and /enable
type ToggleRootRequest struct {
	RequestAuth
	ID   uint32      `json:"id"`
	Root common.Hash `json:"root"`
}

// ClaimRequest is the payload for POST /claim. Claims are permissionless.
type ClaimRequest struct {
	RootID           uint32          `json:"rootId"`
	Root             common.Hash     `json:"root"`
	Index            uint64          `json:"index"`
	Account          common.Address  `json:"account"`
	CumulativeAmount *big.Int        `json:"cumulativeAmount"`
	Proof            []ProofNodeJSON `json:"proof"`
}

// ProofNodeJSON is the wire form of one authentication path step
type ProofNodeJSON struct {
	Sibling common.Hash `json:"sibling"`
	Side    string      `json:"side"`
}

type ClaimResponse struct {
	Account common.Address `json:"account"`
	Paid    *big.Int       `json:"paid"`
}

type CumulativeClaimedResponse struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// SetRewarderRequest is the signed payload for POST /rewarders
type SetRewarderRequest struct {
	RequestAuth
	Account common.Address `json:"account"`
	Enabled bool           `json:"enabled"`
}

type RewarderResponse struct {
	Account  common.Address `json:"account"`
	Rewarder bool           `json:"rewarder"`
}

// WithdrawRequest is the signed payload for POST /withdraw
type WithdrawRequest struct {
	RequestAuth
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

type RootCountResponse struct {
	Count uint32 `json:"count"`
}

// RootResponse is a registry entry together with its derived status
type RootResponse struct {
	*DistributionRoot
	Status      string `json:"status"`
	ActivatedAt int64  `json:"activatedAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// DistributionResponse summarizes the one-shot distribution served by the server
type DistributionResponse struct {
	Root        common.Hash `json:"root"`
	TotalAmount *big.Int    `json:"totalAmount"`
	Claims      int         `json:"claims"`
}

// DistributionClaimRequest is the payload for POST /distribution/claim
type DistributionClaimRequest struct {
	Index   uint64          `json:"index"`
	Account common.Address  `json:"account"`
	Amount  *big.Int        `json:"amount"`
	Proof   []ProofNodeJSON `json:"proof"`
}

type DistributionClaimedResponse struct {
	Index   uint64 `json:"index"`
	Claimed bool   `json:"claimed"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
