package merkle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TreeArtifact is the JSON document handed to claimants after a tree is built.
type TreeArtifact struct {
	Root        common.Hash    `json:"root"`
	TotalAmount *big.Int       `json:"totalAmount"`
	Claims      []*MerkleProof `json:"claims"`
}

// Export generates every proof and bundles them with the root.
func (bt *BalanceTree) Export(ctx context.Context, concurrency int) (*TreeArtifact, error) {
	proofs, err := bt.GenerateAllProofs(ctx, concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to generate proofs: %w", err)
	}

	total := new(big.Int)
	for _, e := range bt.Entries {
		total.Add(total, e.Amount)
	}

	return &TreeArtifact{
		Root:        bt.Root,
		TotalAmount: total,
		Claims:      proofs,
	}, nil
}

// ClaimFor returns the proof bundled for account.
func (a *TreeArtifact) ClaimFor(account common.Address) (*MerkleProof, bool) {
	for _, c := range a.Claims {
		if c.Account == account {
			return c, true
		}
	}
	return nil, false
}

// MarshalTreeArtifact serializes an artifact to indented JSON.
func MarshalTreeArtifact(a *TreeArtifact) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("cannot marshal nil TreeArtifact")
	}
	return json.MarshalIndent(a, "", "  ")
}

// UnmarshalTreeArtifact parses an artifact and checks every bundled proof against its root.
func UnmarshalTreeArtifact(data []byte) (*TreeArtifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var a TreeArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to TreeArtifact: %w", err)
	}

	for _, c := range a.Claims {
		if !c.Verify(a.Root) {
			return nil, fmt.Errorf("claim %d for %s: %w", c.Position, c.Account.Hex(), ErrInvalidProof)
		}
	}
	return &a, nil
}
