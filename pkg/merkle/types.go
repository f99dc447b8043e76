package merkle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
)

// Side records on which side of the running hash a sibling sits.
type Side uint8

const (
	// SideLeft means the sibling is the left operand: keccak256(sibling || current)
	SideLeft Side = iota
	// SideRight means the sibling is the right operand: keccak256(current || sibling)
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if s != SideLeft && s != SideRight {
		return nil, fmt.Errorf("invalid side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseSide parses "left" or "right".
func ParseSide(s string) (Side, error) {
	switch s {
	case "left":
		return SideLeft, nil
	case "right":
		return SideRight, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

// ProofNode is one step of an authentication path.
type ProofNode struct {
	Sibling common.Hash `json:"sibling"`
	Side    Side        `json:"side"`
}

// AuthenticationPath lists sibling hashes from the leaf up to (excluding) the root.
type AuthenticationPath []ProofNode

// Copy returns an independent copy of the path.
func (p AuthenticationPath) Copy() AuthenticationPath {
	if p == nil {
		return nil
	}
	out := make(AuthenticationPath, len(p))
	copy(out, p)
	return out
}

// BalanceTree is a binary merkle tree over a distribution list.
// It is immutable once built.
type BalanceTree struct {
	// Entries holds the distribution lines in position order
	Entries []types.LeafEntry

	// Leaves contains the encoded leaf hashes, Leaves[i] belongs to Entries[i]
	Leaves [][32]byte

	// Root is the merkle root hash
	Root common.Hash

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][][32]byte

	// positions maps an account to its leaf position
	positions map[common.Address]uint64
}

// MerkleProof is everything a claimant needs to redeem one leaf.
type MerkleProof struct {
	// Position is the index of the leaf in the distribution list
	Position uint64 `json:"index"`

	Account common.Address `json:"account"`

	Amount *big.Int `json:"amount"`

	// Leaf is the encoded leaf hash
	Leaf common.Hash `json:"leaf"`

	// Proof contains the sibling hashes from leaf to root
	// proof[0] is the sibling of the leaf, proof[len-1] is near the root
	Proof AuthenticationPath `json:"proof"`
}

// ToJSON converts the path to its wire form.
func (p AuthenticationPath) ToJSON() []types.ProofNodeJSON {
	out := make([]types.ProofNodeJSON, len(p))
	for i, node := range p {
		out[i] = types.ProofNodeJSON{Sibling: node.Sibling, Side: node.Side.String()}
	}
	return out
}

// AuthenticationPathFromJSON parses a wire-form path.
func AuthenticationPathFromJSON(nodes []types.ProofNodeJSON) (AuthenticationPath, error) {
	out := make(AuthenticationPath, len(nodes))
	for i, node := range nodes {
		side, err := ParseSide(node.Side)
		if err != nil {
			return nil, fmt.Errorf("proof node %d: %w", i, err)
		}
		out[i] = ProofNode{Sibling: node.Sibling, Side: side}
	}
	return out, nil
}
