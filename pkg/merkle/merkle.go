package merkle

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
)

var (
	// ErrDuplicateAccount is returned when a distribution list names the same account twice
	ErrDuplicateAccount = errors.New("duplicate accounts detected")
	// ErrUnknownPosition is returned for a proof request outside the tree
	ErrUnknownPosition = errors.New("unknown position")
	// ErrInvalidAmount is returned for nil, negative or wider than 256 bit amounts
	ErrInvalidAmount = errors.New("amount must be an unsigned 256-bit integer")
	// ErrEmptyDistribution is returned when building a tree from an empty list
	ErrEmptyDistribution = errors.New("cannot build merkle tree from empty distribution list")
	// ErrInvalidProof is returned by ledgers when a proof does not recompute the expected root
	ErrInvalidProof = errors.New("invalid proof")
)

// leafSize is uint256 position || address || uint256 amount
const leafSize = 32 + common.AddressLength + 32

// ValidateAmount checks that amount fits an unsigned 256-bit integer.
func ValidateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 256 {
		return ErrInvalidAmount
	}
	return nil
}

// HashLeaf encodes a (position, account, amount) triple into a merkle leaf.
// The encoding matches Solidity's keccak256(abi.encodePacked(uint256 index, address account, uint256 amount)).
// amount must satisfy ValidateAmount.
func HashLeaf(position uint64, account common.Address, amount *big.Int) [32]byte {
	data := make([]byte, 0, leafSize)
	data = append(data, math.PaddedBigBytes(new(big.Int).SetUint64(position), 32)...)
	data = append(data, account.Bytes()...)
	data = append(data, math.PaddedBigBytes(amount, 32)...)

	return [32]byte(crypto.Keccak256Hash(data))
}

// BuildBalanceTree builds a binary merkle tree over a distribution list.
// Each line's position is its index in the list. The whole list is checked
// for duplicate accounts before anything is hashed.
//
// If there's an odd number of nodes at any level, the last node is paired with itself.
func BuildBalanceTree(distributions []types.Distribution) (*BalanceTree, error) {
	if len(distributions) == 0 {
		return nil, ErrEmptyDistribution
	}

	positions := make(map[common.Address]uint64, len(distributions))
	for i, d := range distributions {
		if _, exists := positions[d.Account]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, d.Account.Hex())
		}
		if err := ValidateAmount(d.Amount); err != nil {
			return nil, fmt.Errorf("distribution %d (%s): %w", i, d.Account.Hex(), err)
		}
		positions[d.Account] = uint64(i)
	}

	entries := make([]types.LeafEntry, len(distributions))
	leaves := make([][32]byte, len(distributions))
	for i, d := range distributions {
		entries[i] = types.LeafEntry{
			Position: uint64(i),
			Account:  d.Account,
			Amount:   new(big.Int).Set(d.Amount),
		}
		leaves[i] = HashLeaf(uint64(i), d.Account, d.Amount)
	}

	levels := buildLevels(leaves)
	top := levels[len(levels)-1]
	if len(top) != 1 {
		return nil, fmt.Errorf("merkle tree construction failed: final level has %d nodes instead of 1", len(top))
	}

	return &BalanceTree{
		Entries:   entries,
		Leaves:    leaves,
		Root:      common.Hash(top[0]),
		levels:    levels,
		positions: positions,
	}, nil
}

func buildLevels(leaves [][32]byte) [][][32]byte {
	levels := make([][][32]byte, 0)
	levels = append(levels, leaves)

	currentLevel := leaves
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			left := currentLevel[i]
			right := left
			if i+1 < len(currentLevel) {
				right = currentLevel[i+1]
			}
			nextLevel = append(nextLevel, hashPair(left, right))
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}
	return levels
}

// Len returns the number of leaves.
func (bt *BalanceTree) Len() int {
	return len(bt.Leaves)
}

// HexRoot returns the 0x-prefixed root.
func (bt *BalanceTree) HexRoot() string {
	return bt.Root.Hex()
}

// PositionOf returns the leaf position of an account.
func (bt *BalanceTree) PositionOf(account common.Address) (uint64, bool) {
	p, ok := bt.positions[account]
	return p, ok
}

// GenerateProof creates the authentication path for the leaf at the given position.
func (bt *BalanceTree) GenerateProof(position uint64) (*MerkleProof, error) {
	if position >= uint64(len(bt.Leaves)) {
		return nil, fmt.Errorf("%w: %d (tree has %d leaves)", ErrUnknownPosition, position, len(bt.Leaves))
	}

	path := make(AuthenticationPath, 0, len(bt.levels)-1)
	index := position

	for level := 0; level < len(bt.levels)-1; level++ {
		currentLevel := bt.levels[level]

		var node ProofNode
		if index%2 == 0 {
			siblingIndex := index + 1
			// Last node of an odd level is paired with itself
			if siblingIndex >= uint64(len(currentLevel)) {
				siblingIndex = index
			}
			node = ProofNode{Sibling: common.Hash(currentLevel[siblingIndex]), Side: SideRight}
		} else {
			node = ProofNode{Sibling: common.Hash(currentLevel[index-1]), Side: SideLeft}
		}
		path = append(path, node)

		index = index / 2
	}

	entry := bt.Entries[position]
	return &MerkleProof{
		Position: position,
		Account:  entry.Account,
		Amount:   new(big.Int).Set(entry.Amount),
		Leaf:     common.Hash(bt.Leaves[position]),
		Proof:    path,
	}, nil
}

// GenerateAllProofs creates a proof for every leaf, at most concurrency at a time.
// A concurrency below 1 means no limit.
func (bt *BalanceTree) GenerateAllProofs(ctx context.Context, concurrency int) ([]*MerkleProof, error) {
	proofs := make([]*MerkleProof, len(bt.Leaves))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i := range bt.Leaves {
		position := uint64(i)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			proof, err := bt.GenerateProof(position)
			if err != nil {
				return err
			}
			proofs[position] = proof
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return proofs, nil
}

// VerifyProof recomputes the root from a leaf and its authentication path and
// compares it with expectedRoot. It has no side effects.
func VerifyProof(position uint64, account common.Address, amount *big.Int, path AuthenticationPath, expectedRoot common.Hash) bool {
	if ValidateAmount(amount) != nil {
		return false
	}

	currentHash := HashLeaf(position, account, amount)

	for _, node := range path {
		switch node.Side {
		case SideLeft:
			currentHash = hashPair(node.Sibling, currentHash)
		case SideRight:
			currentHash = hashPair(currentHash, node.Sibling)
		default:
			return false
		}
	}

	return currentHash == [32]byte(expectedRoot)
}

// Verify checks the proof against root.
func (p *MerkleProof) Verify(root common.Hash) bool {
	if p == nil {
		return false
	}
	return VerifyProof(p.Position, p.Account, p.Amount, p.Proof, root)
}

// hashPair computes keccak256(left || right) for two 32-byte hashes.
func hashPair(left, right [32]byte) [32]byte {
	data := make([]byte, 64)
	copy(data[0:32], left[:])
	copy(data[32:64], right[:])

	return [32]byte(crypto.Keccak256Hash(data))
}
