package persistence

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
)

// MarshalDistributionRoot serializes a DistributionRoot to JSON bytes.
func MarshalDistributionRoot(root *types.DistributionRoot) ([]byte, error) {
	if root == nil {
		return nil, fmt.Errorf("cannot marshal nil DistributionRoot")
	}

	data, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DistributionRoot to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalDistributionRoot deserializes a DistributionRoot from JSON bytes.
func UnmarshalDistributionRoot(data []byte) (*types.DistributionRoot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var root types.DistributionRoot
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to DistributionRoot: %w", err)
	}

	return &root, nil
}

// MarshalAmount encodes an amount as its decimal string.
func MarshalAmount(amount *big.Int) ([]byte, error) {
	if amount == nil {
		return nil, fmt.Errorf("cannot marshal nil amount")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("cannot marshal negative amount %s", amount)
	}
	return []byte(amount.String()), nil
}

// UnmarshalAmount decodes an amount written by MarshalAmount.
func UnmarshalAmount(data []byte) (*big.Int, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}
	amount, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount encoding %q", string(data))
	}
	return amount, nil
}
