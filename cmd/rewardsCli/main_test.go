package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const distributionsJSON = `[
  {"account": "0x1111111111111111111111111111111111111111", "amount": "100.5"},
  {"account": "0x2222222222222222222222222222222222222222", "amount": "3"},
  {"account": "0x3333333333333333333333333333333333333333", "amount": "0.25"}
]`

func writeInput(t *testing.T, dir string) string {
	path := filepath.Join(dir, "input.json")
	require.NoError(t, os.WriteFile(path, []byte(distributionsJSON), 0o600))
	return path
}

func TestBuildTreeAndVerifyProof(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)
	output := filepath.Join(dir, "tree.json")

	err := newApp().Run([]string{"rewards-cli", "build-tree", "--input", input, "--output", output, "--decimals", "6"})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	artifact, err := merkle.UnmarshalTreeArtifact(data)
	require.NoError(t, err)
	require.Len(t, artifact.Claims, 3)
	assert.Equal(t, 0, token.MustParseUnits("103.75", 6).Cmp(artifact.TotalAmount))

	proof, ok := artifact.ClaimFor(common.HexToAddress("0x2222222222222222222222222222222222222222"))
	require.True(t, ok)
	assert.Equal(t, uint64(1), proof.Position)
	assert.Equal(t, 0, token.MustParseUnits("3", 6).Cmp(proof.Amount))

	err = newApp().Run([]string{"rewards-cli", "verify-proof", "--artifact", output, "--account", "0x3333333333333333333333333333333333333333"})
	require.NoError(t, err)

	err = newApp().Run([]string{"rewards-cli", "verify-proof", "--artifact", output, "--account", "0x4444444444444444444444444444444444444444"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no claim")
}

func TestBuildTree_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(input, []byte(`[{"account": "nope", "amount": "1"}]`), 0o600))

	err := newApp().Run([]string{"rewards-cli", "build-tree", "--input", input})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestPrivilegedCommandsRequireKey(t *testing.T) {
	t.Setenv("REWARDS_PRIVATE_KEY", "")
	err := newApp().Run([]string{"rewards-cli", "set-rewarder", "--account", "0x1111111111111111111111111111111111111111"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "privateKey is required")
}

func TestParseHash(t *testing.T) {
	_, err := parseHash("0x1234")
	require.Error(t, err)

	h, err := parseHash("0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), h[0])
}
