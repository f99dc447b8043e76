package merkle

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTreeArtifact(t *testing.T) {
	distributions := createTestDistributions(5)
	tree, err := BuildBalanceTree(distributions)
	require.NoError(t, err)

	artifact, err := tree.Export(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, tree.Root, artifact.Root)
	require.Equal(t, "15000000000000000000", artifact.TotalAmount.String())

	data, err := MarshalTreeArtifact(artifact)
	require.NoError(t, err)

	loaded, err := UnmarshalTreeArtifact(data)
	require.NoError(t, err)
	require.Equal(t, artifact.Root, loaded.Root)
	require.Len(t, loaded.Claims, 5)

	claim, ok := loaded.ClaimFor(distributions[3].Account)
	require.True(t, ok)
	require.Equal(t, uint64(3), claim.Position)
	require.True(t, claim.Verify(tree.Root))

	t.Run("Tampered amount is rejected", func(t *testing.T) {
		tampered := bytes.Replace(data, []byte("4000000000000000000"), []byte("4000000000000000001"), 1)
		require.NotEqual(t, data, tampered)

		_, err := UnmarshalTreeArtifact(tampered)
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("Empty data", func(t *testing.T) {
		_, err := UnmarshalTreeArtifact(nil)
		require.Error(t, err)
	})
}

func TestSideText(t *testing.T) {
	for _, s := range []Side{SideLeft, SideRight} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var parsed Side
		require.NoError(t, parsed.UnmarshalText(text))
		require.Equal(t, s, parsed)
	}

	_, err := Side(9).MarshalText()
	require.Error(t, err)

	_, err = ParseSide("up")
	require.Error(t, err)
}
