package util

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestEncodeBytes32String(t *testing.T) {
	key, err := EncodeBytes32String("RewardsActivationDelay")
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x5265776172647341637469766174696f6e44656c617900000000000000000000"), common.Hash(key))
	require.Equal(t, byte('R'), key[0])
	require.Equal(t, byte(0), key[22])

	_, err = EncodeBytes32String("this string is definitely too long")
	require.Error(t, err)

	var full [32]byte
	for i := range full {
		full[i] = 'a'
	}
	_, err = DecodeBytes32String(full)
	require.Error(t, err)
}

func TestStringToECDSAPrivateKey(t *testing.T) {
	// anvil account #0
	const key = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	addr, err := DeriveAddressFromECDSAPrivateKeyString(key)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), addr)

	addr2, err := DeriveAddressFromECDSAPrivateKeyString(key[2:])
	require.NoError(t, err)
	require.Equal(t, addr, addr2)

	_, err = StringToECDSAPrivateKey("")
	require.Error(t, err)
	_, err = StringToECDSAPrivateKey("0xzz")
	require.Error(t, err)
}

func TestMapFilter(t *testing.T) {
	in := []int{1, 2, 3, 4}
	doubled := Map(in, func(v int, idx uint64) int { return v * 2 })
	require.Equal(t, []int{2, 4, 6, 8}, doubled)
	require.Equal(t, []int{1, 2, 3, 4}, in)

	evens := Filter(in, func(v int) bool { return v%2 == 0 })
	require.Equal(t, []int{2, 4}, evens)
	require.Empty(t, Filter(in, func(v int) bool { return false }))
}
