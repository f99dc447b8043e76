package util

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func Map[A any, B any](coll []A, mapper func(i A, index uint64) B) []B {
	out := make([]B, len(coll))
	for i, item := range coll {
		out[i] = mapper(item, uint64(i))
	}
	return out
}

func Filter[A any](coll []A, criteria func(i A) bool) []A {
	out := make([]A, 0)
	for _, item := range coll {
		if criteria(item) {
			out = append(out, item)
		}
	}
	return out
}

// StringToECDSAPrivateKey parses a hex private key with or without the 0x prefix
func StringToECDSAPrivateKey(pk string) (*ecdsa.PrivateKey, error) {
	pk = strings.TrimPrefix(strings.TrimSpace(pk), "0x")
	if pk == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(pk)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

func DeriveAddressFromECDSAPrivateKey(pk *ecdsa.PrivateKey) (common.Address, error) {
	if pk == nil {
		return common.Address{}, fmt.Errorf("private key is nil")
	}
	return crypto.PubkeyToAddress(pk.PublicKey), nil
}

func DeriveAddressFromECDSAPrivateKeyString(pk string) (common.Address, error) {
	key, err := StringToECDSAPrivateKey(pk)
	if err != nil {
		return common.Address{}, err
	}
	return DeriveAddressFromECDSAPrivateKey(key)
}
