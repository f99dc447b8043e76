package inMemoryRequestSigner

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/requestSigner"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

type InMemoryRequestSigner struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ requestSigner.IRequestSigner = (*InMemoryRequestSigner)(nil)

func NewInMemoryRequestSigner(privateKey string, logger *zap.Logger) (*InMemoryRequestSigner, error) {
	key, err := util.StringToECDSAPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}
	return NewInMemoryRequestSignerFromKey(key, logger), nil
}

func NewInMemoryRequestSignerFromKey(key *ecdsa.PrivateKey, logger *zap.Logger) *InMemoryRequestSigner {
	return &InMemoryRequestSigner{
		logger:     logger,
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *InMemoryRequestSigner) Address() common.Address {
	return s.address
}

// data is the raw message bytes to sign
func (s *InMemoryRequestSigner) SignMessage(data []byte) ([]byte, error) {
	sig, err := crypto.Sign(requestSigner.DigestFor(data), s.privateKey)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *InMemoryRequestSigner) CreateAuthenticatedMessage(data []byte) (*requestSigner.SignedMessage, error) {
	hash := crypto.Keccak256Hash(data)

	sigBytes, err := s.SignMessage(data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authenticated message: %w", err)
	}

	s.logger.Sugar().Debugw("Signed request", "signer", s.address.Hex(), "hash", hash.Hex())
	return &requestSigner.SignedMessage{
		Payload:   data,
		Signature: sigBytes,
		Hash:      hash,
	}, nil
}
