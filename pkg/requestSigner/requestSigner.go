package requestSigner

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrHashMismatch     = errors.New("message hash does not match payload")
	ErrInvalidSignature = errors.New("invalid signature")
)

type SignedMessage struct {
	Payload   []byte   `json:"payload"`   // Raw request bytes (JSON)
	Hash      [32]byte `json:"hash"`      // keccak256(payload)
	Signature []byte   `json:"signature"` // secp256k1 signature over the EIP-191 text hash of Hash
}

type IRequestSigner interface {
	CreateAuthenticatedMessage(data []byte) (*SignedMessage, error)
	SignMessage(data []byte) ([]byte, error) // Sign raw message bytes, returns signature
	Address() common.Address
}

// DigestFor returns the digest that is actually signed for data
func DigestFor(data []byte) []byte {
	hash := crypto.Keccak256Hash(data)
	return accounts.TextHash(hash[:])
}

// RecoverSigner checks the message hash and returns the address that signed it
func RecoverSigner(msg *SignedMessage) (common.Address, error) {
	if msg == nil {
		return common.Address{}, fmt.Errorf("%w: empty message", ErrInvalidSignature)
	}
	if crypto.Keccak256Hash(msg.Payload) != common.Hash(msg.Hash) {
		return common.Address{}, ErrHashMismatch
	}
	if len(msg.Signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(msg.Signature))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, msg.Signature)
	// wallets produce V in {27, 28}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg.Hash[:]), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
