package transactionSigner

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ErrTransactionPending marks a transaction that was sent but whose receipt is unknown.
// It may still be mined.
var ErrTransactionPending = errors.New("transaction sent, receipt unavailable")

// PendingTransactionError carries the hash of a sent transaction with an unknown outcome
type PendingTransactionError struct {
	TxHash common.Hash
	Err    error
}

func (e *PendingTransactionError) Error() string {
	return fmt.Sprintf("transaction %s pending: %v", e.TxHash.Hex(), e.Err)
}

func (e *PendingTransactionError) Unwrap() []error {
	return []error{ErrTransactionPending, e.Err}
}

// ITransactionSigner provides methods for signing Ethereum transactions
type ITransactionSigner interface {
	// GetTransactOpts returns transaction options for creating unsigned transactions
	GetTransactOpts(ctx context.Context) (*bind.TransactOpts, error)

	// SignAndSendTransaction signs a transaction, sends it to the network and waits for the receipt.
	// Only the destination, value and calldata of tx are used. Once the transaction may have reached
	// the network, failures are returned as *PendingTransactionError.
	SignAndSendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

	// GetFromAddress returns the address that will be used for signing
	GetFromAddress() common.Address

	// EstimateGasPriceAndLimit estimates gas price and limit for a transaction
	EstimateGasPriceAndLimit(ctx context.Context, tx *types.Transaction) (*big.Int, uint64, error)
}

// IEthClient is the subset of *ethclient.Client used for signing and sending
type IEthClient interface {
	bind.DeployBackend

	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type SignerConfig struct {
	PrivateKey string `json:"privateKey" yaml:"privateKey"`
}

func NewTransactionSigner(cfg *SignerConfig, ethClient IEthClient, logger *zap.Logger) (ITransactionSigner, error) {
	if cfg == nil || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	return NewPrivateKeySigner(cfg.PrivateKey, ethClient, logger)
}

// addGasBuffer adds 20% to an estimated gas limit
func addGasBuffer(gasLimit uint64) uint64 {
	return gasLimit + gasLimit/5
}
