package transactionSigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/config"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/util"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// DefaultReceiptTimeout bounds sending a transaction and waiting for its receipt
const DefaultReceiptTimeout = 5 * time.Minute

// PrivateKeySigner implements ITransactionSigner with a local secp256k1 key
type PrivateKeySigner struct {
	ethClient      IEthClient
	logger         *zap.Logger
	chainID        *big.Int
	privateKey     *ecdsa.PrivateKey
	fromAddress    common.Address
	receiptTimeout time.Duration
}

// NewPrivateKeySigner creates a signer for the hex encoded private key
func NewPrivateKeySigner(privateKey string, ethClient IEthClient, logger *zap.Logger) (*PrivateKeySigner, error) {
	key, err := util.StringToECDSAPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	fromAddress, err := util.DeriveAddressFromECDSAPrivateKey(key)
	if err != nil {
		return nil, err
	}

	// Get chain ID during initialization
	chainID, err := ethClient.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	return &PrivateKeySigner{
		ethClient:      ethClient,
		logger:         logger,
		chainID:        chainID,
		privateKey:     key,
		fromAddress:    fromAddress,
		receiptTimeout: DefaultReceiptTimeout,
	}, nil
}

// GetTransactOpts returns keyed transaction options that build but do not send transactions
func (pks *PrivateKeySigner) GetTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(pks.privateKey, pks.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.NoSend = true
	return opts, nil
}

func (pks *PrivateKeySigner) feeParams(ctx context.Context) (gasTipCap *big.Int, maxFeePerGas *big.Int, baseFee *big.Int, err error) {
	var fallbackGasTipCap *big.Int
	var baseFeeMultiplier int64

	if config.IsEthereum(config.ChainId(pks.chainID.Uint64())) {
		fallbackGasTipCap = big.NewInt(1500000000) // 1.5 gwei
		baseFeeMultiplier = 3
	} else {
		fallbackGasTipCap = big.NewInt(1000000) // 0.001 gwei
		baseFeeMultiplier = 2
	}

	gasTipCap, err = pks.ethClient.SuggestGasTipCap(ctx)
	if err != nil {
		// If the backend does not support eth_maxPriorityFeePerGas, fallback to using the default constant.
		pks.logger.Sugar().Warnw("SignAndSendTransaction: cannot get gasTipCap, using fallback",
			zap.Error(err),
		)
		gasTipCap = fallbackGasTipCap
	}

	header, err := pks.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get latest block header: %w", err)
	}
	baseFee = header.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}

	maxFeePerGas = new(big.Int).Add(
		new(big.Int).Mul(baseFee, big.NewInt(baseFeeMultiplier)),
		gasTipCap,
	)
	return gasTipCap, maxFeePerGas, baseFee, nil
}

// SignAndSendTransaction signs a transaction and sends it to the network
func (pks *PrivateKeySigner) SignAndSendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx.To() == nil {
		return nil, fmt.Errorf("contract creation is not supported")
	}

	gasTipCap, maxFeePerGas, baseFee, err := pks.feeParams(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit, err := pks.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:      pks.fromAddress,
		To:        tx.To(),
		GasTipCap: gasTipCap,
		GasFeeCap: maxFeePerGas,
		Value:     tx.Value(),
		Data:      tx.Data(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gasLimitWithBuffer := addGasBuffer(gasLimit)

	// Always fetch from the network since the incoming tx.Nonce() may be 0
	nonce, err := pks.ethClient.PendingNonceAt(ctx, pks.fromAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   pks.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: maxFeePerGas,
		Gas:       gasLimitWithBuffer,
		To:        tx.To(),
		Value:     tx.Value(),
		Data:      tx.Data(),
	})

	pks.logger.Info("SignAndSendTransaction: sending transaction",
		zap.String("to", tx.To().Hex()),
		zap.String("maxPriorityFeePerGas", gasTipCap.String()),
		zap.String("maxFeePerGas", maxFeePerGas.String()),
		zap.String("baseFee", baseFee.String()),
		zap.Uint64("gasLimit", gasLimitWithBuffer),
		zap.Uint64("nonce", nonce),
	)

	signedTx, err := types.SignTx(unsigned, types.LatestSignerForChainID(pks.chainID), pks.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	// the caller going away must not abandon a transaction the network may already hold
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pks.receiptTimeout)
	defer cancel()

	if err := pks.ethClient.SendTransaction(sendCtx, signedTx); err != nil {
		if sendCtx.Err() != nil {
			return nil, &PendingTransactionError{TxHash: signedTx.Hash(), Err: err}
		}
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	pks.logger.Info("SignAndSendTransaction: transaction sent",
		zap.String("txHash", signedTx.Hash().Hex()),
	)

	receipt, err := bind.WaitMined(sendCtx, pks.ethClient, signedTx)
	if err != nil {
		pks.logger.Warn("SignAndSendTransaction: receipt unavailable",
			zap.String("txHash", signedTx.Hash().Hex()),
			zap.Error(err),
		)
		return nil, &PendingTransactionError{TxHash: signedTx.Hash(), Err: err}
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		pks.logger.Error("SignAndSendTransaction: transaction failed",
			zap.String("txHash", receipt.TxHash.Hex()),
			zap.Uint64("status", receipt.Status),
			zap.Uint64("gasUsed", receipt.GasUsed),
		)
		return nil, fmt.Errorf("transaction failed with status %d", receipt.Status)
	}

	pks.logger.Info("SignAndSendTransaction: transaction succeeded",
		zap.String("txHash", receipt.TxHash.Hex()),
		zap.Uint64("gasUsed", receipt.GasUsed),
	)

	return receipt, nil
}

// GetFromAddress returns the address that will be used for signing
func (pks *PrivateKeySigner) GetFromAddress() common.Address {
	return pks.fromAddress
}

// EstimateGasPriceAndLimit estimates the fee cap and buffered gas limit for a transaction
func (pks *PrivateKeySigner) EstimateGasPriceAndLimit(ctx context.Context, tx *types.Transaction) (*big.Int, uint64, error) {
	gasTipCap, maxFeePerGas, _, err := pks.feeParams(ctx)
	if err != nil {
		return nil, 0, err
	}

	gasLimit, err := pks.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:      pks.fromAddress,
		To:        tx.To(),
		GasTipCap: gasTipCap,
		GasFeeCap: maxFeePerGas,
		Value:     tx.Value(),
		Data:      tx.Data(),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return maxFeePerGas, addGasBuffer(gasLimit), nil
}
