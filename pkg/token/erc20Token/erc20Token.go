package erc20Token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/transactionSigner"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const eventSource = "token"

// erc20ABI is the subset of the ERC20 ABI used by the adapter
const erc20ABI = `[
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

// ERC20Token adapts an on-chain ERC20 contract to token.IToken.
// Transfers are sent from the signer's address, which is the custody address.
type ERC20Token struct {
	mu       sync.Mutex
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	signer   transactionSigner.ITransactionSigner
	symbol   string
	decimals uint8
	sink     events.ISink
	logger   *zap.Logger
}

var _ token.IToken = (*ERC20Token)(nil)

// NewERC20Token binds the contract at address and reads its symbol and decimals
func NewERC20Token(
	ctx context.Context,
	address common.Address,
	caller bind.ContractCaller,
	signer transactionSigner.ITransactionSigner,
	sink events.ISink,
	logger *zap.Logger,
) (*ERC20Token, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	if sink == nil {
		sink = events.Discard{}
	}

	t := &ERC20Token{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, caller, nil, nil),
		signer:   signer,
		sink:     sink,
		logger:   logger,
	}

	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "symbol"); err != nil {
		return nil, fmt.Errorf("failed to read token symbol: %w", err)
	}
	t.symbol = *abi.ConvertType(out[0], new(string)).(*string)

	out = nil
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return nil, fmt.Errorf("failed to read token decimals: %w", err)
	}
	t.decimals = *abi.ConvertType(out[0], new(uint8)).(*uint8)

	logger.Sugar().Infow("ERC20 token bound",
		"address", address.Hex(),
		"symbol", t.symbol,
		"decimals", t.decimals,
		"custody", signer.GetFromAddress().Hex(),
	)
	return t, nil
}

func (t *ERC20Token) Symbol() string  { return t.symbol }
func (t *ERC20Token) Decimals() uint8 { return t.decimals }

// Address returns the token contract address
func (t *ERC20Token) Address() common.Address { return t.address }

func (t *ERC20Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account); err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", account.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Transfer sends an ERC20 transfer from the custody address and waits for it to be mined
func (t *ERC20Token) Transfer(ctx context.Context, from common.Address, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount %v", amount)
	}
	if from != t.signer.GetFromAddress() {
		return fmt.Errorf("cannot transfer from %s: signer is %s", from.Hex(), t.signer.GetFromAddress().Hex())
	}

	// one transfer in flight at a time so the balance check and the nonce stay consistent
	t.mu.Lock()
	defer t.mu.Unlock()

	balance, err := t.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s, amount %s", token.ErrInsufficientBalance, balance, amount)
	}

	data, err := t.abi.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("failed to pack transfer: %w", err)
	}

	tx := ethereumTypes.NewTx(&ethereumTypes.DynamicFeeTx{
		To:   &t.address,
		Data: data,
	})

	t.logger.Sugar().Infow("Sending ERC20 transfer",
		"token", t.address.Hex(),
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", amount.String(),
	)

	receipt, err := t.signer.SignAndSendTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, transactionSigner.ErrTransactionPending) {
			t.logger.Sugar().Warnw("ERC20 transfer outcome unknown",
				"token", t.address.Hex(),
				"to", to.Hex(),
				"amount", amount.String(),
				"error", err,
			)
			return fmt.Errorf("%w: %w", token.ErrTransferPending, err)
		}
		return fmt.Errorf("transfer transaction failed: %w", err)
	}

	t.logger.Sugar().Infow("ERC20 transfer mined",
		"tx_hash", receipt.TxHash.Hex(),
		"gas_used", receipt.GasUsed,
	)
	t.sink.Emit(eventSource, events.Transfer{From: from, To: to, Value: new(big.Int).Set(amount)})
	return nil
}
