package memoryToken

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

const eventSource = "token"

// MemoryToken is an in-process fungible token ledger
type MemoryToken struct {
	mu          sync.RWMutex
	symbol      string
	decimals    uint8
	balances    map[common.Address]*big.Int
	totalSupply *big.Int
	sink        events.ISink
}

var _ token.IToken = (*MemoryToken)(nil)

func NewMemoryToken(symbol string, decimals uint8, sink events.ISink) *MemoryToken {
	if sink == nil {
		sink = events.Discard{}
	}
	return &MemoryToken{
		symbol:      symbol,
		decimals:    decimals,
		balances:    make(map[common.Address]*big.Int),
		totalSupply: new(big.Int),
		sink:        sink,
	}
}

func (m *MemoryToken) Symbol() string  { return m.symbol }
func (m *MemoryToken) Decimals() uint8 { return m.decimals }

func (m *MemoryToken) TotalSupply() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.totalSupply)
}

func (m *MemoryToken) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return types.CopyBig(m.balances[account]), nil
}

// Mint creates amount new base units owned by to
func (m *MemoryToken) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid mint amount %v", amount)
	}

	m.mu.Lock()
	m.balances[to] = new(big.Int).Add(types.CopyBig(m.balances[to]), amount)
	m.totalSupply.Add(m.totalSupply, amount)
	m.mu.Unlock()

	m.sink.Emit(eventSource, events.Transfer{From: common.Address{}, To: to, Value: new(big.Int).Set(amount)})
	return nil
}

func (m *MemoryToken) Transfer(_ context.Context, from common.Address, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount %v", amount)
	}

	m.mu.Lock()
	balance := types.CopyBig(m.balances[from])
	if balance.Cmp(amount) < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: balance %s, amount %s", token.ErrInsufficientBalance, balance, amount)
	}
	m.balances[from] = balance.Sub(balance, amount)
	m.balances[to] = new(big.Int).Add(types.CopyBig(m.balances[to]), amount)
	m.mu.Unlock()

	m.sink.Emit(eventSource, events.Transfer{From: from, To: to, Value: new(big.Int).Set(amount)})
	return nil
}
