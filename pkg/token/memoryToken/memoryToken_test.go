package memoryToken

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xA11CE")
	bob   = common.HexToAddress("0xB0B")
)

func TestMemoryToken(t *testing.T) {
	ctx := context.Background()
	log := events.NewLog()
	tk := NewMemoryToken("RWD", 18, log)

	assert.Equal(t, "RWD", tk.Symbol())
	assert.Equal(t, uint8(18), tk.Decimals())

	require.NoError(t, tk.Mint(alice, big.NewInt(100)))
	require.NoError(t, tk.Transfer(ctx, alice, bob, big.NewInt(30)))
	require.NoError(t, tk.Transfer(ctx, alice, bob, big.NewInt(0)))

	balance, err := tk.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "70", balance.String())

	balance, err = tk.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "30", balance.String())

	err = tk.Transfer(ctx, bob, alice, big.NewInt(31))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "transfer amount exceeds balance")

	require.Error(t, tk.Transfer(ctx, alice, bob, big.NewInt(-1)))
	require.Error(t, tk.Mint(alice, nil))

	assert.Equal(t, "100", tk.TotalSupply().String())
	assert.Equal(t, []events.Event{
		events.Transfer{From: common.Address{}, To: alice, Value: big.NewInt(100)},
		events.Transfer{From: alice, To: bob, Value: big.NewInt(30)},
		events.Transfer{From: alice, To: bob, Value: big.NewInt(0)},
	}, log.Events(events.NameTransfer))
}

func TestMemoryToken_ConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	tk := NewMemoryToken("RWD", 18, nil)
	require.NoError(t, tk.Mint(alice, big.NewInt(50)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tk.Transfer(ctx, alice, bob, big.NewInt(1)) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, succeeded)
	balance, _ := tk.BalanceOf(ctx, alice)
	assert.Equal(t, 0, balance.Sign())
}
