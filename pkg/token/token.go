package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance
var ErrInsufficientBalance = errors.New("transfer amount exceeds balance")

// ErrTransferPending is returned when a transfer was submitted but its outcome is unknown.
// Funds may have moved, so callers must not treat it as a failed transfer.
var ErrTransferPending = errors.New("transfer submitted, outcome unknown")

// IsTransferPending reports whether err leaves a transfer's outcome unknown
func IsTransferPending(err error) bool {
	return errors.Is(err, ErrTransferPending)
}

// IToken is the fungible token holding the distributable funds
type IToken interface {
	Symbol() string
	Decimals() uint8

	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)

	// Transfer moves amount base units from from to to.
	// Zero amounts are valid transfers. Any error other than ErrTransferPending means nothing moved.
	Transfer(ctx context.Context, from common.Address, to common.Address, amount *big.Int) error
}

// ParseUnits converts a decimal string such as "100.5" into base units
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(value, "-") {
		return nil, fmt.Errorf("negative amount %q", value)
	}

	whole, frac, hasFrac := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && frac == "" {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("fractional component of %q exceeds %d decimals", value, decimals)
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok || strings.ContainsAny(digits, "+-") {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return out, nil
}

// MustParseUnits is ParseUnits for constants
func MustParseUnits(value string, decimals uint8) *big.Int {
	out, err := ParseUnits(value, decimals)
	if err != nil {
		panic(err)
	}
	return out
}

// FormatUnits renders base units as a decimal string without trailing zeros
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(amount)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, unit, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
	return sign + whole.String() + "." + strings.TrimRight(fracStr, "0")
}
