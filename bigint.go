package model

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAmount converts a wei amount given either as a decimal string or as a
// 0x-prefixed hex quantity to a *big.Int.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("input cannot be nil or empty")
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hexutil.DecodeBig(s)
	}

	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("amount is not a decimal number")
	}
	if amount.Sign() < 0 {
		return nil, errors.New("amount cannot be a negative amount")
	}

	return amount, nil
}

// FormatAmount renders an amount as a decimal string. A nil amount renders as
// zero.
func FormatAmount(i *big.Int) string {
	if i == nil {
		return "0"
	}
	return i.Text(10)
}
