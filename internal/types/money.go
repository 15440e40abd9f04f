// README: Common money value object used for fares and nightly rates in tool results.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in minor units (cents) of Currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// ParseMoney reads a decimal amount such as "129" or "129.50" into minor units.
func ParseMoney(v string, currency string) (Money, error) {
	v = strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", v, err)
	}
	if f < 0 {
		return Money{}, fmt.Errorf("parse money %q: negative amount", v)
	}
	return Money{Amount: int64(f*100 + 0.5), Currency: currency}, nil
}

// Times multiplies the amount by n.
func (m Money) Times(n int) Money {
	return Money{Amount: m.Amount * int64(n), Currency: m.Currency}
}

func (m Money) String() string {
	symbol := m.Currency + " "
	if m.Currency == "USD" {
		symbol = "$"
	}
	if m.Amount%100 == 0 {
		return fmt.Sprintf("%s%d", symbol, m.Amount/100)
	}
	return fmt.Sprintf("%s%d.%02d", symbol, m.Amount/100, m.Amount%100)
}
