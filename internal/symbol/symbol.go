// Package symbol handles normalization and validation of tradable asset
// symbols (e.g. BTC, AAPL, EURUSD).
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches plain uppercase tickers: 1-12 letters/digits.
// Examples: BTC, AAPL, EURUSD, BRK2
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,11}$`)

// ErrInvalidSymbol is returned when a symbol does not look like a ticker.
var ErrInvalidSymbol = errors.New("symbol: invalid symbol")

// Normalize uppercases and trims a user-supplied symbol and validates its
// shape. The returned symbol is the canonical form stored and quoted.
func Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q (expected 1-12 uppercase letters/digits)", ErrInvalidSymbol, raw)
	}
	return s, nil
}
