// Package asset handles collateral asset identifiers and the ordered registry
// of supported collateral types.
package asset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ID is a collateral asset symbol, e.g. "WETH" or "WBTC".
type ID string

// idRegex matches: an upper-case letter followed by 1-11 letters or digits.
var idRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,11}$`)

var (
	ErrInvalidID   = errors.New("asset: invalid asset identifier")
	ErrDuplicate   = errors.New("asset: asset already registered")
	ErrNotFound    = errors.New("asset: asset not registered")
	ErrNoAssets    = errors.New("asset: at least one asset required")
	ErrLenMismatch = errors.New("asset: asset and price feed lists differ in length")
)

// ParseID normalizes and validates an asset symbol. Surrounding whitespace is
// trimmed and the symbol is upper-cased before matching.
func ParseID(s string) (ID, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !idRegex.MatchString(sym) {
		return "", fmt.Errorf("%w: %q (expected 2-12 upper-case letters or digits)", ErrInvalidID, s)
	}
	return ID(sym), nil
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }
