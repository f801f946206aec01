package chain

import (
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const NearNominationExp = 24

var ErrAmountOverflow = errors.New("amount does not fit in u128")

// ParseAmount parses a decimal integer amount (yoctoNEAR or token base units).
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", s)
	}
	return v, nil
}

// ParseU128 parses an amount bound for a u128 field. Empty input is zero.
func ParseU128(s string) (*uint256.Int, error) {
	v, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	if v.BitLen() > 128 {
		return nil, errors.Wrapf(ErrAmountOverflow, "amount %s", strings.TrimSpace(s))
	}
	return v, nil
}

func MustParseAmount(s string) *uint256.Int {
	v, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatAmount renders amount with the given number of decimals, trimming
// trailing zeros of the fraction.
func FormatAmount(amount *uint256.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	digits := amount.Dec()
	if decimals <= 0 {
		return digits
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func FormatNear(amount *uint256.Int) string {
	return FormatAmount(amount, NearNominationExp)
}

// SaturatingSub returns a-b, or zero when b > a.
func SaturatingSub(a, b *uint256.Int) *uint256.Int {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return new(uint256.Int)
	}
	return out
}

func Max(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}
