package contracts

import (
	"fmt"
	"math/big"
)

// Amount is a signed 128-bit monetary value. It marshals to JSON as a
// decimal string so callers and storage backends round-trip it exactly.
type Amount struct {
	v big.Int
}

// maxInt128 = 2^127 - 1, the largest representable Amount magnitude.
var maxInt128 = func() *big.Int {
	n := new(big.Int).Lsh(big.NewInt(1), 127)
	return n.Sub(n, big.NewInt(1))
}()

// MaxAmount is the largest amount any creation path accepts: half the
// representable maximum, leaving headroom for downstream arithmetic.
var MaxAmount = new(big.Int).Rsh(maxInt128, 1)

// NewAmount builds an Amount from an int64.
func NewAmount(v int64) Amount {
	var a Amount
	a.v.SetInt64(v)
	return a
}

// ParseAmount parses a base-10 amount string.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if _, ok := a.v.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("malformed amount %q", s)
	}
	if a.v.CmpAbs(maxInt128) > 0 {
		return Amount{}, fmt.Errorf("amount %q exceeds 128-bit range", s)
	}
	return a, nil
}

// MulPow10 returns a * 10^exp. Used by tests and callers that express
// amounts in whole units.
func (a Amount) MulPow10(exp uint) Amount {
	var out Amount
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	out.v.Mul(&a.v, scale)
	return out
}

// Valid reports whether a is accepted by the creation paths: strictly
// positive and no greater than MaxAmount.
func (a Amount) Valid() bool {
	return a.v.Sign() > 0 && a.v.Cmp(MaxAmount) <= 0
}

// Sign returns -1, 0, or +1 for negative, zero, positive amounts.
func (a Amount) Sign() int { return a.v.Sign() }

// Cmp compares a and b, returning -1, 0, or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// String renders the amount in base 10.
func (a Amount) String() string { return a.v.String() }

// Int64 returns the amount as an int64; the second result is false when
// the value does not fit.
func (a Amount) Int64() (int64, bool) {
	if !a.v.IsInt64() {
		return 0, false
	}
	return a.v.Int64(), true
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.String() + `"`), nil
}

// UnmarshalJSON decodes a decimal string (quotes optional, for
// compatibility with numeric encodings).
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
