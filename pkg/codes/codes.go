package codes

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// PickupDigits is the length of a booking pickup code.
	PickupDigits = 4
	// ExchangeDigits is the length of an exchange validation code.
	ExchangeDigits = 6
)

// Generator produces a numeric code of the given number of digits.
type Generator func(digits int) (string, error)

// Random returns a uniformly distributed numeric code, zero padded.
func Random(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("invalid code length %d", digits)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to read random code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

// Fixed returns a generator that always yields code. Used by tests and fixtures.
func Fixed(code string) Generator {
	return func(int) (string, error) {
		return code, nil
	}
}
