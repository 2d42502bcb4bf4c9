package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var maxSalt = new(big.Int).Lsh(big.NewInt(1), 256)

// SaltSource produces order salts. Production code uses RandomSalt; tests
// inject a fixed source to make order signatures reproducible.
type SaltSource interface {
	Salt() (*big.Int, error)
}

// RandomSalt draws uniformly random 256-bit salts from crypto/rand.
type RandomSalt struct{}

func (RandomSalt) Salt() (*big.Int, error) {
	n, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return nil, fmt.Errorf("crypto/salt: %w", err)
	}
	return n, nil
}

// FixedSalt always returns the same value.
type FixedSalt int64

func (f FixedSalt) Salt() (*big.Int, error) {
	return big.NewInt(int64(f)), nil
}
