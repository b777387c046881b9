package reservation

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// newCode returns a random access code of length characters drawn from
// chars. Collisions with existing codes are not checked.
func newCode(chars string, length int) (string, error) {
	alphabet := []rune(chars)
	code := make([]rune, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("generating access code: %w", err)
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}
