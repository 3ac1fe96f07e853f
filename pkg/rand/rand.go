package rand

import (
	"crypto/rand"
	"math/big"

	"github.com/sirupsen/logrus"
)

const (
	tokenLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// VerificationToken returns an opaque proof-of-control token. Tokens are
// never reused across domains; uniqueness is enforced by the registry.
func VerificationToken(n int) string {
	return "lnkr-verify-" + String(n)
}

// String returns n random alphanumeric characters using crypto/rand.
func String(n int) string {
	max := big.NewInt(int64(len(tokenLetters)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			logrus.Fatal("Unable to generate random bytes")
		}
		b[i] = tokenLetters[idx.Int64()]
	}
	return string(b)
}
