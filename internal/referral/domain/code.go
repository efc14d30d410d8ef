package domain

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

var codePattern = regexp.MustCompile(`^[A-Z]{2,10}-[A-Z0-9]{6}$`)

// NewCode returns prefix followed by six random uppercase alphanumerics.
func NewCode(prefix string) (string, error) {
	var b strings.Builder
	b.Grow(len(prefix) + 1 + codeLength)
	b.WriteString(prefix)
	b.WriteByte('-')

	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
