package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const defaultSecretSize = 32

// NewOTP returns a uniformly random decimal string of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewSecret returns size random bytes, base64url encoded without padding.
func NewSecret(size int) (string, error) {
	if size <= 0 {
		size = defaultSecretSize
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashSecret returns the SHA-256 digest of an encoded secret, for storage
// where only equality checks are needed.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}
