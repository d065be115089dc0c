package id

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strings"
	"time"
)

// NewID32 returns exactly 32 hex characters (no separators/prefixes).
func NewID32() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewBatchNumber returns a human batch number such as PB-20250905-3FA9C1.
func NewBatchNumber(effective time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return "PB-" + effective.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(b))
}

// NewDigits returns n random decimal digits, used for one-time codes.
func NewDigits(n int) string {
	var sb strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			d = big.NewInt(0)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String()
}
