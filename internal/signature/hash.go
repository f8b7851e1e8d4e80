// Package signature builds the one-way digests payment gateways require on
// signed requests.
package signature

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SHA256 returns the lowercase hex SHA-256 digest of the concatenated parts.
func SHA256(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// SHA512 returns the lowercase hex SHA-512 digest of the concatenated parts.
func SHA512(parts ...string) string {
	sum := sha512.Sum512([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// Pairs renders key/value pairs as "k1=v1&k2=v2" in the given order.
func Pairs(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(kv[i+1])
	}
	return b.String()
}
