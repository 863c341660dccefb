// Package util provides identifier and environment helpers shared across LoopPipe components.
package util

import (
	"math/rand/v2"
	"strings"
)

const (
	hexChars          = "0123456789abcdef"
	alphaNumericChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// ShortCodeLength is the length of smart-link short codes.
	ShortCodeLength = 8
)

// GenerateRandomID returns "{prefix}{hex}" with hexLength random hex characters.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex returns a random lowercase hexadecimal string. Not for secrets.
func GenerateRandomHex(length int) string {
	return randomFrom(hexChars, length)
}

// GenerateRandomAlphaNumeric returns a random base62 string of the given length.
func GenerateRandomAlphaNumeric(length int) string {
	return randomFrom(alphaNumericChars, length)
}

// GenerateShortCode returns a base62 smart-link short code.
func GenerateShortCode() string {
	return GenerateRandomAlphaNumeric(ShortCodeLength)
}

// GenerateOutboxID returns an identifier for an outbound delivery record.
func GenerateOutboxID() string {
	return GenerateRandomID("ob_", 24)
}

// IsShortCode reports whether s has the shape produced by GenerateShortCode.
func IsShortCode(s string) bool {
	if len(s) != ShortCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphaNumericChars, s[i]) < 0 {
			return false
		}
	}
	return true
}

func randomFrom(alphabet string, length int) string {
	if length <= 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return builder.String()
}
