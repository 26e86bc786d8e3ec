// Package util provides utility functions for the TaskBot application.
package util

import (
	"math/rand"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; IDs are identifiers, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}

	return builder.String()
}

// GenerateSubscriberID generates a unique subscriber ID with "s_" prefix.
func GenerateSubscriberID() string {
	return GenerateRandomID("s_", 32)
}

// GenerateTaskID generates a unique task ID with "t_" prefix.
func GenerateTaskID() string {
	return GenerateRandomID("t_", 32)
}

// GenerateNotificationID generates a unique notification ID with "n_" prefix.
func GenerateNotificationID() string {
	return GenerateRandomID("n_", 32)
}
