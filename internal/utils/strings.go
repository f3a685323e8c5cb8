// Package utils provides common utility functions.
package utils

// MaskSecret masks an API key or bearer token for logging. Short secrets are
// fully hidden; longer ones keep the first 6 and last 4 characters.
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return "(unset)"
	case len(secret) < 16:
		return "****"
	default:
		return secret[:6] + "..." + secret[len(secret)-4:]
	}
}
