package models

import "strings"

// MaskIdentity hides the middle of an identity document, keeping the first four and last three characters
func MaskIdentity(identity string) string {
	if len(identity) <= 4 {
		return strings.Repeat("*", len(identity))
	}
	if len(identity) <= 7 {
		return identity[:4] + strings.Repeat("*", len(identity)-4)
	}
	return identity[:4] + strings.Repeat("*", len(identity)-7) + identity[len(identity)-3:]
}
