package core

import "regexp"

// Only extreme, self-harm or violence related phrasing is blocked. Ordinary
// anger and profanity are exactly what the translator exists to soften.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(kill|murder|suicide|self-harm|end.{0,10}life)\b`),
	regexp.MustCompile(`(?i)\b(want.{0,10}to.{0,10}die|gonna.{0,10}die)\b`),
}

// ShouldBlock reports whether text must be rejected before any model call.
func ShouldBlock(text string) bool {
	for _, p := range blockedPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
