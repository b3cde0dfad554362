package promptgen

import "unicode/utf8"

// EstimateTokens approximates the token count of a prompt. Four characters
// per token is close enough for budget accounting; exact counts belong to
// the backend.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
