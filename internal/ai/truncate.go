package ai

import "strings"

// LastSentence trims generated text to its last complete sentence: everything
// up to and including the final period. Text containing no period is returned
// unchanged.
func LastSentence(s string) string {
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return s
	}
	return s[:idx+1]
}
