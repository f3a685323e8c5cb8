// Package tts - chunk.go splits text for the length-limited tertiary backend.
package tts

import (
	"regexp"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// SplitText cuts input into chunks of at most maxChars runes. Whitespace is
// collapsed; sentences (ending in . ! ? ; :) are merged greedily and sentences
// longer than maxChars are hard-sliced.
func SplitText(input string, maxChars int) []string {
	text := strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
	if text == "" {
		return nil
	}
	if maxChars <= 0 || runeLen(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	current := ""
	for _, sentence := range sentences(text) {
		part := strings.TrimSpace(sentence)
		if part == "" {
			continue
		}
		if current != "" {
			if merged := current + " " + part; runeLen(merged) <= maxChars {
				current = merged
				continue
			}
			chunks = append(chunks, current)
			current = ""
		}
		if runeLen(part) <= maxChars {
			current = part
			continue
		}
		chunks = append(chunks, slice(part, maxChars)...)
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// sentences splits text at spaces that follow sentence punctuation.
// text has already had its whitespace collapsed to single spaces.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == ' ' && strings.IndexByte(".!?;:", text[i-1]) >= 0 {
			out = append(out, text[start:i])
			start = i + 1
		}
	}
	return append(out, text[start:])
}

func slice(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		out = append(out, string(runes[i:end]))
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
