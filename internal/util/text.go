package util

import (
	"strings"
	"unicode/utf8"
)

// SingleMessageLimit is the length (in runes) under which a reply is sent as one message.
const SingleMessageLimit = 150

// SplitIntoMessages breaks a reply into at most maxChunks messages along sentence
// boundaries so long replies read like several short DMs. Sentences are never cut.
func SplitIntoMessages(text string, maxChunks int) []string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}
	if maxChunks < 1 {
		maxChunks = 1
	}
	total := utf8.RuneCountInString(normalized)
	if total <= SingleMessageLimit || maxChunks == 1 {
		return []string{normalized}
	}

	n := (total + SingleMessageLimit - 1) / SingleMessageLimit
	if n > maxChunks {
		n = maxChunks
	}
	target := (total + n - 1) / n

	sentences := splitSentences(normalized)
	chunks := make([]string, 0, n)
	var current strings.Builder
	for _, s := range sentences {
		if current.Len() > 0 && len(chunks) < n-1 &&
			utf8.RuneCountInString(current.String())+1+utf8.RuneCountInString(s) > target {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences splits on '.', '!' or '?' followed by a space, keeping the terminator.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				out = append(out, text[start:i+1])
				start = i + 2
				i++
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
