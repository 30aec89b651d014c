package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitIntoMessages_Short(t *testing.T) {
	got := SplitIntoMessages("  Hey there!   How's training going?  ", 3)
	if len(got) != 1 || got[0] != "Hey there! How's training going?" {
		t.Errorf("SplitIntoMessages short = %q", got)
	}
}

func TestSplitIntoMessages_Empty(t *testing.T) {
	if got := SplitIntoMessages("   ", 3); got != nil {
		t.Errorf("SplitIntoMessages empty = %q, want nil", got)
	}
}

func TestSplitIntoMessages_Long(t *testing.T) {
	sentence := "This is a fairly ordinary sentence about training and eating plants every day."
	text := strings.Repeat(sentence+" ", 6)

	for _, maxChunks := range []int{1, 2, 3} {
		got := SplitIntoMessages(text, maxChunks)
		if len(got) == 0 || len(got) > maxChunks {
			t.Fatalf("maxChunks=%d: got %d chunks", maxChunks, len(got))
		}
		if joined := strings.Join(got, " "); joined != strings.TrimSpace(text) {
			t.Errorf("maxChunks=%d: chunks do not reassemble the text:\n%q", maxChunks, joined)
		}
		for _, c := range got {
			if !strings.HasSuffix(c, ".") {
				t.Errorf("maxChunks=%d: chunk %q cuts a sentence", maxChunks, c)
			}
		}
	}

	got := SplitIntoMessages(text, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks for %d runes, got %d", utf8.RuneCountInString(text), len(got))
	}
}

func TestSplitIntoMessages_SingleLongSentence(t *testing.T) {
	text := strings.Repeat("word ", 60)
	got := SplitIntoMessages(text, 3)
	if len(got) != 1 {
		t.Errorf("a sentence without terminators must not be split, got %d chunks", len(got))
	}
}
