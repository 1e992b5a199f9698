package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("line one\n", 10)
	got := splitText(text, 50)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if len([]rune(chunk)) > 50 {
			t.Fatalf("chunk %d over limit: %d runes", i, len([]rune(chunk)))
		}
		if strings.HasSuffix(chunk, "\n") {
			t.Fatalf("chunk %d keeps trailing newline", i)
		}
	}
	joined := strings.Join(got, "\n") + "\n"
	if strings.ReplaceAll(joined, "\n", "") != strings.ReplaceAll(text, "\n", "") {
		t.Fatalf("content lost in split")
	}
}

func TestSplitTextHardBreakWithoutNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 95)
	got := splitText(text, 40)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	var total int
	for _, chunk := range got {
		total += len(chunk)
	}
	if total != 95 {
		t.Fatalf("content length = %d, want 95", total)
	}
}
