package utils

import (
	"strings"
	"testing"
)

func TestSplitTextShortInputSingleChunk(t *testing.T) {
	chunks := SplitText("short note", 100, 20)
	if len(chunks) != 1 || chunks[0] != "short note" {
		t.Errorf("expected single unchanged chunk, got %v", chunks)
	}
}

func TestSplitTextOverlapCarriesBoundaryContext(t *testing.T) {
	text := strings.Repeat("abcdefghij", 10) // 100 runes
	chunks := SplitText(text, 40, 10)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-10:]
		if !strings.HasPrefix(chunks[i], prevTail) {
			t.Errorf("chunk %d does not start with previous tail %q", i, prevTail)
		}
	}
	if !strings.HasSuffix(chunks[len(chunks)-1], "abcdefghij") {
		t.Errorf("last chunk lost the end of the input")
	}
}

func TestSplitTextOverlapAtLeastChunkSize(t *testing.T) {
	text := strings.Repeat("x", 50)
	chunks := SplitText(text, 10, 10)

	// Degenerate overlap falls back to disjoint windows instead of looping.
	if len(chunks) != 5 {
		t.Errorf("expected 5 disjoint chunks, got %d", len(chunks))
	}
}

func TestSplitTextMultibyteRunesStayIntact(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 20)
	for _, chunk := range SplitText(text, 30, 5) {
		if strings.ContainsRune(chunk, '�') {
			t.Errorf("chunk contains a broken rune: %q", chunk)
		}
	}
}
