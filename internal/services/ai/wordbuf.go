// File: internal/services/ai/wordbuf.go
package ai

import (
	"strings"
	"unicode"
)

// wordBuffer re-chunks a token stream on whitespace boundaries. Model deltas
// split words mid-token; fragments handed to the session must be whole words
// because downstream accumulation joins them with single spaces.
type wordBuffer struct {
	pending string
}

// add appends a delta and returns the complete words it released, joined
// with single spaces, or "" when no word boundary was crossed yet.
func (b *wordBuffer) add(delta string) string {
	if delta == "" {
		return ""
	}
	b.pending += delta

	trailing := unicode.IsSpace(rune(b.pending[len(b.pending)-1]))
	words := strings.Fields(b.pending)
	if len(words) == 0 {
		return ""
	}
	if trailing {
		b.pending = ""
		return strings.Join(words, " ")
	}
	b.pending = words[len(words)-1]
	if len(words) == 1 {
		return ""
	}
	return strings.Join(words[:len(words)-1], " ")
}

// flush returns whatever partial word remains.
func (b *wordBuffer) flush() string {
	out := strings.TrimSpace(b.pending)
	b.pending = ""
	return out
}
