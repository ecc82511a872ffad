package chunker

import (
	"strings"
	"unicode/utf8"

	"ragreader/internal/domain"
)

// ParagraphChunker treats a blank line as a paragraph boundary. A page
// boundary is not a break, so a paragraph that runs over a page is kept whole
// unless a blank line intervenes.
type ParagraphChunker struct{}

func NewParagraphChunker() *ParagraphChunker { return &ParagraphChunker{} }

func (c *ParagraphChunker) Name() string { return "paragraph" }

// Segment never fails; the error return satisfies domain.Chunker.
func (c *ParagraphChunker) Segment(pages []string) ([]domain.Passage, error) {
	var passages []domain.Passage
	var buf []string
	flush := func() {
		if len(buf) == 0 {
			return
		}
		passages = append(passages, strings.Join(buf, " "))
		buf = buf[:0]
	}
	for _, page := range pages {
		for _, line := range splitLines(page) {
			line = strings.TrimSpace(line)
			if line == "" {
				flush()
				continue
			}
			buf = append(buf, line)
		}
	}
	flush()
	return passages, nil
}

// splitLines splits on every Unicode line terminator, treating "\r\n" as one.
// A trailing terminator does not produce an extra empty line, but an empty
// page is one blank line.
func splitLines(text string) []string {
	if text == "" {
		return []string{""}
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isLineBreak(r) {
			i += size
			continue
		}
		lines = append(lines, text[start:i])
		i += size
		if r == '\r' && i < len(text) && text[i] == '\n' {
			i++
		}
		start = i
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
		return true
	}
	return false
}
