package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"ragreader/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
	space             *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	// An overlap as wide as the window would never advance.
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
		space:             regexp.MustCompile(`\s+`),
	}
}

// Name includes the window shape, since it changes the passages a document
// identity maps to.
func (c *SentenceChunker) Name() string {
	return fmt.Sprintf("sentence-%d-%d", c.sentencesPerChunk, c.overlapSentences)
}

func (c *SentenceChunker) Segment(pages []string) ([]domain.Passage, error) {
	content := strings.Join(pages, "\n")
	var sentences []string
	end := 0
	for _, loc := range c.splitter.FindAllStringIndex(content, -1) {
		sentences = append(sentences, content[loc[0]:loc[1]])
		end = loc[1]
	}
	// Text after the last terminator is a sentence too.
	if tail := strings.TrimSpace(content[end:]); tail != "" {
		sentences = append(sentences, tail)
	}
	cleaned := sentences[:0]
	for _, s := range sentences {
		s = strings.TrimSpace(c.space.ReplaceAllString(s, " "))
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	sentences = cleaned
	if len(sentences) == 0 {
		return nil, nil
	}

	var passages []domain.Passage
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		passages = append(passages, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return passages, nil
}
