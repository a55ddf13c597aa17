package document

import (
	"regexp"
	"strings"
)

// SentenceChunker splits page-level slide text into sentence-based passages
// with overlap between neighbouring chunks.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	// The chunk window must advance by at least one sentence per step.
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// ChunkPages turns page-segmented slide text into slide passages. Sequence
// numbers increase across the whole deck, not per page.
func (c *SentenceChunker) ChunkPages(pages []string) []Passage {
	var passages []Passage
	seq := 0
	for _, page := range pages {
		sentences := c.splitter.FindAllString(page, -1)
		if len(sentences) == 0 {
			trimmed := strings.TrimSpace(page)
			if trimmed == "" {
				continue
			}
			sentences = []string{trimmed}
		}
		for i := range sentences {
			sentences[i] = strings.TrimSpace(sentences[i])
		}
		i := 0
		for i < len(sentences) {
			end := i + c.sentencesPerChunk
			if end > len(sentences) {
				end = len(sentences)
			}
			passages = append(passages, Passage{
				Text:     strings.Join(sentences[i:end], " "),
				Kind:     SourceSlide,
				Sequence: seq,
			})
			seq++
			if end == len(sentences) {
				break
			}
			i = end - c.overlapSentences
			if i < 0 {
				i = 0
			}
		}
	}
	return passages
}
