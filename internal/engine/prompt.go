package engine

import (
	"fmt"
	"strings"

	"StudyChat/internal/document"
	"StudyChat/internal/session"
)

const defaultTopK = 4

// Fixed user-facing strings. The caller is a live chat UI: every failure mode
// must map to a renderable natural-language reply, never a structured error.
const (
	msgPreparing = "I'm sorry, I cannot answer your question right now. The system is preparing learning content, please try again later or refresh the page to restart."

	msgModelUnavailable = "Sorry, I cannot connect to the language model service at the moment. Please try again later or contact the administrator."

	msgNoTranscriptFound      = "No relevant transcript content found."
	msgTranscriptInaccessible = "Cannot access video transcript content. I can try to answer your question based on general knowledge, but cannot provide answers specific to the video content."

	msgNoSlidesFound      = "No relevant slides content found."
	msgSlidesInaccessible = "Cannot access slides content. I can try to answer your question based on video transcript and general knowledge, but cannot provide answers specific to the slides content."

	msgImageNoText   = "\nIMAGE CONTENT: The image was provided but no text could be extracted from it. I will try to answer based on the other context available.\n"
	msgImageOCRError = "\nIMAGE CONTENT: An image was provided but I encountered an error processing it. I will try to answer based on the other context available.\n"
)

const placeholderURL = "https://www.youtube.com/watch?v=_uQrJ0TkZlc"

// placeholderPassages is the minimal generic context installed for users who
// ask before any transcript was supplied. Answers built on it carry no
// video-specific knowledge beyond these two sentences.
func placeholderPassages() []document.Passage {
	return []document.Passage{
		{
			Text:     "This is a sample lecture content.",
			Offset:   0,
			Duration: 5000,
			Kind:     document.SourceTranscript,
			Sequence: 0,
		},
		{
			Text:     "The system has automatically created temporary context to respond to your question.",
			Offset:   5000,
			Duration: 5000,
			Kind:     document.SourceTranscript,
			Sequence: 1,
		},
	}
}

// timeWindowQuery combines the question with a playback window
// [timestamp-3000, timestamp+30000], clamped at zero, so semantically
// relevant passages near the current position are preferred.
func timeWindowQuery(question string, timestampMs int64) string {
	var startOffset int64
	if timestampMs > 3000 {
		startOffset = timestampMs - 3000
	}
	return fmt.Sprintf("Before starting my question: Find between offsets %d and %d, and my question is: %s",
		startOffset, timestampMs+30000, question)
}

// serializeMemory renders the chat memory as alternating Human:/Assistant:
// lines, or the literal "null" placeholder when empty.
func serializeMemory(pairs []session.QAPair) string {
	if len(pairs) == 0 {
		return "null"
	}
	var b strings.Builder
	for i, pair := range pairs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Human: ")
		b.WriteString(pair.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(pair.Answer)
	}
	return b.String()
}

func joinPassages(passages []document.Passage) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

// buildPrompt composes the model prompt. The slide context block is omitted
// entirely, header included, when no slide index was ever configured for the
// session.
func buildPrompt(transcriptBlock, slideBlock string, slideConfigured bool, historyBlock, question string) string {
	var b strings.Builder
	b.WriteString("The user is currently watching a lecture video and will ask you questions about the lecture and the lecture slides.\n")
	b.WriteString("Use the following pieces of context to answer the question at the end. If you don't know the answer based on the context, use your general knowledge to provide a helpful response.\n")
	b.WriteString("----------------\n")
	b.WriteString("CONTEXT OF VIDEO TRANSCRIPT: ")
	b.WriteString(transcriptBlock)
	b.WriteString("\n----------------\n")
	if slideConfigured {
		b.WriteString("CONTEXT OF LECTURE SLIDES: ")
		b.WriteString(slideBlock)
		b.WriteString("\n----------------\n")
	}
	b.WriteString("CHAT HISTORY: ")
	b.WriteString(historyBlock)
	b.WriteString("\n----------------\n")
	b.WriteString("QUESTION: ")
	b.WriteString(question)
	b.WriteString("\n----------------\n")
	b.WriteString("Helpful Answer:")
	return b.String()
}
