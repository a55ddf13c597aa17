package document

// SourceKind identifies where a passage's text came from.
type SourceKind string

const (
	SourceTranscript SourceKind = "transcript"
	SourceSlide      SourceKind = "slide"
)

// Passage is an immutable unit of retrievable text. Transcript passages carry
// the playback offset and duration of the spoken sentence in milliseconds;
// slide passages carry zeroes there and use Sequence for the page order.
type Passage struct {
	Text     string     `json:"text"`
	Offset   int64      `json:"offset"`
	Duration int64      `json:"duration"`
	Kind     SourceKind `json:"kind"`
	Sequence int        `json:"sequence"`
}
