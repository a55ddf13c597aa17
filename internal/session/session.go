package session

import (
	"context"
	"sync"
	"time"

	"StudyChat/internal/document"
)

// Retriever answers nearest-neighbour queries over a session's passages.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]document.Passage, error)
}

// QAPair is one question/answer exchange held in chat memory.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// HistoryEntry is one answered question in a session's append-only history.
type HistoryEntry struct {
	Timestamp int64  `json:"timestamp"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Image     []byte `json:"image,omitempty"`
}

// Session holds one user's conversational and retrieval state: a transcript
// index, an optional slide index, a chat memory and an append-only history.
// All state is in-memory and owned exclusively by this session; a per-session
// mutex serializes mutation from overlapping requests.
type Session struct {
	mu         sync.Mutex
	userID     string
	createdAt  time.Time
	lastActive time.Time
	sourceURL  string
	transcript Retriever
	slides     Retriever
	memory     []QAPair
	history    []HistoryEntry
}

func newSession(userID string) *Session {
	now := time.Now()
	return &Session{
		userID:     userID,
		createdAt:  now,
		lastActive: now,
	}
}

// SetContext installs fresh retrieval indices and the source URL, resetting
// chat memory. History is preserved: a user may re-upload content
// mid-conversation without losing prior exchanges. Either retriever may be
// nil when its index could not be built.
func (s *Session) SetContext(transcript, slides Retriever, sourceURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = transcript
	s.slides = slides
	s.sourceURL = sourceURL
	s.memory = nil
	s.lastActive = time.Now()
}

// Transcript returns the transcript retriever, or nil if the session was
// never initialized or index construction failed.
func (s *Session) Transcript() Retriever {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Slides returns the slide retriever, or nil if no slide material was
// supplied for this session.
func (s *Session) Slides() Retriever {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slides
}

func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceURL
}

func (s *Session) UserID() string {
	return s.userID
}

// Memory returns a copy of the ordered question/answer pairs.
func (s *Session) Memory() []QAPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QAPair(nil), s.memory...)
}

// SaveExchange appends one question/answer pair to chat memory.
func (s *Session) SaveExchange(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory = append(s.memory, QAPair{Question: question, Answer: answer})
	s.lastActive = time.Now()
}

// AddHistory appends an entry to the session history. Entries are never
// edited or removed except on session destruction.
func (s *Session) AddHistory(entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	s.lastActive = time.Now()
}

// History returns a copy of the history in append order.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

// LastActive reports when the session last served a request.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
