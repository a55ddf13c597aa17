package session

import (
	"context"
	"testing"

	"StudyChat/internal/document"
)

type noopRetriever struct{}

func (noopRetriever) Search(context.Context, string, int) ([]document.Passage, error) {
	return nil, nil
}

func TestSetContextResetsMemoryPreservesHistory(t *testing.T) {
	s := newSession("user-1")
	s.SetContext(noopRetriever{}, nil, "https://example.com/v1")

	s.SaveExchange("q1", "a1")
	s.AddHistory(HistoryEntry{Timestamp: 100, Question: "q1", Answer: "a1"})

	s.SetContext(noopRetriever{}, noopRetriever{}, "https://example.com/v2")

	if got := len(s.Memory()); got != 0 {
		t.Errorf("memory has %d pairs after re-initialization, want 0", got)
	}
	if got := len(s.History()); got != 1 {
		t.Errorf("history has %d entries after re-initialization, want 1", got)
	}
	if s.URL() != "https://example.com/v2" {
		t.Errorf("URL = %q, want the re-initialized value", s.URL())
	}
	if s.Slides() == nil {
		t.Error("slide retriever lost after SetContext")
	}
}

func TestHistoryAppendOrder(t *testing.T) {
	s := newSession("user-1")
	for i := int64(0); i < 5; i++ {
		s.AddHistory(HistoryEntry{Timestamp: i, Question: "q", Answer: "a"})
	}
	history := s.History()
	if len(history) != 5 {
		t.Fatalf("history length = %d, want 5", len(history))
	}
	for i, entry := range history {
		if entry.Timestamp != int64(i) {
			t.Errorf("entry %d has timestamp %d, want %d", i, entry.Timestamp, i)
		}
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := newSession("user-1")
	s.AddHistory(HistoryEntry{Timestamp: 1, Question: "q", Answer: "a"})

	history := s.History()
	history[0].Answer = "mutated"

	if s.History()[0].Answer != "a" {
		t.Error("mutating the returned slice changed session state")
	}
}

func TestMemoryOrder(t *testing.T) {
	s := newSession("user-1")
	s.SaveExchange("first", "one")
	s.SaveExchange("second", "two")

	memory := s.Memory()
	if len(memory) != 2 {
		t.Fatalf("memory length = %d, want 2", len(memory))
	}
	if memory[0].Question != "first" || memory[1].Question != "second" {
		t.Errorf("memory out of order: %+v", memory)
	}
}
