package lecture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// Lectures unlock one week apart, or every 15 seconds in test mode.
	unlockInterval     = 7 * 24 * time.Hour
	testUnlockInterval = 15 * time.Second
)

// Lecture is one entry in the unlock schedule.
type Lecture struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	VideoURL      string    `json:"videoUrl"`
	ThumbnailURL  string    `json:"thumbnailUrl"`
	Duration      int       `json:"duration"`
	AvailableFrom time.Time `json:"availableFrom"`
	IsAvailable   bool      `json:"isAvailable"`
}

// Service keeps the lecture unlock schedule in a JSON file and marks lectures
// available once their unlock time passes. Consumers only ever see the
// boolean availability.
type Service struct {
	mu       sync.RWMutex
	path     string
	lectures []Lecture
	logger   *slog.Logger
}

func NewService(path string, testMode bool, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{path: path, logger: logger}
	if err := s.load(testMode); err != nil {
		return nil, err
	}
	s.Refresh()
	return s, nil
}

func (s *Service) load(testMode bool) error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.lectures = defaultSchedule(testMode)
		s.logger.Info("lecture schedule missing, seeding defaults", "path", s.path, "test_mode", testMode)
		return s.save()
	}
	if err != nil {
		return fmt.Errorf("failed to read lecture schedule: %w", err)
	}
	if err := json.Unmarshal(data, &s.lectures); err != nil {
		return fmt.Errorf("failed to parse lecture schedule: %w", err)
	}
	return nil
}

func (s *Service) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create schedule directory: %w", err)
	}
	data, err := json.MarshalIndent(s.lectures, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lecture schedule: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// Refresh recomputes availability from the unlock timestamps and persists any
// newly unlocked lectures.
func (s *Service) Refresh() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for i := range s.lectures {
		available := !s.lectures[i].AvailableFrom.After(now)
		if available != s.lectures[i].IsAvailable {
			s.lectures[i].IsAvailable = available
			changed = true
			s.logger.Info("lecture availability changed",
				"lecture_id", s.lectures[i].ID,
				"title", s.lectures[i].Title,
				"available", available)
		}
	}
	if changed {
		if err := s.save(); err != nil {
			s.logger.Error("failed to persist lecture schedule", "error", err)
		}
	}
}

// Start runs the periodic refresh loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// List returns a copy of the schedule.
func (s *Service) List() []Lecture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Lecture(nil), s.lectures...)
}

// IsAvailable reports whether the lecture has unlocked. Unknown ids are
// unavailable.
func (s *Service) IsAvailable(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.lectures {
		if l.ID == id {
			return l.IsAvailable
		}
	}
	return false
}

func defaultSchedule(testMode bool) []Lecture {
	interval := unlockInterval
	if testMode {
		interval = testUnlockInterval
	}
	now := time.Now()
	return []Lecture{
		{
			ID:            "1",
			Title:         "Introduction to Machine Learning",
			Description:   "Basic concepts and foundations of machine learning",
			VideoURL:      "https://example.com/videos/lecture1.mp4",
			ThumbnailURL:  "https://example.com/thumbnails/lecture1.jpg",
			Duration:      2700,
			AvailableFrom: now,
			IsAvailable:   true,
		},
		{
			ID:            "2",
			Title:         "Supervised Learning Algorithms",
			Description:   "Overview of supervised learning methods",
			VideoURL:      "https://example.com/videos/lecture2.mp4",
			ThumbnailURL:  "https://example.com/thumbnails/lecture2.jpg",
			Duration:      3000,
			AvailableFrom: now.Add(interval),
		},
		{
			ID:            "3",
			Title:         "Unsupervised Learning",
			Description:   "Clustering and dimensionality reduction techniques",
			VideoURL:      "https://example.com/videos/lecture3.mp4",
			ThumbnailURL:  "https://example.com/thumbnails/lecture3.jpg",
			Duration:      2880,
			AvailableFrom: now.Add(2 * interval),
		},
		{
			ID:            "4",
			Title:         "Neural Networks and Deep Learning",
			Description:   "Fundamentals of neural networks",
			VideoURL:      "https://example.com/videos/lecture4.mp4",
			ThumbnailURL:  "https://example.com/thumbnails/lecture4.jpg",
			Duration:      3120,
			AvailableFrom: now.Add(3 * interval),
		},
	}
}
