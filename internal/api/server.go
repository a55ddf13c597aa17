package api

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"StudyChat/internal/document"
	"StudyChat/internal/engine"
	"StudyChat/internal/export"
	"StudyChat/internal/lecture"

	"github.com/google/uuid"
)

// Prober reports whether the generation backend is reachable.
type Prober interface {
	Available(ctx context.Context) bool
}

// Server is the thin HTTP surface over the answer engine. It validates and
// decodes requests; all question-answering semantics live in the engine.
type Server struct {
	engine   *engine.Engine
	lectures *lecture.Service
	prober   Prober
	smtp     export.SMTPConfig
	auditDB  *sql.DB
	logger   *slog.Logger
}

func NewServer(e *engine.Engine, lectures *lecture.Service, prober Prober, smtp export.SMTPConfig, auditDB *sql.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   e,
		lectures: lectures,
		prober:   prober,
		smtp:     smtp,
		auditDB:  auditDB,
		logger:   logger,
	}
}

// Routes wires the handler set onto a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/context", s.HandleContext)
	mux.HandleFunc("/ask", s.HandleAsk)
	mux.HandleFunc("/history", s.HandleHistory)
	mux.HandleFunc("/session", s.HandleSession)
	mux.HandleFunc("/lectures", s.HandleLectures)
	mux.HandleFunc("/export", s.HandleExport)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type passagePayload struct {
	Text     string `json:"text"`
	Offset   int64  `json:"offset"`
	Duration int64  `json:"duration"`
}

type contextRequest struct {
	UserID     string           `json:"user_id"`
	URL        string           `json:"url"`
	Transcript []passagePayload `json:"transcript"`
	Slides     string           `json:"slides,omitempty"` // base64-encoded PDF
}

type askRequest struct {
	UserID    string `json:"user_id"`
	Question  string `json:"question"`
	Timestamp int64  `json:"timestamp"`
	Image     string `json:"image,omitempty"` // base64-encoded PNG
	LectureID string `json:"lecture_id,omitempty"`
}

type historyEntryPayload struct {
	Timestamp int64  `json:"timestamp"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Image     string `json:"image,omitempty"`
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"time_utc":        time.Now().UTC().Format(time.RFC3339),
		"model_available": s.prober.Available(r.Context()),
	})
}

func (s *Server) HandleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	var slideData []byte
	if req.Slides != "" {
		var err error
		slideData, err = base64.StdEncoding.DecodeString(req.Slides)
		if err != nil {
			http.Error(w, "slides must be base64 encoded", http.StatusBadRequest)
			return
		}
	}

	passages := make([]document.Passage, len(req.Transcript))
	for i, p := range req.Transcript {
		passages[i] = document.Passage{
			Text:     p.Text,
			Offset:   p.Offset,
			Duration: p.Duration,
			Kind:     document.SourceTranscript,
			Sequence: i,
		}
	}

	s.engine.InitializeContext(r.Context(), slideData, passages, req.URL, req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "initialized"})
}

func (s *Server) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.LectureID != "" && s.lectures != nil && !s.lectures.IsAvailable(req.LectureID) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": "this lecture has not been unlocked yet",
		})
		return
	}

	var image []byte
	if req.Image != "" {
		var err error
		image, err = base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			http.Error(w, "image must be base64 encoded", http.StatusBadRequest)
			return
		}
	}

	answer := s.engine.Ask(r.Context(), req.Question, req.Timestamp, req.UserID, image)
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}

func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	entries := s.engine.History(userID)
	payload := make([]historyEntryPayload, len(entries))
	for i, entry := range entries {
		payload[i] = historyEntryPayload{
			Timestamp: entry.Timestamp,
			Question:  entry.Question,
			Answer:    entry.Answer,
		}
		if len(entry.Image) > 0 {
			payload[i].Image = base64.StdEncoding.EncodeToString(entry.Image)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": payload})
}

func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": s.engine.DeleteSession(userID)})
}

func (s *Server) HandleLectures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lectures": s.lectures.List()})
}

// HandleExport renders the user's history as PDF and CSV, emails both as
// attachments, and destroys the session after a successful send.
func (s *Server) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	entries := s.engine.History(req.UserID)

	csvData, err := export.CSV(entries)
	if err != nil {
		s.logger.Error("failed to render CSV export", "user_id", req.UserID, "error", err)
		http.Error(w, "failed to generate history data", http.StatusInternalServerError)
		return
	}
	pdfData, err := export.PDF(s.engine.SourceURL(req.UserID), s.engine.HasSlides(req.UserID), entries)
	if err != nil {
		s.logger.Error("failed to render PDF export", "user_id", req.UserID, "error", err)
		http.Error(w, "failed to generate history data", http.StatusInternalServerError)
		return
	}

	if err := export.Email(r.Context(), s.smtp, pdfData, csvData, s.logger); err != nil {
		s.logger.Error("failed to email chat history", "user_id", req.UserID, "error", err)
		http.Error(w, "failed to send chat history", http.StatusBadGateway)
		return
	}

	s.recordExport(req.UserID, len(entries))
	s.engine.DeleteSession(req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "sent", "entries": len(entries)})
}

func (s *Server) recordExport(userID string, entryCount int) {
	if s.auditDB == nil {
		return
	}
	_, err := s.auditDB.Exec(
		"INSERT INTO exports (id, user_id, entry_count, created_at) VALUES (?, ?, ?, ?)",
		uuid.NewString(), userID, entryCount, time.Now(),
	)
	if err != nil {
		s.logger.Error("failed to record export", "user_id", userID, "error", err)
	}
}
