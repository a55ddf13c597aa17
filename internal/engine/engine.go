package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"StudyChat/internal/document"
	"StudyChat/internal/session"
	"StudyChat/internal/vectorindex"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Generator is the text-generation capability the engine invokes. Chat is the
// primary structured-message path; GenerateWithRetry is the raw-prompt backup
// that degrades to a fixed failure string instead of erroring.
type Generator interface {
	Available(ctx context.Context) bool
	Chat(ctx context.Context, prompt string) (string, error)
	GenerateWithRetry(ctx context.Context, prompt string) string
}

// TextExtractor produces best-effort text from image bytes, or a sentinel
// failure string.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// SlideExtractor produces page-segmented text from raw slide document bytes.
type SlideExtractor interface {
	ExtractPages(ctx context.Context, data []byte) ([]string, error)
}

// Screenshotter captures the session's source URL at a playback timestamp
// into an image file at path.
type Screenshotter interface {
	Capture(ctx context.Context, url string, timestampMs int64, path string) error
}

// Options carries the engine's optional collaborators. Nil fields disable the
// corresponding feature and degrade gracefully.
type Options struct {
	OCR         TextExtractor
	Slides      SlideExtractor
	Screenshots Screenshotter
	AuditDB     *sql.DB
	ScratchDir  string
	Logger      *slog.Logger
}

// Engine orchestrates question answering: it pulls relevant transcript and
// slide passages from the user's session, assembles a prompt with chat
// history, invokes the generation capability with a fallback chain, and
// updates memory and history. Every internal failure is converted into a
// degraded context or a fixed user-facing string; Ask never returns an error.
type Engine struct {
	registry   *session.Registry
	gateway    Generator
	embedder   vectorindex.Embedder
	ocr        TextExtractor
	slides     SlideExtractor
	shots      Screenshotter
	chunker    *document.SentenceChunker
	auditDB    *sql.DB
	scratchDir string
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

func New(registry *session.Registry, gateway Generator, embedder vectorindex.Embedder, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scratch := opts.ScratchDir
	if scratch == "" {
		scratch = filepath.Join(os.TempDir(), "studychat")
	}
	return &Engine{
		registry:   registry,
		gateway:    gateway,
		embedder:   embedder,
		ocr:        opts.OCR,
		slides:     opts.Slides,
		shots:      opts.Screenshots,
		chunker:    document.NewSentenceChunker(5, 1),
		auditDB:    opts.AuditDB,
		scratchDir: scratch,
		logger:     logger,
		tracer:     otel.Tracer("studychat"),
		meter:      otel.Meter("studychat"),
	}
}

// InitializeContext builds the session's retrieval indices from the supplied
// material and records the source URL. Chat memory is reset; history is
// preserved across re-initialization. Index construction failures leave the
// affected index absent rather than failing the call: subsequent questions
// degrade instead of erroring.
func (e *Engine) InitializeContext(ctx context.Context, slideData []byte, passages []document.Passage, sourceURL, userID string) {
	sess := e.registry.Get(userID)

	var transcript session.Retriever
	idx := vectorindex.New(e.embedder)
	if err := idx.Build(ctx, passages); err != nil {
		e.logger.Error("failed to build transcript index", "user_id", userID, "error", err)
	} else {
		transcript = idx
	}

	var slides session.Retriever
	if len(slideData) > 0 {
		slides = e.buildSlideIndex(ctx, slideData, userID)
	}

	sess.SetContext(transcript, slides, sourceURL)
	e.logger.Info("context initialized",
		"user_id", userID,
		"transcript_passages", len(passages),
		"has_slides", slides != nil,
		"url", sourceURL)
}

func (e *Engine) buildSlideIndex(ctx context.Context, slideData []byte, userID string) session.Retriever {
	if e.slides == nil {
		e.logger.Warn("slide material supplied but no slide extractor configured", "user_id", userID)
		return nil
	}
	pages, err := e.slides.ExtractPages(ctx, slideData)
	if err != nil {
		e.logger.Error("failed to extract slide text", "user_id", userID, "error", err)
		return nil
	}
	passages := e.chunker.ChunkPages(pages)
	if len(passages) == 0 {
		e.logger.Warn("slide material contained no extractable text", "user_id", userID)
		return nil
	}
	idx := vectorindex.New(e.embedder)
	if err := idx.Build(ctx, passages); err != nil {
		e.logger.Error("failed to build slide index", "user_id", userID, "error", err)
		return nil
	}
	return idx
}

// Ask answers a question about the lecture the user is watching. It always
// returns a renderable string: sub-step failures degrade the context or map
// to a fixed apologetic reply, never to an error.
func (e *Engine) Ask(ctx context.Context, question string, timestampMs int64, userID string, image []byte) string {
	ctx, span := e.tracer.Start(ctx, "ask_question")
	defer span.End()

	sanitized := strings.TrimSpace(strings.ReplaceAll(question, "\n", " "))
	sess := e.registry.Get(userID)

	// A user who asks before any upload still gets an answer: bootstrap a
	// minimal placeholder context so the pipeline has something to retrieve.
	if sess.Transcript() == nil {
		e.logger.Info("context not initialized, creating placeholder context", "user_id", userID)
		e.InitializeContext(ctx, nil, placeholderPassages(), placeholderURL, userID)
		if sess.Transcript() == nil {
			return msgPreparing
		}
	}

	answer := e.answer(ctx, sess, sanitized, timestampMs, image)

	e.countQuestion(ctx)
	return answer
}

func (e *Engine) answer(ctx context.Context, sess *session.Session, question string, timestampMs int64, image []byte) string {
	// Liveness short-circuit: if the model endpoint is down there is no point
	// touching retrieval for this request.
	if !e.gateway.Available(ctx) {
		e.logger.Warn("generation service unavailable, using fallback response", "user_id", sess.UserID())
		return msgModelUnavailable
	}

	transcriptBlock := e.retrieveTranscript(ctx, sess, question, timestampMs)

	slideConfigured := sess.Slides() != nil
	var slideBlock string
	if slideConfigured {
		slideBlock = e.retrieveSlides(ctx, sess, question)
	}

	historyBlock := serializeMemory(sess.Memory())

	prompt := buildPrompt(transcriptBlock, slideBlock, slideConfigured, historyBlock, question)
	prompt += e.imageBlock(ctx, sess.UserID(), image)

	if strings.Contains(question, "slide") {
		prompt += e.screenshotNote(ctx, sess.URL(), timestampMs)
	}

	e.sweepScratch()

	answer, err := e.gateway.Chat(ctx, prompt)
	if err != nil {
		e.logger.Error("primary model invocation failed, trying backup path", "user_id", sess.UserID(), "error", err)
		answer = e.gateway.GenerateWithRetry(ctx, prompt)
	}

	sess.SaveExchange(question, answer)
	sess.AddHistory(session.HistoryEntry{
		Timestamp: timestampMs,
		Question:  question,
		Answer:    answer,
		Image:     image,
	})

	go e.auditAnswer(sess.UserID(), timestampMs, question, answer, len(image) > 0)

	return answer
}

// retrieveTranscript queries the transcript index with a windowed time query
// biased toward passages near the current playback position. Failures degrade
// to fixed context strings.
func (e *Engine) retrieveTranscript(ctx context.Context, sess *session.Session, question string, timestampMs int64) string {
	retriever := sess.Transcript()
	if retriever == nil {
		return msgTranscriptInaccessible
	}

	query := timeWindowQuery(question, timestampMs)
	passages, err := retriever.Search(ctx, query, defaultTopK)
	if err != nil {
		e.logger.Error("failed to retrieve transcript content", "user_id", sess.UserID(), "error", err)
		return msgTranscriptInaccessible
	}
	if len(passages) == 0 {
		return msgNoTranscriptFound
	}
	return joinPassages(passages)
}

// retrieveSlides queries the slide index with the raw question: slides carry
// no playback timing, so no time window applies.
func (e *Engine) retrieveSlides(ctx context.Context, sess *session.Session, question string) string {
	passages, err := sess.Slides().Search(ctx, question, defaultTopK)
	if err != nil {
		e.logger.Error("failed to retrieve slide content", "user_id", sess.UserID(), "error", err)
		return msgSlidesInaccessible
	}
	if len(passages) == 0 {
		return msgNoSlidesFound
	}
	return joinPassages(passages)
}

// imageBlock runs OCR over the supplied image and renders its contribution to
// the prompt. The raw bytes are also written to the scratch directory for
// audit purposes; that write is best-effort and never aborts answering.
func (e *Engine) imageBlock(ctx context.Context, userID string, image []byte) string {
	if len(image) == 0 {
		return "\nNo image was provided with this question.\n"
	}

	e.logger.Info("image data received", "user_id", userID, "bytes", len(image))

	block := msgImageNoText
	if e.ocr != nil {
		text, err := e.ocr.ExtractText(ctx, image)
		switch {
		case err != nil:
			e.logger.Error("OCR processing failed", "user_id", userID, "error", err)
			block = msgImageOCRError
		case strings.TrimSpace(text) == "" || strings.Contains(text, "Error extracting text"):
			e.logger.Warn("OCR could not extract valid text", "user_id", userID)
		default:
			block = "\nIMAGE TEXT CONTENT: " + text + "\n"
		}
	}

	if err := os.MkdirAll(e.scratchDir, 0755); err == nil {
		path := filepath.Join(e.scratchDir, userID+"_"+uuid.NewString()+".png")
		if err := os.WriteFile(path, image, 0644); err != nil {
			e.logger.Error("failed to save image file", "user_id", userID, "error", err)
		}
	} else {
		e.logger.Error("failed to create scratch directory", "error", err)
	}

	return block
}

// screenshotNote captures a screenshot of the source URL at the playback
// timestamp purely to annotate the prompt; the file is deleted immediately
// after use and any failure is swallowed.
func (e *Engine) screenshotNote(ctx context.Context, url string, timestampMs int64) string {
	if e.shots == nil || url == "" {
		return ""
	}
	if err := os.MkdirAll(e.scratchDir, 0755); err != nil {
		e.logger.Error("failed to create scratch directory", "error", err)
		return ""
	}
	path := filepath.Join(e.scratchDir, "slide-"+uuid.NewString()+".png")
	if err := e.shots.Capture(ctx, url, timestampMs, path); err != nil {
		e.logger.Error("failed to capture screenshot", "url", url, "error", err)
		return ""
	}
	if err := os.Remove(path); err != nil {
		e.logger.Error("failed to delete screenshot file", "path", path, "error", err)
	}
	return "\n[Note: A screenshot of the current slide has been captured. I'll try to answer based on the video transcript and slide content.]"
}

// sweepScratch removes scratch files older than 24 hours as a safety net
// against cleanups missed between write and delete.
func (e *Engine) sweepScratch() {
	entries, err := os.ReadDir(e.scratchDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(e.scratchDir, entry.Name())); err != nil {
				e.logger.Error("failed to remove stale scratch file", "file", entry.Name(), "error", err)
			}
		}
	}
}

// History returns the user's answered questions in completion order.
func (e *Engine) History(userID string) []session.HistoryEntry {
	return e.registry.Get(userID).History()
}

// SourceURL returns the video URL recorded for the user's session.
func (e *Engine) SourceURL(userID string) string {
	return e.registry.Get(userID).URL()
}

// HasSlides reports whether slide material was configured for the session.
func (e *Engine) HasSlides(userID string) bool {
	return e.registry.Get(userID).Slides() != nil
}

// DeleteSession destroys the user's session, reporting whether one existed.
func (e *Engine) DeleteSession(userID string) bool {
	return e.registry.Remove(userID)
}

// auditAnswer records the exchange in the write-only audit trail. The
// in-memory session stays authoritative; a failed write is only logged.
func (e *Engine) auditAnswer(userID string, timestampMs int64, question, answer string, hasImage bool) {
	if e.auditDB == nil {
		return
	}
	img := 0
	if hasImage {
		img = 1
	}
	_, err := e.auditDB.Exec(
		"INSERT INTO answers (user_id, video_timestamp, question, answer, has_image, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		userID, timestampMs, question, answer, img, time.Now(),
	)
	if err != nil {
		e.logger.Error("failed to write audit record", "user_id", userID, "error", err)
	}
}

func (e *Engine) countQuestion(ctx context.Context) {
	counter, err := e.meter.Int64Counter(
		"studychat.questions.answered",
		metric.WithDescription("Questions answered, including degraded replies"),
	)
	if err == nil {
		counter.Add(ctx, 1)
	}
}
