package ocr

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Sentinel strings returned instead of errors: OCR is best-effort and the
	// caller folds these directly into the prompt.
	noTextDetected = "No text detected in the image."
	ocrUnavailable = "Unable to perform OCR. Please ensure the tesseract command line tool is installed, or describe the image content in your question."
)

// Extractor shells out to the tesseract command line tool to pull text from
// image bytes. Temporary files are scoped to a single request and removed on
// the same path that created them.
type Extractor struct {
	tempDir string
	logger  *slog.Logger
}

func New(tempDir string, logger *slog.Logger) *Extractor {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "studychat-ocr")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{tempDir: tempDir, logger: logger}
}

// ExtractText runs OCR over the image and returns the recognized text, or a
// sentinel string when nothing could be extracted.
func (x *Extractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	x.logger.Info("starting OCR image processing", "bytes", len(image))

	if _, err := exec.LookPath("tesseract"); err != nil {
		x.logger.Error("tesseract not found on PATH", "error", err)
		return ocrUnavailable, nil
	}

	if err := os.MkdirAll(x.tempDir, 0755); err != nil {
		return "", err
	}

	id := uuid.NewString()
	imagePath := filepath.Join(x.tempDir, "ocr-temp-"+id+".png")
	outBase := filepath.Join(x.tempDir, "ocr-text-"+id)
	if err := os.WriteFile(imagePath, image, 0644); err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(imagePath); err != nil {
			x.logger.Error("failed to delete OCR temporary file", "path", imagePath, "error", err)
		}
	}()

	start := time.Now()
	cmd := exec.CommandContext(ctx, "tesseract", imagePath, outBase)
	if out, err := cmd.CombinedOutput(); err != nil {
		x.logger.Error("OCR command execution failed", "error", err, "output", string(out))
		return ocrUnavailable, nil
	}

	textPath := outBase + ".txt"
	data, err := os.ReadFile(textPath)
	if err != nil {
		x.logger.Error("failed to read OCR output", "path", textPath, "error", err)
		return noTextDetected, nil
	}
	if err := os.Remove(textPath); err != nil {
		x.logger.Error("failed to delete OCR output file", "path", textPath, "error", err)
	}

	text := string(data)
	x.logger.Info("OCR processing completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"text_length", len(text))

	if strings.TrimSpace(text) == "" {
		return noTextDetected, nil
	}
	return text, nil
}

// Sweep removes temp files older than maxAge, a safety net against cleanups
// missed due to crashes between write and delete.
func (x *Extractor) Sweep(maxAge time.Duration) {
	entries, err := os.ReadDir(x.tempDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(x.tempDir, entry.Name())); err != nil {
				x.logger.Error("failed to remove stale OCR file", "file", entry.Name(), "error", err)
			}
		}
	}
}
