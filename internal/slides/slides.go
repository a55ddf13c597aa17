package slides

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

// Extractor pulls page-segmented text out of uploaded slide decks. Only PDF
// input is supported; one string per page is returned.
type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// ExtractPages parses the document bytes and returns the plain text of each
// page in order. Pages that fail to render are skipped.
func (x *Extractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse slide document: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			x.logger.Warn("failed to extract slide page text", "page", i, "error", err)
			continue
		}
		pages = append(pages, text)
	}

	x.logger.Info("slides processed", "page_count", numPages, "pages_with_text", len(pages))
	return pages, nil
}
