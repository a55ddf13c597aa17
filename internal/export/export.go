package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"StudyChat/internal/session"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	mail "github.com/wneessen/go-mail"
)

// SMTPConfig carries the delivery settings for emailed history exports.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// CSV renders the history as a CSV document with the original export's
// column layout.
func CSV(entries []session.HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"TIMESTAMP", "HUMAN MESSAGE", "AI MESSAGE"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, entry := range entries {
		record := []string{strconv.FormatInt(entry.Timestamp, 10), entry.Question, entry.Answer}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// PDF renders the history as a PDF document: a header with the video URL and
// slide-upload flag, then each exchange with its timestamp and any attached
// image.
func PDF(videoURL string, slideUploaded bool, entries []session.HistoryEntry) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 12)
	pdf.MultiCell(0, 6, "Video URL: "+videoURL, "", "L", false)
	uploaded := "No"
	if slideUploaded {
		uploaded = "Yes"
	}
	pdf.MultiCell(0, 6, "Slide uploaded: "+uploaded, "", "L", false)

	for _, entry := range entries {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 5, fmt.Sprintf("Timestamp: %d", entry.Timestamp), "", "L", false)

		pdf.MultiCell(0, 5, "Human message:", "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 5, entry.Question, "", "L", false)

		embedImage(pdf, entry.Image)

		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 5, "AI message:", "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 5, entry.Answer, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// embedImage places an attached question image into the document. Unsupported
// formats are skipped; the export must not fail over one image.
func embedImage(pdf *gofpdf.Fpdf, image []byte) {
	if len(image) == 0 {
		return
	}
	var imageType string
	switch http.DetectContentType(image) {
	case "image/png":
		imageType = "PNG"
	case "image/jpeg":
		imageType = "JPG"
	default:
		return
	}

	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	const imgH = 70.0
	if pdf.GetY()+imgH > pageH-bottom {
		pdf.AddPage()
	}

	name := "img-" + uuid.NewString()
	opts := gofpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(image))
	x := pdf.GetX()
	pdf.ImageOptions(name, x, pdf.GetY(), 0, imgH, true, opts, 0, "")
}

// Email sends the rendered history as PDF and CSV attachments. The caller
// deletes the session only after a successful send.
func Email(ctx context.Context, cfg SMTPConfig, pdfData, csvData []byte, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	m := mail.NewMsg()
	if err := m.From(cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(cfg.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject("1 New Chat!")
	m.SetBodyString(mail.TypeTextPlain, "Here is the chat history.")
	if err := m.AttachReader("chat_history.pdf", bytes.NewReader(pdfData)); err != nil {
		return fmt.Errorf("failed to attach PDF: %w", err)
	}
	if err := m.AttachReader("chat_history.csv", bytes.NewReader(csvData)); err != nil {
		return fmt.Errorf("failed to attach CSV: %w", err)
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	logger.Info("chat history emailed", "to", cfg.To, "pdf_bytes", len(pdfData), "csv_bytes", len(csvData))
	return nil
}
