package screenshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Capturer shells out to a headless browser to capture the lecture page at a
// playback position. Capture failures are expected in headless deployments
// and are always swallowed by the caller.
type Capturer struct {
	browser string
	logger  *slog.Logger
}

func New(browser string, logger *slog.Logger) *Capturer {
	if browser == "" {
		browser = "chromium"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{browser: browser, logger: logger}
}

// Capture renders url seeked to timestampMs and writes a PNG to path.
func (c *Capturer) Capture(ctx context.Context, url string, timestampMs int64, path string) error {
	if _, err := exec.LookPath(c.browser); err != nil {
		return fmt.Errorf("browser %q not found: %w", c.browser, err)
	}

	target := seekURL(url, timestampMs)
	cmd := exec.CommandContext(ctx, c.browser,
		"--headless",
		"--disable-gpu",
		"--window-size=1280,720",
		"--screenshot="+path,
		target,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("screenshot command failed: %w (%s)", err, string(out))
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("screenshot file was not produced: %w", err)
	}

	c.logger.Info("screenshot captured", "url", target, "path", path)
	return nil
}

// seekURL appends a start-time parameter understood by the common video
// hosts.
func seekURL(url string, timestampMs int64) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%ds", url, sep, timestampMs/1000)
}
