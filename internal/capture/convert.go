package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecConverter performs format conversion by shelling out to the usual
// imaging tools: img2pdf for PDF assembly, tiffcp for multi-page TIFF and
// ImageMagick for everything else including thumbnails.
type ExecConverter struct {
	timeout time.Duration
}

// NewExecConverter creates a converter whose invocations are bounded by the
// given timeout.
func NewExecConverter(timeout time.Duration) *ExecConverter {
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	return &ExecConverter{timeout: timeout}
}

// Combine converts the given pages into a single artifact at dest.
func (c *ExecConverter) Combine(ctx context.Context, pages []string, format string, dest string) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages to convert")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch format {
	case "pdf":
		args := append(append([]string{}, pages...), "-o", dest)
		cmd = exec.CommandContext(ctx, "img2pdf", args...)
	case "tiff":
		args := append(append([]string{}, pages...), dest)
		cmd = exec.CommandContext(ctx, "tiffcp", args...)
	default:
		cmd = exec.CommandContext(ctx, "convert", pages[0], dest)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("conversion timed out after %s", c.timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("conversion to %s failed: %s", format, msg)
		}
		return fmt.Errorf("conversion to %s failed: %w", format, err)
	}
	return nil
}

// Thumbnail renders a small preview image of the page at dest.
func (c *ExecConverter) Thumbnail(ctx context.Context, page string, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "convert", page, "-thumbnail", "240x240", dest)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("thumbnail generation failed: %s", msg)
		}
		return fmt.Errorf("thumbnail generation failed: %w", err)
	}
	return nil
}
