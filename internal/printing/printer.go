// Package printing submits documents to CUPS print queues, the print-kind
// counterpart to the capture pipeline.
package printing

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Options are the per-submission print settings.
type Options struct {
	Copies int
	Duplex bool
}

// Printer submits a document to a named printer queue.
type Printer interface {
	Print(ctx context.Context, queue string, filePath string, opts Options) error
}

// LPPrinter prints by shelling out to lp.
type LPPrinter struct {
	timeout time.Duration
}

// NewLPPrinter creates an LPPrinter whose invocations are bounded by the
// given timeout.
func NewLPPrinter(timeout time.Duration) *LPPrinter {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &LPPrinter{timeout: timeout}
}

// Print submits the file to the queue and returns once CUPS has accepted
// it. Acceptance is not completion; queue progress is CUPS's problem.
func (p *LPPrinter) Print(ctx context.Context, queue string, filePath string, opts Options) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{"-d", queue}
	if opts.Copies > 1 {
		args = append(args, "-n", strconv.Itoa(opts.Copies))
	}
	if opts.Duplex {
		args = append(args, "-o", "sides=two-sided-long-edge")
	}
	args = append(args, filePath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "lp", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("print submission timed out after %s", p.timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("print submission failed: %s", msg)
		}
		return fmt.Errorf("print submission failed: %w", err)
	}
	return nil
}
