package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/scan2target/scan2target/internal/domain"
)

// feederEmptySignatures are the known device messages that mean "no more
// pages in the feeder". This is the single place to extend per vendor.
var feederEmptySignatures = []string{
	"document feeder out of documents",
	"document feeder is empty",
	"feeder out of documents",
	"no more documents",
	"sane_status_no_docs",
	"no docs",
}

// classifyCaptureError turns a scanimage failure into a *FeederEmptyError
// when the stderr output matches a recognized signature, otherwise a plain
// descriptive error.
func classifyCaptureError(err error, stderr string) error {
	lowered := strings.ToLower(stderr)
	for _, sig := range feederEmptySignatures {
		if strings.Contains(lowered, sig) {
			return &FeederEmptyError{Reason: strings.TrimSpace(stderr)}
		}
	}
	if strings.TrimSpace(stderr) != "" {
		return fmt.Errorf("scan failed: %s", strings.TrimSpace(stderr))
	}
	return fmt.Errorf("scan failed: %w", err)
}

// SANEDeviceConfig holds the external process timeouts.
type SANEDeviceConfig struct {
	PageTimeout  time.Duration
	BatchTimeout time.Duration
	ProbeTimeout time.Duration
}

// SANEDevice captures pages by shelling out to scanimage. All invocations
// carry an explicit timeout so a wedged backend cannot stall the pipeline
// indefinitely.
type SANEDevice struct {
	cfg SANEDeviceConfig
}

// NewSANEDevice creates a SANE-backed Device.
func NewSANEDevice(cfg SANEDeviceConfig) *SANEDevice {
	if cfg.PageTimeout == 0 {
		cfg.PageTimeout = 120 * time.Second
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 300 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &SANEDevice{cfg: cfg}
}

func saneMode(mode domain.ColorMode) string {
	switch mode {
	case domain.ColorModeGray:
		return "Gray"
	case domain.ColorModeMono:
		return "Lineart"
	default:
		return "Color"
	}
}

// CapturePage captures a single page into destDir.
func (d *SANEDevice) CapturePage(ctx context.Context, uri string, profile domain.CaptureProfile, destDir string, page int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PageTimeout)
	defer cancel()

	dest := filepath.Join(destDir, fmt.Sprintf("page-%03d.png", page))
	args := []string{
		"-d", uri,
		"--resolution", fmt.Sprintf("%d", profile.DPI),
		"--mode", saneMode(profile.ColorMode),
		"--format=png",
		"-o", dest,
	}
	if profile.Source == domain.SourceFeeder {
		args = append(args, "--source", "ADF")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "scanimage", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("scan timed out after %s", d.cfg.PageTimeout)
		}
		return "", classifyCaptureError(err, stderr.String())
	}
	return dest, nil
}

// CaptureBatch drives scanimage batch mode, which pulls feeder pages until
// the ADF empties. An empty feeder after at least one page is the normal
// outcome, not an error.
func (d *SANEDevice) CaptureBatch(ctx context.Context, uri string, profile domain.CaptureProfile, destDir string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.BatchTimeout)
	defer cancel()

	pattern := filepath.Join(destDir, "page-%03d.png")
	args := []string{
		"-d", uri,
		"--resolution", fmt.Sprintf("%d", profile.DPI),
		"--mode", saneMode(profile.ColorMode),
		"--format=png",
		"--source", "ADF",
		"--batch=" + pattern,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "scanimage", args...)
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	pages, globErr := filepath.Glob(filepath.Join(destDir, "page-*.png"))
	if globErr != nil {
		return nil, fmt.Errorf("failed to collect batch pages: %w", globErr)
	}
	sort.Strings(pages)
	pages = dropEmptyTrailing(pages)

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("batch scan timed out after %s", d.cfg.BatchTimeout)
		}
		if strings.Contains(strings.ToLower(stderr.String()), "unrecognized option") {
			return nil, ErrBatchUnsupported
		}
		err := classifyCaptureError(runErr, stderr.String())
		if IsFeederEmpty(err) && len(pages) > 0 {
			// Batch mode ends by draining the feeder.
			return pages, nil
		}
		return nil, err
	}
	return pages, nil
}

var saneDeviceLine = regexp.MustCompile(`device .([^'\x60]+). is a`)

// ListReachable enumerates reachable scanner URIs via scanimage -L.
func (d *SANEDevice) ListReachable(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "scanimage", "-L").Output()
	if err != nil {
		if strings.Contains(string(out), "No scanners were identified") {
			return nil, nil
		}
		return nil, fmt.Errorf("device enumeration failed: %w", err)
	}

	var uris []string
	for _, match := range saneDeviceLine.FindAllStringSubmatch(string(out), -1) {
		uris = append(uris, match[1])
	}
	return uris, nil
}

// dropEmptyTrailing removes zero-byte files from the end of the page list;
// devices often emit one after the feeder empties.
func dropEmptyTrailing(pages []string) []string {
	for len(pages) > 0 {
		last := pages[len(pages)-1]
		info, err := os.Stat(last)
		if err != nil || info.Size() > 0 {
			break
		}
		_ = os.Remove(last)
		pages = pages[:len(pages)-1]
	}
	return pages
}
