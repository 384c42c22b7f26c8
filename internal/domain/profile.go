package domain

// ColorMode selects the scanner color handling for a capture.
type ColorMode string

// Known color modes.
const (
	ColorModeColor ColorMode = "color"
	ColorModeGray  ColorMode = "gray"
	ColorModeMono  ColorMode = "mono"
)

// CaptureSource selects where the pages come from.
type CaptureSource string

// Known capture sources.
const (
	SourceFlatbed CaptureSource = "flatbed"
	SourceFeeder  CaptureSource = "feeder"
)

// CaptureProfile is a named bundle of resolution/color/format/source settings
// applied to a capture. Read-only configuration; owned by the configuration
// layer, consumed by the capture pipeline.
type CaptureProfile struct {
	ID        string        `json:"id"`
	DPI       int           `json:"dpi"`
	ColorMode ColorMode     `json:"color_mode"`
	PaperSize string        `json:"paper_size"`
	Format    string        `json:"format"`
	Source    CaptureSource `json:"source"`
	BatchScan bool          `json:"batch_scan"`
}

// DefaultProfile is the baseline used when a requested profile id is unknown.
func DefaultProfile() CaptureProfile {
	return CaptureProfile{
		ID:        "scan_a4_color_300",
		DPI:       300,
		ColorMode: ColorModeColor,
		PaperSize: "A4",
		Format:    "pdf",
		Source:    SourceFlatbed,
	}
}

// MultiPageFormat reports whether the format can hold several pages in one
// artifact. Single-page formats degrade to the first page with a warning.
func MultiPageFormat(format string) bool {
	switch format {
	case "pdf", "tiff":
		return true
	}
	return false
}
