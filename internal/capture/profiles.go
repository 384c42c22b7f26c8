package capture

import "github.com/scan2target/scan2target/internal/domain"

// BuiltinProfiles are the stock capture profiles available without any
// configuration: flatbed color, flatbed grayscale and ADF batch.
func BuiltinProfiles() []domain.CaptureProfile {
	flatbed := domain.DefaultProfile()

	gray := flatbed
	gray.ID = "scan_a4_gray_300"
	gray.ColorMode = domain.ColorModeGray

	adf := flatbed
	adf.ID = "adf_a4_color_300"
	adf.Source = domain.SourceFeeder
	adf.BatchScan = true

	return []domain.CaptureProfile{flatbed, gray, adf}
}
