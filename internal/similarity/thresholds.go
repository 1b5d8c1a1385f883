package similarity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrictThresholds configure the three-signal policy.
type StrictThresholds struct {
	SSIM      float64 `yaml:"ssim"`
	MSE       float64 `yaml:"mse"`
	Histogram float64 `yaml:"histogram"`
	Size      int     `yaml:"size"`
}

// FastThresholds configure the SSIM-only policy.
type FastThresholds struct {
	SSIM float64 `yaml:"ssim"`
	Size int     `yaml:"size"`
}

// Thresholds is the full scorer profile. The YAML layout is:
//
//	strict:
//	  ssim: 0.95
//	  mse: 100
//	  histogram: 0.9
//	  size: 300
//	fast:
//	  ssim: 0.95
//	  size: 200
type Thresholds struct {
	Strict StrictThresholds `yaml:"strict"`
	Fast   FastThresholds   `yaml:"fast"`
}

// DefaultThresholds returns the built-in profile.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Strict: StrictThresholds{SSIM: 0.95, MSE: 100, Histogram: 0.9, Size: 300},
		Fast:   FastThresholds{SSIM: 0.95, Size: 200},
	}
}

// Validate checks that every value is usable.
func (t Thresholds) Validate() error {
	if t.Strict.Size < ssimWindow || t.Fast.Size < ssimWindow {
		return fmt.Errorf("canonical size must be at least %d pixels", ssimWindow)
	}
	if t.Strict.SSIM < -1 || t.Strict.SSIM > 1 || t.Fast.SSIM < -1 || t.Fast.SSIM > 1 {
		return fmt.Errorf("ssim thresholds must lie in [-1, 1]")
	}
	if t.Strict.MSE <= 0 {
		return fmt.Errorf("mse threshold must be positive")
	}
	if t.Strict.Histogram < -1 || t.Strict.Histogram > 1 {
		return fmt.Errorf("histogram threshold must lie in [-1, 1]")
	}
	return nil
}

// ParseThresholds overlays YAML data onto the defaults.
func ParseThresholds(data []byte) (Thresholds, error) {
	t := DefaultThresholds()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Thresholds{}, fmt.Errorf("parsing threshold profile: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

// LoadThresholds reads a YAML profile. An empty path yields the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	if path == "" {
		return DefaultThresholds(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("reading threshold profile: %w", err)
	}
	return ParseThresholds(data)
}
