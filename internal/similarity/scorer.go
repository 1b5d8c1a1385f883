// Package similarity decides whether two rendered bitmaps show the same
// graphic, using structural similarity, pixel error and histogram signals.
package similarity

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrComparisonFailure marks a bitmap pair that could not be scored.
var ErrComparisonFailure = errors.New("comparison failure")

// Mode selects the verdict policy.
type Mode string

const (
	// ModeStrict requires SSIM, MSE and histogram correlation to agree.
	ModeStrict Mode = "strict"
	// ModeFast uses SSIM alone at a smaller canonical size.
	ModeFast Mode = "fast"
)

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStrict, "":
		return ModeStrict, nil
	case ModeFast:
		return ModeFast, nil
	default:
		return "", fmt.Errorf("unknown detection mode %q", s)
	}
}

// Verdict is the outcome of comparing two bitmaps.
type Verdict int

const (
	Distinct Verdict = iota
	Duplicate
)

func (v Verdict) String() string {
	if v == Duplicate {
		return "duplicate"
	}
	return "distinct"
}

// Metrics are the raw signals behind a verdict. Fast mode leaves MSE and
// Histogram at zero.
type Metrics struct {
	SSIM      float64
	MSE       float64
	Histogram float64
}

// Scorer compares bitmaps under one mode and threshold profile.
type Scorer struct {
	mode       Mode
	thresholds Thresholds
}

// NewScorer creates a scorer after validating the thresholds.
func NewScorer(mode Mode, thresholds Thresholds) (*Scorer, error) {
	if mode != ModeStrict && mode != ModeFast {
		return nil, fmt.Errorf("unknown detection mode %q", mode)
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{mode: mode, thresholds: thresholds}, nil
}

// Mode returns the verdict policy in use.
func (s *Scorer) Mode() Mode {
	return s.mode
}

// Size is the canonical square resolution both bitmaps are scored at.
func (s *Scorer) Size() int {
	if s.mode == ModeFast {
		return s.thresholds.Fast.Size
	}
	return s.thresholds.Strict.Size
}

// Score compares a and b. Unusable bitmaps yield Distinct together with an
// error wrapping ErrComparisonFailure.
func (s *Scorer) Score(a, b image.Image) (Verdict, Metrics, error) {
	if err := usable(a); err != nil {
		return Distinct, Metrics{}, fmt.Errorf("%w: first bitmap: %v", ErrComparisonFailure, err)
	}
	if err := usable(b); err != nil {
		return Distinct, Metrics{}, fmt.Errorf("%w: second bitmap: %v", ErrComparisonFailure, err)
	}

	size := s.Size()
	ga := intensities(canonical(a, size))
	gb := intensities(canonical(b, size))
	if len(ga) != len(gb) || len(ga) != size*size {
		return Distinct, Metrics{}, fmt.Errorf("%w: canonical sizes differ", ErrComparisonFailure)
	}

	m := Metrics{SSIM: structuralSimilarity(ga, gb, size, size)}
	if s.mode == ModeFast {
		if m.SSIM > s.thresholds.Fast.SSIM {
			return Duplicate, m, nil
		}
		return Distinct, m, nil
	}

	m.MSE = meanSquaredError(ga, gb)
	m.Histogram = histogramCorrelation(ga, gb)
	t := s.thresholds.Strict
	if m.SSIM > t.SSIM && m.MSE < t.MSE && m.Histogram > t.Histogram {
		return Duplicate, m, nil
	}
	return Distinct, m, nil
}

func usable(img image.Image) error {
	if img == nil {
		return errors.New("nil image")
	}
	if img.Bounds().Empty() {
		return errors.New("empty bounds")
	}
	return nil
}
