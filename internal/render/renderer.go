// Package render rasterises SVG sources into fixed-size bitmaps.
package render

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// ErrRenderFailure marks content that could not be rasterised.
var ErrRenderFailure = errors.New("render failure")

// SVGRenderer rasterises SVG documents with oksvg. It holds no state.
type SVGRenderer struct{}

// NewSVGRenderer creates an SVG renderer.
func NewSVGRenderer() *SVGRenderer {
	return &SVGRenderer{}
}

// Render draws content scaled to width x height over a white background.
func (r *SVGRenderer) Render(content []byte, width, height int) (img image.Image, err error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid target size %dx%d", ErrRenderFailure, width, height)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrRenderFailure)
	}
	if err := checkRoot(content); err != nil {
		return nil, err
	}

	// oksvg panics on some degenerate path data
	defer func() {
		if rec := recover(); rec != nil {
			img = nil
			err = fmt.Errorf("%w: rasteriser panicked: %v", ErrRenderFailure, rec)
		}
	}()

	// Unsupported elements and unparsable attribute values are dropped, not
	// fatal; only broken XML and a non-svg root fail the render.
	icon, err := oksvg.ReadIconStream(bytes.NewReader(content), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailure, err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), image.White, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1)
	return rgba, nil
}

// checkRoot verifies the markup is well-formed up to its first element and
// that the element is <svg>.
func checkRoot(content []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: no root element", ErrRenderFailure)
			}
			return fmt.Errorf("%w: %v", ErrRenderFailure, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if !strings.EqualFold(start.Name.Local, "svg") {
				return fmt.Errorf("%w: root element is <%s>, not <svg>", ErrRenderFailure, start.Name.Local)
			}
			return nil
		}
	}
}
