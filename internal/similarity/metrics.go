package similarity

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	dataRange  = 255.0
)

// canonical converts img to 8-bit luminance at size x size. The conversion
// goes through color.GrayModel, which weights R, G, B as 0.299/0.587/0.114.
func canonical(img image.Image, size int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// intensities flattens a grayscale image row by row.
func intensities(g *image.Gray) []float64 {
	b := g.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[(y-b.Min.Y)*g.Stride : (y-b.Min.Y)*g.Stride+b.Dx()]
		for _, v := range row {
			out = append(out, float64(v))
		}
	}
	return out
}

// structuralSimilarity computes the mean SSIM over every fully covered
// 7x7 window using sample covariance. a and b must share w x h.
func structuralSimilarity(a, b []float64, w, h int) float64 {
	if w < ssimWindow || h < ssimWindow {
		return 0
	}
	stride := w + 1
	size := stride * (h + 1)
	sx := make([]float64, size)
	sy := make([]float64, size)
	sxx := make([]float64, size)
	syy := make([]float64, size)
	sxy := make([]float64, size)

	for y := 0; y < h; y++ {
		var rx, ry, rxx, ryy, rxy float64
		for x := 0; x < w; x++ {
			va, vb := a[y*w+x], b[y*w+x]
			rx += va
			ry += vb
			rxx += va * va
			ryy += vb * vb
			rxy += va * vb
			i := (y+1)*stride + x + 1
			up := y*stride + x + 1
			sx[i] = sx[up] + rx
			sy[i] = sy[up] + ry
			sxx[i] = sxx[up] + rxx
			syy[i] = syy[up] + ryy
			sxy[i] = sxy[up] + rxy
		}
	}

	n := float64(ssimWindow * ssimWindow)
	covNorm := n / (n - 1)
	c1 := (ssimK1 * dataRange) * (ssimK1 * dataRange)
	c2 := (ssimK2 * dataRange) * (ssimK2 * dataRange)

	var total float64
	count := 0
	for y := 0; y+ssimWindow <= h; y++ {
		for x := 0; x+ssimWindow <= w; x++ {
			tl := y*stride + x
			tr := y*stride + x + ssimWindow
			bl := (y+ssimWindow)*stride + x
			br := (y+ssimWindow)*stride + x + ssimWindow
			box := func(s []float64) float64 { return s[br] - s[tr] - s[bl] + s[tl] }

			ux := box(sx) / n
			uy := box(sy) / n
			vx := covNorm * (box(sxx)/n - ux*ux)
			vy := covNorm * (box(syy)/n - uy*uy)
			vxy := covNorm * (box(sxy)/n - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			total += num / den
			count++
		}
	}
	return total / float64(count)
}

// meanSquaredError is the average squared per-pixel intensity difference.
func meanSquaredError(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum / float64(len(a))
}

// histogramCorrelation is the Pearson correlation between the 256-bin
// intensity histograms of a and b.
func histogramCorrelation(a, b []float64) float64 {
	var ha, hb [256]float64
	for _, v := range a {
		ha[int(v)]++
	}
	for _, v := range b {
		hb[int(v)]++
	}

	var ma, mb float64
	for i := range ha {
		ma += ha[i]
		mb += hb[i]
	}
	ma /= 256
	mb /= 256

	var num, da, db float64
	for i := range ha {
		xa, xb := ha[i]-ma, hb[i]-mb
		num += xa * xb
		da += xa * xa
		db += xb * xb
	}
	den := math.Sqrt(da * db)
	if den == 0 {
		if ha == hb {
			return 1
		}
		return 0
	}
	return num / den
}
