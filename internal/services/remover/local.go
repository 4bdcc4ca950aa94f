package remover

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// LocalRemover is an in-process backend for development and tests. It treats
// the average colour of the image border as background and makes pixels close
// to it transparent, feathering alpha over a band of the same width.
type LocalRemover struct {
	tolerance    float64
	maxDimension int
}

func NewLocalRemover(tolerance, maxDimension int) *LocalRemover {
	if tolerance <= 0 {
		tolerance = 48
	}
	return &LocalRemover{
		tolerance:    float64(tolerance),
		maxDimension: maxDimension,
	}
}

func (r *LocalRemover) Remove(ctx context.Context, data []byte, _ string) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	src, _ = fitWithin(src, r.maxDimension)

	img := imaging.Clone(src)
	bg := borderColor(img)

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := y * img.Stride
		for x := 0; x < w; x++ {
			i := row + x*4
			d := distance(img.Pix[i], img.Pix[i+1], img.Pix[i+2], bg)
			img.Pix[i+3] = r.alpha(d, img.Pix[i+3])
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *LocalRemover) alpha(d float64, current uint8) uint8 {
	switch {
	case d <= r.tolerance:
		return 0
	case d >= 2*r.tolerance:
		return current
	default:
		return uint8(float64(current) * (d - r.tolerance) / r.tolerance)
	}
}

// borderColor averages the outermost ring of pixels.
func borderColor(img *image.NRGBA) color.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var sr, sg, sb, n int

	add := func(x, y int) {
		i := y*img.Stride + x*4
		sr += int(img.Pix[i])
		sg += int(img.Pix[i+1])
		sb += int(img.Pix[i+2])
		n++
	}

	for x := 0; x < w; x++ {
		add(x, 0)
		if h > 1 {
			add(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		if w > 1 {
			add(w-1, y)
		}
	}

	if n == 0 {
		return color.NRGBA{}
	}
	return color.NRGBA{R: uint8(sr / n), G: uint8(sg / n), B: uint8(sb / n), A: 255}
}

func distance(r, g, b uint8, c color.NRGBA) float64 {
	dr := float64(r) - float64(c.R)
	dg := float64(g) - float64(c.G)
	db := float64(b) - float64(c.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}
