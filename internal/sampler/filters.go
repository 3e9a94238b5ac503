package sampler

import (
	"image"
	"math"
)

const (
	// Title/instruction cards combine dense text edges with a flat
	// background: high edge ratio, low grayscale deviation.
	textEdgeRatioThreshold = 0.15
	textStdDevThreshold    = 40.0

	// Gradient magnitude (|gx|+|gy| of the Sobel operator) above which a
	// pixel counts as an edge. Chosen to match the sensitivity of the
	// hysteresis thresholds commonly used for text detection.
	edgeMagnitudeThreshold = 200

	// Procedural footage has varied saturation and moderate brightness;
	// blank, washed-out, or all-black frames fail one of these.
	contentSaturationStdDev = 20.0
	contentValueMeanLow     = 30.0
	contentValueMeanHigh    = 240.0

	histogramBins = 8
)

// isTextScreen reports whether the frame looks like a title or instruction
// card: many edge pixels over a uniform background.
func isTextScreen(img image.Image) bool {
	gray, w, h := grayPlane(img)
	if w < 3 || h < 3 {
		return false
	}

	var sum, sumSq float64
	for _, v := range gray {
		f := float64(v)
		sum += f
		sumSq += f * f
	}
	n := float64(len(gray))
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)

	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := int(gray[(y-1)*w+x+1]) + 2*int(gray[y*w+x+1]) + int(gray[(y+1)*w+x+1]) -
				int(gray[(y-1)*w+x-1]) - 2*int(gray[y*w+x-1]) - int(gray[(y+1)*w+x-1])
			gy := int(gray[(y+1)*w+x-1]) + 2*int(gray[(y+1)*w+x]) + int(gray[(y+1)*w+x+1]) -
				int(gray[(y-1)*w+x-1]) - 2*int(gray[(y-1)*w+x]) - int(gray[(y-1)*w+x+1])
			if abs(gx)+abs(gy) > edgeMagnitudeThreshold {
				edges++
			}
		}
	}

	edgeRatio := float64(edges) / n
	return edgeRatio > textEdgeRatioThreshold && std < textStdDevThreshold
}

// isPlausibleContent reports whether the frame plausibly shows procedural
// content rather than a blank or over/under-exposed screen.
func isPlausibleContent(img image.Image) bool {
	bounds := img.Bounds()
	n := float64(bounds.Dx() * bounds.Dy())
	if n == 0 {
		return false
	}

	var sSum, sSumSq, vSum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, s, v := rgbToHSV(img.At(x, y).RGBA())
			sSum += s
			sSumSq += s * s
			vSum += v
		}
	}

	sMean := sSum / n
	sStd := math.Sqrt(sSumSq/n - sMean*sMean)
	vMean := vSum / n

	return sStd > contentSaturationStdDev &&
		vMean > contentValueMeanLow && vMean < contentValueMeanHigh
}

// colorHistogram computes a joint 3-channel histogram (8 bins per channel,
// 512 total), L2-normalised so frames of different sizes compare directly.
func colorHistogram(img image.Image) []float64 {
	hist := make([]float64, histogramBins*histogramBins*histogramBins)

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			ri := (r >> 8) / (256 / histogramBins)
			gi := (g >> 8) / (256 / histogramBins)
			bi := (b >> 8) / (256 / histogramBins)
			hist[ri*histogramBins*histogramBins+gi*histogramBins+bi]++
		}
	}

	var norm float64
	for _, v := range hist {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range hist {
			hist[i] /= norm
		}
	}
	return hist
}

// histogramCorrelation is the Pearson correlation of two equal-length
// histograms, in [-1, 1].
func histogramCorrelation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	n := float64(len(a))
	var aMean, bMean float64
	for i := range a {
		aMean += a[i]
		bMean += b[i]
	}
	aMean /= n
	bMean /= n

	var cov, aVar, bVar float64
	for i := range a {
		da := a[i] - aMean
		db := b[i] - bMean
		cov += da * db
		aVar += da * da
		bVar += db * db
	}
	if aVar == 0 || bVar == 0 {
		return 0
	}
	return cov / math.Sqrt(aVar*bVar)
}

// isDuplicate compares the frame's histogram against every previously
// accepted one. The all-previous comparison is quadratic but outputs are
// capped at tens of frames, so a plain slice is the right structure.
func isDuplicate(hist []float64, accepted [][]float64, threshold float64) bool {
	for _, prev := range accepted {
		if histogramCorrelation(hist, prev) > threshold {
			return true
		}
	}
	return false
}

// grayPlane converts the image to a row-major 8-bit luminance grid using
// the Rec. 601 weights.
func grayPlane(img image.Image) ([]uint8, int, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	gray := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			lum := (299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000
			gray[y*w+x] = uint8(lum)
		}
	}
	return gray, w, h
}

// rgbToHSV converts 16-bit premultiplied RGBA channels to HSV with S and V
// on a 0-255 scale. Hue is returned in degrees but unused by the filters.
func rgbToHSV(r16, g16, b16, _ uint32) (h, s, v float64) {
	r := float64(r16 >> 8)
	g := float64(g16 >> 8)
	b := float64(b16 >> 8)

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	v = max

	if max > 0 {
		s = (max - min) / max * 255
	}

	d := max - min
	if d > 0 {
		switch max {
		case r:
			h = 60 * math.Mod((g-b)/d, 6)
		case g:
			h = 60 * ((b-r)/d + 2)
		default:
			h = 60 * ((r-g)/d + 4)
		}
		if h < 0 {
			h += 360
		}
	}
	return h, s, v
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
