package sampler

import (
	"image"
	"image/color"
	"testing"
)

// titleCard builds a frame resembling a title screen: a flat light
// background with dense dark horizontal line structure.
func titleCard() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		v := uint8(200)
		if y%6 == 0 {
			v = 100
		}
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

// surgicalScene builds a frame with varied saturation and natural value
// spread, like tissue under a scope.
func surgicalScene() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			if (x/10+y/10)%2 == 0 {
				img.Set(x, y, color.RGBA{180, 40, 50, 255})
			} else {
				img.Set(x, y, color.RGBA{120, 110, 105, 255})
			}
		}
	}
	return img
}

func blankFrame(v uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestIsTextScreen(t *testing.T) {
	if !isTextScreen(titleCard()) {
		t.Error("title card should be detected as text screen")
	}
	if isTextScreen(surgicalScene()) {
		t.Error("surgical scene should not be detected as text screen")
	}
	if isTextScreen(blankFrame(128)) {
		t.Error("blank frame has no edges, not a text screen")
	}
}

func TestIsPlausibleContent(t *testing.T) {
	if !isPlausibleContent(surgicalScene()) {
		t.Error("surgical scene should be plausible content")
	}
	if isPlausibleContent(blankFrame(128)) {
		t.Error("uniform gray frame has no saturation variance")
	}
	if isPlausibleContent(blankFrame(5)) {
		t.Error("near-black frame should be implausible")
	}
}

func TestHistogramCorrelation(t *testing.T) {
	a := colorHistogram(surgicalScene())
	b := colorHistogram(surgicalScene())
	if corr := histogramCorrelation(a, b); corr < 0.999 {
		t.Errorf("identical images correlation = %v, want ~1", corr)
	}

	c := colorHistogram(blankFrame(128))
	if corr := histogramCorrelation(a, c); corr > 0.5 {
		t.Errorf("dissimilar images correlation = %v, want low", corr)
	}
}

func TestIsDuplicate(t *testing.T) {
	scene := colorHistogram(surgicalScene())
	blank := colorHistogram(blankFrame(128))

	if !isDuplicate(scene, [][]float64{blank, scene}, DefaultDuplicateThreshold) {
		t.Error("repeat of an accepted frame should be a duplicate")
	}
	if isDuplicate(scene, [][]float64{blank}, DefaultDuplicateThreshold) {
		t.Error("novel frame should not be a duplicate")
	}
	if isDuplicate(scene, nil, DefaultDuplicateThreshold) {
		t.Error("first frame can never be a duplicate")
	}
}
