package render

import (
	"math"
	"math/rand"
	"testing"
)

func TestFitResolution(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{1080, 1920, 480, 854},
		{1920, 1080, 854, 480},
		{1000, 1000, 480, 480},
		{640, 360, 640, 360},
		{321, 241, 320, 240},
	}
	for _, tt := range tests {
		w, h := FitResolution(tt.w, tt.h, 854, 480)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("FitResolution(%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestFitResolutionProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		w := 2 + rng.Intn(8000)
		h := 2 + rng.Intn(8000)

		nw, nh := FitResolution(w, h, 854, 480)
		if nw%2 != 0 || nh%2 != 0 {
			t.Fatalf("%dx%d -> %dx%d: odd dimension", w, h, nw, nh)
		}
		long, short := max(nw, nh), min(nw, nh)
		if long > 854 || short > 480 {
			t.Fatalf("%dx%d -> %dx%d: exceeds ceiling", w, h, nw, nh)
		}
		if nw > max(w+1, 2) || nh > max(h+1, 2) {
			t.Fatalf("%dx%d -> %dx%d: upscaled", w, h, nw, nh)
		}
		if nw <= 2 || nh <= 2 {
			continue // extreme aspect ratios hit the minimum size
		}
		errH := math.Abs(float64(nh) - float64(nw)*float64(h)/float64(w))
		errW := math.Abs(float64(nw) - float64(nh)*float64(w)/float64(h))
		if math.Min(errH, errW) > 1.0001 {
			t.Fatalf("%dx%d -> %dx%d: aspect error %.3f/%.3f px", w, h, nw, nh, errH, errW)
		}
	}
}

func TestCapFPS(t *testing.T) {
	if CapFPS(60, 30) != 30 || CapFPS(24, 30) != 24 || CapFPS(0, 30) != 30 || CapFPS(50, 0) != 50 {
		t.Error("unexpected CapFPS result")
	}
}
