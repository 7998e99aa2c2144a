package render

import "math"

// FitResolution scales w x h down so the long side is at most maxLong and
// the short side at most maxShort. Both results are even, as libx264 with
// yuv420p requires, and keep the aspect ratio to within one pixel. Inputs
// already inside the ceiling only get rounded to even sizes.
func FitResolution(w, h, maxLong, maxShort int) (int, int) {
	if w <= 0 || h <= 0 {
		return evenFloor(maxShort), evenFloor(maxLong)
	}

	boundW, boundH := maxLong, maxShort
	if h > w {
		boundW, boundH = maxShort, maxLong
	}

	fw, fh := float64(w), float64(h)
	scale := math.Min(1, math.Min(float64(boundW)/fw, float64(boundH)/fh))

	// Derive the other side from whichever side the ceiling binds.
	var nw, nh int
	if float64(boundW)/fw <= float64(boundH)/fh {
		nw = evenFloor(int(math.Floor(fw*scale + 1e-9)))
		nh = evenRound(float64(nw) * fh / fw)
	} else {
		nh = evenFloor(int(math.Floor(fh*scale + 1e-9)))
		nw = evenRound(float64(nh) * fw / fh)
	}

	if nw > evenFloor(boundW) {
		nw = evenFloor(boundW)
		nh = evenRound(float64(nw) * fh / fw)
	}
	if nh > evenFloor(boundH) {
		nh = evenFloor(boundH)
		nw = evenRound(float64(nh) * fw / fh)
	}
	return max(nw, 2), max(nh, 2)
}

// CapFPS applies the frame-rate ceiling; non-positive values take the ceiling.
func CapFPS(fps, ceiling int) int {
	if ceiling <= 0 {
		return fps
	}
	if fps <= 0 || fps > ceiling {
		return ceiling
	}
	return fps
}

func evenFloor(v int) int {
	return v - v%2
}

func evenRound(v float64) int {
	return 2 * int(math.Round(v/2))
}
