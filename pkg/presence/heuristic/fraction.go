package heuristic

// NonDarkFraction returns the fraction of pixels with at least one colour
// channel above threshold. Only the first three channels of each pixel are
// considered; alpha is ignored.
func NonDarkFraction(pix []byte, channels int, threshold byte) float64 {
	if channels <= 0 || len(pix) < channels {
		return 0
	}
	colour := min(channels, 3)

	total := len(pix) / channels
	lit := 0
	for i := 0; i+channels <= len(pix); i += channels {
		for c := 0; c < colour; c++ {
			if pix[i+c] > threshold {
				lit++
				break
			}
		}
	}
	return float64(lit) / float64(total)
}
