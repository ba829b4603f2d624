package audioio

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// AmbientKind names a generated background sound.
type AmbientKind string

const (
	AmbientOff   AmbientKind = "off"
	AmbientWhite AmbientKind = "white-noise"
	AmbientBrown AmbientKind = "brown-noise"
)

// DefaultAmbientVolume is the bed level when none is given.
const DefaultAmbientVolume = 0.1

// ParseAmbientKind maps a configured name to a kind. The empty string
// means off.
func ParseAmbientKind(s string) (AmbientKind, error) {
	switch k := AmbientKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", AmbientOff, "none":
		return AmbientOff, nil
	case AmbientWhite, "white":
		return AmbientWhite, nil
	case AmbientBrown, "brown":
		return AmbientBrown, nil
	}
	return AmbientOff, fmt.Errorf("audioio: unknown ambient sound %q", s)
}

// Ambient is a looped noise bed mixed under speech.
type Ambient struct {
	Kind   AmbientKind `json:"kind"`
	Volume float64     `json:"volume"`
}

// Enabled reports whether the bed produces sound.
func (a Ambient) Enabled() bool {
	return a.Kind != "" && a.Kind != AmbientOff && a.Volume > 0
}

func (a Ambient) normalize() Ambient {
	if a.Kind == "" {
		a.Kind = AmbientOff
	}
	a.Volume = math.Max(0, math.Min(1, a.Volume))
	return a
}

// noise generates white and brown noise. It is not safe for concurrent
// use; the mixer serializes access.
type noise struct {
	rng   *rand.Rand
	brown float64
}

func newNoise(seed uint64) *noise {
	return &noise{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// next returns one sample in [-1, 1].
func (n *noise) next(kind AmbientKind) float64 {
	white := n.rng.Float64()*2 - 1
	if kind != AmbientBrown {
		return white
	}
	// Leaky integrator; 3.5 restores roughly unit peak level.
	n.brown = (n.brown + 0.02*white) / 1.02
	return math.Max(-1, math.Min(1, n.brown*3.5))
}

// fill adds one noise sample per frame to out, duplicated across channels.
func (n *noise) fill(out []int16, channels int, a Ambient) {
	if channels < 1 {
		channels = 1
	}
	gain := a.Volume * math.MaxInt16
	for i := 0; i+channels <= len(out); i += channels {
		v := int16(n.next(a.Kind) * gain)
		for c := 0; c < channels; c++ {
			out[i+c] = v
		}
	}
}
