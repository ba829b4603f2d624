package audioio

import (
	"math"
	"testing"
	"time"
)

func TestResample(t *testing.T) {
	ramp := func(n int) []int16 {
		s := make([]int16, n)
		for i := range s {
			s[i] = int16(i * 10)
		}
		return s
	}

	tests := []struct {
		name    string
		in      []int16
		from    int
		to      int
		wantLen int
	}{
		{"same rate", ramp(5), 24000, 24000, 5},
		{"downsample 2x", ramp(960), 48000, 24000, 480},
		{"upsample 1.5x", ramp(320), 16000, 24000, 480},
		{"22k to 24k", ramp(220), 22050, 24000, 239},
		{"empty", nil, 24000, 48000, 0},
		{"bad rate", ramp(4), 0, 24000, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resample(tt.in, tt.from, tt.to)
			if len(got) != tt.wantLen {
				t.Fatalf("len: got %d, want %d", len(got), tt.wantLen)
			}
			if len(got) > 0 && got[0] != tt.in[0] {
				t.Errorf("first sample: got %d, want %d", got[0], tt.in[0])
			}
		})
	}
}

func TestResampleInterpolates(t *testing.T) {
	got := Resample([]int16{0, 100, 200, 300}, 12000, 24000)
	want := []int16{0, 50, 100, 150, 200, 250, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSampleBytesRoundTrip(t *testing.T) {
	data := []byte{0x02, 0x01, 0xff, 0xff, 0x09}
	samples := BytesToSamples(data)
	if len(samples) != 2 || samples[0] != 0x0102 || samples[1] != -1 {
		t.Fatalf("BytesToSamples: got %v", samples)
	}
	back := SamplesToBytes(samples)
	for i, b := range data[:4] {
		if back[i] != b {
			t.Errorf("byte %d: got %#x, want %#x", i, back[i], b)
		}
	}
}

func TestChannelConversion(t *testing.T) {
	stereo := MonoToStereo([]int16{100, -200})
	want := []int16{100, 100, -200, -200}
	for i := range want {
		if stereo[i] != want[i] {
			t.Fatalf("MonoToStereo: got %v, want %v", stereo, want)
		}
	}

	mono := StereoToMono([]int16{100, 200, math.MaxInt16, math.MaxInt16})
	if mono[0] != 150 || mono[1] != math.MaxInt16 {
		t.Errorf("StereoToMono: got %v", mono)
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   int32
		want int16
	}{
		{0, 0},
		{40000, math.MaxInt16},
		{-40000, math.MinInt16},
		{-123, -123},
	}
	for _, tt := range tests {
		if got := clip(tt.in); got != tt.want {
			t.Errorf("clip(%d): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Errorf("empty: got %v", got)
	}
	if got := Level([]int16{0, 0}); got != 0 {
		t.Errorf("silence: got %v", got)
	}
	if got := Level([]int16{math.MaxInt16, -math.MaxInt16}); math.Abs(got-1) > 1e-9 {
		t.Errorf("full scale: got %v, want 1", got)
	}
}

func TestChunkDuration(t *testing.T) {
	tests := []struct {
		name  string
		chunk AudioChunk
		want  time.Duration
	}{
		{"mono 24k", AudioChunk{Samples: make([]int16, 2400), SampleRate: 24000, Channels: 1}, 100 * time.Millisecond},
		{"stereo 48k", AudioChunk{Samples: make([]int16, 9600), SampleRate: 48000, Channels: 2}, 100 * time.Millisecond},
		{"no rate", AudioChunk{Samples: make([]int16, 10)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chunk.Duration(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkResample(b *testing.B) {
	samples := make([]int16, 960)
	for i := range samples {
		samples[i] = int16(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Resample(samples, 48000, 24000)
	}
}

func BenchmarkMixerFill(b *testing.B) {
	m := NewMixer(24000, 1)
	m.SetAmbient(Ambient{Kind: AmbientBrown, Volume: 0.1})
	buf := make([]int16, 480)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Fill(buf)
	}
}
