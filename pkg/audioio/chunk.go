package audioio

import "time"

// AudioChunk is interleaved PCM16 audio.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// ChunkFromBytes decodes little-endian PCM16 bytes.
func ChunkFromBytes(data []byte, sampleRate, channels int) AudioChunk {
	return AudioChunk{
		Samples:    BytesToSamples(data),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Bytes encodes the chunk as little-endian PCM16.
func (c AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the playback length.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// convert returns the chunk at the given rate and channel count.
func (c AudioChunk) convert(rate, channels int) []int16 {
	samples := c.Samples
	srcChannels := c.Channels
	if srcChannels <= 0 {
		srcChannels = 1
	}
	if srcChannels == 2 && channels == 1 {
		samples = StereoToMono(samples)
		srcChannels = 1
	}
	if c.SampleRate > 0 && c.SampleRate != rate {
		if srcChannels == 2 {
			samples = MonoToStereo(Resample(StereoToMono(samples), c.SampleRate, rate))
		} else {
			samples = Resample(samples, c.SampleRate, rate)
		}
	}
	if srcChannels == 1 && channels == 2 {
		samples = MonoToStereo(samples)
	}
	return samples
}
