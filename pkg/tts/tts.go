// Package tts synthesizes coach prompts into speech.
//
// Providers return complete 16-bit PCM clips so they can be played straight
// through the audio sink. ElevenLabs is the primary voice; OpenAI serves as
// a fallback when chained:
//
//	primary, _ := tts.NewElevenLabs(tts.WithAPIKey(key), tts.WithVoice("sarah"))
//	chain, _ := tts.NewChain(primary, fallback)
//	clip, _ := chain.Synthesize(ctx, "Stay focused!")
package tts

import (
	"context"
	"time"
)

// Provider converts text to audio.
type Provider interface {
	// Synthesize returns the complete audio for text.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks connectivity and credentials.
	Health(ctx context.Context) error

	Close() error
}

// AudioResult is a synthesized clip.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration
	CharCount int
	LatencyMs int64
	Provider  string
}

// AudioFormat describes PCM audio.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names an output format using the ElevenLabs spelling.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
)

// VoiceSettings controls ElevenLabs voice characteristics.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	SpeakerBoost    bool    `json:"use_speaker_boost,omitempty"`
}

// DefaultVoiceSettings balances consistency and likeness equally.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.5,
	}
}

// SampleRateFromEncoding returns the sample rate of enc.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

// pcmFormat returns the mono PCM16 format for enc.
func pcmFormat(enc Encoding) AudioFormat {
	return AudioFormat{
		Encoding:   enc,
		SampleRate: SampleRateFromEncoding(enc),
		Channels:   1,
		BitDepth:   16,
	}
}

// PCMDuration returns the playback length of n bytes of PCM16 in format f.
func PCMDuration(n int, f AudioFormat) time.Duration {
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	if f.SampleRate <= 0 {
		return 0
	}
	samples := n / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
