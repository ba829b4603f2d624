package audioio

import (
	"math"
	"sync"
	"sync/atomic"
)

// Playback is one enqueued clip.
type Playback struct {
	samples []int16
	pos     int

	done chan struct{}
	once sync.Once
	err  error
}

func (p *Playback) finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed when the clip has finished or been interrupted.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err returns nil for a clip that played to the end and ErrInterrupted
// otherwise. Only valid after Done is closed.
func (p *Playback) Err() error {
	<-p.done
	return p.err
}

// Mixer produces device periods from the current clip and the ambient bed.
// Fill is called from the audio callback; the other methods from anywhere.
type Mixer struct {
	rate     int
	channels int

	mu      sync.Mutex
	current *Playback
	ambient Ambient
	noise   *noise

	played      atomic.Int64
	interrupted atomic.Int64
	frames      atomic.Int64
	level       atomic.Uint64 // math.Float64bits of the last period's RMS
}

// NewMixer creates a mixer for the given device format.
func NewMixer(rate, channels int) *Mixer {
	return &Mixer{
		rate:     rate,
		channels: channels,
		noise:    newNoise(1),
	}
}

// Enqueue makes chunk the current clip. A clip still playing is
// interrupted.
func (m *Mixer) Enqueue(chunk AudioChunk) *Playback {
	pb := &Playback{
		samples: chunk.convert(m.rate, m.channels),
		done:    make(chan struct{}),
	}
	if len(pb.samples) == 0 {
		pb.finish(nil)
		m.played.Add(1)
		return pb
	}

	m.mu.Lock()
	prev := m.current
	m.current = pb
	m.mu.Unlock()

	if prev != nil {
		m.interrupted.Add(1)
		prev.finish(ErrInterrupted)
	}
	return pb
}

// Cancel interrupts pb if it is still the current clip.
func (m *Mixer) Cancel(pb *Playback) {
	m.mu.Lock()
	if m.current != pb {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	m.interrupted.Add(1)
	pb.finish(ErrInterrupted)
}

// Clear interrupts the current clip, if any.
func (m *Mixer) Clear() {
	m.mu.Lock()
	pb := m.current
	m.mu.Unlock()
	if pb != nil {
		m.Cancel(pb)
	}
}

// Speaking reports whether a clip is playing.
func (m *Mixer) Speaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// SetAmbient changes the noise bed.
func (m *Mixer) SetAmbient(a Ambient) {
	a = a.normalize()
	m.mu.Lock()
	m.ambient = a
	m.mu.Unlock()
}

// Ambient returns the noise bed.
func (m *Mixer) Ambient() Ambient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ambient
}

// Fill writes one period of interleaved samples into out.
func (m *Mixer) Fill(out []int16) {
	clear(out)

	m.mu.Lock()
	if m.ambient.Enabled() {
		m.noise.fill(out, m.channels, m.ambient)
	}

	var finished *Playback
	if pb := m.current; pb != nil {
		for i := 0; i < len(out) && pb.pos < len(pb.samples); i++ {
			out[i] = clip(int32(out[i]) + int32(pb.samples[pb.pos]))
			pb.pos++
		}
		if pb.pos >= len(pb.samples) {
			m.current = nil
			finished = pb
		}
	}
	m.mu.Unlock()

	if finished != nil {
		m.played.Add(1)
		finished.finish(nil)
	}
	m.frames.Add(int64(len(out) / max(m.channels, 1)))
	m.level.Store(math.Float64bits(Level(out)))
}

// stats fills the mixer's share of SinkStats.
func (m *Mixer) stats(s *SinkStats) {
	s.ClipsPlayed = m.played.Load()
	s.ClipsInterrupted = m.interrupted.Load()
	s.FramesWritten = m.frames.Load()
	s.Speaking = m.Speaking()
	s.Level = math.Float64frombits(m.level.Load())
	s.Ambient = m.Ambient()
}
