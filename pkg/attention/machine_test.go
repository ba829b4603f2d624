package attention

import (
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-focuscoach/pkg/presence"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func present(ms int) presence.Signal {
	return presence.Signal{Timestamp: at(ms), Present: true, FaceCount: 1}
}

func absent(ms int) presence.Signal {
	return presence.Signal{Timestamp: at(ms)}
}

// recorder captures everything the machine emits.
type recorder struct {
	mu           sync.Mutex
	spoken       []string
	distractions []Event
	refocuses    []Event
	records      []Record
}

func (r *recorder) Speak(text string) {
	r.mu.Lock()
	r.spoken = append(r.spoken, text)
	r.mu.Unlock()
}

func (r *recorder) Observe(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnDistraction: func(e Event) {
			r.mu.Lock()
			r.distractions = append(r.distractions, e)
			r.mu.Unlock()
		},
		OnRefocus: func(e Event) {
			r.mu.Lock()
			r.refocuses = append(r.refocuses, e)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) kinds() []RecordKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordKind, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Kind
	}
	return out
}

func newMachine(t *testing.T, mutate func(*Config)) (*Machine, *recorder) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.UserName = "Sam"
	if mutate != nil {
		mutate(&cfg)
	}
	rec := &recorder{}
	m := New(cfg, rec, rec.callbacks(), rec)
	m.Start(at(0))
	return m, rec
}

func TestInitialStatus(t *testing.T) {
	m := New(DefaultConfig(), nil, Callbacks{})
	snap := m.Snapshot()
	if snap.Status != StatusChecking || snap.DisplayStatus() != StatusChecking {
		t.Errorf("initial status: got %s/%s, want checking", snap.Status, snap.DisplayStatus())
	}
	if snap.Active {
		t.Error("machine should start inactive")
	}
}

func TestDebounce(t *testing.T) {
	tests := []struct {
		name    string
		signals []presence.Signal
	}{
		{
			name:    "short absence",
			signals: []presence.Signal{present(0), absent(1000), absent(2000), absent(3000), present(3000)},
		},
		{
			name:    "absence exactly at threshold",
			signals: []presence.Signal{present(0), absent(2500), absent(5000), present(5100)},
		},
		{
			name:    "absence from session start",
			signals: []presence.Signal{absent(100), absent(4900), present(4950)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := newMachine(t, nil)
			for _, s := range tt.signals {
				m.Observe(s)
			}
			if len(rec.distractions) != 0 || len(rec.refocuses) != 0 {
				t.Errorf("events fired: distractions=%d refocuses=%d", len(rec.distractions), len(rec.refocuses))
			}
			if len(rec.spoken) != 0 {
				t.Errorf("spoken: got %v, want none", rec.spoken)
			}
			if got := m.Snapshot().Status; got != StatusFocused {
				t.Errorf("status: got %s, want focused", got)
			}
		})
	}
}

func TestOnsetFiresOnce(t *testing.T) {
	m, rec := newMachine(t, nil)
	m.Observe(present(0))

	for ms := 100; ms <= 12000; ms += 100 {
		m.Observe(absent(ms))
	}

	if len(rec.distractions) != 1 {
		t.Fatalf("distractions: got %d, want 1", len(rec.distractions))
	}
	ev := rec.distractions[0]
	if !ev.At.Equal(at(5100)) {
		t.Errorf("onset observed at %v, want first signal past threshold (5100ms)", ev.At.Sub(t0))
	}
	if ev.SinceLastPresence != 5100*time.Millisecond {
		t.Errorf("SinceLastPresence: got %v, want 5.1s", ev.SinceLastPresence)
	}
	if ev.Episode != 1 {
		t.Errorf("Episode: got %d, want 1", ev.Episode)
	}
	if len(rec.spoken) != 1 {
		t.Errorf("spoken: got %d messages, want 1", len(rec.spoken))
	}

	snap := m.Snapshot()
	if snap.Status != StatusDistracted || !snap.Away() {
		t.Errorf("state: got %s away=%v, want distracted with open episode", snap.Status, snap.Away())
	}
	if !snap.AwayStartedAt.Equal(at(5000)) {
		t.Errorf("AwayStartedAt: got %v, want 5000ms", snap.AwayStartedAt.Sub(t0))
	}
	if !snap.LastTransitionMessageAt.Equal(at(5100)) {
		t.Errorf("LastTransitionMessageAt: got %v, want 5100ms", snap.LastTransitionMessageAt.Sub(t0))
	}
}

func TestScenarioA(t *testing.T) {
	m, rec := newMachine(t, nil)

	m.Observe(present(0))
	m.Observe(absent(6000))

	if len(rec.distractions) != 1 {
		t.Fatalf("distractions after 6s gap: got %d, want 1", len(rec.distractions))
	}

	m.Observe(present(6500))

	if len(rec.refocuses) != 1 {
		t.Fatalf("refocuses: got %d, want 1", len(rec.refocuses))
	}
	ev := rec.refocuses[0]
	if ev.AwayDuration != 1500*time.Millisecond {
		t.Errorf("AwayDuration: got %v, want 1.5s", ev.AwayDuration)
	}
	if ev.Announced {
		t.Error("refocus 500ms after onset message should not be announced")
	}
	if len(rec.spoken) != 1 {
		t.Errorf("spoken: got %v, want only the distraction message", rec.spoken)
	}
	if got := m.TotalAway(); got != 1500*time.Millisecond {
		t.Errorf("TotalAway: got %v, want 1.5s", got)
	}
	if got := m.Snapshot().Status; got != StatusFocused {
		t.Errorf("status: got %s, want focused", got)
	}
}

func TestScenarioB(t *testing.T) {
	m, rec := newMachine(t, nil)

	m.Observe(present(0))
	for ms := 33; ms <= 3000; ms += 33 {
		m.Observe(absent(ms))
	}
	m.Observe(present(3033))

	if len(rec.distractions)+len(rec.refocuses) != 0 {
		t.Errorf("events: got %d distractions and %d refocuses, want none",
			len(rec.distractions), len(rec.refocuses))
	}
}

func TestRefocusFiresOnce(t *testing.T) {
	m, rec := newMachine(t, nil)

	m.Observe(present(0))
	m.Observe(absent(5500))
	m.Observe(absent(9000))
	m.Observe(present(10000))
	m.Observe(present(10100))
	m.Observe(present(10200))

	if len(rec.refocuses) != 1 {
		t.Fatalf("refocuses: got %d, want 1", len(rec.refocuses))
	}
	ev := rec.refocuses[0]
	if ev.AwayDuration != 5*time.Second {
		t.Errorf("AwayDuration: got %v, want 5s (10000 - onset 5000)", ev.AwayDuration)
	}
	if !ev.Announced {
		t.Error("refocus 4.5s after last message should be announced")
	}
	want := []string{
		"Sam, Don't get distracted now, we still have time to study. You're doing great!",
		"Great! You're back, Sam. Keep up the good work, fully focused",
	}
	if len(rec.spoken) != 2 || rec.spoken[0] != want[0] || rec.spoken[1] != want[1] {
		t.Errorf("spoken: got %q, want %q", rec.spoken, want)
	}
	if ev.Message != want[1] {
		t.Errorf("Message: got %q", ev.Message)
	}
}

func TestCooldown(t *testing.T) {
	tests := []struct {
		name          string
		refocusAt     int
		strict        bool
		wantCallbacks int
		wantSpoken    int
	}{
		{"inside cooldown", 7000, false, 1, 1},
		{"inside cooldown strict", 7000, true, 0, 1},
		{"at cooldown boundary", 8200, false, 1, 1},
		{"after cooldown", 8201, false, 1, 2},
		{"after cooldown strict", 8201, true, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := newMachine(t, func(c *Config) { c.CooldownSilencesCallback = tt.strict })

			m.Observe(present(0))
			m.Observe(absent(5200))
			m.Observe(present(tt.refocusAt))

			if len(rec.refocuses) != tt.wantCallbacks {
				t.Errorf("refocus callbacks: got %d, want %d", len(rec.refocuses), tt.wantCallbacks)
			}
			if len(rec.spoken) != tt.wantSpoken {
				t.Errorf("spoken: got %d, want %d", len(rec.spoken), tt.wantSpoken)
			}

			// State commits regardless of the cooldown.
			snap := m.Snapshot()
			if snap.Status != StatusFocused || snap.Away() {
				t.Errorf("state: got %s away=%v, want focused", snap.Status, snap.Away())
			}
			want := at(tt.refocusAt).Sub(at(5000))
			if snap.TotalAway != want {
				t.Errorf("TotalAway: got %v, want %v", snap.TotalAway, want)
			}
		})
	}
}

func TestSilentRefocusKeepsMessageClock(t *testing.T) {
	m, rec := newMachine(t, nil)

	m.Observe(present(0))
	m.Observe(absent(5100)) // message at 5100
	m.Observe(present(5200))
	m.Observe(absent(10300)) // message at 10300
	m.Observe(present(13400))

	if len(rec.refocuses) != 2 {
		t.Fatalf("refocuses: got %d, want 2", len(rec.refocuses))
	}
	if rec.refocuses[0].Announced {
		t.Error("first refocus should be silent")
	}
	if !rec.refocuses[1].Announced {
		t.Error("second refocus is 3.1s after the last message and should be announced")
	}
}

func TestTotalAwayAccumulates(t *testing.T) {
	m, rec := newMachine(t, nil)

	episodes := []struct{ lastSeen, absentAt, back int }{
		{0, 6000, 9000},
		{12000, 20000, 21000},
		{30000, 35001, 40000},
	}

	var want time.Duration
	prev := time.Duration(0)
	for _, ep := range episodes {
		m.Observe(present(ep.lastSeen))
		m.Observe(absent(ep.absentAt))

		// An open episode is not counted yet.
		if got := m.TotalAway(); got != prev {
			t.Errorf("TotalAway during open episode: got %v, want %v", got, prev)
		}

		m.Observe(present(ep.back))
		want += at(ep.back).Sub(at(ep.lastSeen + 5000))
		got := m.TotalAway()
		if got < prev {
			t.Errorf("TotalAway decreased: %v -> %v", prev, got)
		}
		prev = got
	}

	if m.TotalAway() != want {
		t.Errorf("TotalAway: got %v, want %v", m.TotalAway(), want)
	}
	var sum time.Duration
	for _, ev := range rec.refocuses {
		sum += ev.AwayDuration
	}
	if sum != want {
		t.Errorf("sum of refocus durations: got %v, want %v", sum, want)
	}
	if got := m.Snapshot().Episodes; got != 3 {
		t.Errorf("Episodes: got %d, want 3", got)
	}
}

func TestPendingDisplay(t *testing.T) {
	m, _ := newMachine(t, nil)

	m.Observe(present(0))
	m.Observe(absent(1000))

	snap := m.Snapshot()
	if snap.Status != StatusFocused {
		t.Errorf("Status: got %s, want focused until threshold", snap.Status)
	}
	if snap.DisplayStatus() != StatusDistracted {
		t.Errorf("DisplayStatus: got %s, want distracted while pending", snap.DisplayStatus())
	}
	if snap.FaceCount != 0 {
		t.Errorf("FaceCount: got %d, want 0", snap.FaceCount)
	}
	if snap.Away() {
		t.Error("pending absence must not open an episode")
	}
}

func TestInactiveIgnoresSignals(t *testing.T) {
	rec := &recorder{}
	m := New(DefaultConfig(), rec, rec.callbacks(), rec)

	m.Observe(present(0))
	m.Observe(absent(10000))

	snap := m.Snapshot()
	if snap.Status != StatusChecking || snap.Signals != 0 {
		t.Errorf("inactive machine changed state: %+v", snap)
	}
	if len(rec.distractions) != 0 {
		t.Error("inactive machine fired a distraction")
	}
}

func TestStopResetsAndRestartIsFresh(t *testing.T) {
	m, rec := newMachine(t, nil)

	m.Observe(present(0))
	m.Observe(absent(6000))
	m.Stop()
	m.Stop()

	snap := m.Snapshot()
	if snap.Status != StatusChecking || snap.Away() || snap.Active {
		t.Errorf("after Stop: got %+v", snap)
	}

	// Signals after stop are ignored, no stale refocus.
	m.Observe(present(7000))
	if len(rec.refocuses) != 0 {
		t.Error("refocus fired after Stop")
	}

	// Restarting must not resume the old episode.
	m.Start(at(60000))
	if got := m.TotalAway(); got != 0 {
		t.Errorf("TotalAway after restart: got %v, want 0", got)
	}
	m.Observe(absent(61000))
	if len(rec.distractions) != 1 {
		t.Errorf("distractions after restart: got %d, want still 1", len(rec.distractions))
	}
	m.Observe(absent(65001))
	if len(rec.distractions) != 2 {
		t.Errorf("distractions: got %d, want 2 once the fresh threshold passes", len(rec.distractions))
	}
}

func TestReset(t *testing.T) {
	m, rec := newMachine(t, nil)

	m.Observe(present(0))
	m.Observe(absent(6000))
	m.Reset(at(7000))

	snap := m.Snapshot()
	if snap.Status != StatusChecking || snap.Away() {
		t.Errorf("after Reset: got %s away=%v", snap.Status, snap.Away())
	}
	if snap.TotalAway != 2*time.Second {
		t.Errorf("TotalAway: got %v, want open episode time 2s", snap.TotalAway)
	}
	if len(rec.refocuses) != 0 {
		t.Error("Reset must not fire refocus")
	}

	m.Observe(present(7100))
	if got := m.Snapshot().Status; got != StatusFocused {
		t.Errorf("status after reset: got %s, want focused", got)
	}
}

func TestVoicePanicDoesNotBreakState(t *testing.T) {
	rec := &recorder{}
	cfg := DefaultConfig()
	voice := VoiceFunc(func(string) { panic("speaker unplugged") })
	m := New(cfg, voice, rec.callbacks(), rec)
	m.Start(at(0))

	m.Observe(present(0))
	m.Observe(absent(5500))

	if len(rec.distractions) != 1 {
		t.Errorf("distraction callback: got %d, want 1", len(rec.distractions))
	}
	if got := m.Snapshot().Status; got != StatusDistracted {
		t.Errorf("status: got %s, want distracted", got)
	}

	found := false
	for _, k := range rec.kinds() {
		if k == RecordSinkPanic {
			found = true
		}
	}
	if !found {
		t.Error("expected a sink panic record")
	}
}

func TestObserverRecords(t *testing.T) {
	m, rec := newMachine(t, nil)

	m.Observe(present(0))
	m.Observe(absent(1000))
	m.Observe(absent(6000))
	m.Observe(present(10000))
	m.Stop()

	want := []RecordKind{
		RecordStart, RecordSignal, RecordPending, RecordDistraction, RecordRefocus, RecordStop,
	}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("records: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestConcurrentObserve(t *testing.T) {
	m, rec := newMachine(t, nil)
	m.Observe(present(0))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				m.Observe(absent(6000 + i))
			}
		}()
	}
	wg.Wait()

	if len(rec.distractions) != 1 {
		t.Errorf("distractions under concurrent signals: got %d, want 1", len(rec.distractions))
	}
}

func TestMissingTimestampUsesClock(t *testing.T) {
	m, rec := newMachine(t, nil)
	now := at(0)
	m.SetClock(func() time.Time { return now })

	m.Observe(presence.Signal{Present: true})
	now = at(5001)
	m.Observe(presence.Signal{})

	if len(rec.distractions) != 1 {
		t.Errorf("distractions: got %d, want 1", len(rec.distractions))
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		tmpl, name, want string
	}{
		{"{name}, eyes on the prize!", "Ada", "Ada, eyes on the prize!"},
		{"{name}, eyes on the prize!", "", "Eyes on the prize!"},
		{"Welcome back, {name}! Let's go.", "", "Welcome back! Let's go."},
		{"Only 5 minutes left, stay strong, {name}!", "  ", "Only 5 minutes left, stay strong!"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Render(tt.tmpl, tt.name); got != tt.want {
				t.Errorf("Render(%q, %q) = %q, want %q", tt.tmpl, tt.name, got, tt.want)
			}
		})
	}
}
