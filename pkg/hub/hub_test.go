package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/goleak"

	"github.com/teslashibe/go-focuscoach/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeConn records writes; ReadMessage blocks until Close.
type fakeConn struct {
	mu       sync.Mutex
	writes   []Message
	types    []int
	closed   chan struct{}
	once     sync.Once
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(t int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.types = append(f.types, t)
	if t == websocket.TextMessage || t == websocket.BinaryMessage {
		typ := JSONMessage
		if t == websocket.BinaryMessage {
			typ = BinaryMessage
		}
		f.writes = append(f.writes, Message{Type: typ, Data: data})
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.writes...)
}

func (f *fakeConn) sawClose() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.types {
		if t == websocket.CloseMessage {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func runHub(t *testing.T) (*Hub, context.CancelFunc, chan struct{}) {
	t.Helper()
	h := New("test", log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	waitFor(t, h.IsRunning)
	return h, cancel, stopped
}

func TestBroadcastFanOut(t *testing.T) {
	h, cancel, stopped := runHub(t)

	greeting, err := EncodeEnvelope("hello", map[string]int{"n": 1})
	if err != nil {
		t.Fatal(err)
	}

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			NewClient(h, c, greeting).Run()
		}()
	}
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]string{"status": "focused"}); err != nil {
		t.Fatal(err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	for i, c := range conns {
		waitFor(t, func() bool { return len(c.messages()) == 3 })
		msgs := c.messages()

		var env Envelope
		if err := json.Unmarshal(msgs[0].Data, &env); err != nil || env.Type != "hello" {
			t.Errorf("client %d greeting: %s (%v)", i, msgs[0].Data, err)
		}
		if string(msgs[1].Data) != `{"status":"focused"}` {
			t.Errorf("client %d json: %s", i, msgs[1].Data)
		}
		if msgs[2].Type != BinaryMessage || len(msgs[2].Data) != 2 {
			t.Errorf("client %d binary: %+v", i, msgs[2])
		}
	}

	// Disconnecting one client leaves the other.
	conns[0].Close()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	<-stopped
	wg.Wait()
	if !conns[1].sawClose() {
		t.Error("remaining client did not get a close frame on shutdown")
	}
	if h.ClientCount() != 0 || h.IsRunning() {
		t.Errorf("after stop: clients %d, running %v", h.ClientCount(), h.IsRunning())
	}
}

func TestSlowClientDropped(t *testing.T) {
	h, cancel, stopped := runHub(t)
	defer func() { cancel(); <-stopped }()

	// A client whose writer never drains: registered directly without
	// pumps so its buffer fills.
	slow := &Client{hub: h, conn: newFakeConn(), send: make(chan Message, 1)}
	if !h.join(slow) {
		t.Fatal("join failed")
	}
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Broadcast(NewJSONMessage([]byte(`1`)))
	h.Broadcast(NewJSONMessage([]byte(`2`)))
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	// The hub closed its channel after the buffered message.
	if m, ok := <-slow.send; !ok || string(m.Data) != "1" {
		t.Errorf("buffered message: %v %v", m, ok)
	}
	if _, ok := <-slow.send; ok {
		t.Error("send channel still open")
	}
}

func TestJoinAfterStop(t *testing.T) {
	h, cancel, stopped := runHub(t)
	cancel()
	<-stopped

	conn := newFakeConn()
	NewClient(h, conn).Run()
	select {
	case <-conn.closed:
	default:
		t.Error("connection left open after joining a stopped hub")
	}
}

func TestWriteErrorDisconnects(t *testing.T) {
	h, cancel, stopped := runHub(t)
	defer func() { cancel(); <-stopped }()

	conn := newFakeConn()
	conn.writeErr = errors.New("broken pipe")
	done := make(chan struct{})
	go func() {
		NewClient(h, conn).Run()
		close(done)
	}()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.BroadcastJSON("x")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not exit after a write error")
	}
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("idle", nil)
	for i := 0; i < broadcastBuffer+10; i++ {
		h.Broadcast(NewJSONMessage(nil))
	}
	if got := h.Dropped(); got != 10 {
		t.Errorf("Dropped: got %d, want 10", got)
	}
}
