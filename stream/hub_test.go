package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"

	"github.com/pthm-cable/sand/particle"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	waitClients(t, h, 2)

	states := []particle.State{
		{Position: mgl32.Vec3{1, 2, 3}, Velocity: mgl32.Vec3{0, 3, 4}},
		{Position: mgl32.Vec3{4, 5, 6}},
	}
	if err := h.Present(states, 0.05); err != nil {
		t.Fatal(err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		f := readFrame(t, conn)
		if f.Type != "frame" || f.Seq != 1 || f.Size != 0.05 {
			t.Errorf("header = %+v", f)
		}
		want := []float32{1, 2, 3, 4, 5, 6}
		if len(f.Positions) != len(want) {
			t.Fatalf("positions = %v", f.Positions)
		}
		for i := range want {
			if f.Positions[i] != want[i] {
				t.Errorf("positions[%d] = %v, want %v", i, f.Positions[i], want[i])
			}
		}
		if f.Speeds[0] != 5 || f.Speeds[1] != 0 {
			t.Errorf("speeds = %v", f.Speeds)
		}
	}
}

func TestHubSendsLastFrameOnConnect(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	h.Present([]particle.State{{Position: mgl32.Vec3{7, 8, 9}}}, 0.1)
	conn := dial(t, srv)

	f := readFrame(t, conn)
	if f.Seq != 1 || f.Positions[0] != 7 {
		t.Errorf("late joiner frame = %+v", f)
	}
}

func TestHubFramesInOrderForJoiningViewer(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	states := []particle.State{{Position: mgl32.Vec3{1, 1, 1}}}
	h.Present(states, 0.1)

	const frames = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < frames; i++ {
			h.Present(states, 0.1)
		}
	}()

	conn := dial(t, srv)
	var prev uint64
	for prev < frames+1 {
		f := readFrame(t, conn)
		if f.Seq <= prev {
			t.Fatalf("frame %d arrived after frame %d", f.Seq, prev)
		}
		prev = f.Seq
	}
	<-done
}

func TestHubControls(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"paused": true, "speed": 3}`)); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-h.Controls():
		if c.Paused == nil || !*c.Paused {
			t.Errorf("paused = %v", c.Paused)
		}
		if c.Speed == nil || *c.Speed != 3 {
			t.Errorf("speed = %v", c.Speed)
		}
		if c.Reset {
			t.Error("reset should be false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no control received")
	}
}

func TestHubDropsClosedViewer(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	waitClients(t, h, 1)
	conn.Close()
	waitClients(t, h, 0)

	if err := h.Present(nil, 0.1); err != nil {
		t.Errorf("Present with no viewers: %v", err)
	}
}
