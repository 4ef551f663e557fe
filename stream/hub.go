// Package stream publishes particle frames to browser viewers over
// WebSocket and relays their playback controls back to the run loop.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/sand/particle"
)

// Frame is the JSON message sent to viewers after a published step.
type Frame struct {
	Type      string    `json:"type"`
	Seq       uint64    `json:"seq"`
	Size      float32   `json:"size"`      // particle radius
	Positions []float32 `json:"positions"` // xyz triples
	Speeds    []float32 `json:"speeds"`
}

// Control is a message from a viewer. Absent fields leave state unchanged.
type Control struct {
	Paused *bool `json:"paused,omitempty"`
	Reset  bool  `json:"reset,omitempty"`
	Speed  *int  `json:"speed,omitempty"` // steps per published frame
}

// Hub fans frames out to every connected viewer.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex // per-connection write lock
	last    []byte
	seq     uint64

	controls chan Control
}

// NewHub creates a hub with no viewers.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		controls: make(chan Control, 16),
	}
}

// Controls delivers viewer controls. Messages are dropped when the run
// loop falls behind.
func (h *Hub) Controls() <-chan Control { return h.controls }

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves one viewer until it hangs up.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	// The cached frame goes out under the registration lock so no newer
	// broadcast can overtake it.
	lock := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = lock
	if h.last != nil {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		err = conn.WriteMessage(websocket.TextMessage, h.last)
	}
	if err != nil {
		delete(h.clients, conn)
	}
	viewers := len(h.clients)
	h.mu.Unlock()
	if err != nil {
		slog.Warn("websocket write failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("viewer connected", "remote", r.RemoteAddr, "viewers", viewers)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		slog.Info("viewer disconnected", "remote", r.RemoteAddr)
	}()

	for {
		var msg Control
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		select {
		case h.controls <- msg:
		default:
			slog.Warn("viewer control dropped", "remote", r.RemoteAddr)
		}
	}
}

// Present encodes states and sends them to every viewer. A viewer whose
// write fails is disconnected.
func (h *Hub) Present(states []particle.State, size float32) error {
	// Encoding, caching and broadcasting under one lock keeps every viewer's
	// frames in sequence order, including one that is joining.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	frame := Frame{
		Type:      "frame",
		Seq:       h.seq,
		Size:      size,
		Positions: make([]float32, 0, 3*len(states)),
		Speeds:    make([]float32, len(states)),
	}

	for i, s := range states {
		frame.Positions = append(frame.Positions, s.Position[:]...)
		frame.Speeds[i] = s.Velocity.Len()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("stream: encoding frame %d: %w", frame.Seq, err)
	}

	h.last = data
	for conn, lock := range h.clients {
		lock.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		err := conn.WriteMessage(websocket.TextMessage, data)
		lock.Unlock()
		if err != nil {
			slog.Warn("websocket write failed", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
	return nil
}

// ListenAndServe serves the hub at /ws until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("stream listening", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("stream: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("stream: shutdown: %w", err)
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stream: %w", err)
		}
		return nil
	}
}
