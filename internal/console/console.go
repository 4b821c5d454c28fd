// Package console is the local display surface: a loopback HTTP + WebSocket
// server that pushes machine snapshots (state, role, the publishable blob)
// and accepts the pasted remote blob and lifecycle commands.
//
// The console renders exactly one instance's state. The blob itself still
// travels between the two machines by hand; nothing here talks to the remote
// peer.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VitHongHG/LANstream/internal/metrics"
	"github.com/VitHongHG/LANstream/internal/session"
)

const (
	wsWriteWait = 1 * time.Second

	// clientSendBuffer bounds the per-client snapshot queue; a slow client
	// drops intermediate snapshots and catches up on the next one.
	clientSendBuffer = 8

	maxCommandBytes = 64 << 10
)

// Controller is the slice of the state machine the console drives.
type Controller interface {
	SelectRole(ctx context.Context, role session.Role) error
	GenerateOffer() error
	ApplyRemoteAnswer(blob string) error
	ApplyRemoteOffer(blob string) error
	Reset()
	Role() session.Role
	Snapshot() session.Snapshot
}

type Server struct {
	ctl      Controller
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
}

func New(ctl Controller, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ctl:     ctl,
		metrics: m,
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			// The console binds to loopback; the page driving it is local.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Serve accepts console connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.httpSrv = &http.Server{Handler: s.Handler()}
	err := s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.closeSend()
	}
	s.clients = make(map[*client]struct{})
	srv := s.httpSrv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Publish implements session.Notifier: every machine transition is broadcast
// to the connected console clients.
func (s *Server) Publish(snap session.Snapshot) {
	payload, err := json.Marshal(s.wireSnapshot(snap))
	if err != nil {
		s.logger.Warn("encode snapshot", "err", err)
		return
	}

	s.mu.Lock()
	for c := range s.clients {
		c.trySend(payload)
	}
	s.mu.Unlock()
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.wireSnapshot(s.ctl.Snapshot()))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go c.writeLoop()

	// Seed the new client with the current state before any commands.
	if payload, err := json.Marshal(s.wireSnapshot(s.ctl.Snapshot())); err == nil {
		c.trySend(payload)
	}

	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.closeSend()
	_ = conn.Close()
}

func (s *Server) readLoop(c *client) {
	c.conn.SetReadLimit(maxCommandBytes)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			c.trySend(errorPayload("expected text message"))
			continue
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.trySend(errorPayload("invalid command"))
			continue
		}

		if err := s.dispatch(cmd); err != nil {
			c.trySend(errorPayload(err.Error()))
		}
	}
}

func (s *Server) dispatch(cmd command) error {
	switch cmd.Op {
	case "select_role":
		role, err := parseRole(cmd.Role)
		if err != nil {
			return err
		}
		return s.ctl.SelectRole(context.Background(), role)
	case "generate_offer":
		return s.ctl.GenerateOffer()
	case "apply_remote":
		// The pasted blob is the answer or the offer depending on our role.
		switch s.ctl.Role() {
		case session.RoleOfferer:
			return s.ctl.ApplyRemoteAnswer(cmd.Blob)
		case session.RoleAnswerer:
			return s.ctl.ApplyRemoteOffer(cmd.Blob)
		default:
			return session.ErrNoRole
		}
	case "reset":
		s.ctl.Reset()
		return nil
	default:
		return errors.New("unknown op")
	}
}

func (s *Server) wireSnapshot(snap session.Snapshot) wireSnapshot {
	out := wireSnapshot{
		Type:              "snapshot",
		State:             snap.State.String(),
		Role:              snap.Role.String(),
		LocalBlob:         snap.LocalBlob,
		GatheringComplete: snap.GatheringComplete,
		RemoteTrackIDs:    snap.RemoteTrackIDs,
		LastError:         snap.LastError,
	}
	if s.metrics != nil {
		out.Counters = s.metrics.Snapshot()
	}
	return out
}

func parseRole(raw string) (session.Role, error) {
	switch raw {
	case "offerer":
		return session.RoleOfferer, nil
	case "answerer":
		return session.RoleAnswerer, nil
	default:
		return session.RoleUnset, errors.New("role must be offerer or answerer")
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *client) trySend(payload []byte) {
	defer func() {
		// Racing a concurrent close of the send channel is tolerable; the
		// client is going away.
		_ = recover()
	}()
	select {
	case c.send <- payload:
	default:
	}
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *client) writeLoop() {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait),
	)
}

type command struct {
	Op   string `json:"op"`
	Role string `json:"role,omitempty"`
	Blob string `json:"blob,omitempty"`
}

type wireSnapshot struct {
	Type              string            `json:"type"`
	State             string            `json:"state"`
	Role              string            `json:"role"`
	LocalBlob         string            `json:"localBlob,omitempty"`
	GatheringComplete bool              `json:"gatheringComplete"`
	RemoteTrackIDs    []string          `json:"remoteTrackIds,omitempty"`
	LastError         string            `json:"lastError,omitempty"`
	Counters          map[string]uint64 `json:"counters,omitempty"`
}

func errorPayload(msg string) []byte {
	payload, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{Type: "error", Message: msg})
	return payload
}
