package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VitHongHG/LANstream/internal/metrics"
	"github.com/VitHongHG/LANstream/internal/session"
)

type fakeController struct {
	mu      sync.Mutex
	role    session.Role
	calls   []string
	lastArg string
	err     error
}

func (c *fakeController) record(call, arg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	c.lastArg = arg
	return c.err
}

func (c *fakeController) SelectRole(_ context.Context, role session.Role) error {
	c.mu.Lock()
	c.role = role
	c.mu.Unlock()
	return c.record("select_role", role.String())
}

func (c *fakeController) GenerateOffer() error { return c.record("generate_offer", "") }

func (c *fakeController) ApplyRemoteAnswer(blob string) error {
	return c.record("apply_remote_answer", blob)
}

func (c *fakeController) ApplyRemoteOffer(blob string) error {
	return c.record("apply_remote_offer", blob)
}

func (c *fakeController) Reset() { _ = c.record("reset", "") }

func (c *fakeController) Role() session.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *fakeController) Snapshot() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return session.Snapshot{State: session.StateIdle, Role: c.role, LocalBlob: "seed-blob"}
}

func (c *fakeController) lastCall() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return "", ""
	}
	return c.calls[len(c.calls)-1], c.lastArg
}

func newTestConsole(t *testing.T, ctl *fakeController) (*Server, *websocket.Conn, *httptest.Server) {
	t.Helper()

	srv := New(ctl, metrics.New(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return srv, conn, ts
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return out
}

func waitForCall(t *testing.T, ctl *fakeController, want string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if call, arg := ctl.lastCall(); call == want {
			return arg
		}
		time.Sleep(5 * time.Millisecond)
	}
	call, _ := ctl.lastCall()
	t.Fatalf("last call = %q, want %q", call, want)
	return ""
}

func TestWS_SeedsNewClientWithSnapshot(t *testing.T) {
	ctl := &fakeController{}
	_, conn, _ := newTestConsole(t, ctl)

	msg := readMessage(t, conn)
	if msg["type"] != "snapshot" {
		t.Fatalf("first message type = %v, want snapshot", msg["type"])
	}
	if msg["localBlob"] != "seed-blob" {
		t.Fatalf("seed blob = %v", msg["localBlob"])
	}
}

func TestWS_DispatchesCommands(t *testing.T) {
	ctl := &fakeController{}
	_, conn, _ := newTestConsole(t, ctl)
	readMessage(t, conn) // seed snapshot

	send := func(cmd string) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
			t.Fatalf("write %q: %v", cmd, err)
		}
	}

	send(`{"op":"select_role","role":"offerer"}`)
	waitForCall(t, ctl, "select_role")

	send(`{"op":"generate_offer"}`)
	waitForCall(t, ctl, "generate_offer")

	// With the offerer role active, a pasted blob is treated as the answer.
	send(`{"op":"apply_remote","blob":"the-answer"}`)
	if arg := waitForCall(t, ctl, "apply_remote_answer"); arg != "the-answer" {
		t.Fatalf("blob = %q", arg)
	}

	send(`{"op":"reset"}`)
	waitForCall(t, ctl, "reset")
}

func TestWS_RoutesPasteByRole(t *testing.T) {
	ctl := &fakeController{role: session.RoleAnswerer}
	_, conn, _ := newTestConsole(t, ctl)
	readMessage(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"apply_remote","blob":"the-offer"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if arg := waitForCall(t, ctl, "apply_remote_offer"); arg != "the-offer" {
		t.Fatalf("blob = %q", arg)
	}
}

func TestWS_PasteWithoutRoleFails(t *testing.T) {
	ctl := &fakeController{}
	_, conn, _ := newTestConsole(t, ctl)
	readMessage(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"apply_remote","blob":"x"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readMessage(t, conn)
	if msg["type"] != "error" {
		t.Fatalf("message type = %v, want error", msg["type"])
	}
	if !strings.Contains(msg["message"].(string), "no role") {
		t.Fatalf("error message = %v", msg["message"])
	}
}

func TestWS_UnknownOpReportsError(t *testing.T) {
	ctl := &fakeController{}
	_, conn, _ := newTestConsole(t, ctl)
	readMessage(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"self_destruct"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readMessage(t, conn)
	if msg["type"] != "error" {
		t.Fatalf("message type = %v, want error", msg["type"])
	}
}

func TestPublish_BroadcastsToClients(t *testing.T) {
	ctl := &fakeController{}
	srv, conn, _ := newTestConsole(t, ctl)
	readMessage(t, conn)

	srv.Publish(session.Snapshot{
		State:     session.StateConnected,
		Role:      session.RoleOfferer,
		LocalBlob: "fresh-blob",
	})

	msg := readMessage(t, conn)
	if msg["state"] != "connected" || msg["localBlob"] != "fresh-blob" {
		t.Fatalf("broadcast snapshot = %v", msg)
	}
}

func TestHTTPSnapshotEndpoint(t *testing.T) {
	ctl := &fakeController{role: session.RoleOfferer}
	srv := New(ctl, metrics.New(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var snap wireSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Role != "offerer" || snap.LocalBlob != "seed-blob" {
		t.Fatalf("snapshot = %+v", snap)
	}

	resp2, err := http.Post(ts.URL+"/snapshot", "application/json", nil)
	if err != nil {
		t.Fatalf("post snapshot: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status = %d, want 405", resp2.StatusCode)
	}
}
