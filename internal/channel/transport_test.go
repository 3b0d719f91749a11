package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trafficpulse/livemap/internal/domain"
)

// wsTestServer upgrades one connection and echoes every frame back with an
// "echo:" prefix until the peer disconnects.
func wsTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := wsTestServer(t)

	tr := NewWebSocket()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := tr.Open(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if err := conn.Send([]byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	data, err := conn.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got := string(data); got != `echo:{"type":"ping"}` {
		t.Errorf("frame: got %q", got)
	}
}

func TestWebSocketOpenFailureIsConnectError(t *testing.T) {
	// A plain HTTP endpoint refuses the upgrade.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	tr := NewWebSocket()
	_, err := tr.Open(context.Background(), wsURL(srv))
	var connErr *domain.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectError, got %T: %v", err, err)
	}
	if connErr.Endpoint == "" {
		t.Error("ConnectError should carry the endpoint")
	}
}

func TestWebSocketOpenHonorsContext(t *testing.T) {
	srv := wsTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewWebSocket()
	if _, err := tr.Open(ctx, wsURL(srv)); err == nil {
		t.Fatal("expected a dial failure with a cancelled context")
	}
}

func TestWebSocketReceiveAfterPeerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close() // hang up immediately
	}))
	t.Cleanup(srv.Close)

	tr := NewWebSocket()
	conn, err := tr.Open(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	_, err = conn.Receive()
	var trErr *domain.TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if trErr.Op != "receive" {
		t.Errorf("op: got %q, want receive", trErr.Op)
	}
}
