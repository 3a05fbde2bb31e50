package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/portwatch/portwatch/server/internal/metrics"
	"github.com/portwatch/portwatch/server/internal/monitor"
	"github.com/portwatch/portwatch/server/internal/status"
	wsHub "github.com/portwatch/portwatch/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// fakeSource serves a settable list of portfolio results.
type fakeSource struct {
	mu      sync.Mutex
	results []status.Result
	err     error
}

func (f *fakeSource) Snapshot(context.Context) (monitor.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return monitor.Snapshot{}, f.err
	}
	rs := append([]status.Result{}, f.results...)
	return monitor.Snapshot{
		GeneratedAt: time.Now().UTC(),
		Portfolios:  rs,
		Summary:     status.Summarize(rs),
	}, nil
}

func (f *fakeSource) set(rs ...status.Result) {
	f.mu.Lock()
	f.results = rs
	f.mu.Unlock()
}

func result(id string, band status.Band) status.Result {
	return status.Result{PortfolioID: id, Band: band, Color: band.Color()}
}

// startHub serves the hub from a test HTTP server and starts its Run loop.
func startHub(t *testing.T, src wsHub.Source) (string, *wsHub.Hub) {
	t.Helper()

	hub := wsHub.New(src, testInterval, metrics.New())
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestHub_Connect_ReceivesImmediateSnapshot(t *testing.T) {
	src := &fakeSource{}
	src.set(result("north", status.BandUpdated), result("south", status.Band2h))
	wsURL, _ := startHub(t, src)

	m := readMessage(t, dial(t, wsURL))
	if m.Event != "snapshot" {
		t.Errorf("event: got %q, want snapshot", m.Event)
	}
	if m.Data.GeneratedAt.IsZero() {
		t.Error("generated_at: missing")
	}
	if len(m.Data.Portfolios) != 2 {
		t.Fatalf("portfolios: got %d, want 2", len(m.Data.Portfolios))
	}
	if m.Data.Summary.Bands[status.Band2h] != 1 {
		t.Errorf("summary 2h: got %d, want 1", m.Data.Summary.Bands[status.Band2h])
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub := startHub(t, &fakeSource{})

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}

	conns[0].Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close
	if n := hub.Count(); n != 2 {
		t.Errorf("Count after disconnect: got %d, want 2", n)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	src := &fakeSource{}
	wsURL, _ := startHub(t, src)

	conn := dial(t, wsURL)
	if m := readMessage(t, conn); len(m.Data.Portfolios) != 0 {
		t.Fatalf("initial portfolios: got %d, want 0", len(m.Data.Portfolios))
	}

	src.set(result("north", status.BandLogging))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := readMessage(t, conn)
		if len(m.Data.Portfolios) == 1 && m.Data.Portfolios[0].Band == status.BandLogging {
			return
		}
	}
	t.Fatal("broadcast with the new portfolio never arrived")
}

func TestHub_SourceErrorSkipsBroadcast(t *testing.T) {
	src := &fakeSource{err: errors.New("store down")}
	wsURL, hub := startHub(t, src)

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(5 * testInterval))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no message while the source is failing")
	}
	if hub.Count() != 1 {
		t.Errorf("Count: got %d, want 1", hub.Count())
	}
}

func TestHub_ClosesClientsOnShutdown(t *testing.T) {
	hub := wsHub.New(&fakeSource{}, testInterval, nil)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	readMessage(t, conn)

	cancel()
	<-done

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}
	if hub.Count() != 0 {
		t.Errorf("Count after shutdown: got %d, want 0", hub.Count())
	}
}
