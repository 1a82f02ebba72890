package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var (
	testLog      = slog.New(slog.NewTextHandler(io.Discard, nil))
	testUpgrader = websocket.Upgrader{}
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEmitWithAckRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Event == "acceptRide" && env.ID != "" {
				reply := Envelope{Event: env.Event, ID: env.ID, Data: json.RawMessage(`{"success":true}`)}
				_ = conn.WriteJSON(reply)
			}
		}
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv), "tok", testLog)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitFor(t, c.Connected, "never connected")

	ackCtx, ackCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer ackCancel()
	reply, err := c.EmitWithAck(ackCtx, "acceptRide", map[string]string{"rideId": "R1"})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(reply, &out); err != nil || !out.Success {
		t.Fatalf("bad reply %s err=%v", reply, err)
	}
}

func TestSubscribePreservesArrivalOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 5; i++ {
			data, _ := json.Marshal(map[string]int{"seq": i})
			_ = conn.WriteJSON(Envelope{Event: "newRideRequest", Data: data})
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv), "", testLog)
	var seen atomic.Int32
	seqs := make([]int, 0, 5)
	done := make(chan struct{})
	c.Subscribe("newRideRequest", func(data json.RawMessage) {
		var p struct {
			Seq int `json:"seq"`
		}
		_ = json.Unmarshal(data, &p)
		seqs = append(seqs, p.Seq) // serial dispatch, no lock needed
		if seen.Add(1) == 5 {
			close(done)
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for events")
	}
	for i, s := range seqs {
		if s != i {
			t.Fatalf("out of order delivery: %v", seqs)
		}
	}
}

func TestEmitWhileDisconnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", "", testLog)
	if err := c.Emit("driverLocationUpdate", map[string]int{}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connects.Add(1)
		if n == 1 {
			conn.Close() // drop the first session immediately
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv), "", testLog)
	var drops atomic.Int32
	c.OnDisconnect(func(err error) { drops.Add(1) })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, func() bool { return connects.Load() >= 2 && c.Connected() }, "never reconnected")
	if drops.Load() < 1 {
		t.Fatal("disconnect hook never fired")
	}
}
