package realtime_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsprackett/chargewatch/internal/realtime"
)

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWSDialer_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome"}`))
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		c.WriteMessage(websocket.TextMessage, msg)
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4000, "bye"))
		c.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := realtime.WSDialer{}.Dial(ctx, wsURL(srv), "secret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(realtime.CloseNormalClosure, "done")

	got, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"type":"welcome"}` {
		t.Errorf("binary frame should be skipped, got %q", got)
	}

	if err := conn.WriteMessage([]byte(`{"type":"heartbeat"}`)); err != nil {
		t.Fatal(err)
	}
	got, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"type":"heartbeat"}` {
		t.Errorf("echo: got %q", got)
	}

	_, err = conn.ReadMessage()
	var ce *realtime.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CloseError, got %v", err)
	}
	if ce.Code != 4000 || ce.Reason != "bye" {
		t.Errorf("close: got %d %q", ce.Code, ce.Reason)
	}
}

func TestWSDialer_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := realtime.WSDialer{HandshakeTimeout: time.Second}.Dial(context.Background(), wsURL(srv), "bad")
	if err == nil {
		t.Fatal("expected handshake error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry the status, got %v", err)
	}
}
