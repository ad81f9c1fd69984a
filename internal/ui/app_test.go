package ui

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zsprackett/chargewatch/internal/api"
	"github.com/zsprackett/chargewatch/internal/auth"
	"github.com/zsprackett/chargewatch/internal/db"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAcknowledge_ShowsClearedToast(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatal(err)
	}

	a := NewApp(api.New(srv.URL, auth.Static("tok")), store, &db.Credential{FullName: "Ada"}, discardLogger())
	a.onAcknowledge()

	if got := a.dash.toast.GetText(true); !strings.Contains(got, ClearedMessage) {
		t.Errorf("toast: got %q want %q", got, ClearedMessage)
	}

	// Wait for the reload the acknowledgement started.
	deadline := time.Now().Add(2 * time.Second)
	for requests.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if requests.Load() == 0 {
		t.Fatal("acknowledge should reload the view")
	}
	a.reloadMu.Lock()
	a.reloadMu.Unlock()
}
