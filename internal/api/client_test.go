package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zsprackett/chargewatch/internal/api"
	"github.com/zsprackett/chargewatch/internal/auth"
)

func TestSignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/signin" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("sign-in must not send a bearer token")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "ops@example.com" || body["password"] != "hunter2" {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","user":{"id":1,"email":"ops@example.com","full_name":"Ops","is_admin":true}}`))
	}))
	defer srv.Close()

	c := api.New(srv.URL+"/", nil)
	resp, err := c.SignIn(context.Background(), "ops@example.com", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	want := &api.SignInResponse{
		AccessToken: "tok",
		TokenType:   "bearer",
		User:        api.User{ID: "1", Email: "ops@example.com", FullName: "Ops", IsAdmin: true},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("sign-in mismatch (-want +got):\n%s", diff)
	}
}

func TestSignIn_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"Incorrect email or password"}`))
	}))
	defer srv.Close()

	_, err := api.New(srv.URL, nil).SignIn(context.Background(), "a@b.c", "x")
	var se *api.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 400 || se.Detail != "Incorrect email or password" {
		t.Errorf("unexpected error %+v", se)
	}
}

func TestStatusError_NoDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>upstream down</html>"))
	}))
	defer srv.Close()

	_, err := api.New(srv.URL, nil).SignIn(context.Background(), "a@b.c", "x")
	var se *api.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Detail != "" {
		t.Errorf("detail should be empty for a non-JSON body, got %q", se.Detail)
	}
	if se.Body != "<html>upstream down</html>" {
		t.Errorf("body: got %q", se.Body)
	}
}

func TestDashboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{
			"statistics": {"total_stations": 2, "total_charge_points": 6, "total_users": 10, "active_sessions": 1},
			"station_status": [{"station_name": "Depot", "available": 3, "charging": 1, "unavailable": 0}]
		}`))
	}))
	defer srv.Close()

	d, err := api.New(srv.URL, auth.Static("tok")).Dashboard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if d.Statistics.TotalChargePoints != 6 || d.Statistics.ActiveSessions != 1 {
		t.Errorf("unexpected statistics %+v", d.Statistics)
	}
	if len(d.StationStatus) != 1 || d.StationStatus[0].StationName != "Depot" {
		t.Errorf("unexpected stations %+v", d.StationStatus)
	}
}

func TestUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := api.New(srv.URL, auth.Static("stale")).ActiveSessions(context.Background())
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestNoToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := api.New(srv.URL, auth.Static("")).Me(context.Background())
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if called {
		t.Error("request sent without a token")
	}
}

func TestStartStopCharging(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		switch r.URL.Path {
		case "/charging/start":
			w.Write([]byte(`{"id":"s-1","charge_point_id":4,"start_time":"2026-01-01T12:00:00.123456","is_active":true}`))
		case "/charging/stop":
			w.Write([]byte(`{"id":"s-1","charge_point_id":4,"start_time":"2026-01-01T12:00:00","end_time":"2026-01-01T13:00:00","energy_consumed_kwh":11.5}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := api.New(srv.URL, auth.Static("tok"))
	s, err := c.StartCharging(context.Background(), "4")
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "s-1" || !s.IsActive || s.Started().IsZero() {
		t.Errorf("unexpected session %+v", s)
	}
	s, err = c.StopCharging(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.EnergyConsumedKWh != 11.5 {
		t.Errorf("energy: got %v", s.EnergyConsumedKWh)
	}

	// Numeric ids go out as numbers, opaque ids as strings.
	if bodies[0]["charge_point_id"] != float64(4) {
		t.Errorf("start body: %v", bodies[0])
	}
	if bodies[1]["session_id"] != "s-1" {
		t.Errorf("stop body: %v", bodies[1])
	}
}
