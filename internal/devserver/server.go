// Package devserver is an in-memory stand-in for the charging platform:
// JWT sign-in, the dashboard and session endpoints, and the
// charging-updates WebSocket stream.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zsprackett/chargewatch/internal/api"
	"github.com/zsprackett/chargewatch/internal/events"
)

const (
	StreamPath      = "/charging/ws/charging-updates"
	defaultTokenTTL = 12 * time.Hour
)

// Charge point statuses as reported by the dashboard.
const (
	StatusAvailable   = "available"
	StatusCharging    = "charging"
	StatusUnavailable = "unavailable"
)

type Account struct {
	Email        string
	PasswordHash string
	FullName     string
	IsAdmin      bool
}

type Config struct {
	Addr      string
	JWTSecret string
	Accounts  []Account
	TokenTTL  time.Duration
}

type ChargePoint struct {
	ID     int
	Status string
}

type Station struct {
	ID           int
	Name         string
	ChargePoints []*ChargePoint
}

type session struct {
	api.Session
	owner     string
	stationID int
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	stations []*Station
	sessions map[string]*session

	hub *hub

	httpMu sync.Mutex
	http   *http.Server
}

func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("devserver: jwtSecret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "devserver")
	return &Server{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		stations: seedStations(),
		sessions: make(map[string]*session),
		hub:      newHub(logger),
	}, nil
}

func seedStations() []*Station {
	return []*Station{
		{ID: 1, Name: "Downtown Hub", ChargePoints: []*ChargePoint{
			{ID: 1, Status: StatusAvailable},
			{ID: 2, Status: StatusAvailable},
			{ID: 3, Status: StatusAvailable},
		}},
		{ID: 2, Name: "Airport P2", ChargePoints: []*ChargePoint{
			{ID: 4, Status: StatusAvailable},
			{ID: 5, Status: StatusUnavailable},
		}},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signin", s.handleSignIn)
	mux.HandleFunc("GET /auth/me", s.handleMe)
	mux.HandleFunc("GET /admin/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /charging/sessions/active", s.handleActiveSessions)
	mux.HandleFunc("POST /charging/start", s.handleStart)
	mux.HandleFunc("POST /charging/stop", s.handleStop)
	mux.HandleFunc("GET "+StreamPath, s.handleStream)
	return jwtMiddleware(s.cfg.JWTSecret, []string{"/auth/signin"}, mux)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.httpMu.Lock()
	s.http = srv
	s.httpMu.Unlock()
	s.logger.Info("listening", "addr", l.Addr().String())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on cfg.Addr.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(l)
}

// Shutdown closes every stream with 1001 and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	s.httpMu.Lock()
	srv := s.http
	s.httpMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) account(email string) (Account, events.Identifier, bool) {
	for i, a := range s.cfg.Accounts {
		if a.Email == email {
			return a, events.Identifier(fmt.Sprint(i + 1)), true
		}
	}
	return Account{}, "", false
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if !claims.IsAdmin {
		writeDetail(w, http.StatusForbidden, "Admin privileges required")
		return
	}

	s.mu.Lock()
	var d api.Dashboard
	d.Statistics.TotalStations = len(s.stations)
	d.Statistics.TotalUsers = len(s.cfg.Accounts)
	d.StationStatus = []api.StationStatus{}
	for _, st := range s.stations {
		row := api.StationStatus{StationName: st.Name}
		for _, cp := range st.ChargePoints {
			d.Statistics.TotalChargePoints++
			switch cp.Status {
			case StatusAvailable:
				row.Available++
			case StatusCharging:
				row.Charging++
			default:
				row.Unavailable++
			}
		}
		d.StationStatus = append(d.StationStatus, row)
	}
	for _, sess := range s.sessions {
		if sess.IsActive {
			d.Statistics.ActiveSessions++
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	s.mu.Lock()
	out := []api.Session{}
	for _, sess := range s.sessions {
		if sess.IsActive && (claims.IsAdmin || sess.owner == claims.Subject) {
			out = append(out, sess.Session)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	writeJSON(w, http.StatusOK, out)
}

type startBody struct {
	ChargePointID events.Identifier `json:"charge_point_id"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body startBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChargePointID == "" {
		writeDetail(w, http.StatusBadRequest, "charge_point_id is required")
		return
	}
	acct, userID, _ := s.account(claims.Subject)

	s.mu.Lock()
	st, cp := s.findChargePoint(string(body.ChargePointID))
	if cp == nil {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Charge point not found")
		return
	}
	if cp.Status != StatusAvailable {
		s.mu.Unlock()
		writeDetail(w, http.StatusConflict, "Charge point is not available")
		return
	}
	now := s.now().UTC()
	sess := &session{
		Session: api.Session{
			ID:            events.Identifier(uuid.NewString()),
			UserID:        userID,
			ChargePointID: body.ChargePointID,
			StartTime:     now.Format("2006-01-02T15:04:05.999999"),
			IsActive:      true,
		},
		owner:     claims.Subject,
		stationID: st.ID,
	}
	cp.Status = StatusCharging
	s.sessions[string(sess.ID)] = sess
	out := sess.Session
	s.mu.Unlock()

	s.logger.Info("session started", "session", string(out.ID), "user", claims.Subject, "charge_point", cp.ID)
	s.publish(events.TypeSessionStarted, acct, userID, st.ID, out.ID, now)
	writeJSON(w, http.StatusOK, out)
}

type stopBody struct {
	SessionID events.Identifier `json:"session_id"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body stopBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SessionID == "" {
		writeDetail(w, http.StatusBadRequest, "session_id is required")
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[string(body.SessionID)]
	if !ok || !sess.IsActive {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Active session not found")
		return
	}
	if sess.owner != claims.Subject && !claims.IsAdmin {
		s.mu.Unlock()
		writeDetail(w, http.StatusForbidden, "Not your session")
		return
	}
	now := s.now().UTC()
	started := sess.Started()
	sess.IsActive = false
	sess.EndTime = now.Format("2006-01-02T15:04:05.999999")
	// A flat 11 kW draw is close enough for a simulator.
	sess.EnergyConsumedKWh = 11 * now.Sub(started).Hours()
	if _, cp := s.findChargePoint(string(sess.ChargePointID)); cp != nil {
		cp.Status = StatusAvailable
	}
	out := sess.Session
	owner, stationID := sess.owner, sess.stationID
	s.mu.Unlock()

	acct, userID, _ := s.account(owner)
	s.logger.Info("session stopped", "session", string(out.ID), "by", claims.Subject)
	s.publish(events.TypeSessionStopped, acct, userID, stationID, out.ID, now)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) findChargePoint(id string) (*Station, *ChargePoint) {
	for _, st := range s.stations {
		for _, cp := range st.ChargePoints {
			if fmt.Sprint(cp.ID) == id {
				return st, cp
			}
		}
	}
	return nil, nil
}

func (s *Server) publish(typ string, acct Account, userID events.Identifier, stationID int, sessionID events.Identifier, at time.Time) {
	name := acct.FullName
	if name == "" {
		name = acct.Email
	}
	frame, err := json.Marshal(events.Session{
		Type:      typ,
		UserName:  name,
		UserID:    userID,
		StationID: events.Identifier(fmt.Sprint(stationID)),
		SessionID: sessionID,
		Timestamp: at.Format("2006-01-02T15:04:05.999999"),
	})
	if err != nil {
		s.logger.Error("encode event", "err", err)
		return
	}
	s.hub.Broadcast(frame)
}

// Broadcast sends a raw frame to every connected stream.
func (s *Server) Broadcast(frame []byte) {
	s.hub.Broadcast(frame)
}

// Clients returns the number of connected streams.
func (s *Server) Clients() int {
	return s.hub.count()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
