package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsprackett/chargewatch/internal/events"
)

const (
	clientBuffer = 32
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamClient struct {
	email string
	out   chan []byte
	done  chan struct{}
}

// hub fans frames out to connected streams. A slow client loses frames
// rather than holding up the others.
type hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, clients: make(map[*streamClient]struct{})}
}

func (h *hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.out <- frame:
		default:
			h.logger.Warn("stream client lagging, dropping frame", "email", c.email)
		}
	}
}

func (h *hub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.done)
		delete(h.clients, c)
	}
}

type greeting struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type echoFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed", "err", err)
		return
	}
	c := &streamClient{
		email: claimsFrom(r).Subject,
		out:   make(chan []byte, clientBuffer),
		done:  make(chan struct{}),
	}
	if !s.hub.add(c) {
		closeStream(conn, websocket.CloseGoingAway, "Server shutting down")
		return
	}
	defer s.hub.remove(c)
	s.logger.Info("stream connected", "email", c.email)

	hello, _ := json.Marshal(greeting{Type: events.TypeConnectionEstablished, Message: "Connected to charging updates"})
	c.out <- hello

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply := s.reply(raw)
			if reply == nil {
				continue
			}
			select {
			case c.out <- reply:
			case <-c.done:
				return
			}
		}
	}()

	// Only this goroutine writes data frames.
	for {
		select {
		case frame := <-c.out:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Warn("stream write failed", "email", c.email, "err", err)
				conn.Close()
				<-readerDone
				return
			}
		case <-readerDone:
			s.logger.Info("stream disconnected", "email", c.email)
			conn.Close()
			return
		case <-c.done:
			closeStream(conn, websocket.CloseGoingAway, "Server shutting down")
			<-readerDone
			return
		}
	}
}

// reply answers heartbeats with an ack and echoes anything else.
// Malformed frames get no answer.
func (s *Server) reply(raw []byte) []byte {
	msg, err := events.Decode(raw)
	if err != nil {
		s.logger.Debug("malformed client frame", "err", err)
		return nil
	}
	var out any
	if msg.FrameType() == events.TypeHeartbeat {
		out = events.HeartbeatAck{
			Type:      events.TypeHeartbeatAck,
			Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		}
	} else {
		out = echoFrame{Type: events.TypeEcho, Data: string(raw)}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return data
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}
