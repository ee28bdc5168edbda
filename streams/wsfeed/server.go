// Package wsfeed exposes the engine's event log over WebSocket. Each
// connection replays the log from a client-chosen cursor and then streams
// live events, so a consumer can resume from its last seen sequence without
// losing or duplicating entries.
package wsfeed

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairpool/pairpool-engine-go/events"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the feed server.
type Config struct {
	Events *events.Log
	Logger Logger
	// WriteTimeout bounds each write to a client; zero selects the default.
	WriteTimeout time.Duration
	// PingInterval is the keepalive cadence; zero selects the default.
	PingInterval time.Duration
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Events == nil {
		return errors.New("config: Events is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Server is an http.Handler that upgrades requests to WebSocket and streams
// the event log. The optional "after" query parameter is the sequence number
// of the last event the client has already seen.
type Server struct {
	events       *events.Log
	logger       Logger
	writeTimeout time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewServer constructs a feed server, returning an error if the configuration
// is invalid.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	return &Server{
		events:       cfg.Events,
		logger:       cfg.Logger,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}, nil
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client. The server remains usable; new connections
// are still accepted afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[*websocket.Conn]struct{})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	after, err := parseAfter(r.URL.Query().Get("after"))
	if err != nil {
		http.Error(w, "invalid 'after' parameter", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Feed client connected", "remote", r.RemoteAddr, "after", after)
	go s.stream(conn, after)
}

// stream owns the connection: it replays the backlog, then forwards live
// events until the client goes away or a write fails.
func (s *Server) stream(conn *websocket.Conn, after uint64) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// Subscribe before snapshotting so nothing appended between the two
	// calls is lost; events already covered by the snapshot are dropped
	// from the live channel by sequence number.
	live, cancel := s.events.Subscribe()
	defer cancel()

	backlog := s.events.SnapshotFrom(after)
	lastSent := after
	for _, evt := range backlog {
		if err := s.write(conn, evt); err != nil {
			s.logger.Debug("Feed client dropped during replay", "error", err)
			return
		}
		lastSent = evt.Sequence
	}

	// Reads are discarded; the read loop exists to surface close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-live:
			if !ok {
				return
			}
			if evt.Sequence <= lastSent {
				continue
			}
			if err := s.write(conn, evt); err != nil {
				s.logger.Debug("Feed client dropped", "error", err)
				return
			}
			lastSent = evt.Sequence
		case <-ticker.C:
			deadline := time.Now().Add(s.writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, evt events.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(evt)
}

func parseAfter(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
