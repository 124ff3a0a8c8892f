// Package websocket streams run progress to websocket clients.
package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PentesterFlow/SiteCrawler/internal/logger"
	"github.com/PentesterFlow/SiteCrawler/internal/metadata"
)

// Config holds stream settings.
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	// PollInterval applies when no update channel is available.
	PollInterval time.Duration
}

// DefaultConfig returns default stream settings.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PollInterval: time.Second,
	}
}

// ReadFunc reads the current progress of a run.
type ReadFunc func(ctx context.Context) (metadata.ProgressState, error)

// Streamer upgrades requests and pushes progress states as JSON messages.
type Streamer struct {
	config   Config
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewStreamer creates a streamer. log may be nil.
func NewStreamer(config Config, log *logger.Logger) *Streamer {
	def := DefaultConfig()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Streamer{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log.WithComponent("websocket"),
	}
}

// Terminal reports whether a state is final: done or failed.
func Terminal(state metadata.ProgressState) bool {
	return state.Progress >= 100 || strings.HasPrefix(state.StatusMessage, "Failed:")
}

// Serve sends the current state, then every update until the run reaches a
// terminal state or the client goes away. With a nil updates channel the
// state is polled and sent when it changes.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, read ReadFunc, updates <-chan metadata.ProgressState) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("Upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close and pong frames are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	last, err := read(ctx)
	if err != nil {
		s.closeWith(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}
	if err := s.send(conn, last); err != nil || Terminal(last) {
		s.closeWith(conn, websocket.CloseNormalClosure, "")
		return
	}

	ping := time.NewTicker(s.config.PingInterval)
	defer ping.Stop()

	var pollC <-chan time.Time
	if updates == nil {
		poll := time.NewTicker(s.config.PollInterval)
		defer poll.Stop()
		pollC = poll.C
	}

	for {
		var next metadata.ProgressState
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout)); err != nil {
				return
			}
			continue
		case st, ok := <-updates:
			if !ok {
				s.closeWith(conn, websocket.CloseNormalClosure, "")
				return
			}
			next = st
		case <-pollC:
			st, err := read(ctx)
			if err != nil || st == last {
				continue
			}
			next = st
		}

		if err := s.send(conn, next); err != nil {
			return
		}
		last = next
		if Terminal(next) {
			s.closeWith(conn, websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (s *Streamer) send(conn *websocket.Conn, state metadata.ProgressState) error {
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return conn.WriteJSON(state)
}

func (s *Streamer) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.config.WriteTimeout))
}
