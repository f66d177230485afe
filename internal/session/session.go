package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

var ErrBackendUnavailable = errors.New("backend unavailable")

type CloseReason string

const (
	ReasonClientClosed       CloseReason = "client_closed"
	ReasonClientError        CloseReason = "client_error"
	ReasonBackendClosed      CloseReason = "backend_closed"
	ReasonBackendError       CloseReason = "backend_error"
	ReasonBackendUnavailable CloseReason = "backend_unavailable"
	ReasonShutdown           CloseReason = "shutdown"
)

// Direction names the relay direction of a dropped message.
type Direction string

const (
	ClientToBackend Direction = "client_to_backend"
	BackendToClient Direction = "backend_to_client"
)

const closeGracePeriod = time.Second

type Info struct {
	ID           string    `json:"id"`
	BackendID    string    `json:"backend_id"`
	ClientIP     string    `json:"client_ip"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

type Option func(*Session)

// WithDropHandler registers a callback for every dropped message.
func WithDropHandler(fn func(Direction)) Option {
	return func(s *Session) {
		s.onDrop = fn
	}
}

type Session struct {
	id          string
	client      *websocket.Conn
	backend     *backend.Backend
	clientIP    string
	dialer      *websocket.Dialer
	logger      *slog.Logger
	connectedAt time.Time

	lastActivity atomic.Int64
	onDrop       func(Direction)

	mu         sync.Mutex
	server     *websocket.Conn
	cancelDial context.CancelFunc
	reason     CloseReason
	err        error
	closed     bool

	finishOnce  sync.Once
	releaseOnce sync.Once
	done        chan struct{}
	wg          sync.WaitGroup
}

// New counts the session against b immediately. The count is released when
// Run returns.
func New(client *websocket.Conn, b *backend.Backend, clientIP string, dialer *websocket.Dialer, logger *slog.Logger, opts ...Option) *Session {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	id := uuid.NewString()
	now := time.Now()

	s := &Session{
		id:          id,
		client:      client,
		backend:     b,
		clientIP:    clientIP,
		dialer:      dialer,
		connectedAt: now,
		done:        make(chan struct{}),
		logger: logger.With(
			"component", "session",
			"session_id", id,
			"backend", b.ID(),
			"client_ip", clientIP,
		),
	}
	s.lastActivity.Store(now.UnixNano())

	for _, opt := range opts {
		opt(s)
	}

	b.IncrementConn()

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Backend() *backend.Backend {
	return s.backend
}

func (s *Session) Info() Info {
	return Info{
		ID:           s.id,
		BackendID:    s.backend.ID(),
		ClientIP:     s.clientIP,
		ConnectedAt:  s.connectedAt,
		LastActivity: time.Unix(0, s.lastActivity.Load()),
	}
}

// Done is closed once the session has started tearing down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Reason is empty until the session has ended.
func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Err wraps ErrBackendUnavailable when the backend could not be dialed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Run relays messages until either side closes, ctx is cancelled or Close is
// called. It returns once both sockets are closed and the connection count has
// been released. Every session must be run, even one closed early.
func (s *Session) Run(ctx context.Context) CloseReason {
	defer s.release()

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.Reason()
	}
	s.cancelDial = cancel
	s.mu.Unlock()

	s.logger.Info("Session started")

	s.wg.Add(2)
	go s.dialBackend(dialCtx)
	go s.pumpClient()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.finish(ReasonShutdown, websocket.CloseGoingAway, "load balancer shutting down")
	}

	s.wg.Wait()

	return s.Reason()
}

// Close forces the session to end. Calls after the first have no effect.
func (s *Session) Close(reason CloseReason) {
	s.finish(reason, websocket.CloseGoingAway, "load balancer shutting down")
}

func (s *Session) dialBackend(ctx context.Context) {
	defer s.wg.Done()

	header := http.Header{}
	if s.clientIP != "" {
		header.Set("X-Forwarded-For", s.clientIP)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.backend.URL().String(), header)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("Backend connection failed", "error", err)

		s.mu.Lock()
		s.err = fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, s.backend.ID(), err)
		s.mu.Unlock()

		s.finish(ReasonBackendUnavailable, websocket.CloseTryAgainLater, "backend unavailable")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.server = conn
	s.mu.Unlock()

	s.logger.Debug("Backend connected")

	s.pumpBackend(conn)
}

func (s *Session) pumpClient() {
	defer s.wg.Done()

	for {
		messageType, data, err := s.client.ReadMessage()
		if err != nil {
			code, text, closed := closeDetails(err)
			if closed {
				s.finish(ReasonClientClosed, code, text)
			} else {
				s.finish(ReasonClientError, code, text)
			}
			return
		}

		s.touch()

		server := s.serverConn()
		if server == nil {
			s.drop(ClientToBackend)
			continue
		}

		if err := server.WriteMessage(messageType, data); err != nil {
			s.finish(ReasonBackendError, websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (s *Session) pumpBackend(server *websocket.Conn) {
	for {
		messageType, data, err := server.ReadMessage()
		if err != nil {
			code, text, closed := closeDetails(err)
			if closed {
				s.finish(ReasonBackendClosed, code, text)
			} else {
				s.finish(ReasonBackendError, code, text)
			}
			return
		}

		s.touch()

		if s.isClosed() {
			s.drop(BackendToClient)
			continue
		}

		if err := s.client.WriteMessage(messageType, data); err != nil {
			s.finish(ReasonClientError, websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (s *Session) finish(reason CloseReason, code int, text string) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.closed = true
		server := s.server
		cancel := s.cancelDial
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		msg := websocket.FormatCloseMessage(code, text)
		deadline := time.Now().Add(closeGracePeriod)

		_ = s.client.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = s.client.Close()

		if server != nil {
			_ = server.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = server.Close()
		}

		close(s.done)

		s.logger.Info("Session closed",
			"reason", reason,
			"duration", time.Since(s.connectedAt),
		)
	})
}

func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.backend.DecrementConn()
	})
}

func (s *Session) serverConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.server
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) drop(direction Direction) {
	s.logger.Debug("Dropping message, peer not open", "direction", direction)
	if s.onDrop != nil {
		s.onDrop(direction)
	}
}

// closeDetails extracts the close code to forward to the other side. Codes
// that may not appear on the wire are replaced by a normal closure.
func closeDetails(err error) (code int, text string, closed bool) {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code == websocket.CloseAbnormalClosure {
		return websocket.CloseNormalClosure, "", false
	}

	if !sendable(closeErr.Code) {
		return websocket.CloseNormalClosure, "", true
	}

	return closeErr.Code, closeErr.Text, true
}

func sendable(code int) bool {
	switch code {
	case websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
		websocket.CloseTLSHandshake:
		return false
	}
	return code >= websocket.CloseNormalClosure && code <= 4999 && code != 1004
}
