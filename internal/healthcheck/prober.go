package healthcheck

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

// Prober performs one liveness probe against a backend. A nil error means
// the backend is healthy. Implementations must honor ctx cancellation.
type Prober interface {
	Probe(ctx context.Context, b *backend.Backend) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, b *backend.Backend) error

func (f ProberFunc) Probe(ctx context.Context, b *backend.Backend) error {
	return f(ctx, b)
}

// WebSocketProber opens a fresh WebSocket connection to the backend and
// closes it straight away. It never reuses proxy session connections.
type WebSocketProber struct {
	dialer *websocket.Dialer
}

// NewWebSocketProber creates a prober with its own dialer.
func NewWebSocketProber() *WebSocketProber {
	return &WebSocketProber{
		dialer: &websocket.Dialer{
			ReadBufferSize:  256,
			WriteBufferSize: 256,
		},
	}
}

// Probe succeeds when the WebSocket handshake completes before ctx expires.
func (p *WebSocketProber) Probe(ctx context.Context, b *backend.Backend) error {
	conn, _, err := p.dialer.DialContext(ctx, b.URL().String(), nil)
	if err != nil {
		return err
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "health check"),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}
