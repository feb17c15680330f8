package transport

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// PushConn is one open push channel.
type PushConn interface {
	// Receive blocks for the next text message.
	Receive() ([]byte, error)
	// Close releases the connection and unblocks Receive.
	Close() error
}

// Dialer opens websocket push channels to a fixed URL.
type Dialer struct {
	url    string
	origin string
}

// DialerOption applies a configuration option to the Dialer.
type DialerOption func(*Dialer)

// WithOrigin overrides the Origin header sent on the handshake.
func WithOrigin(origin string) DialerOption {
	return func(d *Dialer) {
		if origin != "" {
			d.origin = origin
		}
	}
}

// NewDialer creates a Dialer for pushURL (ws:// or wss://).
func NewDialer(pushURL string, opts ...DialerOption) (*Dialer, error) {
	u, err := url.Parse(pushURL)
	if err != nil {
		return nil, fmt.Errorf("push url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("push url: unsupported scheme %q", u.Scheme)
	}
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}
	d := &Dialer{url: pushURL, origin: origin}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// URL returns the push endpoint.
func (d *Dialer) URL() string { return d.url }

// Dial performs the websocket handshake. ctx bounds the handshake only.
func (d *Dialer) Dial(ctx context.Context) (PushConn, error) {
	cfg, err := websocket.NewConfig(d.url, d.origin)
	if err != nil {
		return nil, fmt.Errorf("push config: %w", err)
	}
	cfg.Header.Set(requestIDHeader, uuid.NewString())

	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("push dial %s: %w", d.url, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Receive() ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(c.ws, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
