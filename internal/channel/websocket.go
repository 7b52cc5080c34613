package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"
)

// Handler serves the hub over a websocket. Every connection receives all
// messages published after it connected.
func (h *Hub) Handler() http.Handler {
	return websocket.Server{
		// the dev server is local; pages may be served from any origin
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   h.serveConn,
	}
}

func (h *Hub) serveConn(ws *websocket.Conn) {
	defer ws.Close()

	msgs, cancel := h.Subscribe()
	defer cancel()

	// clients never send anything; a read returning means the peer went away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_, _ = io.Copy(io.Discard, ws)
	}()

	h.logger.Debug("page connected", "remote", ws.Request().RemoteAddr)
	for {
		select {
		case <-closed:
			h.logger.Debug("page disconnected", "remote", ws.Request().RemoteAddr)
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(ws, msg); err != nil {
				h.logger.Debug("send failed, dropping connection", "error", err)
				return
			}
		}
	}
}

// Subscription is a client side connection to a hub.
type Subscription struct {
	conn *websocket.Conn
}

// Dial connects to the channel endpoint at rawURL (http(s) or ws(s) scheme).
// Any connection failure is reported as ErrChannelUnavailable.
func Dial(ctx context.Context, rawURL string) (*Subscription, error) {
	wsURL := rawURL
	origin := rawURL
	switch {
	case strings.HasPrefix(rawURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(rawURL, "http://")
	case strings.HasPrefix(rawURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(rawURL, "https://")
	case strings.HasPrefix(rawURL, "ws://"):
		origin = "http://" + strings.TrimPrefix(rawURL, "ws://")
	case strings.HasPrefix(rawURL, "wss://"):
		origin = "https://" + strings.TrimPrefix(rawURL, "wss://")
	}

	config, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	conn, err := config.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	return &Subscription{conn: conn}, nil
}

// Receive blocks until the next message arrives or the connection ends.
func (s *Subscription) Receive() (Message, error) {
	var msg Message
	if err := websocket.JSON.Receive(s.conn, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	return s.conn.Close()
}
