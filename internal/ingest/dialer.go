package ingest

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the minimal message-stream surface the consumer reads from.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a message stream to the feed. Tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer connects to the exchange over a gorilla/websocket client.
type WebsocketDialer struct{}

func (WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return wsConn{conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c wsConn) Close() error {
	return c.conn.Close()
}
