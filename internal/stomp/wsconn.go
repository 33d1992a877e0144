package stomp

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var ErrClosed = errors.New("stomp connection closed")

// WSConn turns a websocket into the byte stream a STOMP codec reads and
// writes. Reads continue across message boundaries; each Write is sent as one
// text message.
type WSConn struct {
	ws     *websocket.Conn
	reader io.Reader

	writeMu sync.Mutex

	mu        sync.Mutex
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws, done: make(chan struct{})}
}

// Read must not be called concurrently.
func (c *WSConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				c.shutdown(err)
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			c.shutdown(err)
		}
		return n, err
	}
}

func (c *WSConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		c.shutdown(err)
		return 0, err
	}
	return len(p), nil
}

func (c *WSConn) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *WSConn) shutdown(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Done is closed once the websocket is gone.
func (c *WSConn) Done() <-chan struct{} { return c.done }

// Err is the reason the websocket ended, or nil while it is open.
func (c *WSConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
