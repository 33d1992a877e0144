package stomp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gostomp "github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	disconnectWait          = 2 * time.Second
)

// Options configures Dial.
type Options struct {
	// Jar supplies the session cookies for the websocket handshake.
	Jar    http.CookieJar
	Header http.Header
	// Host is the virtual host sent in CONNECT; defaults to the URL host.
	Host             string
	HandshakeTimeout time.Duration
}

// Conn is a client STOMP 1.2 session over a websocket.
type Conn struct {
	session *gostomp.Conn
	ws      *WSConn
}

// Dial opens the websocket and performs the CONNECT handshake. It returns
// once CONNECTED arrives or the handshake fails; an ERROR answer comes back
// as a *gostomp.Error.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Jar:              opts.Jar,
		Subprotocols:     []string{"v12.stomp"},
	}
	ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}

	host := opts.Host
	if host == "" {
		host = ws.RemoteAddr().String()
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)

	stream := NewWSConn(ws)
	session, err := gostomp.Connect(stream,
		gostomp.ConnOpt.Host(host),
		gostomp.ConnOpt.AcceptVersion(gostomp.V12),
		gostomp.ConnOpt.HeartBeat(0, 0),
	)
	if err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})
	return &Conn{session: session, ws: stream}, nil
}

// Subscribe registers interest in a destination. Messages arrive on the
// subscription's C in order; a message with Err set, or a closed C, means the
// session is over.
func (c *Conn) Subscribe(destination string) (*gostomp.Subscription, error) {
	return c.session.Subscribe(destination, gostomp.AckAuto)
}

// Send publishes body to destination.
func (c *Conn) Send(destination, contentType string, body []byte) error {
	return c.session.Send(destination, contentType, body)
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} { return c.ws.Done() }

// Err returns the reason the connection ended, if it has.
func (c *Conn) Err() error { return c.ws.Err() }

// Close sends DISCONNECT and waits briefly for the receipt before tearing
// the websocket down.
func (c *Conn) Close() error {
	select {
	case <-c.ws.Done():
		return nil
	default:
	}
	result := make(chan error, 1)
	go func() { result <- c.session.Disconnect() }()
	select {
	case err := <-result:
		_ = c.ws.Close()
		return err
	case <-time.After(disconnectWait):
		return c.ws.Close()
	}
}
