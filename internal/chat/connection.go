package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	gostomp "github.com/go-stomp/stomp/v3"
	"github.com/rs/zerolog"

	"roomchat/internal/model"
	"roomchat/internal/stomp"
)

const (
	jsonContentType   = "application/json"
	outboundQueueSize = 32
)

type State int

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Transport is the STOMP session the connection runs over.
type Transport interface {
	Subscribe(destination string) (*gostomp.Subscription, error)
	Send(destination, contentType string, body []byte) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Dialer opens a Transport.
type Dialer func(ctx context.Context) (Transport, error)

// StompDialer dials a STOMP endpoint over websocket.
func StompDialer(url string, opts stomp.Options) Dialer {
	return func(ctx context.Context) (Transport, error) {
		conn, err := stomp.Dial(ctx, url, opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Event is one inbound delivery: exactly one of the fields is set.
type Event struct {
	Message  *model.ChatMessage
	Presence *model.PresenceEvent
}

// Connection owns the transport of a chat view. It is connected at most once;
// a failed attempt leaves it disconnected for good.
type Connection struct {
	dial   Dialer
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	attempted bool
	transport Transport
	roomID    model.ID
	messages  <-chan *gostomp.Message
	presence  <-chan *gostomp.Message

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(dial Dialer, logger zerolog.Logger) *Connection {
	return &Connection{
		dial:     dial,
		logger:   logger,
		outbound: make(chan []byte, outboundQueueSize),
		done:     make(chan struct{}),
	}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials, subscribes to the room's message and presence topics and
// announces the join.
func (c *Connection) Connect(ctx context.Context, roomID model.ID) error {
	c.mu.Lock()
	if c.attempted {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.attempted = true
	c.state = Connecting
	c.mu.Unlock()

	tr, err := c.dial(ctx)
	if err != nil {
		c.setState(Disconnected)
		return &TransportError{Op: "connect", Err: err}
	}
	msgSub, err := tr.Subscribe(model.MessageTopic(roomID))
	if err != nil {
		return c.abort(tr, "subscribe", err)
	}
	presSub, err := tr.Subscribe(model.PresenceTopic(roomID))
	if err != nil {
		return c.abort(tr, "subscribe", err)
	}
	join, err := json.Marshal(model.JoinRequest{RoomID: roomID})
	if err != nil {
		return c.abort(tr, "join", err)
	}
	if err := tr.Send(model.JoinDestination, jsonContentType, join); err != nil {
		return c.abort(tr, "join", err)
	}

	c.mu.Lock()
	c.transport = tr
	c.roomID = roomID
	c.messages = msgSub.C
	c.presence = presSub.C
	c.state = Subscribed
	c.mu.Unlock()

	go c.writeLoop(tr)
	c.logger.Info().Str("room", roomID.String()).Msg("[chat] subscribed")
	return nil
}

func (c *Connection) abort(tr Transport, op string, err error) error {
	_ = tr.Close()
	c.setState(Disconnected)
	return &TransportError{Op: op, Err: err}
}

// Send queues msg for publication and returns immediately. Delivery is
// confirmed only by the broadcast coming back on the message topic.
func (c *Connection) Send(msg model.OutboundMessage) error {
	if c.State() != Subscribed {
		return ErrNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.outbound <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Connection) writeLoop(tr Transport) {
	for {
		select {
		case <-c.done:
			return
		case <-tr.Done():
			return
		case data := <-c.outbound:
			if err := tr.Send(model.ChatDestination, jsonContentType, data); err != nil {
				c.logger.Warn().Err(err).Msg("[chat] publish failed")
			}
		}
	}
}

// Next blocks until an inbound event arrives. Each topic is delivered in
// order; there is no ordering between the two topics. Undecodable payloads
// are logged and skipped.
func (c *Connection) Next(ctx context.Context) (Event, error) {
	c.mu.Lock()
	tr, messages, presence := c.transport, c.messages, c.presence
	c.mu.Unlock()
	if tr == nil {
		return Event{}, ErrNotConnected
	}

	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-c.done:
			return Event{}, ErrNotConnected
		case m, ok := <-messages:
			if !ok || m.Err != nil {
				return Event{}, c.lost(tr, m)
			}
			var msg model.ChatMessage
			if err := json.Unmarshal(m.Body, &msg); err != nil {
				c.logger.Warn().Err(err).Msg("[chat] dropping undecodable message")
				continue
			}
			return Event{Message: &msg}, nil
		case m, ok := <-presence:
			if !ok || m.Err != nil {
				return Event{}, c.lost(tr, m)
			}
			var ev model.PresenceEvent
			if err := json.Unmarshal(m.Body, &ev); err != nil {
				c.logger.Warn().Err(err).Msg("[chat] dropping undecodable presence event")
				continue
			}
			return Event{Presence: &ev}, nil
		}
	}
}

// lost reports the end of the session: an ERROR frame from the broker if
// one arrived, otherwise the transport's own failure.
func (c *Connection) lost(tr Transport, m *gostomp.Message) error {
	var err error
	if m != nil && m.Err != nil {
		err = m.Err
	} else {
		err = tr.Err()
	}
	if err == nil {
		err = errors.New("connection closed")
	}
	return &TransportError{Op: "read", Err: err}
}

// Close releases the transport.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		tr := c.transport
		c.mu.Unlock()
		if tr != nil {
			err = tr.Close()
		}
	})
	return err
}
