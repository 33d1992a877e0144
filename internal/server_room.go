package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/model"
	"roomchat/internal/sanitize"
	"roomchat/internal/stomp"
	"roomchat/internal/storage"
)

// Client is one STOMP session over a websocket.
type Client struct {
	server     *Server
	conn       *websocket.Conn
	send       chan []byte
	user       authContext
	logger     zerolog.Logger
	connected  bool
	rooms      map[int64]bool
	sendWindow slidingWindow
}

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMsgSize      = 64 * 1024
	rateLimitWindow = 3 * time.Second
	rateLimitBurst  = 5
	systemSender    = "system"
)

var errClientGone = errors.New("client disconnected")

func newClient(server *Server, conn *websocket.Conn, user authContext) *Client {
	return &Client{
		server: server,
		conn:   conn,
		send:   make(chan []byte, 256),
		user:   user,
		logger: server.logger.With().Str("user", user.Username).Logger(),
		rooms:  make(map[int64]bool),
	}
}

func (client *Client) readPump() {
	hub := client.server.hub
	defer func() {
		// closing the queue lets writePump flush and close the socket
		hub.unregister(client)
		client.leaveRooms()
		client.server.metrics.DecConn()
	}()
	client.conn.SetReadLimit(maxMsgSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	stream := stomp.NewWSConn(client.conn)
	reader := frame.NewReader(stream)
	for {
		f, err := reader.Read()
		if err != nil {
			// a broken socket just ends the session; anything else is a bad frame
			if stream.Err() == nil {
				client.protocolError(err.Error())
			}
			break
		}
		if f == nil {
			continue
		}
		if err := client.handleFrame(f); err != nil {
			if !errors.Is(err, errClientGone) {
				client.protocolError(err.Error())
			}
			break
		}
	}
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame processes one client frame. A returned error ends the session.
func (client *Client) handleFrame(f *frame.Frame) error {
	if !client.connected && f.Command != frame.CONNECT && f.Command != frame.STOMP {
		return fmt.Errorf("expected CONNECT, got %s", f.Command)
	}
	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		if client.connected {
			return errors.New("already connected")
		}
		if v := f.Header.Get(frame.AcceptVersion); v != "" && !strings.Contains(v, "1.2") {
			return fmt.Errorf("unsupported protocol version %q", v)
		}
		client.connected = true
		client.reply(frame.New(frame.CONNECTED,
			frame.Version, "1.2",
			frame.HeartBeat, "0,0",
			frame.Server, "roomchat/"+Version,
		))
		return nil
	case frame.SUBSCRIBE:
		id, dest := f.Header.Get(frame.Id), f.Header.Get(frame.Destination)
		if id == "" || dest == "" {
			return errors.New("SUBSCRIBE requires id and destination")
		}
		if _, _, ok := model.ParseTopic(dest); !ok {
			return fmt.Errorf("unknown destination %q", dest)
		}
		client.server.hub.subscribe(client, id, dest)
	case frame.UNSUBSCRIBE:
		client.server.hub.unsubscribe(client, f.Header.Get(frame.Id))
	case frame.SEND:
		switch dest := f.Header.Get(frame.Destination); dest {
		case model.JoinDestination:
			client.handleJoin(f.Body)
		case model.ChatDestination:
			if err := client.handleChat(f.Body); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown destination %q", dest)
		}
	case frame.DISCONNECT:
		client.ack(f)
		return errClientGone
	default:
		return fmt.Errorf("unsupported frame %s", f.Command)
	}
	client.ack(f)
	return nil
}

func (client *Client) ack(f *frame.Frame) {
	if receipt := f.Header.Get(frame.Receipt); receipt != "" {
		client.reply(frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
	}
}

func (client *Client) reply(f *frame.Frame) {
	client.server.hub.deliver(client, stomp.Encode(f))
}

func (client *Client) protocolError(message string) {
	client.logger.Warn().Str("reason", message).Msg("stomp session closed")
	client.reply(frame.New(frame.ERROR, frame.Message, message))
}

// handleJoin records the session in a room. Only the first session of a user
// announces the join.
func (client *Client) handleJoin(body []byte) {
	var req model.JoinRequest
	if err := json.Unmarshal(body, &req); err != nil {
		client.logger.Warn().Err(err).Msg("bad join payload")
		return
	}
	roomID, err := req.RoomID.Int64()
	if err != nil || client.rooms[roomID] {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	room, err := client.server.store.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		client.logger.Warn().Err(err).Int64("room_id", roomID).Msg("join to unknown room")
		return
	}
	client.rooms[roomID] = true
	if client.server.presence.Join(roomID, client.user.Username) {
		client.server.publishPresence(roomID, client.user.Username, model.PresenceJoin)
	}
}

func (client *Client) leaveRooms() {
	for roomID := range client.rooms {
		if client.server.presence.Leave(roomID, client.user.Username) {
			client.server.publishPresence(roomID, client.user.Username, model.PresenceLeave)
		}
	}
	client.rooms = nil
}

// handleChat stores and broadcasts a chat message. Bad messages are dropped;
// only a ban ends the session.
func (client *Client) handleChat(body []byte) error {
	var msg model.OutboundMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		client.logger.Warn().Err(err).Msg("bad chat payload")
		return nil
	}
	roomID, err := msg.RoomID.Int64()
	if err != nil || !client.rooms[roomID] {
		client.logger.Warn().Str("room_id", msg.RoomID.String()).Msg("chat to a room the session has not joined")
		return nil
	}
	now := client.server.now()
	if !client.allowMessage(now) {
		client.notifyRateLimit(roomID, now)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store := client.server.store
	user, err := store.GetUserByID(ctx, client.user.UserID)
	if err != nil || user == nil {
		client.logger.Error().Err(err).Msg("load sender")
		return nil
	}
	if user.BannedAt(now) {
		return errors.New("user is banned")
	}

	text := sanitize.Text(msg.Text)
	var file *storage.FileRecord
	if msg.FileID != nil && !msg.FileID.IsZero() {
		file, err = store.GetFile(ctx, msg.FileID.String())
		if err != nil || file == nil || file.RoomID != roomID {
			client.logger.Warn().Err(err).Str("file_id", msg.FileID.String()).Msg("chat references unknown file")
			return nil
		}
	}
	if text == "" && file == nil {
		return nil
	}

	stored := storage.Message{RoomID: roomID, SenderID: user.ID, Content: text, SentAt: now}
	if file != nil {
		stored.FileID = file.ID
	}
	id, err := store.CreateMessage(ctx, stored)
	if err != nil {
		client.logger.Error().Err(err).Msg("store chat message")
		return nil
	}

	out := model.ChatMessage{
		ID:       model.IntID(id),
		FromID:   model.IntID(user.ID),
		FromName: user.Username,
		Text:     text,
		SentAt:   now.In(client.server.loc).Format("15:04"),
		RoomID:   model.IntID(roomID),
	}
	if file != nil {
		out.FileID = model.ID(file.ID)
		out.FileName = file.Filename
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	client.server.hub.Publish(model.MessageTopic(out.RoomID), payload)
	client.server.metrics.IncMessage()
	return nil
}

// rate limits

func (client *Client) allowMessage(now time.Time) bool {
	return client.sendWindow.admit(now, rateLimitBurst, rateLimitWindow)
}

func (client *Client) notifyRateLimit(roomID int64, now time.Time) {
	message := model.ChatMessage{
		FromName: systemSender,
		Text:     "You're sending messages too quickly. Please wait a moment and try again.",
		SentAt:   now.In(client.server.loc).Format("15:04"),
		RoomID:   model.IntID(roomID),
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	client.server.hub.PublishTo(client, model.MessageTopic(message.RoomID), payload)
}

func (s *Server) publishPresence(roomID int64, username string, kind model.PresenceKind) {
	payload, err := json.Marshal(model.PresenceEvent{Username: username, Kind: kind})
	if err != nil {
		return
	}
	s.hub.Publish(model.PresenceTopic(model.IntID(roomID)), payload)
}
