package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ID is a server-assigned identifier. The wire carries it either as a JSON
// number or as a string; both decode to the same value.
type ID string

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return id == "" }

func IntID(n int64) ID { return ID(strconv.FormatInt(n, 10)) }

// Int64 parses a numeric id.
func (id ID) Int64() (int64, error) {
	return strconv.ParseInt(string(id), 10, 64)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits integral ids as numbers so the payload matches what the
// server sent.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// ChatMessage is a broadcast received on the per-room message topic.
type ChatMessage struct {
	ID       ID     `json:"id"`
	FromID   ID     `json:"fromId"`
	FromName string `json:"from"`
	Text     string `json:"text"`
	SentAt   string `json:"time"`
	RoomID   ID     `json:"chatroomId,omitempty"`
	FileID   ID     `json:"fileId,omitempty"`
	FileName string `json:"filename,omitempty"`
}

func (m ChatMessage) HasFile() bool { return !m.FileID.IsZero() }

// OutboundMessage is what the client publishes to the chat endpoint. The file
// fields are always present and null when nothing is attached.
type OutboundMessage struct {
	FromID   ID      `json:"fromId"`
	FromName string  `json:"from"`
	Text     string  `json:"text"`
	SentAt   string  `json:"time"`
	RoomID   ID      `json:"chatroomId"`
	FileID   *ID     `json:"fileId"`
	FileName *string `json:"filename"`
}

// Attach sets the file reference carried by the message.
func (m *OutboundMessage) Attach(res UploadResult) {
	id := res.FileID
	name := res.FileName
	m.FileID = &id
	m.FileName = &name
}

type PresenceKind string

const (
	PresenceJoin  PresenceKind = "JOIN"
	PresenceLeave PresenceKind = "LEAVE"
)

type PresenceEvent struct {
	Username string       `json:"username"`
	Kind     PresenceKind `json:"type"`
}

// UploadResult is the server's answer to a file upload.
type UploadResult struct {
	FileID   ID     `json:"fileId"`
	FileName string `json:"filename"`
}

type JoinRequest struct {
	RoomID ID `json:"chatroomId"`
}

type Report struct {
	ReporterUsername string `json:"reporterUsername"`
	Reason           string `json:"reason"`
}

// ModeratedMessage is a reported chat message as shown on the admin feed.
type ModeratedMessage struct {
	ID             ID       `json:"id"`
	Content        string   `json:"content"`
	SenderUsername string   `json:"senderUsername"`
	BannedUntil    *string  `json:"bannedUntil"`
	Reports        []Report `json:"reports"`
	UpdatedAt      string   `json:"updatedAt"`
	FileID         ID       `json:"fileId,omitempty"`
	FileName       string   `json:"fileName,omitempty"`
	FileMimeType   string   `json:"fileMimeType,omitempty"`
}

func (m ModeratedMessage) HasFile() bool { return !m.FileID.IsZero() }

// IsBanned reports whether the sender currently has a ban recorded.
func (m ModeratedMessage) IsBanned() bool {
	return m.BannedUntil != nil && *m.BannedUntil != ""
}

// BannedUser is an entry of the banned-user listing. A nil BannedUntil means
// the ban is permanent.
type BannedUser struct {
	ID          ID      `json:"id"`
	Username    string  `json:"username"`
	BannedUntil *string `json:"bannedUntil"`
}

// ChatState is the initial state handed to the chat view.
type ChatState struct {
	UserID     ID     `json:"userId"`
	Username   string `json:"username"`
	RoomID     ID     `json:"chatroomId"`
	RoomName   string `json:"chatroomName,omitempty"`
	ReportedBy []ID   `json:"reportedMessageIds"`
}

// AdminState is the initial state handed to the moderation view.
type AdminState struct {
	UserID   ID     `json:"userId"`
	Username string `json:"username"`
	Since    string `json:"since"`
}

// BanState is the initial state handed to the personal ban view.
type BanState struct {
	Username    string `json:"username"`
	BannedUntil string `json:"bannedUntil"`
	Permanent   bool   `json:"permanent"`
}
