// Package session holds the per-view state handed over by the server at load
// time. A Context is built once and shared by pointer with every component of
// the view.
package session

import (
	"errors"
	"strings"
	"sync"

	"roomchat/internal/model"
)

var ErrIncompleteHandoff = errors.New("handoff is missing user or room")

type Context struct {
	UserID   model.ID
	UserName string
	RoomID   model.ID
	RoomName string

	mu       sync.RWMutex
	reported map[model.ID]struct{}
}

// FromChatState builds the chat view's context.
func FromChatState(st model.ChatState) (*Context, error) {
	if st.UserID.IsZero() || st.RoomID.IsZero() {
		return nil, ErrIncompleteHandoff
	}
	c := &Context{
		UserID:   st.UserID,
		UserName: strings.TrimSpace(st.Username),
		RoomID:   st.RoomID,
		RoomName: st.RoomName,
		reported: make(map[model.ID]struct{}, len(st.ReportedBy)),
	}
	for _, id := range st.ReportedBy {
		c.reported[id] = struct{}{}
	}
	return c, nil
}

// IsSelfID reports whether id is the local user.
func (c *Context) IsSelfID(id model.ID) bool {
	return !id.IsZero() && id == c.UserID
}

// IsSelfName reports whether name is the local user's display name.
func (c *Context) IsSelfName(name string) bool {
	return name != "" && name == c.UserName
}

func (c *Context) HasReported(id model.ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.reported[id]
	return ok
}

func (c *Context) MarkReported(id model.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reported == nil {
		c.reported = make(map[model.ID]struct{})
	}
	c.reported[id] = struct{}{}
}
