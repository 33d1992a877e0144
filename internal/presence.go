package internal

import (
	"sort"
	"sync"
)

// PresenceTracker counts joined sessions per user in each room. A user with
// two tabs open in a room stays online until both leave.
type PresenceTracker struct {
	mu    sync.Mutex
	rooms map[int64]map[string]int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{rooms: make(map[int64]map[string]int)}
}

// Join records a session of username in room and reports whether it is the
// user's first.
func (p *PresenceTracker) Join(roomID int64, username string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	users, ok := p.rooms[roomID]
	if !ok {
		users = make(map[string]int)
		p.rooms[roomID] = users
	}
	users[username]++
	return users[username] == 1
}

// Leave removes one session and reports whether it was the user's last.
func (p *PresenceTracker) Leave(roomID int64, username string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	users, ok := p.rooms[roomID]
	if !ok {
		return false
	}
	count, ok := users[username]
	if !ok {
		return false
	}
	if count > 1 {
		users[username] = count - 1
		return false
	}
	delete(users, username)
	if len(users) == 0 {
		delete(p.rooms, roomID)
	}
	return true
}

// Online lists the users in a room, sorted.
func (p *PresenceTracker) Online(roomID int64) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.rooms[roomID]))
	for name := range p.rooms[roomID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *PresenceTracker) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, users := range p.rooms {
		n += len(users)
	}
	return n
}
