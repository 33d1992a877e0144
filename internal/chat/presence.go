package chat

import (
	"fmt"
	"strings"
	"time"

	"roomchat/internal/model"
	"roomchat/internal/session"
)

// BannerTTL is how long a join/leave notice stays up.
const BannerTTL = 8 * time.Second

type Banner struct {
	ID        int
	Text      string
	ExpiresAt time.Time
}

// Presence turns presence events into transient notices and keeps the online
// roster. The roster fetch is the source of truth; events only trigger it.
type Presence struct {
	sess    *session.Context
	now     func() time.Time
	banners []Banner
	nextID  int
	roster  []string
}

func NewPresence(sess *session.Context) *Presence {
	return &Presence{sess: sess, now: time.Now}
}

// Handle shows a notice for ev and reports whether the roster should be
// refetched. Events about the local user are ignored.
func (p *Presence) Handle(ev model.PresenceEvent) (Banner, bool) {
	user := strings.TrimSpace(ev.Username)
	if user == "" || p.sess.IsSelfName(user) {
		return Banner{}, false
	}
	verb := "left"
	if ev.Kind == model.PresenceJoin {
		verb = "joined"
	}
	p.nextID++
	b := Banner{
		ID:        p.nextID,
		Text:      fmt.Sprintf("%s has %s the chat", user, verb),
		ExpiresAt: p.now().Add(BannerTTL),
	}
	p.banners = append(p.banners, b)
	return b, true
}

// Expire removes the banner with id, if it is still shown.
func (p *Presence) Expire(id int) bool {
	for i, b := range p.banners {
		if b.ID == id {
			p.banners = append(p.banners[:i], p.banners[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Presence) Banners() []Banner {
	out := make([]Banner, len(p.banners))
	copy(out, p.banners)
	return out
}

// SetRoster replaces the roster with a fresh fetch.
func (p *Presence) SetRoster(names []string) {
	roster := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || p.sess.IsSelfName(n) {
			continue
		}
		roster = append(roster, n)
	}
	p.roster = roster
}

func (p *Presence) Roster() []string {
	out := make([]string, len(p.roster))
	copy(out, p.roster)
	return out
}

// RosterText is "You" alone, or "You, " followed by everyone else.
func (p *Presence) RosterText() string {
	if len(p.roster) == 0 {
		return "You"
	}
	return "You, " + strings.Join(p.roster, ", ")
}
