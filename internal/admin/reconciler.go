package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"roomchat/internal/model"
)

// PollInterval is the period of both admin polling loops.
const PollInterval = 5 * time.Second

const (
	SectionReports = "reports"
	SectionBanned  = "banned users"
)

// PollError is a failed fetch for one section of the moderation view. The
// other section and the cursor are unaffected; the next tick retries.
type PollError struct {
	Section string
	Err     error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s: %v", e.Section, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

type BanDuration string

const (
	Ban24h     BanDuration = "24h"
	Ban1w      BanDuration = "1w"
	BanForever BanDuration = "forever"
)

var ErrUnknownDuration = errors.New("unknown ban duration")

func ParseBanDuration(s string) (BanDuration, error) {
	switch d := BanDuration(strings.ToLower(strings.TrimSpace(s))); d {
	case Ban24h, Ban1w, BanForever:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDuration, s)
	}
}

// Label is the text shown on the ban action.
func (d BanDuration) Label() string {
	switch d {
	case Ban24h:
		return "Ban 24h"
	case Ban1w:
		return "Ban 1 week"
	default:
		return "Ban forever"
	}
}

// Backend is the moderation API.
type Backend interface {
	ModerationFeed(ctx context.Context, since string) ([]model.ModeratedMessage, error)
	BannedUsers(ctx context.Context) ([]model.BannedUser, error)
	DismissReports(ctx context.Context, messageID model.ID) error
	BanUser(ctx context.Context, messageID model.ID, duration string) error
}

type Option func(*Reconciler)

// WithSingleFlight makes each loop skip a tick while its previous fetch is
// still running. By default fetches may overlap.
func WithSingleFlight() Option {
	return func(r *Reconciler) { r.singleFlight = true }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// Reconciler keeps the moderation view in sync with the server: the reported
// message list, fetched incrementally by cursor, and the banned-user list,
// fetched whole.
type Reconciler struct {
	backend      Backend
	cursor       *Cursor
	logger       zerolog.Logger
	singleFlight bool

	reportsBusy atomic.Bool
	bannedBusy  atomic.Bool

	mu           sync.Mutex
	reports      []model.ModeratedMessage
	reportsErr   error
	banned       []model.BannedUser
	bannedLoaded bool
	bannedErr    error
	// id -> updatedAt at the time it was handled locally
	dismissed map[model.ID]string
}

func NewReconciler(backend Backend, initialCursor string, opts ...Option) *Reconciler {
	r := &Reconciler{
		backend:   backend,
		cursor:    NewCursor(initialCursor),
		logger:    zerolog.Nop(),
		dismissed: make(map[model.ID]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Cursor() string { return r.cursor.Value() }

// PollReports fetches items changed since the cursor. An empty answer means
// no change. A non-empty answer is the complete current set and replaces
// the list.
func (r *Reconciler) PollReports(ctx context.Context) error {
	if r.singleFlight {
		if !r.reportsBusy.CompareAndSwap(false, true) {
			return nil
		}
		defer r.reportsBusy.Store(false)
	}

	since := r.cursor.Value()
	items, err := r.backend.ModerationFeed(ctx, since)
	if err != nil {
		perr := &PollError{Section: SectionReports, Err: err}
		r.mu.Lock()
		r.reportsErr = perr
		r.mu.Unlock()
		r.logger.Warn().Err(err).Str("since", since).Msg("[admin] report poll failed")
		return perr
	}
	if len(items) == 0 {
		return nil
	}

	latest := since
	for _, item := range items {
		if CompareTimestamps(item.UpdatedAt, latest) > 0 {
			latest = item.UpdatedAt
		}
	}

	r.mu.Lock()
	visible := make([]model.ModeratedMessage, 0, len(items))
	for _, item := range items {
		if at, ok := r.dismissed[item.ID]; ok {
			if CompareTimestamps(item.UpdatedAt, at) <= 0 {
				continue
			}
			delete(r.dismissed, item.ID)
		}
		visible = append(visible, item)
	}
	r.reports = visible
	r.reportsErr = nil
	r.mu.Unlock()

	r.cursor.Advance(latest)
	return nil
}

// PollBanned refetches the banned-user list.
func (r *Reconciler) PollBanned(ctx context.Context) error {
	if r.singleFlight {
		if !r.bannedBusy.CompareAndSwap(false, true) {
			return nil
		}
		defer r.bannedBusy.Store(false)
	}

	users, err := r.backend.BannedUsers(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.bannedErr = &PollError{Section: SectionBanned, Err: err}
		r.logger.Warn().Err(err).Msg("[admin] banned-user poll failed")
		return r.bannedErr
	}
	r.banned = users
	r.bannedLoaded = true
	r.bannedErr = nil
	return nil
}

// Dismiss clears all reports of a message.
func (r *Reconciler) Dismiss(ctx context.Context, id model.ID) error {
	if err := r.backend.DismissReports(ctx, id); err != nil {
		return fmt.Errorf("dismiss reports for %s: %w", id, err)
	}
	r.forget(id)
	return nil
}

// Ban bans the sender of a message. The server also resolves its reports.
func (r *Reconciler) Ban(ctx context.Context, id model.ID, d BanDuration) error {
	if _, err := ParseBanDuration(string(d)); err != nil {
		return err
	}
	if err := r.backend.BanUser(ctx, id, string(d)); err != nil {
		return fmt.Errorf("ban sender of %s: %w", id, err)
	}
	r.forget(id)
	return nil
}

// forget drops a handled item and keeps it hidden until it changes again.
func (r *Reconciler) forget(id model.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at := r.cursor.Value()
	for i, item := range r.reports {
		if item.ID == id {
			if CompareTimestamps(item.UpdatedAt, at) > 0 {
				at = item.UpdatedAt
			}
			r.reports = append(r.reports[:i:i], r.reports[i+1:]...)
			break
		}
	}
	r.dismissed[id] = at
}

// Reports returns the rendered list and the section's error, if its last
// poll failed.
func (r *Reconciler) Reports() ([]model.ModeratedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ModeratedMessage, len(r.reports))
	copy(out, r.reports)
	return out, r.reportsErr
}

// Banned returns the banned-user list, whether any poll has succeeded yet,
// and the section's error.
func (r *Reconciler) Banned() ([]model.BannedUser, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.BannedUser, len(r.banned))
	copy(out, r.banned)
	return out, r.bannedLoaded, r.bannedErr
}

// FormatBannedUntil renders a ban expiry in local time, or "Forever" when
// there is none.
func FormatBannedUntil(until *string, loc *time.Location) string {
	if until == nil || strings.TrimSpace(*until) == "" {
		return "Forever"
	}
	if loc == nil {
		loc = time.Local
	}
	t, ok := ParseTimestamp(strings.TrimSpace(*until), loc)
	if !ok {
		return *until
	}
	return t.In(loc).Format("2006-01-02 15:04")
}
