package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"roomchat/internal/storage"
)

// ServerOptions configures the development chat server.
type ServerOptions struct {
	UploadDir   string
	MaxFileSize int64
	SigningKey  []byte
	SessionTTL  time.Duration
	// Admins are usernames granted the moderator role at login.
	Admins []string
	// Rooms are created on Seed if missing.
	Rooms []string
	// Location is used for the ban expiry shown to banned users.
	Location *time.Location
	Logger   zerolog.Logger
}

// Server hosts the STOMP endpoint and the REST API the chat client uses.
type Server struct {
	store       *storage.Store
	hub         *Hub
	presence    *PresenceTracker
	metrics     *Metrics
	authLimiter *RateLimiter
	uploadDir   string
	maxFileSize int64
	signingKey  []byte
	sessionTTL  time.Duration
	admins      map[string]bool
	rooms       []string
	loc         *time.Location
	logger      zerolog.Logger
	now         func() time.Time
}

func NewServer(store *storage.Store, opts ServerOptions) *Server {
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = 10 * 1024 * 1024
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if len(opts.Rooms) == 0 {
		opts.Rooms = []string{"general"}
	}
	admins := make(map[string]bool, len(opts.Admins))
	for _, name := range opts.Admins {
		admins[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &Server{
		store:       store,
		hub:         NewHub(),
		presence:    NewPresenceTracker(),
		metrics:     NewMetrics(),
		authLimiter: NewRateLimiter(10, time.Minute),
		uploadDir:   opts.UploadDir,
		maxFileSize: opts.MaxFileSize,
		signingKey:  opts.SigningKey,
		sessionTTL:  opts.SessionTTL,
		admins:      admins,
		rooms:       opts.Rooms,
		loc:         opts.Location,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// Seed creates the configured rooms.
func (s *Server) Seed(ctx context.Context) error {
	for _, name := range s.rooms {
		room, err := s.store.EnsureRoom(ctx, name)
		if err != nil {
			return fmt.Errorf("seed room %q: %w", name, err)
		}
		s.logger.Debug().Int64("room_id", room.ID).Str("room", room.Name).Msg("room ready")
	}
	return nil
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/chat", s.ServeWS)
	r.Post("/login", s.HandleLogin)
	r.Post("/logout", s.HandleLogout)

	r.Route("/api/state", func(r chi.Router) {
		r.Get("/chatroom/{roomID}", s.HandleChatState)
		r.Get("/admin", s.HandleAdminState)
		r.Get("/banned", s.HandleBanState)
	})
	r.Get("/presence/online/chatroom/{roomID}", s.HandleOnlineUsers)

	r.Post("/files/{roomID}/upload", s.HandleFileUpload)
	r.Get("/files/{fileID}/download", s.HandleFileDownload)
	r.Post("/reports/message/{messageID}", s.HandleReportMessage)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/panel/reports", s.HandleReportFeed)
		r.Get("/panel/banned-users", s.HandleBannedUsers)
		r.Post("/dismiss-message-reports/{messageID}", s.HandleDismissReports)
		r.Post("/ban-user/{messageID}", s.HandleBanUser)
	})

	r.Handle("/metrics", s.metrics)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chat" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

type ctxKey int

const authKey ctxKey = iota

func withAuth(ctx context.Context, a *authContext) context.Context {
	return context.WithValue(ctx, authKey, a)
}

func authFrom(ctx context.Context) *authContext {
	a, _ := ctx.Value(authKey).(*authContext)
	return a
}
