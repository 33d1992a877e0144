package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"roomchat/internal/admin"
	"roomchat/internal/countdown"
	"roomchat/internal/model"
	"roomchat/internal/sanitize"
	"roomchat/internal/storage"
)

// feedTimeLayout is the wire form of moderation timestamps.
const feedTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// epochCursor is handed to a fresh moderation view so its first poll
// returns the whole pending set.
const epochCursor = "1970-01-01T00:00:00Z"

const maxReasonLen = 500

var errBanned = errors.New("account is banned")

type loginResponse struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.Allow(s.clientIP(r), s.now()) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := sanitize.Name(r.PostFormValue("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, errors.New("username is required"))
		return
	}
	role := storage.RoleUser
	if s.admins[strings.ToLower(username)] {
		role = storage.RoleAdmin
	}
	user, err := s.store.EnsureUser(r.Context(), username, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	token, expiresAt, err := s.issueSession(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.metrics.IncLogin()
	s.logger.Info().Str("user", user.Username).Str("role", user.Role).Msg("login")
	writeJSON(w, http.StatusOK, loginResponse{Username: user.Username, Role: user.Role, ExpiresAt: expiresAt})
}

func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

// HandleChatState hands the chat view its identity and the messages the user
// already reported in the room.
func (s *Server) HandleChatState(w http.ResponseWriter, r *http.Request) {
	authCtx, user, err := s.currentUser(r)
	if err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	if user.BannedAt(s.now()) {
		writeError(w, http.StatusForbidden, errBanned)
		return
	}
	roomID, ok := int64Param(w, r, "roomID")
	if !ok {
		return
	}
	room, err := s.store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, errors.New("chatroom not found"))
		return
	}
	reported, err := s.store.ReportedMessageIDs(r.Context(), authCtx.UserID, roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	state := model.ChatState{
		UserID:     model.IntID(user.ID),
		Username:   user.Username,
		RoomID:     model.IntID(room.ID),
		RoomName:   room.Name,
		ReportedBy: make([]model.ID, 0, len(reported)),
	}
	for _, id := range reported {
		state.ReportedBy = append(state.ReportedBy, model.IntID(id))
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) HandleAdminState(w http.ResponseWriter, r *http.Request) {
	authCtx, user, err := s.currentUser(r)
	if err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	if !authCtx.IsAdmin() {
		writeError(w, http.StatusForbidden, errForbidden)
		return
	}
	writeJSON(w, http.StatusOK, model.AdminState{
		UserID:   model.IntID(user.ID),
		Username: user.Username,
		Since:    epochCursor,
	})
}

// HandleBanState answers 404 when the caller is not banned.
func (s *Server) HandleBanState(w http.ResponseWriter, r *http.Request) {
	_, user, err := s.currentUser(r)
	if err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	if !user.BannedAt(s.now()) {
		writeError(w, http.StatusNotFound, errors.New("not banned"))
		return
	}
	state := model.BanState{Username: user.Username, Permanent: user.BanPermanent}
	if !user.BanPermanent {
		state.BannedUntil = user.BannedUntil.In(s.loc).Format(countdown.ExpiryLayout)
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) HandleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticateRequest(r); err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	roomID, ok := int64Param(w, r, "roomID")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.presence.Online(roomID))
}

// HandleReportMessage files a report from the caller. Reporting a message
// twice, or one's own message, is rejected.
func (s *Server) HandleReportMessage(w http.ResponseWriter, r *http.Request) {
	authCtx, _, err := s.currentUser(r)
	if err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	messageID, ok := int64Param(w, r, "messageID")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reason := sanitize.Text(r.PostFormValue("reason"))
	if reason == "" {
		writeError(w, http.StatusBadRequest, errors.New("reason is required"))
		return
	}
	if runes := []rune(reason); len(runes) > maxReasonLen {
		reason = string(runes[:maxReasonLen])
	}
	msg, err := s.store.GetMessage(r.Context(), messageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, errors.New("message not found"))
		return
	}
	if msg.SenderID == authCtx.UserID {
		writeError(w, http.StatusBadRequest, errors.New("cannot report your own message"))
		return
	}
	if err := s.store.CreateReport(r.Context(), messageID, authCtx.UserID, reason); err != nil {
		if errors.Is(err, storage.ErrAlreadyReported) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncReport()
	w.WriteHeader(http.StatusNoContent)
}

// HandleReportFeed returns every message with pending reports when anything
// changed after since, and an empty list otherwise.
func (s *Server) HandleReportFeed(w http.ResponseWriter, r *http.Request) {
	empty := []model.ModeratedMessage{}
	since, ok := admin.ParseTimestamp(r.URL.Query().Get("since"), time.UTC)
	if !ok {
		writeJSON(w, http.StatusOK, empty)
		return
	}
	changed, err := s.store.ReportsChangedSince(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !changed {
		writeJSON(w, http.StatusOK, empty)
		return
	}
	pending, err := s.store.PendingReports(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	items := make([]model.ModeratedMessage, 0, len(pending))
	for _, p := range pending {
		item := model.ModeratedMessage{
			ID:             model.IntID(p.MessageID),
			Content:        p.Content,
			SenderUsername: p.SenderUsername,
			UpdatedAt:      p.UpdatedAt.UTC().Format(feedTimeLayout),
			Reports:        make([]model.Report, 0, len(p.Reports)),
		}
		if p.SenderBan != nil && p.SenderBan.BannedAt(s.now()) {
			until := "forever"
			if !p.SenderBan.BanPermanent {
				until = p.SenderBan.BannedUntil.UTC().Format(feedTimeLayout)
			}
			item.BannedUntil = &until
		}
		if p.File != nil {
			item.FileID = model.ID(p.File.ID)
			item.FileName = p.File.Filename
			item.FileMimeType = p.File.MimeType
		}
		for _, rep := range p.Reports {
			item.Reports = append(item.Reports, model.Report{ReporterUsername: rep.ReporterUsername, Reason: rep.Reason})
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) HandleDismissReports(w http.ResponseWriter, r *http.Request) {
	messageID, ok := int64Param(w, r, "messageID")
	if !ok {
		return
	}
	n, err := s.store.DismissReports(r.Context(), messageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info().Int64("message_id", messageID).Int64("reports", n).
		Str("admin", authFrom(r.Context()).Username).Msg("reports dismissed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleBanUser(w http.ResponseWriter, r *http.Request) {
	messageID, ok := int64Param(w, r, "messageID")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	duration, err := admin.ParseBanDuration(r.PostFormValue("duration"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var until *time.Time
	switch now := s.now(); duration {
	case admin.Ban24h:
		t := now.Add(24 * time.Hour)
		until = &t
	case admin.Ban1w:
		t := now.AddDate(0, 0, 7)
		until = &t
	}
	user, err := s.store.BanSender(r.Context(), messageID, until)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, errors.New("message not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncBan()
	s.logger.Info().Int64("message_id", messageID).Str("user", user.Username).
		Str("duration", string(duration)).Str("admin", authFrom(r.Context()).Username).Msg("user banned")
	w.WriteHeader(http.StatusNoContent)
}

// HandleBannedUsers lists bans still in force and clears expired ones.
func (s *Server) HandleBannedUsers(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	if _, err := s.store.ClearExpiredBans(r.Context(), now); err != nil {
		s.logger.Warn().Err(err).Msg("clear expired bans")
	}
	users, err := s.store.BannedUsers(r.Context(), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]model.BannedUser, 0, len(users))
	for _, u := range users {
		entry := model.BannedUser{ID: model.IntID(u.ID), Username: u.Username}
		if !u.BanPermanent && u.BannedUntil != nil {
			until := u.BannedUntil.UTC().Format(feedTimeLayout)
			entry.BannedUntil = &until
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid "+name))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
