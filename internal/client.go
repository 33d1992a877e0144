package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"roomchat/internal/admin"
	"roomchat/internal/api"
	"roomchat/internal/chat"
	"roomchat/internal/model"
	"roomchat/internal/session"
	"roomchat/internal/stomp"
)

// ErrBanned is returned when the server refuses the chat view because the
// user is banned. Callers show the ban view instead.
var ErrBanned = errors.New("you are banned from chatting")

// RunChat loads the room's handoff state and runs the chat view until the
// user quits. Downloads go to downloadDir, or the working directory if empty.
func RunChat(ctx context.Context, client *api.Client, roomID model.ID, downloadDir string, logger zerolog.Logger) error {
	state, err := client.ChatState(ctx, roomID)
	if err != nil {
		if isForbidden(err) {
			return ErrBanned
		}
		return fmt.Errorf("load chat state: %w", err)
	}
	sess, err := session.FromChatState(state)
	if err != nil {
		return err
	}

	logger = logger.With().Str("room", sess.RoomID.String()).Str("user", sess.UserName).Logger()
	conn := chat.NewConnection(chat.StompDialer(client.WebSocketURL(), stomp.Options{Jar: client.Jar()}), logger)
	defer conn.Close()

	m := NewTUIModel(ctx, sess, client, conn, logger)
	if downloadDir != "" {
		m.downloadDir = downloadDir
	}
	return runProgram(ctx, m)
}

// RunAdmin runs the moderation view.
func RunAdmin(ctx context.Context, client *api.Client, loc *time.Location, opts ...admin.Option) error {
	state, err := client.AdminState(ctx)
	if err != nil {
		return fmt.Errorf("load admin state: %w", err)
	}
	reconciler := admin.NewReconciler(client, state.Since, opts...)
	return runProgram(ctx, NewAdminModel(ctx, reconciler, state.Username, loc))
}

// RunBanned shows the caller's ban countdown.
func RunBanned(ctx context.Context, client *api.Client, loc *time.Location) error {
	state, err := client.BanState(ctx)
	if err != nil {
		return fmt.Errorf("load ban state: %w", err)
	}
	return runProgram(ctx, NewBannedModel(state, loc))
}

func runProgram(ctx context.Context, m tea.Model) error {
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func isForbidden(err error) bool {
	var statusErr *api.StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusForbidden
}
