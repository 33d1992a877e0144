package internal

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"roomchat/internal/chat"
	"roomchat/internal/model"
	"roomchat/internal/session"
)

// noticeTTL is how long a chat error or hint stays on screen.
const noticeTTL = 5 * time.Second

// chatBackend is the part of the HTTP API the chat view needs.
type chatBackend interface {
	Upload(ctx context.Context, roomID model.ID, filename string, r io.Reader) (model.UploadResult, error)
	OnlineUsers(ctx context.Context, roomID model.ID) ([]string, error)
	ReportMessage(ctx context.Context, messageID model.ID, reason string) error
	DownloadFile(ctx context.Context, fileID model.ID, name, dir string) (string, error)
	FileURL(fileID model.ID) string
}

// chatConn is the live connection of the view.
type chatConn interface {
	chat.Sender
	Connect(ctx context.Context, roomID model.ID) error
	Next(ctx context.Context) (chat.Event, error)
	State() chat.State
	Close() error
}

type notice struct {
	id    int
	text  string
	isErr bool
}

// TUIModel is the bubbletea state of one chat room view. Update is the only
// place its fields change; commands report back through messages.
type TUIModel struct {
	ctx     context.Context
	logger  zerolog.Logger
	backend chatBackend
	conn    chatConn
	sess    *session.Context

	stream   *chat.Stream
	presence *chat.Presence
	uploader *chat.Uploader
	composer *chat.Composer

	textInput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model

	notices         []notice
	nextNoticeID    int
	connectionError error
	browseDir       string
	downloadDir     string
	width           int
	ready           bool
}

// NewTUIModel builds the chat view for a session.
func NewTUIModel(ctx context.Context, sess *session.Context, backend chatBackend, conn chatConn, logger zerolog.Logger) *TUIModel {
	input := textinput.New()
	input.Placeholder = "Type a message…"
	input.CharLimit = 2000
	input.Focus()
	input.Prompt = "> "

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = connectingStyle.Copy().MarginTop(0)

	uploader := chat.NewUploader(backend, sess.RoomID)
	browseDir := defaultBrowsePath()

	return &TUIModel{
		ctx:         ctx,
		logger:      logger,
		backend:     backend,
		conn:        conn,
		sess:        sess,
		stream:      chat.NewStream(sess, backend.FileURL),
		presence:    chat.NewPresence(sess),
		uploader:    uploader,
		composer:    chat.NewComposer(sess, uploader, conn),
		textInput:   input,
		viewport:    viewport.New(80, 16),
		spinner:     spin,
		browseDir:   browseDir,
		downloadDir: browseDir,
		width:       80,
	}
}

// Init dials the room and loads the roster.
func (m *TUIModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.connectCmd(), m.rosterCmd())
}
