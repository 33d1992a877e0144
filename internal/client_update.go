package internal

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"roomchat/internal/chat"
	"roomchat/internal/model"
)

// async results delivered back to Update
type (
	connectedMsg     struct{}
	connectFailedMsg struct{ err error }
	inboundMsg       chat.Event
	streamErrMsg     struct{ err error }
	rosterMsg        struct {
		names []string
		err   error
	}
	bannerExpiredMsg struct{ id int }
	noticeExpiredMsg struct{ id int }
	sentMsg          struct{ err error }
	reportedMsg      struct {
		id  model.ID
		err error
	}
	downloadedMsg struct {
		path string
		err  error
	}
)

func (m *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		switch typedMessage.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			_ = m.conn.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			value := m.textInput.Value()
			if strings.HasPrefix(strings.TrimSpace(value), "/") {
				m.textInput.SetValue("")
				return m, m.runCommand(strings.TrimSpace(value))
			}
			return m, m.submit(value)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(typedMessage)
			return m, cmd
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(typedMessage)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = typedMessage.Width
		m.viewport.Width = typedMessage.Width - 6
		// header, status, input and hints take roughly twelve rows
		if h := typedMessage.Height - 12; h > 3 {
			m.viewport.Height = h
		}
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typedMessage)
		return m, cmd

	case connectedMsg:
		m.ready = true
		m.connectionError = nil
		return m, m.readOnceCmd()

	case connectFailedMsg:
		m.connectionError = typedMessage.err
		return m, nil

	case inboundMsg:
		cmds := []tea.Cmd{m.readOnceCmd()}
		switch {
		case typedMessage.Message != nil:
			m.stream.Append(*typedMessage.Message)
			m.refreshViewport()
			// new traffic always pins the log to the latest line
			m.viewport.GotoBottom()
		case typedMessage.Presence != nil:
			if banner, ok := m.presence.Handle(*typedMessage.Presence); ok {
				cmds = append(cmds, expireBannerCmd(banner), m.rosterCmd())
			}
		}
		return m, tea.Batch(cmds...)

	case streamErrMsg:
		// the stream is not reopened; the view stays up with the error shown
		m.connectionError = typedMessage.err
		m.ready = false
		return m, nil

	case rosterMsg:
		if typedMessage.err != nil {
			m.logger.Warn().Err(typedMessage.err).Msg("[chat] roster fetch failed")
			return m, nil
		}
		m.presence.SetRoster(typedMessage.names)
		return m, nil

	case bannerExpiredMsg:
		m.presence.Expire(typedMessage.id)
		return m, nil

	case noticeExpiredMsg:
		m.dropNotice(typedMessage.id)
		return m, nil

	case sentMsg:
		if typedMessage.err != nil {
			return m, m.showError(describeSendError(typedMessage.err))
		}
		return m, nil

	case reportedMsg:
		if typedMessage.err != nil && !isConflict(typedMessage.err) {
			return m, m.showError("Report failed: " + typedMessage.err.Error())
		}
		m.stream.MarkReported(typedMessage.id)
		m.refreshViewport()
		return m, m.showInfo("Message " + typedMessage.id.String() + " reported.")

	case downloadedMsg:
		if typedMessage.err != nil {
			return m, m.showError("Download failed: " + typedMessage.err.Error())
		}
		return m, m.showInfo("Saved " + typedMessage.path)
	}
	return m, nil
}

// submit takes the composer's draft and sends it in the background. The input
// is cleared only once the draft was accepted.
func (m *TUIModel) submit(value string) tea.Cmd {
	draft, err := m.composer.Prepare(value)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return nil
	case err != nil:
		return m.showError(err.Error())
	}
	m.textInput.SetValue("")
	return m.sendCmd(draft)
}

func describeSendError(err error) string {
	var uploadErr *chat.UploadError
	switch {
	case errors.As(err, &uploadErr):
		return "File upload failed, message not sent: " + uploadErr.Err.Error()
	case errors.Is(err, chat.ErrNotConnected):
		return "Not connected, message not sent."
	case errors.Is(err, chat.ErrSendQueueFull):
		return "Too many messages queued, try again."
	default:
		return "Send failed: " + err.Error()
	}
}

func (m *TUIModel) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderRows())
	if atBottom || m.viewport.TotalLineCount() <= m.viewport.Height {
		m.viewport.GotoBottom()
	}
}

func (m *TUIModel) pushNotice(text string, isErr bool) tea.Cmd {
	m.nextNoticeID++
	n := notice{id: m.nextNoticeID, text: text, isErr: isErr}
	m.notices = append(m.notices, n)
	return expireNoticeCmd(n.id)
}

func (m *TUIModel) showError(text string) tea.Cmd { return m.pushNotice(text, true) }

func (m *TUIModel) showInfo(text string) tea.Cmd { return m.pushNotice(text, false) }

func (m *TUIModel) dropNotice(id int) {
	for i, n := range m.notices {
		if n.id == id {
			m.notices = append(m.notices[:i], m.notices[i+1:]...)
			return
		}
	}
}
