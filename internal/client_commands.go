package internal

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"roomchat/internal/api"
	"roomchat/internal/chat"
	"roomchat/internal/model"
)

const commandHelp = "/attach <path> • /detach • /ls [dir] • /report <id> <reason> • /download <fileId> [dir] • /quit"

// runCommand handles a line starting with '/'.
func (m *TUIModel) runCommand(line string) tea.Cmd {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "/quit", "/exit":
		_ = m.conn.Close()
		return tea.Quit

	case "/attach":
		if len(args) == 0 {
			return m.showError("usage: /attach <path>")
		}
		path := resolveLocalPath(m.browseDir, strings.Join(args, " "))
		info, err := os.Stat(path)
		if err != nil {
			return m.showError("Cannot attach: " + err.Error())
		}
		if info.IsDir() {
			return m.showError(path + " is a directory")
		}
		m.composer.Attach(chat.LocalFile(path))
		return m.showInfo(fmt.Sprintf("Attached %s (%s). It goes with your next message.", info.Name(), formatFileSize(info.Size())))

	case "/detach":
		if _, ok := m.composer.Staged(); !ok {
			return m.showInfo("Nothing attached.")
		}
		m.composer.Detach()
		return m.showInfo("Attachment removed.")

	case "/ls":
		dir := m.browseDir
		if len(args) > 0 {
			dir = resolveLocalPath(m.browseDir, strings.Join(args, " "))
		}
		items, err := browseDirectory(dir)
		if err != nil {
			return m.showError(err.Error())
		}
		m.browseDir = dir
		return m.showInfo(formatListing(dir, items))

	case "/report":
		if len(args) < 2 {
			return m.showError("usage: /report <messageId> <reason>")
		}
		id := parseID(args[0])
		row, ok := m.stream.Find(id)
		if !ok {
			return m.showError("No message " + args[0] + " in this session.")
		}
		if !row.CanReport {
			return m.showError("Message " + args[0] + " cannot be reported.")
		}
		return m.reportCmd(id, strings.Join(args[1:], " "))

	case "/download":
		if len(args) == 0 {
			return m.showError("usage: /download <fileId> [dir]")
		}
		id := parseID(args[0])
		name := id.String()
		for _, row := range m.stream.Rows() {
			if row.Attachment.FileID == id {
				name = row.Attachment.FileName
			}
		}
		dir := m.downloadDir
		if len(args) > 1 {
			dir = resolveLocalPath(m.browseDir, strings.Join(args[1:], " "))
		}
		return m.downloadCmd(id, name, dir)

	case "/help":
		return m.showInfo(commandHelp)
	}
	return m.showError("Unknown command " + name + ". " + commandHelp)
}

// parseID reads an id typed by the user, with or without a leading '#'.
func parseID(s string) model.ID {
	return model.ID(strings.TrimPrefix(strings.TrimSpace(s), "#"))
}

func (m *TUIModel) connectCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.conn.Connect(m.ctx, m.sess.RoomID); err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{}
	}
}

// readOnceCmd waits for one inbound event; Update schedules it again.
func (m *TUIModel) readOnceCmd() tea.Cmd {
	return func() tea.Msg {
		ev, err := m.conn.Next(m.ctx)
		if err != nil {
			return streamErrMsg{err: err}
		}
		return inboundMsg(ev)
	}
}

func (m *TUIModel) rosterCmd() tea.Cmd {
	return func() tea.Msg {
		names, err := m.backend.OnlineUsers(m.ctx, m.sess.RoomID)
		return rosterMsg{names: names, err: err}
	}
}

func (m *TUIModel) sendCmd(draft *chat.Draft) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{err: m.composer.Submit(m.ctx, draft)}
	}
}

func (m *TUIModel) reportCmd(id model.ID, reason string) tea.Cmd {
	return func() tea.Msg {
		return reportedMsg{id: id, err: m.backend.ReportMessage(m.ctx, id, reason)}
	}
}

func (m *TUIModel) downloadCmd(id model.ID, name, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := m.backend.DownloadFile(m.ctx, id, name, dir)
		return downloadedMsg{path: path, err: err}
	}
}

func expireBannerCmd(b chat.Banner) tea.Cmd {
	return tea.Tick(time.Until(b.ExpiresAt), func(time.Time) tea.Msg {
		return bannerExpiredMsg{id: b.ID}
	})
}

func expireNoticeCmd(id int) tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{id: id}
	})
}

// isConflict reports a 409, which the server answers for a repeated report.
func isConflict(err error) bool {
	var statusErr *api.StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict
}
