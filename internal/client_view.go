package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"roomchat/internal/chat"
	"roomchat/internal/sanitize"
)

// pre styled colors, all from lipgloss
var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(0, 1).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	inputOffStyle      = inputBoxStyle.Copy().BorderForeground(lipgloss.Color("238")).Foreground(lipgloss.Color("244"))
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	messageIDStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	attachmentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("117")).Underline(true)
	bannerStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("150")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	selectedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	itemStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

const uploadingText = "Uploading file… sending files is disabled until it finishes"

func (m *TUIModel) View() string {
	roomName := m.sess.RoomName
	if roomName == "" {
		roomName = "#" + m.sess.RoomID.String()
	}
	headerSegments := []string{
		"roomchat",
		fmt.Sprintf("Room %s", sanitize.Name(roomName)),
		fmt.Sprintf("User %s", m.sess.UserName),
	}
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case m.connectionError != nil:
		statusLine = errorStyle.Render("Connection error: " + m.connectionError.Error())
	case m.ready && m.conn.State() == chat.Subscribed:
		statusLine = connectedStyle.Render("Connected") + statusStyle.Copy().MarginTop(0).Render("  Online: "+m.presence.RosterText())
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	sections := []string{header, statusLine}
	if banners := m.presence.Banners(); len(banners) > 0 {
		lines := make([]string, 0, len(banners))
		for _, b := range banners {
			lines = append(lines, bannerStyle.Render(b.Text))
		}
		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, lines...))
	}

	sections = append(sections, messageBoxStyle.Render(m.viewport.View()))

	sendEnabled := m.uploader.SendEnabled()
	if !sendEnabled {
		sections = append(sections, m.spinner.View()+connectingStyle.Copy().MarginTop(0).Render(" "+uploadingText))
	} else if f, ok := m.composer.Staged(); ok {
		sections = append(sections, attachmentStyle.Render("Attached: "+f.Name))
	}

	if notices := m.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}

	if sendEnabled {
		sections = append(sections, inputBoxStyle.Render(m.textInput.View()))
	} else {
		sections = append(sections, inputOffStyle.Render(m.textInput.View()))
	}
	sections = append(sections, menuHintStyle.Render(commandHelp+" • PgUp/PgDn scroll"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderRows draws the message list for the viewport.
func (m *TUIModel) renderRows() string {
	rows := m.stream.Rows()
	if len(rows) == 0 {
		return systemMessageStyle.Render("No messages yet. Say hi and start the conversation.")
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, m.renderChatMessage(row))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderChatMessage renders a single log line. It stamps the time, picks a
// color for the sender, and adds the attachment and report markers.
func (m *TUIModel) renderChatMessage(row chat.Row) string {
	msg := row.Message
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", msg.SentAt))
	id := messageIDStyle.Render("#" + msg.ID.String())

	from := sanitize.Name(msg.FromName)
	if from == "" {
		from = "?"
	}
	var nameStyle lipgloss.Style
	if row.IsSelf {
		nameStyle = activeUserStyle
	} else {
		nameStyle = usernameStyle.Copy().Foreground(colorForUser(from))
	}
	name := nameStyle.Render(from)
	bodyText := messageBodyStyle.Render(strings.ReplaceAll(sanitize.Text(msg.Text), "\n", "\n   "))
	line := lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", id, " ", name, ": ", bodyText)

	switch row.Attachment.Kind {
	case chat.AttachmentImage:
		line += "\n   " + attachmentStyle.Render("[image] "+row.Attachment.FileName) + " " + messageIDStyle.Render(row.Attachment.URL)
	case chat.AttachmentDownload:
		line += "\n   " + attachmentStyle.Render("[file] "+row.Attachment.FileName) + " " + messageIDStyle.Render("/download "+row.Attachment.FileID.String())
	}
	if !row.IsSelf && !row.CanReport && !msg.ID.IsZero() {
		line += " " + messageIDStyle.Render("(reported)")
	}
	return line
}

func (m *TUIModel) renderNotices() string {
	if len(m.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.notices))
	for _, n := range m.notices {
		if n.isErr {
			lines = append(lines, errorStyle.Copy().MarginTop(0).Render(n.text))
			continue
		}
		lines = append(lines, systemMessageStyle.Render(n.text))
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
