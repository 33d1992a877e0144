package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"roomchat/internal/admin"
	"roomchat/internal/model"
	"roomchat/internal/sanitize"
)

type (
	reportsTickMsg     struct{}
	bannedTickMsg      struct{}
	reportsPolledMsg   struct{ err error }
	bannedPolledMsg    struct{ err error }
	adminActionDoneMsg struct {
		label string
		err   error
	}
)

// AdminModel is the moderation view: reported messages with their actions,
// and the banned-user list. Each section refreshes on its own
// admin.PollInterval ticker.
type AdminModel struct {
	ctx        context.Context
	reconciler *admin.Reconciler
	username   string
	loc        *time.Location

	selected     int
	busy         bool
	notices      []notice
	nextNoticeID int
}

func NewAdminModel(ctx context.Context, reconciler *admin.Reconciler, username string, loc *time.Location) *AdminModel {
	if loc == nil {
		loc = time.Local
	}
	return &AdminModel{ctx: ctx, reconciler: reconciler, username: username, loc: loc}
}

// Init runs the first poll of both sections and starts their tickers.
func (m *AdminModel) Init() tea.Cmd {
	return tea.Batch(m.pollReportsCmd(), m.pollBannedCmd(), reportsTick(), bannedTick())
}

func reportsTick() tea.Cmd {
	return tea.Tick(admin.PollInterval, func(time.Time) tea.Msg { return reportsTickMsg{} })
}

func bannedTick() tea.Cmd {
	return tea.Tick(admin.PollInterval, func(time.Time) tea.Msg { return bannedTickMsg{} })
}

func (m *AdminModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		switch typedMessage.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			m.selected++
			m.clampSelection()
		case "r":
			return m, tea.Batch(m.pollReportsCmd(), m.pollBannedCmd())
		case "d":
			if item, ok := m.current(); ok && !m.busy {
				m.busy = true
				return m, m.actionCmd("Dismissed reports on #"+item.ID.String(), func(ctx context.Context) error {
					return m.reconciler.Dismiss(ctx, item.ID)
				})
			}
		case "1", "2", "3":
			item, ok := m.current()
			if !ok || m.busy {
				return m, nil
			}
			d := map[string]admin.BanDuration{"1": admin.Ban24h, "2": admin.Ban1w, "3": admin.BanForever}[typedMessage.String()]
			m.busy = true
			label := fmt.Sprintf("%s: %s", d.Label(), item.SenderUsername)
			return m, m.actionCmd(label, func(ctx context.Context) error {
				return m.reconciler.Ban(ctx, item.ID, d)
			})
		}
		return m, nil

	case reportsTickMsg:
		return m, tea.Batch(m.pollReportsCmd(), reportsTick())

	case bannedTickMsg:
		return m, tea.Batch(m.pollBannedCmd(), bannedTick())

	case reportsPolledMsg:
		m.clampSelection()
		return m, nil

	case bannedPolledMsg:
		return m, nil

	case adminActionDoneMsg:
		m.busy = false
		m.clampSelection()
		if typedMessage.err != nil {
			return m, m.pushNotice(typedMessage.err.Error(), true)
		}
		return m, tea.Batch(m.pushNotice(typedMessage.label, false), m.pollBannedCmd())

	case noticeExpiredMsg:
		for i, n := range m.notices {
			if n.id == typedMessage.id {
				m.notices = append(m.notices[:i], m.notices[i+1:]...)
				break
			}
		}
		return m, nil
	}
	return m, nil
}

func (m *AdminModel) current() (model.ModeratedMessage, bool) {
	items, _ := m.reconciler.Reports()
	if m.selected < 0 || m.selected >= len(items) {
		return model.ModeratedMessage{}, false
	}
	return items[m.selected], true
}

func (m *AdminModel) clampSelection() {
	items, _ := m.reconciler.Reports()
	if m.selected >= len(items) {
		m.selected = len(items) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *AdminModel) pushNotice(text string, isErr bool) tea.Cmd {
	m.nextNoticeID++
	m.notices = append(m.notices, notice{id: m.nextNoticeID, text: text, isErr: isErr})
	return expireNoticeCmd(m.nextNoticeID)
}

// the reconciler records poll errors per section; the message only triggers a redraw
func (m *AdminModel) pollReportsCmd() tea.Cmd {
	return func() tea.Msg {
		return reportsPolledMsg{err: m.reconciler.PollReports(m.ctx)}
	}
}

func (m *AdminModel) pollBannedCmd() tea.Cmd {
	return func() tea.Msg {
		return bannedPolledMsg{err: m.reconciler.PollBanned(m.ctx)}
	}
}

func (m *AdminModel) actionCmd(label string, run func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return adminActionDoneMsg{label: label, err: run(m.ctx)}
	}
}

func (m *AdminModel) View() string {
	title := appTitleStyle.Render("roomchat moderation")
	subtitle := subtitleStyle.Render(fmt.Sprintf("Signed in as %s", m.username))
	sections := []string{lipgloss.JoinVertical(lipgloss.Left, title, subtitle)}

	sections = append(sections, m.renderReports(), m.renderBanned())

	if len(m.notices) > 0 {
		lines := make([]string, 0, len(m.notices))
		for _, n := range m.notices {
			if n.isErr {
				lines = append(lines, errorStyle.Copy().MarginTop(0).Render(n.text))
			} else {
				lines = append(lines, systemMessageStyle.Render(n.text))
			}
		}
		sections = append(sections, noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	}
	if m.busy {
		sections = append(sections, connectingStyle.Render("Working…"))
	}
	sections = append(sections, menuHintStyle.Render("↑/↓ select • d dismiss • 1 ban 24h • 2 ban 1 week • 3 ban forever • r refresh • q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *AdminModel) renderReports() string {
	items, err := m.reconciler.Reports()
	lines := []string{usernameStyle.Render("Reported messages")}
	if err != nil {
		lines = append(lines, errorStyle.Copy().MarginTop(0).Render("Failed to load reports: "+err.Error()))
	}
	if len(items) == 0 {
		lines = append(lines, menuHintStyle.Copy().MarginTop(0).Render("No reported messages."))
	}
	for idx, item := range items {
		lines = append(lines, m.renderItem(idx == m.selected, item))
	}
	return menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *AdminModel) renderItem(selected bool, item model.ModeratedMessage) string {
	prefix, style := "  ", itemStyle
	if selected {
		prefix, style = "➤ ", selectedStyle
	}
	var sb strings.Builder
	sb.WriteString(style.Render(fmt.Sprintf("%s#%s %s: %s", prefix, item.ID, sanitize.Name(item.SenderUsername), sanitize.Text(item.Content))))
	if item.HasFile() {
		sb.WriteString("\n    " + attachmentStyle.Render(fmt.Sprintf("[file] %s (%s)", item.FileName, item.FileMimeType)))
	}
	if item.IsBanned() {
		sb.WriteString("\n    " + errorStyle.Copy().MarginTop(0).Render("Banned until "+admin.FormatBannedUntil(item.BannedUntil, m.loc)))
	}
	for _, r := range item.Reports {
		sb.WriteString("\n    " + timestampStyle.Render(fmt.Sprintf("%s: %s", sanitize.Name(r.ReporterUsername), sanitize.Text(r.Reason))))
	}
	return sb.String()
}

func (m *AdminModel) renderBanned() string {
	users, loaded, err := m.reconciler.Banned()
	lines := []string{usernameStyle.Render("Banned users")}
	switch {
	case err != nil:
		lines = append(lines, errorStyle.Copy().MarginTop(0).Render("Failed to load banned users: "+err.Error()))
	case !loaded:
		lines = append(lines, connectingStyle.Copy().MarginTop(0).Render("Loading…"))
	case len(users) == 0:
		lines = append(lines, menuHintStyle.Copy().MarginTop(0).Render("No currently banned users"))
	default:
		for _, u := range users {
			lines = append(lines, itemStyle.Render(fmt.Sprintf("  %s  %s", sanitize.Name(u.Username), admin.FormatBannedUntil(u.BannedUntil, m.loc))))
		}
	}
	return menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
