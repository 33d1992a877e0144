package internal

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"roomchat/internal/countdown"
	"roomchat/internal/model"
)

type countdownTickMsg time.Time

// BannedModel shows the caller's own ban and counts it down once a second.
// The countdown stops for good once it reaches zero.
type BannedModel struct {
	state     model.BanState
	countdown *countdown.Countdown
	text      string
	err       error
	now       func() time.Time
}

func NewBannedModel(state model.BanState, loc *time.Location) *BannedModel {
	m := &BannedModel{state: state, now: time.Now}
	if state.Permanent {
		m.text = "You are banned permanently."
		return m
	}
	expiry, err := countdown.ParseExpiry(state.BannedUntil, loc)
	if err != nil {
		m.err = err
		return m
	}
	m.countdown = countdown.New(expiry)
	m.text = m.countdown.Tick(m.now())
	return m
}

func (m *BannedModel) Init() tea.Cmd {
	if m.countdown == nil || m.countdown.Expired() {
		return nil
	}
	return countdownTick()
}

func countdownTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return countdownTickMsg(t) })
}

func (m *BannedModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		switch typedMessage.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		}
	case countdownTickMsg:
		if m.countdown == nil {
			return m, nil
		}
		m.text = m.countdown.Tick(time.Time(typedMessage))
		if m.countdown.Expired() {
			return m, nil
		}
		return m, countdownTick()
	}
	return m, nil
}

func (m *BannedModel) View() string {
	title := appTitleStyle.Render("You are banned")
	sections := []string{title}
	if m.state.Username != "" {
		sections = append(sections, subtitleStyle.Render("Account: "+m.state.Username))
	}
	if !m.state.Permanent && m.state.BannedUntil != "" {
		sections = append(sections, statusStyle.Render("Banned until "+m.state.BannedUntil))
	}
	switch {
	case m.err != nil:
		sections = append(sections, errorStyle.Render(m.err.Error()))
	case m.countdown != nil && m.countdown.Expired():
		sections = append(sections, connectedStyle.Render(m.text))
	default:
		sections = append(sections, menuBoxStyle.Render(m.text))
	}
	sections = append(sections, menuHintStyle.Render("q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
