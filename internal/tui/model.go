// Package tui is the operator screen: trigger a login run, watch the captcha
// cell, answer with three digits, follow the log.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"captcha_relay/internal/client"
	"captcha_relay/internal/notifications"
	"captcha_relay/internal/poller"
	"captcha_relay/internal/state"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	accentPrimary   = lipgloss.Color("#50E3C2")
	accentSecondary = lipgloss.Color("#F6AE2D")
	mutedText       = lipgloss.Color("#8CA1AE")
	warningText     = lipgloss.Color("#FF6B6B")
	panelBorder     = lipgloss.Color("#2D6A80")

	headerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(accentPrimary)

	statusStyle = lipgloss.NewStyle().
			Foreground(accentSecondary).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(warningText).
			Bold(true)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(accentPrimary).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(panelBorder).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedText)
)

type pollUpdateMsg struct {
	update poller.Update
}

type runTriggeredMsg struct {
	err error
}

type answerSentMsg struct {
	err error
}

// Model is the screen state. It owns nothing but presentation; polling lives
// in the controller, network calls in the client.
type Model struct {
	client   *client.Client
	poll     *poller.Controller
	notifier *notifications.Client

	answer  textinput.Model
	logView viewport.Model
	spin    spinner.Model

	ready  bool
	width  int
	height int

	sheet        *state.State
	polling      bool
	runInFlight  bool
	fetchedOnce  bool
	lastImage    string
	statusText   string
	errorText    string
	followBottom bool
}

func NewModel(c *client.Client, p *poller.Controller, n *notifications.Client) Model {
	answer := textinput.New()
	answer.Prompt = "> "
	answer.Placeholder = "000"
	answer.CharLimit = 3
	answer.Width = 8
	answer.Validate = func(s string) error {
		for _, r := range s {
			if r < '0' || r > '9' {
				return fmt.Errorf("digits only")
			}
		}
		return nil
	}
	answer.Focus()

	logView := viewport.New(60, 12)
	logView.SetContent(mutedStyle.Render("No run yet. Press ctrl+r to trigger a login run."))

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = lipgloss.NewStyle().Foreground(accentSecondary)

	return Model{
		client:       c,
		poll:         p,
		notifier:     n,
		answer:       answer,
		logView:      logView,
		spin:         spin,
		statusText:   "Idle. ctrl+r triggers a run.",
		followBottom: true,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdateCmd(m.poll.Updates())
}

func waitForUpdateCmd(ch <-chan poller.Update) tea.Cmd {
	return func() tea.Msg {
		return pollUpdateMsg{update: <-ch}
	}
}

func triggerRunCmd(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return runTriggeredMsg{err: c.TriggerRun(ctx)}
	}
}

func submitAnswerCmd(c *client.Client, answer string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return answerSentMsg{err: c.SubmitAnswer(ctx, answer)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case spinner.TickMsg:
		if !m.runInFlight {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case pollUpdateMsg:
		m.applyPollUpdate(msg.update)
		return m, waitForUpdateCmd(m.poll.Updates())

	case runTriggeredMsg:
		m.runInFlight = false
		if msg.err != nil {
			m.errorText = "Run trigger failed: " + msg.err.Error()
			return m, nil
		}
		m.errorText = ""
		m.statusText = "Run triggered. Polling sheet state..."
		m.polling = true
		m.poll.Start()
		return m, nil

	case answerSentMsg:
		if msg.err != nil {
			m.errorText = "Answer submit failed: " + msg.err.Error()
			return m, nil
		}
		m.errorText = ""
		m.statusText = "Answer submitted."
		m.answer.Reset()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.poll.Stop()
			return m, tea.Quit
		case "esc":
			m.errorText = ""
			return m, nil
		case "ctrl+r":
			if m.runInFlight {
				return m, nil
			}
			m.runInFlight = true
			m.statusText = "Triggering run..."
			return m, tea.Batch(m.spin.Tick, triggerRunCmd(m.client))
		case "enter":
			answer := strings.TrimSpace(m.answer.Value())
			if len(answer) != 3 {
				m.errorText = "Answer must be exactly 3 digits."
				return m, nil
			}
			m.statusText = "Submitting answer..."
			return m, submitAnswerCmd(m.client, answer)
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.logView, cmd = m.logView.Update(msg)
			m.followBottom = m.logView.AtBottom()
			return m, cmd
		}

		var cmd tea.Cmd
		m.answer, cmd = m.answer.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		m.followBottom = m.logView.AtBottom()
		return m, cmd
	}

	return m, nil
}

func (m *Model) applyPollUpdate(u poller.Update) {
	m.polling = u.Polling

	if u.Err != nil {
		m.errorText = "Fetch failed: " + u.Err.Error()
		m.statusText = "Polling stopped on error."
		return
	}
	if u.State == nil {
		return
	}

	m.fetchedOnce = true
	m.sheet = u.State
	m.errorText = ""
	if u.Polling {
		m.statusText = fmt.Sprintf("Run in progress (status %q).", u.State.A2)
	} else {
		m.statusText = fmt.Sprintf("Run finished (status %q).", u.State.A2)
	}

	if u.State.ImageURL != "" && u.State.ImageURL != m.lastImage {
		m.lastImage = u.State.ImageURL
		if m.notifier != nil {
			m.notifier.NotifyCaptcha(context.Background())
		}
	}

	m.logView.SetContent(m.renderLogs())
	if m.followBottom {
		m.logView.GotoBottom()
	}
}

func (m Model) renderLogs() string {
	if m.sheet == nil || len(m.sheet.Logs) == 0 {
		if m.polling && !m.fetchedOnce {
			return mutedStyle.Render("Loading log...")
		}
		return mutedStyle.Render("Log is empty.")
	}

	lines := make([]string, 0, len(m.sheet.Logs))
	for _, entry := range m.sheet.Logs {
		lines = append(lines, fmt.Sprintf("%s %s",
			mutedStyle.Render(fmt.Sprintf("%4d", entry.Row)),
			entry.Text))
	}
	return strings.Join(lines, "\n")
}

// DisplayImageURI resolves a normalized image value into something a browser
// or image viewer can open directly: absolute URLs and data URIs pass
// through, a raw base64 payload gets wrapped as a PNG data URI.
func DisplayImageURI(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return v
	}
	return "data:image/png;base64," + v
}

func (m Model) View() string {
	if !m.ready {
		return "Starting relay operator screen..."
	}

	header := headerStyle.Render("Captcha Relay")

	statusPrefix := "*"
	if m.runInFlight {
		statusPrefix = m.spin.View()
	}
	statusLine := statusStyle.Render(statusPrefix + " " + m.statusText)
	if m.errorText != "" {
		statusLine = errorStyle.Render(m.errorText + "  (esc to dismiss)")
	}

	captcha := m.renderCaptchaPanel()
	logs := panelStyle.Width(m.panelWidth()).Render(
		panelTitleStyle.Render("Log") + "\n" + m.logView.View())

	answerLine := "Answer (3 digits): " + m.answer.View()
	if len(strings.TrimSpace(m.answer.Value())) == 3 {
		answerLine += "  " + statusStyle.Render("[enter to send]")
	} else {
		answerLine += "  " + mutedStyle.Render("[enter disabled]")
	}

	help := helpStyle.Render("ctrl+r run | enter send answer | up/down scroll log | esc dismiss error | q quit")

	return strings.Join([]string{header, statusLine, captcha, logs, answerLine, help}, "\n")
}

func (m Model) renderCaptchaPanel() string {
	body := mutedStyle.Render("No captcha available.")
	if m.sheet != nil {
		if uri := DisplayImageURI(m.sheet.ImageURL); uri != "" {
			body = "Open to view: " + truncate(uri, m.panelWidth()-18)
		}
	}
	return panelStyle.Width(m.panelWidth()).Render(
		panelTitleStyle.Render("Captcha") + "\n" + body)
}

func (m *Model) resize() {
	w := m.panelWidth()
	m.logView.Width = w - 4
	h := m.height - 12
	if h < 4 {
		h = 4
	}
	m.logView.Height = h
}

func (m Model) panelWidth() int {
	w := m.width - 2
	if w < 40 {
		w = 40
	}
	return w
}

func truncate(s string, max int) string {
	if max < 8 {
		max = 8
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
