package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/mythic-paths/internal/dice"
	"github.com/tatianab/mythic-paths/internal/models"
	"github.com/tatianab/mythic-paths/internal/session"
)

// noticeTTL is how long a notice stays on screen.
const noticeTTL = 3 * time.Second

type model struct {
	session   *session.Session
	textInput textinput.Model
	viewport  viewport.Model
	view      session.View
	gender    models.Gender
	busy      bool
	notice    string
	noticeID  int
	lastRoll  int
	width     int
	height    int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	optionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD787"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFA500")).
			PaddingLeft(1).
			PaddingRight(1)

	deathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

func NewModel(s *session.Session) model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 40

	m := model{
		session:   s,
		textInput: ti,
		view:      s.View(),
	}
	m.textInput.Placeholder = m.placeholder()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent(), m.warmInitialScene())
}

type eventMsg struct {
	event session.Event
}

type actionDoneMsg struct {
	err error
}

type rolledMsg struct {
	roll int
	err  error
}

type clearNoticeMsg struct {
	id int
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			input := strings.TrimSpace(m.textInput.Value())
			m.textInput.Reset()
			if input == "/quit" {
				return m, tea.Quit
			}
			if input == "" || m.busy {
				return m, nil
			}
			next, cmd := m.handleInput(input)
			next.refresh()
			return next, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.viewport.Width == 0 {
			m.viewport = viewport.New(m.logWidth(), msg.Height-8)
		}
		m.viewport.Width = m.logWidth()
		m.viewport.Height = msg.Height - 8
		m.refresh()

	case eventMsg:
		var cmds []tea.Cmd
		if msg.event.Kind == session.EventNotice {
			cmds = append(cmds, m.showNotice(msg.event.Message))
		}
		m.refresh()
		cmds = append(cmds, m.waitForEvent())
		return m, tea.Batch(cmds...)

	case actionDoneMsg:
		m.busy = false
		m.refresh()
		cmd := m.noticeFor(msg.err)
		return m, cmd

	case rolledMsg:
		m.busy = false
		m.lastRoll = msg.roll
		m.refresh()
		cmd := m.noticeFor(msg.err)
		return m, cmd

	case clearNoticeMsg:
		if msg.id == m.noticeID {
			m.notice = ""
		}
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m model) handleInput(input string) (model, tea.Cmd) {
	switch m.view.Phase {
	case session.PhaseLanguageSelect:
		if input == "/load" {
			return m.run(m.session.Load)
		}
		l, ok := parseLanguage(input)
		if !ok {
			cmd := m.showNotice("Choose a language by number or name")
			return m, cmd
		}
		cmd := m.noticeFor(m.session.SelectLanguage(l))
		return m, cmd

	case session.PhaseCharacterCreate:
		if input == "/load" {
			return m.run(m.session.Load)
		}
		if m.gender == "" {
			g, ok := parseGender(input)
			if !ok {
				cmd := m.showNotice("Choose a gender by number or name")
				return m, cmd
			}
			m.gender = g
			return m, nil
		}
		c, ok := parseClass(input)
		if !ok {
			cmd := m.showNotice("Choose a class by number or name")
			return m, cmd
		}
		gender := m.gender
		m.gender = ""
		return m.run(func(ctx context.Context) error {
			return m.session.StartGame(ctx, gender, c)
		})
	}

	verb, arg, _ := strings.Cut(input, " ")
	switch verb {
	case "/roll":
		m.busy = true
		return m, func() tea.Msg {
			roll, err := m.session.Roll(context.Background())
			return rolledMsg{roll, err}
		}
	case "/use":
		item := strings.TrimSpace(arg)
		return m.run(func(ctx context.Context) error {
			return m.session.UseItem(ctx, item)
		})
	case "/save":
		return m.run(func(ctx context.Context) error {
			_, err := m.session.Save(ctx)
			return err
		})
	case "/load":
		return m.run(m.session.Load)
	case "/restart":
		m.session.Restart()
		m.lastRoll = 0
		return m, nil
	}

	n, err := strconv.Atoi(input)
	if err != nil {
		cmd := m.showNotice("Type an option number or a command")
		return m, cmd
	}
	return m.run(func(ctx context.Context) error {
		return m.session.Choose(ctx, n-1)
	})
}

// run executes a session command off the update loop.
func (m model) run(fn func(ctx context.Context) error) (model, tea.Cmd) {
	m.busy = true
	return m, func() tea.Msg {
		return actionDoneMsg{fn(context.Background())}
	}
}

// rejections are command errors the session does not announce itself.
var rejections = []error{
	session.ErrBusy,
	session.ErrNoOptions,
	session.ErrInvalidOption,
	session.ErrNoPendingRoll,
	session.ErrDead,
	session.ErrNotPlaying,
	session.ErrItemNotFound,
	session.ErrItemNotUsable,
	session.ErrWrongPhase,
	session.ErrUnknownLanguage,
}

func (m *model) noticeFor(err error) tea.Cmd {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrAwaitingRoll) {
		return m.showNotice("Combat! Type /roll to throw the d20")
	}
	for _, rejected := range rejections {
		if errors.Is(err, rejected) {
			return m.showNotice(err.Error())
		}
	}
	return nil
}

func (m *model) showNotice(msg string) tea.Cmd {
	m.noticeID++
	m.notice = msg
	id := m.noticeID
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return clearNoticeMsg{id} })
}

func (m *model) refresh() {
	m.view = m.session.View()
	if m.view.Phase != session.PhaseCharacterCreate {
		m.gender = ""
	}
	m.textInput.Placeholder = m.placeholder()
	if m.viewport.Width == 0 {
		return
	}
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
}

func (m model) waitForEvent() tea.Cmd {
	events := m.session.Events()
	return func() tea.Msg {
		return eventMsg{<-events}
	}
}

func (m model) warmInitialScene() tea.Cmd {
	return func() tea.Msg {
		m.session.WarmInitialScene(context.Background())
		return nil
	}
}

func (m model) logWidth() int {
	return int(float64(m.width) * 0.70)
}

func (m model) placeholder() string {
	switch m.view.Phase {
	case session.PhaseLanguageSelect:
		return "Language number..."
	case session.PhaseCharacterCreate:
		if m.gender == "" {
			return "Gender number..."
		}
		return "Class number..."
	case session.PhaseCombat:
		return "/roll"
	case session.PhaseDead:
		return "/restart"
	default:
		return "What do you do?"
	}
}

func (m model) View() string {
	var s string

	switch m.view.Phase {
	case session.PhaseLanguageSelect:
		s = fmt.Sprintf("%s\n\n%s\n\n%s", titleStyle.Render("MYTHIC PATHS"), numbered(languageNames()), m.textInput.View())
		s += "\n\n" + helpStyle.Render("Commands: /load, /quit")

	case session.PhaseCharacterCreate:
		prompt, list := "Choose your gender:", numbered(genderNames())
		if m.gender != "" {
			prompt, list = "Choose your class:", numbered(classNames())
		}
		s = fmt.Sprintf("%s\n\n%s\n\n%s\n\n%s", titleStyle.Render("MYTHIC PATHS"), prompt, list, m.textInput.View())
		s += "\n\n" + helpStyle.Render("Commands: /load, /quit")

	default:
		if m.viewport.Width == 0 {
			s = "\n  Loading...\n"
			break
		}
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderState(),
		)
		status := ""
		if m.view.Phase == session.PhaseGenerating || m.busy {
			status = helpStyle.Render("The story unfolds...")
		}
		help := helpStyle.Render("Commands: <number>, /roll, /use <item>, /save, /load, /restart, /quit")
		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			status,
			"\n"+m.textInput.View(),
			"\n"+help,
		)
	}

	if m.notice != "" {
		s = noticeStyle.Render(m.notice) + "\n" + s
	}
	return "\n" + s + "\n"
}

func (m model) renderState() string {
	gs := m.view.State

	stats := titleStyle.Render("STATS") + "\n" +
		fmt.Sprintf("Health: %d/%d\nMana: %d/%d\nTurn: %d/%d\n", gs.Health, gs.MaxHealth, gs.Mana, gs.MaxMana, gs.TurnCount, models.EndingTurn)
	if gs.LastRoll != nil {
		stats += fmt.Sprintf("Last roll: %d (%s)\n", *gs.LastRoll, dice.OutcomeFor(*gs.LastRoll))
	}
	stats += "\n"

	quest := titleStyle.Render("QUEST") + "\n" + gs.CurrentQuest + "\n\n"
	place := titleStyle.Render("PLACE") + "\n" + string(m.view.Environment) + "\n\n"

	inventory := titleStyle.Render("INVENTORY") + "\n"
	if len(gs.Inventory) == 0 {
		inventory += "(empty)\n"
	}
	for i, item := range gs.Inventory {
		mark := "-"
		if i == 0 {
			mark = "*"
		}
		inventory += fmt.Sprintf("%s %s [%s]\n", mark, item.Name, item.Category)
	}

	images := "\n" + titleStyle.Render("IMAGES") + "\n" +
		imageLine("Scene", m.view.Image) + imageLine("Portrait", m.view.Portrait) + imageLine("Weapon", m.view.WeaponImage)

	content := stats + quest + place + inventory + images
	stateWidth := int(float64(m.width) * 0.27)
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(content)
}

func imageLine(label string, img []byte) string {
	if len(img) == 0 {
		return label + ": none\n"
	}
	return fmt.Sprintf("%s: %d KB\n", label, (len(img)+1023)/1024)
}

func (m model) renderLog() string {
	width := m.logWidth()
	var b strings.Builder
	for _, h := range m.view.History {
		b.WriteString(gameStyle.Width(width).Render(h.Text))
		b.WriteString("\n\n")
		choice := "> " + h.SelectedOption
		if h.DiceRoll != nil {
			choice += fmt.Sprintf(" (rolled %d)", *h.DiceRoll)
		}
		b.WriteString(userStyle.Width(width).Render(choice))
		b.WriteString("\n\n")
	}
	b.WriteString(gameStyle.Width(width).Render(m.view.Text))
	b.WriteString("\n\n")

	switch {
	case m.view.Phase == session.PhaseDead:
		b.WriteString(deathStyle.Render("You have fallen. Type /restart to begin again."))
	case m.view.Ending():
		b.WriteString(titleStyle.Render("THE END"))
	default:
		for i, o := range m.view.Options {
			line := fmt.Sprintf("%d. %s", i+1, o)
			if i == m.view.PendingOption {
				line += "  <- roll to resolve"
			}
			b.WriteString(optionStyle.Render(line) + "\n")
		}
		if m.view.Phase == session.PhaseCombat {
			b.WriteString("\n" + deathStyle.Render("COMBAT: type /roll"))
		}
	}
	if m.lastRoll != 0 {
		switch {
		case dice.IsCriticalFailure(m.lastRoll):
			b.WriteString("\n" + deathStyle.Render("Critical failure!"))
		case dice.IsCriticalSuccess(m.lastRoll):
			b.WriteString("\n" + titleStyle.Render("Critical success!"))
		}
	}
	return b.String()
}

// Run starts the terminal client on s.
func Run(s *session.Session) error {
	p := tea.NewProgram(NewModel(s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
