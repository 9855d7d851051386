package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/lifecycle"
	"github.com/wippyai/vm-bridge/payload"
	"github.com/wippyai/vm-bridge/render"
	"github.com/wippyai/vm-bridge/session"
	"github.com/wippyai/vm-bridge/vm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	textStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	focusedButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#7D56F4"))

	windowStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FF6B6B"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			Foreground(lipgloss.Color("#FFD700")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// uiBuilder turns normalized widget descriptions into styled terminal
// strings. Buttons are collected per render cycle so the model can cycle
// focus through them in encounter order.
type uiBuilder struct {
	focused string
	buttons []uiButton
}

type uiButton struct {
	id    string
	label string
}

func childStrings(children []render.Element) []string {
	out := make([]string, 0, len(children))
	for _, c := range children {
		if s, ok := c.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (b *uiBuilder) Text(id string, props render.Props) render.Element {
	return textStyle.Render(props.String("content", ""))
}

func (b *uiBuilder) Button(id string, props render.Props) render.Element {
	label := props.String("label", id)
	b.buttons = append(b.buttons, uiButton{id: id, label: label})
	style := buttonStyle
	if id == b.focused {
		style = focusedButtonStyle
	}
	return style.Render("[ " + label + " ]")
}

func (b *uiBuilder) Row(id string, props render.Props, children []render.Element) render.Element {
	parts := childStrings(children)
	for i := range parts {
		if i > 0 {
			parts[i] = " " + parts[i]
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (b *uiBuilder) Column(id string, props render.Props, children []render.Element) render.Element {
	return lipgloss.JoinVertical(lipgloss.Left, childStrings(children)...)
}

func (b *uiBuilder) Container(id string, props render.Props, children []render.Element) render.Element {
	return lipgloss.JoinVertical(lipgloss.Left, childStrings(children)...)
}

func (b *uiBuilder) Window(id string, props render.Props, children []render.Element) render.Element {
	body := lipgloss.JoinVertical(lipgloss.Left, childStrings(children)...)
	if title := props.String("title", ""); title != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), body)
	}
	return windowStyle.Render(body)
}

func (b *uiBuilder) Placeholder(id, typeName string) render.Element {
	return placeholderStyle.Render(fmt.Sprintf("[unknown widget %q: %s]", typeName, id))
}

// Messages crossing from session goroutines into the TUI loop.
type (
	taskMsg      struct{ task func() }
	promptMsg    struct {
		id   uint64
		name string
	}
	lifecycleMsg struct{ state lifecycle.State }
	sessionMsg   struct {
		sess *session.Session
		err  error
	}
	destroyedMsg struct{}
)

// demoModel drives one guest session. It doubles as the session's host
// capabilities: prompts, lifecycle signals, and host-thread tasks are
// re-posted as tea messages, so all model mutation happens on the Update
// goroutine.
type demoModel struct {
	log       *zap.Logger
	manager   *session.Manager
	factory   vm.Factory
	guestName string
	permTO    time.Duration

	p *tea.Program

	sess       *session.Session
	builder    *uiBuilder
	renderer   *render.Renderer
	dispatcher *render.Dispatcher

	lastRoot *render.Node
	view     string
	status   string
	prompts  []promptMsg
	focusIdx int
	gone     bool
	err      error

	input       textinput.Model
	inputActive bool
}

// hostInputChannel carries free-form host messages typed into the TUI.
// Guests subscribe to it to receive them.
const hostInputChannel = "host-input"

var _ session.Capabilities = (*demoModel)(nil)

func newDemoModel(factory vm.Factory, guestName string, log *zap.Logger, permTO time.Duration) *demoModel {
	manager := session.NewManager(nil, log)
	builder := &uiBuilder{}
	dispatcher := render.NewDispatcher(manager.Bus(), log)
	input := textinput.New()
	input.Prompt = "send: "
	input.Placeholder = "message to guest"
	input.Width = 40
	return &demoModel{
		input:      input,
		log:        log,
		manager:    manager,
		factory:    factory,
		guestName:  guestName,
		permTO:     permTO,
		builder:    builder,
		dispatcher: dispatcher,
		renderer:   render.NewRenderer(builder, dispatcher, log),
		status:     "starting",
	}
}

func (m *demoModel) PresentPermissionPrompt(requestID uint64, name string) {
	m.p.Send(promptMsg{id: requestID, name: name})
}

func (m *demoModel) DeliverLifecycleTransition(state lifecycle.State) {
	m.p.Send(lifecycleMsg{state: state})
}

func (m *demoModel) RunOnHostThread(task func()) {
	m.p.Send(taskMsg{task: task})
}

// RenderWidgetTree runs on the Update goroutine: the session posts it
// through RunOnHostThread.
func (m *demoModel) RenderWidgetTree(root *render.Node) (session.UIHandle, error) {
	m.lastRoot = root
	m.rebuild()
	return m.view, nil
}

// rebuild renders the last snapshot with the current focus applied.
func (m *demoModel) rebuild() {
	m.builder.buttons = nil
	m.builder.focused = ""
	// First pass collects buttons so focus can be resolved.
	m.renderer.Render(m.lastRoot)
	if len(m.builder.buttons) > 0 {
		if m.focusIdx >= len(m.builder.buttons) {
			m.focusIdx = 0
		}
		m.builder.focused = m.builder.buttons[m.focusIdx].id
	}
	m.builder.buttons = nil
	el := m.renderer.Render(m.lastRoot)
	s, _ := el.(string)
	m.view = s
}

func (m *demoModel) Init() tea.Cmd {
	return m.createSession
}

func (m *demoModel) createSession() tea.Msg {
	sess, err := m.manager.Create(context.Background(), session.Config{
		VM:                m.factory,
		Host:              m,
		PermissionTimeout: m.permTO,
		Logger:            m.log,
	})
	if err != nil {
		return sessionMsg{err: err}
	}
	return sessionMsg{sess: sess}
}

func (m *demoModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sess = msg.sess
		go func() {
			<-msg.sess.Destroyed()
			m.p.Send(destroyedMsg{})
		}()
		if err := m.sess.Transition(lifecycle.Started); err != nil {
			m.err = err
			return m, nil
		}
		if err := m.sess.Transition(lifecycle.Resumed); err != nil {
			m.err = err
		}
		return m, nil

	case taskMsg:
		msg.task()
		return m, nil

	case promptMsg:
		m.prompts = append(m.prompts, msg)
		return m, nil

	case lifecycleMsg:
		m.status = msg.state.String()
		return m, nil

	case destroyedMsg:
		m.gone = true
		m.status = "Destroyed"
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.inputActive {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *demoModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The host input line owns the keyboard while active.
	if m.inputActive {
		switch msg.String() {
		case "esc":
			m.inputActive = false
			m.input.Blur()
			m.input.SetValue("")
			return m, nil
		case "enter":
			text := m.input.Value()
			m.inputActive = false
			m.input.Blur()
			m.input.SetValue("")
			if m.sess != nil && !m.gone && text != "" {
				if err := m.sess.Deliver(hostInputChannel, payload.String(text)); err != nil {
					m.log.Warn("host input delivery failed", zap.Error(err))
				}
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	// A pending permission prompt captures y/n before anything else.
	if len(m.prompts) > 0 {
		switch msg.String() {
		case "y", "Y":
			m.resolvePrompt(true)
			return m, nil
		case "n", "N":
			m.resolvePrompt(false)
			return m, nil
		}
	}

	switch msg.String() {
	case "ctrl+c", "q":
		if m.sess != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.manager.Destroy(ctx, m.sess.ID()); err != nil {
				m.log.Warn("destroy on quit failed", zap.Error(err))
			}
		}
		return m, tea.Quit

	case "tab":
		if m.lastRoot != nil {
			m.focusIdx++
			m.rebuild()
		}
		return m, nil

	case "i":
		m.inputActive = true
		m.input.Focus()
		return m, textinput.Blink

	case "enter", " ":
		if m.sess == nil || m.gone {
			return m, nil
		}
		if m.builder.focused != "" {
			m.dispatcher.Dispatch(render.Event{
				WidgetID: m.builder.focused,
				Type:     "click",
				Payload:  payload.Null(),
			})
		}
		return m, nil

	case "p":
		m.togglePause()
		return m, nil
	}
	return m, nil
}

func (m *demoModel) resolvePrompt(granted bool) {
	prompt := m.prompts[0]
	m.prompts = m.prompts[1:]
	if m.sess == nil {
		return
	}
	if err := m.sess.ResolvePermission(prompt.id, granted); err != nil {
		m.log.Warn("permission resolution failed",
			zap.Uint64("request_id", prompt.id), zap.Error(err))
	}
}

func (m *demoModel) togglePause() {
	if m.sess == nil || m.gone {
		return
	}
	var target lifecycle.State
	switch m.sess.State() {
	case lifecycle.Resumed:
		target = lifecycle.Paused
	case lifecycle.Paused:
		target = lifecycle.Resumed
	default:
		return
	}
	if err := m.sess.Transition(target); err != nil {
		m.log.Warn("pause toggle failed", zap.Error(err))
	}
}

func (m *demoModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("VM Bridge"))
	b.WriteString(" ")
	b.WriteString(m.guestName)
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(m.status))
	b.WriteString("\n\n")

	if m.view == "" {
		b.WriteString(helpStyle.Render("(guest has not rendered yet)"))
	} else {
		b.WriteString(m.view)
	}
	b.WriteString("\n")

	if len(m.prompts) > 0 {
		prompt := m.prompts[0]
		b.WriteString("\n")
		b.WriteString(modalStyle.Render(fmt.Sprintf("Guest requests permission: %s\n(y) grant  (n) deny", prompt.name)))
		b.WriteString("\n")
	}

	if m.inputActive {
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab focus • enter press • i send • p pause/resume • q quit"))
	return b.String()
}

func runDemo(factory vm.Factory, guestName string, log *zap.Logger, permTO time.Duration) error {
	m := newDemoModel(factory, guestName, log, permTO)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.p = p

	_, runErr := p.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return multierr.Append(runErr, m.manager.Close(ctx))
}
