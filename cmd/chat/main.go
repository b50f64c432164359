// Terminal chat client for a local relay.
//
// Runs an in-process relay with two scripted peers so the broadcast,
// @name private delivery and join/leave behavior can be tried end to end:
//
//	go run ./cmd/chat                 # join as "you"
//	go run ./cmd/chat -name alice
//
// Broadcast by typing; send privately with "@name message"; /quit to leave.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ragmesh/ragmesh/chat"
)

var (
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	privateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	senderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	selfStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

type eventMsg chat.Event

type model struct {
	relay    *chat.Relay
	client   *chat.Client
	events   chan chat.Event
	input    textinput.Model
	view     viewport.Model
	lines    []string
	quitting bool
}

func newModel(relay *chat.Relay, client *chat.Client, events chan chat.Event) model {
	input := textinput.New()
	input.Placeholder = "message, @name message, or /quit"
	input.Focus()
	input.CharLimit = 512

	view := viewport.New(80, 18)

	return model{
		relay:  relay,
		client: client,
		events: events,
		input:  input,
		view:   view,
		lines: []string{
			systemStyle.Render(fmt.Sprintf("connected as %s; peers: %s", client.Name(), strings.Join(relay.Names(), ", "))),
		},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

func (m model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-m.events)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = msg.Height - 3
		m.refresh()
		return m, nil

	case eventMsg:
		m.lines = append(m.lines, renderEvent(chat.Event(msg)))
		m.refresh()
		return m, m.waitForEvent()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m.quit()
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "/quit" {
				return m.quit()
			}
			if text == "" {
				return m, nil
			}
			if err := m.client.Send(context.Background(), text); err != nil {
				m.lines = append(m.lines, errorStyle.Render("send failed: "+err.Error()))
			} else {
				m.lines = append(m.lines, selfStyle.Render("you: "+text))
			}
			m.refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refresh() {
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

func (m model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.relay.Leave(context.Background(), m.client.Name())
	return m, tea.Quit
}

func (m model) View() string {
	if m.quitting {
		return "goodbye\n"
	}
	return m.view.View() + "\n" + m.input.View() + "\n"
}

func renderEvent(ev chat.Event) string {
	switch ev.Kind {
	case "system":
		return systemStyle.Render("* " + ev.Text)
	case "error":
		return errorStyle.Render("! " + ev.Text)
	case "private":
		return privateStyle.Render(fmt.Sprintf("[%s -> you] %s", ev.From, ev.Text))
	default:
		return senderStyle.Render(ev.From+": ") + ev.Text
	}
}

// scriptedPeer joins the relay and answers direct mentions so the room is
// never empty.
func scriptedPeer(ctx context.Context, relay *chat.Relay, name, reply string) error {
	var client *chat.Client
	var err error
	client, err = relay.Join(ctx, name, func(ev chat.Event) {
		if ev.Private {
			go client.Send(ctx, fmt.Sprintf("@%s %s", ev.From, reply))
		}
	})
	return err
}

func main() {
	name := flag.String("name", "you", "chat name to join with")
	flag.Parse()

	ctx := context.Background()
	relay := chat.NewRelay(nil)

	if err := scriptedPeer(ctx, relay, "bob", "heard you loud and clear"); err != nil {
		fmt.Fprintf(os.Stderr, "peer setup failed: %v\n", err)
		os.Exit(1)
	}
	if err := scriptedPeer(ctx, relay, "carol", "carol here, what's up?"); err != nil {
		fmt.Fprintf(os.Stderr, "peer setup failed: %v\n", err)
		os.Exit(1)
	}

	events := make(chan chat.Event, 64)
	client, err := relay.Join(ctx, *name, func(ev chat.Event) {
		select {
		case events <- ev:
		default: // never block delivery on a slow terminal
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "join failed: %v\n", err)
		os.Exit(1)
	}

	if _, err := tea.NewProgram(newModel(relay, client, events)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat error: %v\n", err)
		os.Exit(1)
	}
}
