package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gastown-ops/rigwatch/internal/fanout"
	"github.com/gastown-ops/rigwatch/internal/model"
)

// feedLine is one rendered line of the event feed, newest last.
type feedLine struct {
	text string
}

// frameMsg wraps a fanout.Frame arriving from the WebSocket client.
type frameMsg fanout.Frame

// connStateMsg reports the client's connection status for the header.
type connStateMsg string

// Model is the watch dashboard's bubbletea model.
//
// Grounded on steveyegge-gastown/internal/tui/feed/model.go's Model
// shape (rigs/agents state plus a scrolling feed viewport, a
// frameChan-driven listenForEvents command re-armed after every
// message), generalized from gastown's own event stream to rigwatch's
// {type,timestamp,data} fanout.Frame wire format.
type Model struct {
	width  int
	height int

	keys KeyMap
	help help.Model

	snapshot model.Snapshot
	feed     []feedLine
	viewport viewport.Model

	connState string
	filterRig string

	frameChan <-chan fanout.Frame
	done      chan struct{}
	closeOnce sync.Once

	cancel context.CancelFunc
}

// NewModel constructs a Model that dials baseURL's push channel.
func NewModel(ctx context.Context, baseURL string) *Model {
	runCtx, cancel := context.WithCancel(ctx)
	c := newClient(baseURL)

	h := help.New()
	h.ShowAll = false

	return &Model{
		keys:      DefaultKeyMap(),
		help:      h,
		viewport:  viewport.New(0, 0),
		connState: "connecting",
		frameChan: c.watch(runCtx),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listenForFrames(), tea.SetWindowTitle("rigwatch watch"))
}

func (m *Model) listenForFrames() tea.Cmd {
	frameChan := m.frameChan
	done := m.done
	return func() tea.Msg {
		select {
		case frame, ok := <-frameChan:
			if !ok {
				return connStateMsg("disconnected")
			}
			return frameMsg(frame)
		case <-done:
			return nil
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 4
		m.viewport.SetContent(m.renderFeed())

	case frameMsg:
		m.applyFrame(fanout.Frame(msg))
		m.connState = "connected"
		m.viewport.SetContent(m.renderFeed())
		m.viewport.GotoBottom()
		return m, m.listenForFrames()

	case connStateMsg:
		m.connState = string(msg)
		return m, m.listenForFrames()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.closeOnce.Do(func() {
			close(m.done)
			m.cancel()
		})
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
}

// applyFrame folds one fanout.Frame into the dashboard's running
// state and appends a human-readable line to the feed, mirroring
// gastown's buildEventMessage type->description mapping (§4.13).
func (m *Model) applyFrame(frame fanout.Frame) {
	switch frame.Type {
	case "state":
		if snap, ok := decodeAs[model.Snapshot](frame.Data); ok {
			m.snapshot = snap
		}
	case "hooks:updated":
		if hooks, ok := decodeAs[map[string]map[string]model.Hook](frame.Data); ok {
			if m.snapshot.Hooks == nil {
				m.snapshot.Hooks = map[string]map[string]model.Hook{}
			}
			for rig, agentHooks := range hooks {
				if m.snapshot.Hooks[rig] == nil {
					m.snapshot.Hooks[rig] = map[string]model.Hook{}
				}
				for agent, hook := range agentHooks {
					m.snapshot.Hooks[rig][agent] = hook
				}
			}
		}
	}
	m.feed = append(m.feed, feedLine{text: describeFrame(frame)})
	if len(m.feed) > 500 {
		m.feed = m.feed[len(m.feed)-500:]
	}
}

// decodeAs round-trips data through JSON into T, since fanout.Frame's
// Data arrives over the wire as a generic interface{} (typically a
// map[string]interface{} after json.Unmarshal).
func decodeAs[T any](data interface{}) (T, bool) {
	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// describeFrame renders a one-line human-readable summary of a frame,
// grounded in gastown's buildEventMessage event-type vocabulary
// (sling, hook, handoff, done, mail) generalized to rigwatch's own
// event types.
func describeFrame(frame fanout.Frame) string {
	ts := frame.Timestamp.Format("15:04:05")
	switch frame.Type {
	case "state":
		return fmt.Sprintf("%s  [state] full snapshot received", ts)
	case "hooks:updated":
		return fmt.Sprintf("%s  [hooks] hook map updated", ts)
	case "alert":
		return fmt.Sprintf("%s  [alert] %v", ts, frame.Data)
	default:
		return fmt.Sprintf("%s  [%s] %v", ts, frame.Type, frame.Data)
	}
}

func (m *Model) renderFeed() string {
	lines := make([]string, len(m.feed))
	for i, l := range m.feed {
		lines[i] = l.text
	}
	return strings.Join(lines, "\n")
}

func (m *Model) View() string {
	header := m.renderHeader()
	body := m.viewport.View()
	footer := helpStyle.Render(m.help.View(m.keys))
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) renderHeader() string {
	title := titleStyle.Render(fmt.Sprintf("rigwatch watch — %s", m.connState))

	var rigNames []string
	for name := range m.snapshot.Rigs {
		rigNames = append(rigNames, name)
	}
	sort.Strings(rigNames)

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for _, name := range rigNames {
		rig := m.snapshot.Rigs[name]
		agents := m.snapshot.Agents[name]
		b.WriteString(rigHeaderStyle.Render(fmt.Sprintf("%s (%d agents)", rig.Name, len(agents))))
		b.WriteString("  ")
		for _, a := range agents {
			style := agentStatusStyle(string(a.Status))
			b.WriteString(style.Render(fmt.Sprintf("%s:%s ", a.Role, a.Name)))
		}
	}
	return b.String()
}
