// Package state implements the authoritative, single-writer State
// Manager described in spec.md §4.3: the live rig/agent/bead/hook maps,
// bounded histories, derived change events, and the internal event bus
// publication that follows every mutation.
//
// Grounded on the teacher's store interface/ownership model
// (control_plane/store/interface.go, store/types.go) for the "single
// authoritative writer behind a narrow public API" shape, generalized
// from FluxForge's Agent/Job/DesiredState domain to rigs/agents/beads/
// hooks.
package state

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gastown-ops/rigwatch/internal/bus"
	"github.com/gastown-ops/rigwatch/internal/eventbuffer"
	"github.com/gastown-ops/rigwatch/internal/model"
)

const (
	maxRecentEvents = 100
	maxMail         = 50
	maxLogs         = 500
	maxErrors       = 50
	maxHistory      = 50
	maxCompletions  = 50
)

// Manager is the authoritative in-memory state holder. All mutation goes
// through its exported methods; readers take a Snapshot copy.
type Manager struct {
	mu sync.RWMutex

	rigs   map[string]model.Rig
	agents map[string][]model.Agent
	beads  map[string][]model.Bead
	hooks  map[string]map[string]model.Hook

	mail   []model.MailEvent
	logs   []model.LogEntry
	errors []model.ErrorRecord
	events []model.Event

	agentHistory map[string][]model.HistoryEntry
	beadHistory  map[string][]model.HistoryEntry
	agentStats   map[string]model.AgentStats

	previousAgentStatus map[string]string
	previousBeadStatus  map[string]string

	metrics model.MetricsSnapshot

	bus      *bus.Bus
	eventBuf *eventbuffer.Buffer
	logger   *log.Logger
}

// New constructs an empty Manager wired to the given bus and event
// buffer (for timeline/replay feeding).
func New(b *bus.Bus, eventBuf *eventbuffer.Buffer, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		rigs:                map[string]model.Rig{},
		agents:              map[string][]model.Agent{},
		beads:               map[string][]model.Bead{},
		hooks:               map[string]map[string]model.Hook{},
		agentHistory:        map[string][]model.HistoryEntry{},
		beadHistory:         map[string][]model.HistoryEntry{},
		agentStats:          map[string]model.AgentStats{},
		previousAgentStatus: map[string]string{},
		previousBeadStatus:  map[string]string{},
		bus:                 b,
		eventBuf:            eventBuf,
		logger:              logger,
	}
}

// UpdateRigs replaces the entire rig map and publishes an update.
func (m *Manager) UpdateRigs(rigs map[string]model.Rig) {
	m.mu.Lock()
	m.rigs = rigs
	m.mu.Unlock()
	m.bus.Publish(bus.TopicUpdate, "rigs", rigs)
}

// UpdateAgents replaces the agent slice for rig, recording a history
// entry and change event for every agent whose status differs from the
// previously observed status.
func (m *Manager) UpdateAgents(rig string, agents []model.Agent) {
	m.mu.Lock()
	for _, a := range agents {
		key := a.Key()
		prev, existed := m.previousAgentStatus[key]
		if existed && prev != string(a.Status) {
			m.agentHistory[key] = prepend(m.agentHistory[key], model.HistoryEntry{
				From: prev, To: string(a.Status), Timestamp: time.Now(),
			}, maxHistory)
		}
		m.previousAgentStatus[key] = string(a.Status)
	}
	m.agents[rig] = agents
	m.mu.Unlock()
	m.bus.Publish(bus.TopicUpdate, "agents", map[string]interface{}{"rig": rig, "agents": agents})
}

// UpdateBeads replaces the bead slice for rig. For every bead whose
// status differs from the previously observed status, a history entry
// is appended and a bead_status_change event is published. Per spec.md
// §4.3, updateBeads itself does not compute completions — duration
// tracking (in_progress start time, done-transition attribution) is the
// Poller's responsibility (§4.4.1), which calls UpdateAgentStats
// directly once it has computed a completion record.
func (m *Manager) UpdateBeads(rig string, beads []model.Bead) {
	m.mu.Lock()
	var changeEvents []model.Event
	for _, b := range beads {
		key := b.Key()
		prev, existed := m.previousBeadStatus[key]
		if existed && prev != string(b.Status) {
			m.beadHistory[key] = prepend(m.beadHistory[key], model.HistoryEntry{
				From: prev, To: string(b.Status), Timestamp: time.Now(),
			}, maxHistory)

			changeEvt := model.Event{
				Type:      "bead_status_change",
				Timestamp: time.Now(),
				Payload: model.StatusChangeEvent{
					EntityKey: key, From: prev, To: string(b.Status), Timestamp: time.Now(),
				},
			}
			changeEvents = append(changeEvents, changeEvt)
		}
		m.previousBeadStatus[key] = string(b.Status)
	}
	m.beads[rig] = beads
	m.mu.Unlock()

	m.bus.Publish(bus.TopicUpdate, "beads", map[string]interface{}{"rig": rig, "beads": beads})
	for _, e := range changeEvents {
		m.bus.Publish(bus.TopicEvent, e.Type, e.Payload)
	}
}

// UpdateAgentStats appends a completion record for the agent keyed by
// "rig/name" (capped at 50) and recomputes TotalCompleted/AvgDuration
// over completions with known duration.
func (m *Manager) UpdateAgentStats(key string, completion model.Completion) {
	m.mu.Lock()
	stats := m.agentStats[key]
	stats.Completions = append(stats.Completions, completion)
	if len(stats.Completions) > maxCompletions {
		stats.Completions = stats.Completions[len(stats.Completions)-maxCompletions:]
	}
	stats.TotalCompleted++
	stats.AvgDuration = averageDuration(stats.Completions)
	m.agentStats[key] = stats
	m.mu.Unlock()

	m.bus.Publish(bus.TopicUpdate, "agentStats", map[string]interface{}{"key": key, "stats": stats})
}

func averageDuration(completions []model.Completion) time.Duration {
	var total time.Duration
	var count int
	for _, c := range completions {
		if c.Duration != nil {
			total += *c.Duration
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}

// UpdateHooks replaces the hook map for rig and folds a hooks:updated
// event into the Event Buffer for timeline replay.
func (m *Manager) UpdateHooks(rig string, hooks map[string]model.Hook) {
	m.mu.Lock()
	m.hooks[rig] = hooks
	m.mu.Unlock()

	m.bus.Publish(bus.TopicUpdate, "hooks", map[string]interface{}{"rig": rig, "hooks": hooks})
	if m.eventBuf != nil {
		m.eventBuf.AddEvent(model.Event{
			Type:      "hooks:updated",
			Timestamp: time.Now(),
			Payload:   map[string]map[string]model.Hook{rig: hooks},
		})
	}
}

// AddEvent pushes e to the front of the recent-events list (cap 100) and
// publishes it to the event topic.
func (m *Manager) AddEvent(e model.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.events = prepend(m.events, e, maxRecentEvents)
	m.mu.Unlock()
	if m.eventBuf != nil {
		m.eventBuf.AddEvent(e)
	}
	m.bus.Publish(bus.TopicEvent, e.Type, e.Payload)
}

// AddMail pushes m to the front of the mail list (cap 50) and publishes
// a mail-typed event.
func (m *Manager) AddMail(mail model.MailEvent) {
	if len(mail.Preview) > 100 {
		mail.Preview = mail.Preview[:100]
	}
	m.mu.Lock()
	m.mail = prepend(m.mail, mail, maxMail)
	m.mu.Unlock()
	m.bus.Publish(bus.TopicEvent, "mail", mail)
}

// AddLog pushes l to the front of the log list (cap 500) and publishes
// a log-typed event.
func (m *Manager) AddLog(l model.LogEntry) {
	m.mu.Lock()
	m.logs = prepend(m.logs, l, maxLogs)
	m.mu.Unlock()
	m.bus.Publish(bus.TopicEvent, "log", l)
}

// AddError assigns an id, pushes e to the front of the error list (cap
// 50), and publishes to both the error and event topics.
func (m *Manager) AddError(e model.ErrorRecord) model.ErrorRecord {
	e.ID = fmt.Sprintf("err-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.errors = prepend(m.errors, e, maxErrors)
	m.mu.Unlock()
	m.bus.Publish(bus.TopicError, "", e)
	m.bus.Publish(bus.TopicEvent, "error", e)
	return e
}

// UpdateMetrics replaces the metrics snapshot and publishes it.
func (m *Manager) UpdateMetrics(ms model.MetricsSnapshot) {
	m.mu.Lock()
	m.metrics = ms
	m.mu.Unlock()
	m.bus.Publish(bus.TopicMetrics, "", ms)
}

// Snapshot returns a deep-enough copy of the current state for read-only
// consumers (HTTP API, fan-out layer, persistence).
func (m *Manager) Snapshot() model.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := model.Snapshot{
		Rigs:         copyRigs(m.rigs),
		Agents:       copyAgents(m.agents),
		Beads:        copyBeads(m.beads),
		Hooks:        copyHooks(m.hooks),
		Mail:         append([]model.MailEvent{}, m.mail...),
		Logs:         append([]model.LogEntry{}, m.logs...),
		Errors:       append([]model.ErrorRecord{}, m.errors...),
		Events:       append([]model.Event{}, m.events...),
		AgentHistory: copyHistory(m.agentHistory),
		BeadHistory:  copyHistory(m.beadHistory),
		AgentStats:   copyStats(m.agentStats),
		Timestamp:    time.Now(),
	}
	return snap
}

// PersistedState returns the full on-disk representation, including the
// internal change-detection maps.
func (m *Manager) PersistedState() model.PersistedState {
	snap := m.Snapshot()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.PersistedState{
		Snapshot:            snap,
		PreviousAgentStatus: copyStringMap(m.previousAgentStatus),
		PreviousBeadStatus:  copyStringMap(m.previousBeadStatus),
	}
}

// Restore loads a previously persisted state, including the internal
// previous-status maps, so that restart does not synthesize spurious
// change events for entities that did not actually change.
func (m *Manager) Restore(ps model.PersistedState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rigs = ps.Snapshot.Rigs
	m.agents = ps.Snapshot.Agents
	m.beads = ps.Snapshot.Beads
	m.hooks = ps.Snapshot.Hooks
	m.mail = ps.Snapshot.Mail
	m.logs = ps.Snapshot.Logs
	m.errors = ps.Snapshot.Errors
	m.events = ps.Snapshot.Events
	m.agentHistory = ps.Snapshot.AgentHistory
	m.beadHistory = ps.Snapshot.BeadHistory
	m.agentStats = ps.Snapshot.AgentStats
	m.previousAgentStatus = ps.PreviousAgentStatus
	m.previousBeadStatus = ps.PreviousBeadStatus

	if m.rigs == nil {
		m.rigs = map[string]model.Rig{}
	}
	if m.agents == nil {
		m.agents = map[string][]model.Agent{}
	}
	if m.beads == nil {
		m.beads = map[string][]model.Bead{}
	}
	if m.hooks == nil {
		m.hooks = map[string]map[string]model.Hook{}
	}
	if m.agentHistory == nil {
		m.agentHistory = map[string][]model.HistoryEntry{}
	}
	if m.beadHistory == nil {
		m.beadHistory = map[string][]model.HistoryEntry{}
	}
	if m.agentStats == nil {
		m.agentStats = map[string]model.AgentStats{}
	}
	if m.previousAgentStatus == nil {
		m.previousAgentStatus = map[string]string{}
	}
	if m.previousBeadStatus == nil {
		m.previousBeadStatus = map[string]string{}
	}
}

func prepend[T any](list []T, item T, cap int) []T {
	list = append([]T{item}, list...)
	if len(list) > cap {
		list = list[:cap]
	}
	return list
}

func copyRigs(in map[string]model.Rig) map[string]model.Rig {
	out := make(map[string]model.Rig, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyAgents(in map[string][]model.Agent) map[string][]model.Agent {
	out := make(map[string][]model.Agent, len(in))
	for k, v := range in {
		out[k] = append([]model.Agent{}, v...)
	}
	return out
}

func copyBeads(in map[string][]model.Bead) map[string][]model.Bead {
	out := make(map[string][]model.Bead, len(in))
	for k, v := range in {
		out[k] = append([]model.Bead{}, v...)
	}
	return out
}

func copyHooks(in map[string]map[string]model.Hook) map[string]map[string]model.Hook {
	out := make(map[string]map[string]model.Hook, len(in))
	for rig, agentHooks := range in {
		inner := make(map[string]model.Hook, len(agentHooks))
		for agent, h := range agentHooks {
			inner[agent] = h
		}
		out[rig] = inner
	}
	return out
}

func copyHistory(in map[string][]model.HistoryEntry) map[string][]model.HistoryEntry {
	out := make(map[string][]model.HistoryEntry, len(in))
	for k, v := range in {
		out[k] = append([]model.HistoryEntry{}, v...)
	}
	return out
}

func copyStats(in map[string]model.AgentStats) map[string]model.AgentStats {
	out := make(map[string]model.AgentStats, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
