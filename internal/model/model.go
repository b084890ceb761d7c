// Package model defines the data types shared across rigwatch's ingestion,
// state, metrics, and API layers.
package model

import "time"

// AgentRole enumerates the roles an agent can hold within a rig.
type AgentRole string

const (
	RolePolecat AgentRole = "polecat"
	RoleCrew    AgentRole = "crew"
	RoleWitness AgentRole = "witness"
	RoleRefinery AgentRole = "refinery"
	RoleMayor   AgentRole = "mayor"
)

// AgentStatus enumerates the derived run state of an agent.
type AgentStatus string

const (
	AgentRunning AgentStatus = "running"
	AgentIdle    AgentStatus = "idle"
	AgentStopped AgentStatus = "stopped"
	AgentUnknown AgentStatus = "unknown"
)

// BeadStatus enumerates the normalized lifecycle states of a bead.
type BeadStatus string

const (
	BeadOpen       BeadStatus = "open"
	BeadHooked     BeadStatus = "hooked"
	BeadInProgress BeadStatus = "in_progress"
	BeadDone       BeadStatus = "done"
	BeadClosed     BeadStatus = "closed"
)

// Priority enumerates the normalized bead priority levels.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
	PriorityNone     Priority = ""
)

// LogLevel enumerates recognized log severities.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Rig is a top-level project containing agents and their working directories.
type Rig struct {
	Name     string   `json:"name"`
	Polecats int      `json:"polecats"`
	Crew     int      `json:"crew"`
	Agents   []string `json:"agents"`
	Status   string   `json:"status"`
}

// Agent is a process associated with a rig directory.
type Agent struct {
	Rig             string      `json:"rig"`
	Name            string      `json:"name"`
	Role            AgentRole   `json:"role"`
	Status          AgentStatus `json:"status"`
	HasWork         bool        `json:"hasWork"`
	CurrentBead     string      `json:"currentBead,omitempty"`
	SessionRunning  bool        `json:"sessionRunning"`
}

// Key returns the "rig/name" identity used to index agent-scoped maps.
func (a Agent) Key() string { return a.Rig + "/" + a.Name }

// Bead is a unit of work tracked by the external issue tool.
type Bead struct {
	ID          string     `json:"id"`
	Rig         string     `json:"rig"`
	Title       string     `json:"title"`
	Status      BeadStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	Labels      []string   `json:"labels,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	Type        string     `json:"type,omitempty"`
	Description string     `json:"description,omitempty"`
	DependsOn   []string   `json:"dependsOn,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

// Key returns the "rig/id" identity used to index bead-scoped maps.
func (b Bead) Key() string { return b.Rig + "/" + b.ID }

// Hook is the association between an agent and the bead it is working on.
type Hook struct {
	Rig            string     `json:"rig"`
	Agent          string     `json:"agent"`
	Bead           string     `json:"bead,omitempty"`
	Title          string     `json:"title,omitempty"`
	Molecule       string     `json:"molecule,omitempty"`
	AutonomousMode bool       `json:"autonomousMode"`
	AttachedAt     *time.Time `json:"attachedAt,omitempty"`
}

// MailEvent is an append-only record of inter-agent mail.
type MailEvent struct {
	Rig       string    `json:"rig"`
	To        string    `json:"to"`
	From      string    `json:"from"`
	Preview   string    `json:"preview"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry is a single parsed log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Rig       string    `json:"rig"`
	Agent     string    `json:"agent,omitempty"`
	LogType   string    `json:"logType"`
	Source    string    `json:"source"`
}

// StatusChangeEvent records an observed transition of an agent or bead.
type StatusChangeEvent struct {
	EntityKey string    `json:"entityKey"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Completion records a single observed bead-done transition attributed to an agent.
type Completion struct {
	BeadID      string         `json:"beadId"`
	Title       string         `json:"title"`
	CompletedAt time.Time      `json:"completedAt"`
	Duration    *time.Duration `json:"duration,omitempty"`
}

// AgentStats is the rolling completion history for one agent.
type AgentStats struct {
	Completions    []Completion `json:"completions"`
	TotalCompleted int          `json:"totalCompleted"`
	AvgDuration    time.Duration `json:"avgDuration"`
}

// HistoryEntry is one recorded status transition, newest-first in storage.
type HistoryEntry struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorRecord is a structured failure surfaced from ingestion or the bus.
type ErrorRecord struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Message    string    `json:"message"`
	Severity   string    `json:"severity"` // "warning" | "error"
	RetryCount int       `json:"retryCount"`
	Timestamp  time.Time `json:"timestamp"`
}

// Event is a single entry in the Event Buffer's time-ordered sequence.
// Type determines how getStateAtTime folds Payload during replay: a
// "snapshot" event's Payload is a Snapshot that replaces the entire
// replay state; a "hooks:updated" event's Payload is a map from rig to
// a map from agent name to Hook, merged into the replay state's hook map.
// Other types (e.g. "update", "alert") are retained for range queries
// but are not folded specially.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ReplayState is the result of folding an Event Buffer up to a point in
// time via getStateAtTime.
type ReplayState struct {
	Snapshot Snapshot
	IsReplay bool
}

// Snapshot is the full reconstitutable state the State Manager publishes
// on push-channel connect and persists on shutdown.
type Snapshot struct {
	Rigs          map[string]Rig             `json:"rigs"`
	Agents        map[string][]Agent         `json:"agents"` // keyed by rig
	Beads         map[string][]Bead          `json:"beads"`  // keyed by rig
	Hooks         map[string]map[string]Hook `json:"hooks"`  // rig -> agent -> hook
	Mail          []MailEvent                `json:"mail"`
	Logs          []LogEntry                 `json:"logs"`
	Errors        []ErrorRecord              `json:"errors"`
	Events        []Event                    `json:"events"`
	AgentHistory  map[string][]HistoryEntry  `json:"agentHistory"`
	BeadHistory   map[string][]HistoryEntry  `json:"beadHistory"`
	AgentStats    map[string]AgentStats      `json:"agentStats"`
	IsReplay      bool                       `json:"isReplay,omitempty"`
	Timestamp     time.Time                  `json:"timestamp"`
}

// PersistedState is the on-disk form the State Manager writes at
// shutdown and restores at startup. It carries the reconstitutable
// Snapshot plus the internal previous-status maps used purely for
// change detection, so a restart does not synthesize spurious
// status-change events for entities that did not actually change.
type PersistedState struct {
	Snapshot           Snapshot          `json:"snapshot"`
	PreviousAgentStatus map[string]string `json:"previousAgentStatus"`
	PreviousBeadStatus  map[string]string `json:"previousBeadStatus"`
}
