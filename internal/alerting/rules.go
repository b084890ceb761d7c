package alerting

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/gastown-ops/rigwatch/internal/model"
)

// RuleStore persists the Engine's user-authored rules to a JSON file,
// rewriting on every create/update/delete/toggle, per spec.md §4.5.5.
type RuleStore struct {
	mu   sync.Mutex
	path string
}

// NewRuleStore constructs a store backed by path.
func NewRuleStore(path string) *RuleStore {
	return &RuleStore{path: path}
}

// Load reads rules from disk. A missing file returns defaultRules()
// without error, matching the "seeded when no file exists" behavior.
func (s *RuleStore) Load() ([]model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		rules := defaultRules()
		return rules, s.saveLocked(rules)
	}
	if err != nil {
		return nil, err
	}

	var rules []model.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Save rewrites the rules file.
func (s *RuleStore) Save(rules []model.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(rules)
}

func (s *RuleStore) saveLocked(rules []model.Rule) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// defaultRules seeds a small useful set when no rule file exists yet:
// alert on any agent entering stopped, and on a bead sitting in
// in_progress for more than 30 minutes.
func defaultRules() []model.Rule {
	return []model.Rule{
		{
			ID:      "default-agent-stopped",
			Name:    "Agent stopped",
			Enabled: true,
			Cooldown: 60,
			Condition: model.Condition{
				Kind: model.CondAgentStatus,
				Rig:  "*", Agent: "*", From: "*", To: "stopped",
			},
			Actions: []model.Action{{Kind: model.ActionToast}},
		},
		{
			ID:      "default-bead-stuck",
			Name:    "Bead stuck in progress",
			Enabled: true,
			Cooldown: 300,
			Condition: model.Condition{
				Kind: model.CondBeadDuration, Status: "in_progress", DurationMs: 30 * 60 * 1000,
			},
			Actions: []model.Action{{Kind: model.ActionLog, Level: "warn"}},
		},
	}
}
