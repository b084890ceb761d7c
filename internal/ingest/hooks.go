package ingest

import (
	"encoding/json"
	"strings"

	"github.com/gastown-ops/rigwatch/internal/model"
	"github.com/gastown-ops/rigwatch/internal/parse"
)

// parseHookMap decodes `gt hook --json` output (a JSON object keyed by
// agent name) when possible, falling back to splitting the output into
// per-agent textual blocks and running parse.ParseHookOutput on each —
// the same JSON-then-text fallback chain spec.md §4.1 uses for every
// other CLI output shape.
func parseHookMap(output []byte, rig string) map[string]model.Hook {
	hooks := map[string]model.Hook{}

	trimmed := strings.TrimSpace(string(output))
	if strings.HasPrefix(trimmed, "{") {
		var raw map[string]struct {
			Bead           string `json:"bead"`
			Title          string `json:"title"`
			Molecule       string `json:"molecule"`
			AutonomousMode bool   `json:"autonomousMode"`
			Attached       string `json:"attachedAt"`
		}
		if err := json.Unmarshal(output, &raw); err == nil {
			for agent, r := range raw {
				h := model.Hook{
					Rig: rig, Agent: agent, Bead: r.Bead, Title: r.Title,
					Molecule: r.Molecule, AutonomousMode: r.AutonomousMode,
				}
				hooks[agent] = h
			}
			return hooks
		}
	}

	blocks := strings.Split(string(output), "\n\n")
	for _, block := range blocks {
		agent := firstAgentName(block)
		if agent == "" {
			continue
		}
		if h := parse.ParseHookOutput(block, rig, agent); h != nil {
			hooks[agent] = *h
		}
	}
	return hooks
}

func firstAgentName(block string) string {
	lines := strings.SplitN(strings.TrimSpace(block), "\n", 2)
	if len(lines) == 0 {
		return ""
	}
	candidate := strings.TrimSpace(lines[0])
	if candidate == "" || strings.Contains(candidate, ":") {
		return ""
	}
	return candidate
}
