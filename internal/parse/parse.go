// Package parse converts text and JSON output from the gt/bd CLI tools
// into typed model records. Every function here is pure and never panics:
// unrecognized input yields empty collections or nils, never an error.
package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gastown-ops/rigwatch/internal/model"
)

var (
	rigHeaderRe = regexp.MustCompile(`^  (\S+)\s*$`)
	rigMetaRe   = regexp.MustCompile(`Polecats:\s*(\d+)\s*\|\s*Crew:\s*(\d+)`)
	rigAgentsRe = regexp.MustCompile(`Agents:\s*\[([^\]]*)\]`)
)

// ParseRigList accepts either a JSON object keyed by rig name or the
// textual `gt rig list` rendering and returns rigs keyed by name.
func ParseRigList(output []byte) map[string]model.Rig {
	rigs := map[string]model.Rig{}

	trimmed := strings.TrimSpace(string(output))
	if strings.HasPrefix(trimmed, "{") {
		var raw map[string]struct {
			Name     string   `json:"name"`
			Polecats int      `json:"polecats"`
			Crew     int      `json:"crew"`
			Agents   []string `json:"agents"`
			Status   string   `json:"status"`
		}
		if err := json.Unmarshal(output, &raw); err != nil {
			return rigs
		}
		for name, r := range raw {
			if r.Name == "" {
				r.Name = name
			}
			rigs[name] = model.Rig{
				Name:     r.Name,
				Polecats: r.Polecats,
				Crew:     r.Crew,
				Agents:   r.Agents,
				Status:   r.Status,
			}
		}
		return rigs
	}

	lines := strings.Split(string(output), "\n")
	var current *model.Rig
	for _, line := range lines {
		if m := rigHeaderRe.FindStringSubmatch(line); m != nil && !strings.Contains(line, ":") {
			if current != nil {
				rigs[current.Name] = *current
			}
			current = &model.Rig{Name: m[1], Status: "unknown"}
			continue
		}
		if current == nil {
			continue
		}
		if m := rigMetaRe.FindStringSubmatch(line); m != nil {
			current.Polecats, _ = strconv.Atoi(m[1])
			current.Crew, _ = strconv.Atoi(m[2])
		}
		if m := rigAgentsRe.FindStringSubmatch(line); m != nil {
			fields := strings.Fields(m[1])
			current.Agents = fields
		}
	}
	if current != nil {
		rigs[current.Name] = *current
	}
	return rigs
}

var beadLineRe = regexp.MustCompile(`^\s*([?○●✓✗])\s*(\S+)\s+(?:((?i)P[1-4]|critical|high|normal|low)\s+)?(.*)$`)

// ParseBeads tries JSON first, falling back to the textual bead listing.
func ParseBeads(output []byte, rig string) []model.Bead {
	trimmed := strings.TrimSpace(string(output))
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		if beads := parseBeadsJSON(output, rig); beads != nil {
			return beads
		}
	}
	return ParseBeadsText(string(output), rig)
}

func parseBeadsJSON(output []byte, rig string) []model.Bead {
	var raw []struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Status      string   `json:"status"`
		Priority    string   `json:"priority"`
		Labels      []string `json:"labels"`
		Owner       string   `json:"owner"`
		Assignee    string   `json:"assignee"`
		Type        string   `json:"type"`
		Description string   `json:"description"`
		DependsOn   []string `json:"dependsOn"`
	}
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil
	}
	beads := make([]model.Bead, 0, len(raw))
	for _, r := range raw {
		beads = append(beads, model.Bead{
			ID:          r.ID,
			Rig:         rig,
			Title:       r.Title,
			Status:      normalizeStatus(r.Status),
			Priority:    normalizePriority(r.Priority),
			Labels:      r.Labels,
			Owner:       r.Owner,
			Assignee:    r.Assignee,
			Type:        r.Type,
			Description: r.Description,
			DependsOn:   r.DependsOn,
		})
	}
	return beads
}

// ParseBeadsText parses the textual bead listing, one bead per matching
// line. Lines that don't match the leading-symbol format are skipped.
func ParseBeadsText(output, rig string) []model.Bead {
	var beads []model.Bead
	for _, line := range strings.Split(output, "\n") {
		m := beadLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		symbol, id, prio, rest := m[1], m[2], m[3], strings.TrimSpace(m[4])
		beads = append(beads, model.Bead{
			ID:       id,
			Rig:      rig,
			Title:    rest,
			Status:   symbolToStatus(symbol),
			Priority: normalizePriority(prio),
		})
	}
	return beads
}

func symbolToStatus(s string) model.BeadStatus {
	switch s {
	case "?", "○":
		return model.BeadOpen
	case "●":
		return model.BeadHooked
	case "✓":
		return model.BeadDone
	case "✗":
		return model.BeadClosed
	default:
		return model.BeadOpen
	}
}

func normalizeStatus(s string) model.BeadStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "?", "○":
		return model.BeadOpen
	case "hooked", "●":
		return model.BeadHooked
	case "in_progress", "in-progress", "inprogress":
		return model.BeadInProgress
	case "done", "✓", "complete", "completed":
		return model.BeadDone
	case "closed", "✗":
		return model.BeadClosed
	default:
		return model.BeadOpen
	}
}

func normalizePriority(p string) model.Priority {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "p1", "critical":
		return model.PriorityCritical
	case "p2", "high":
		return model.PriorityHigh
	case "p3", "normal":
		return model.PriorityNormal
	case "p4", "low":
		return model.PriorityLow
	default:
		return model.PriorityNone
	}
}

var (
	sectionHeaderRe = regexp.MustCompile(`^[A-Z][A-Z ]{2,}:?\s*$`)
	dependsOnLineRe = regexp.MustCompile(`^\s*→\s*([?○●✓✗])\s*(\S+):`)
)

// ParseBeadDetails parses the `bd show <id>` textual detail view: a
// multi-line description block delimited by uppercase section headers,
// followed by indented dependency lines.
func ParseBeadDetails(output, rig, id string) model.Bead {
	bead := model.Bead{ID: id, Rig: rig, Status: model.BeadOpen}
	lines := strings.Split(output, "\n")

	var descLines []string
	inDescription := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i == 0 && trimmed != "" {
			bead.Title = trimmed
			continue
		}
		if m := dependsOnLineRe.FindStringSubmatch(line); m != nil {
			bead.DependsOn = append(bead.DependsOn, m[2])
			continue
		}
		if sectionHeaderRe.MatchString(trimmed) {
			inDescription = strings.HasPrefix(trimmed, "DESCRIPTION")
			continue
		}
		if inDescription && trimmed != "" {
			descLines = append(descLines, trimmed)
		}
	}
	bead.Description = strings.Join(descLines, "\n")
	return bead
}

var (
	hookedRe   = regexp.MustCompile(`Hooked:\s*(\S+):\s*(.*)`)
	moleculeRe = regexp.MustCompile(`Molecule:\s*(\S+)`)
	attachedRe = regexp.MustCompile(`Attached:\s*(.+)`)
)

// ParseHookOutput parses `gt hook` output for a single agent. Returns nil
// if the output carries no hook status at all.
func ParseHookOutput(output, rig, agent string) *model.Hook {
	if !strings.Contains(output, "Hook Status:") {
		return nil
	}
	hook := &model.Hook{Rig: rig, Agent: agent}
	hook.AutonomousMode = strings.Contains(output, "AUTONOMOUS MODE")

	if m := hookedRe.FindStringSubmatch(output); m != nil {
		hook.Bead = m[1]
		hook.Title = strings.TrimSpace(m[2])
	}
	if m := moleculeRe.FindStringSubmatch(output); m != nil {
		hook.Molecule = m[1]
	}
	if m := attachedRe.FindStringSubmatch(output); m != nil {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(m[1])); err == nil {
			hook.AttachedAt = &t
		}
	}
	return hook
}
