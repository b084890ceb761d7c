package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gastown-ops/rigwatch/internal/model"
)

const recentActivityWindow = 60 * time.Second

// ProbeAgentStatus implements the three-probe status derivation of
// spec.md §4.4.1: process presence, then terminal-session presence, then
// recent file activity under the agent's directory.
//
// Grounded on steveyegge-gastown's process/session probing idiom
// (internal/cmd/orphans.go's `ps -eo pid,ppid,args`, internal/web/
// fetcher.go's `tmux list-sessions -F ...`): argv-only invocation,
// output filtered by substring match, never a shell.
func ProbeAgentStatus(ctx context.Context, runner Runner, rig, agent, agentDir string) model.AgentStatus {
	if !guardedArgs(rig, agent) {
		return model.AgentUnknown
	}

	if processPresent(ctx, runner, rig, agent) {
		return model.AgentRunning
	}
	if sessionPresent(ctx, runner, rig, agent) {
		return model.AgentRunning
	}
	if recentActivity(agentDir) {
		return model.AgentIdle
	}
	return model.AgentStopped
}

func processPresent(ctx context.Context, runner Runner, rig, agent string) bool {
	out, err := runner.Run(ctx, "ps", "-eo", "pid,args")
	if err != nil {
		return false
	}
	tags := canonicalTags(rig, agent)
	text := string(out)
	for _, tag := range tags {
		if strings.Contains(text, tag) {
			return true
		}
	}
	return false
}

// canonicalTags returns the recognized process-tag variants for an
// agent, per spec.md §4.4.1 ("a canonical tag `[GAS TOWN] <rig>/<agent>`
// and a few variants").
func canonicalTags(rig, agent string) []string {
	return []string{
		fmt.Sprintf("[GAS TOWN] %s/%s", rig, agent),
		fmt.Sprintf("[GASTOWN] %s/%s", rig, agent),
		fmt.Sprintf("%s/%s", rig, agent),
	}
}

// sessionCandidates returns the recognized terminal-session-name
// variants for an agent, matched case-insensitively, per spec.md
// §4.4.1.
func sessionCandidates(rig, agent string) []string {
	return []string{
		fmt.Sprintf("gt-%s-%s", rig, agent),
		fmt.Sprintf("hq-%s", agent),
		fmt.Sprintf("%s-%s", rig, agent),
		agent,
	}
}

func sessionPresent(ctx context.Context, runner Runner, rig, agent string) bool {
	out, err := runner.Run(ctx, "tmux", "list-sessions", "-F", "#{session_name}")
	if err != nil {
		return false
	}
	candidates := sessionCandidates(rig, agent)
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.ToLower(strings.TrimSpace(line))
		if name == "" {
			continue
		}
		for _, c := range candidates {
			if name == strings.ToLower(c) {
				return true
			}
		}
	}
	return false
}

// recentActivity reports whether .events.jsonl, .feed.jsonl, session.json
// under dir, or any file under dir/mail, was modified within the last
// recentActivityWindow.
func recentActivity(dir string) bool {
	if dir == "" {
		return false
	}
	cutoff := time.Now().Add(-recentActivityWindow)

	for _, name := range []string{".events.jsonl", ".feed.jsonl", "session.json"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
			if info.ModTime().After(cutoff) {
				return true
			}
		}
	}

	mailDir := filepath.Join(dir, "mail")
	entries, err := os.ReadDir(mailDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			return true
		}
	}
	return false
}
