// Package ingest implements the Poll-and-Watch Ingestion Pipeline:
// the periodic Poller (rigs/agents/beads/hooks), the File Watcher, and
// the Logs Watcher, per spec.md §4.4.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
)

// identifierRe is the whitelist every shell-adjacent argument (rig name,
// agent name) must match before it is substituted into a command line,
// per spec.md §4.4.1's command-safety requirement.
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidIdentifier reports whether s is safe to pass as a CLI argument.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// Runner executes external CLI tools. It exists as an interface so tests
// can substitute a fake without invoking real processes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec with argv-style parameters only —
// never a shell, and never with interpolated strings — per spec.md
// §4.4.1.
type ExecRunner struct{}

// Run invokes name with args and returns stdout. Arguments are passed
// argv-style to exec.CommandContext, never through a shell, so there is
// no interpolation step for an untrusted rig/agent name to escape;
// callers still validate those names with guardedArgs before reaching
// here so a malformed name is rejected earlier, with a clear error,
// rather than handed to the OS.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %v: %w (%s)", name, args, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// guardedArgs validates that every arg in identifierArgs matches the
// safety whitelist, returning false if any fails. Positional/flag
// arguments that are not untrusted identifiers (e.g. "--json") are
// passed separately and need no validation.
func guardedArgs(identifierArgs ...string) bool {
	for _, a := range identifierArgs {
		if !ValidIdentifier(a) {
			return false
		}
	}
	return true
}
