package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gastown-ops/rigwatch/internal/model"
	"github.com/gastown-ops/rigwatch/internal/parse"
)

// StateSink is the subset of *state.Manager the Poller writes to. It is
// an interface so poller tests never touch the real State Manager
// package.
type StateSink interface {
	UpdateRigs(map[string]model.Rig)
	UpdateAgents(rig string, agents []model.Agent)
	UpdateBeads(rig string, beads []model.Bead)
	UpdateHooks(rig string, hooks map[string]model.Hook)
	UpdateAgentStats(key string, completion model.Completion)
	AddError(model.ErrorRecord) model.ErrorRecord
}

// MetricsSink receives one poll-cycle observation per cycle.
type MetricsSink interface {
	ObservePoll(duration time.Duration, success bool)
}

// PollerConfig controls the Poller's timing and retry behavior.
type PollerConfig struct {
	Interval       time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
	GTDir          string
}

// DefaultPollerConfig returns spec.md §4.4.1's defaults: 5s interval,
// 100ms initial backoff doubling to a 2s cap, at most 3 attempts.
func DefaultPollerConfig(gtDir string) PollerConfig {
	return PollerConfig{
		Interval:       5 * time.Second,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		MaxAttempts:    3,
		GTDir:          gtDir,
	}
}

// Poller runs the periodic rigs/agents/beads/hooks sub-poll cycle.
//
// Grounded on control_plane/main.go's runMetricsCollector ticker-loop
// idiom for the overall cycle shape, and on steveyegge-beads' use of
// cenkalti/backoff for the retry harness; the per-rig admission control
// (SubPollLimiter / SubPollCircuitBreaker) adapts
// control_plane/scheduler's limiter and circuit breaker.
type Poller struct {
	cfg     PollerConfig
	runner  Runner
	sink    StateSink
	metrics MetricsSink
	logger  *log.Logger

	limiter  *SubPollLimiter
	breakers map[string]*SubPollCircuitBreaker
	breakersMu sync.Mutex

	failureCounts map[string]int
	taskStartTimes map[string]time.Time
	previousBeadStatus map[string]string
	hooksLookup HooksLookup
	mu sync.Mutex
}

// NewPoller constructs a Poller. A nil runner defaults to ExecRunner{}.
func NewPoller(cfg PollerConfig, runner Runner, sink StateSink, metrics MetricsSink, logger *log.Logger) *Poller {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		cfg:                cfg,
		runner:             runner,
		sink:               sink,
		metrics:            metrics,
		logger:             logger,
		limiter:            NewSubPollLimiter(2, 4),
		breakers:           map[string]*SubPollCircuitBreaker{},
		failureCounts:      map[string]int{},
		taskStartTimes:     map[string]time.Time{},
		previousBeadStatus: map[string]string{},
	}
}

// Run blocks, polling every cfg.Interval until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// PollNow runs one poll cycle immediately, outside the regular
// interval, for the Fan-out Layer's "poll now" advisory client request.
func (p *Poller) PollNow(ctx context.Context) {
	p.pollOnce(ctx)
}

func (p *Poller) breakerFor(key string) *SubPollCircuitBreaker {
	p.breakersMu.Lock()
	defer p.breakersMu.Unlock()
	cb, ok := p.breakers[key]
	if !ok {
		cb = NewSubPollCircuitBreaker(5, 30*time.Second)
		p.breakers[key] = cb
	}
	return cb
}

// pollOnce runs the rig sub-poll concurrently with the per-rig
// beads/hooks/agents sub-polls and records one duration/success
// observation for the whole cycle.
func (p *Poller) pollOnce(ctx context.Context) {
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(2)
	var rigsOK, restOK bool
	go func() {
		defer wg.Done()
		rigsOK = p.pollRigs(ctx)
	}()
	go func() {
		defer wg.Done()
		restOK = p.pollAgentsAndBeadsAndHooks(ctx)
	}()
	wg.Wait()

	success := rigsOK && restOK

	if p.metrics != nil {
		p.metrics.ObservePoll(time.Since(start), success)
	}
}

// withRetry runs fn under an exponential backoff harness (initial
// cfg.InitialBackoff, doubling, capped at cfg.MaxBackoff, at most
// cfg.MaxAttempts attempts). The failure counter tracked under
// failureKey resets on success; on exhaustion it is incremented and an
// error is recorded via sink.AddError, with severity "warning" while the
// counter is below 3 and "error" from 3 on.
func (p *Poller) withRetry(ctx context.Context, failureKey string, fn func() error) bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialBackoff
	bo.MaxInterval = p.cfg.MaxBackoff
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		lastErr = fn()
		if attempts >= p.cfg.MaxAttempts {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))

	p.mu.Lock()
	if err == nil {
		p.failureCounts[failureKey] = 0
		p.mu.Unlock()
		return true
	}
	p.failureCounts[failureKey]++
	count := p.failureCounts[failureKey]
	p.mu.Unlock()

	if count <= 3 {
		p.logger.Printf("[poller] sub-poll %q failed (attempt count %d): %v", failureKey, count, lastErr)
	}
	severity := "warning"
	if count >= 3 {
		severity = "error"
	}
	if p.sink != nil {
		p.sink.AddError(model.ErrorRecord{
			Source: failureKey, Message: lastErr.Error(), Severity: severity, RetryCount: attempts,
		})
	}
	return false
}

func (p *Poller) pollRigs(ctx context.Context) bool {
	return p.withRetry(ctx, "poll:rigs", func() error {
		out, err := p.runner.Run(ctx, "gt", "rig", "list", "--json")
		if err != nil {
			return err
		}
		rigs := parse.ParseRigList(out)
		p.sink.UpdateRigs(rigs)
		return nil
	})
}

// pollAgentsAndBeadsAndHooks polls beads, hooks and agents, in that
// order, for each known rig directory under GTDir. Each of the three
// runs under its own withRetry; the per-rig limiter and circuit breaker
// gate all three, and the breaker records only the beads outcome.
func (p *Poller) pollAgentsAndBeadsAndHooks(ctx context.Context) bool {
	rigDirs, err := listRigDirs(p.cfg.GTDir)
	if err != nil {
		return false
	}

	allOK := true
	for _, rig := range rigDirs {
		if !guardedArgs(rig) {
			continue
		}
		if !p.limiter.Allow(rig) {
			continue
		}
		cb := p.breakerFor(rig)
		if !cb.ShouldAttempt() {
			continue
		}

		ok := p.withRetry(ctx, "poll:beads:"+rig, func() error {
			return p.pollBeadsForRig(ctx, rig)
		})
		cb.RecordResult(ok)
		allOK = allOK && ok

		ok = p.withRetry(ctx, "poll:hooks:"+rig, func() error {
			return p.pollHooksForRig(ctx, rig)
		})
		allOK = allOK && ok

		ok = p.withRetry(ctx, "poll:agents:"+rig, func() error {
			return p.pollAgentsForRig(ctx, rig)
		})
		allOK = allOK && ok
	}
	return allOK
}

func (p *Poller) pollBeadsForRig(ctx context.Context, rig string) error {
	out, err := p.runner.Run(ctx, "bd", "list", "--json")
	if err != nil {
		return err
	}
	beads := parse.ParseBeads(out, rig)

	p.mu.Lock()
	for _, b := range beads {
		key := b.Key()
		prev := p.previousBeadStatus[key]
		switch {
		case b.Status == model.BeadInProgress && prev != string(model.BeadInProgress):
			p.taskStartTimes[key] = time.Now()
		case b.Status == model.BeadDone && prev != string(model.BeadDone):
			if start, ok := p.taskStartTimes[key]; ok {
				duration := time.Since(start)
				delete(p.taskStartTimes, key)
				p.mu.Unlock()
				p.attributeCompletion(rig, b, duration)
				p.mu.Lock()
			}
		}
		p.previousBeadStatus[key] = string(b.Status)
	}
	p.mu.Unlock()

	p.sink.UpdateBeads(rig, beads)
	return nil
}

// attributeCompletion finds the agent whose hook references b (if any)
// and records a completion via UpdateAgentStats. Because the current
// hook map isn't tracked by the Poller itself, callers wire this via the
// HooksLookup hook below in practice; this default implementation is a
// no-op hook point overridden by SetHooksLookup.
func (p *Poller) attributeCompletion(rig string, b model.Bead, duration time.Duration) {
	if p.hooksLookup == nil {
		return
	}
	hooks := p.hooksLookup(rig)
	for agent, hook := range hooks {
		if hook.Bead == b.ID {
			key := rig + "/" + agent
			d := duration
			p.sink.UpdateAgentStats(key, model.Completion{
				BeadID: b.ID, Title: b.Title, CompletedAt: time.Now(), Duration: &d,
			})
		}
	}
}

// HooksLookup returns the current hook map for rig, used purely for
// completion attribution.
type HooksLookup func(rig string) map[string]model.Hook

// SetHooksLookup wires the function the Poller uses to find which agent
// is hooked to a bead that just completed.
func (p *Poller) SetHooksLookup(fn HooksLookup) {
	p.hooksLookup = fn
}

func (p *Poller) pollHooksForRig(ctx context.Context, rig string) error {
	out, err := p.runner.Run(ctx, "gt", "hook", "--json", "--rig", rig)
	if err != nil {
		return err
	}
	hooks := parseHookMap(out, rig)
	p.sink.UpdateHooks(rig, hooks)
	return nil
}

func (p *Poller) pollAgentsForRig(ctx context.Context, rig string) error {
	out, err := p.runner.Run(ctx, "gt", "polecat", "list", rig)
	if err != nil {
		return err
	}
	names := splitNonEmptyLines(string(out))

	agents := make([]model.Agent, 0, len(names))
	for _, name := range names {
		if !guardedArgs(name) {
			continue
		}
		dir := filepath.Join(p.cfg.GTDir, rig, "polecats", name)
		status := ProbeAgentStatus(ctx, p.runner, rig, name, dir)
		agents = append(agents, model.Agent{
			Rig: rig, Name: name, Role: model.RolePolecat, Status: status,
		})
	}
	p.sink.UpdateAgents(rig, agents)
	return nil
}

func listRigDirs(gtDir string) ([]string, error) {
	entries, err := os.ReadDir(gtDir)
	if err != nil {
		return nil, fmt.Errorf("listing GT_DIR: %w", err)
	}
	var rigs []string
	for _, e := range entries {
		if e.IsDir() && guardedArgs(e.Name()) {
			rigs = append(rigs, e.Name())
		}
	}
	return rigs, nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
