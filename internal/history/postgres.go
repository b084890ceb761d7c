package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gastown-ops/rigwatch/internal/model"
)

// PostgresStore is the durable alternative to JSONStore: raw samples
// and agent completions are written straight through to Postgres, and
// queries aggregate the fetched raw rows in Go with JSONStore's
// bucketing helpers. It keeps no hourly or daily tiers: Flush deletes
// raw rows older than rawRetention, so every query, whatever its
// interval, only covers that retained raw window.
//
// Grounded directly on control_plane/store/postgres.go's pgxpool setup
// and parameterized-query style.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool against connString and ensures the
// backing tables exist.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS raw_metrics (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			poll_duration BIGINT NOT NULL,
			event_volume INT NOT NULL,
			agent_activity JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS raw_metrics_timestamp_idx ON raw_metrics (timestamp)`,
		`CREATE TABLE IF NOT EXISTS agent_completions (
			id SERIAL PRIMARY KEY,
			agent TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			bead_id TEXT NOT NULL,
			duration_ms BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS agent_completions_agent_idx ON agent_completions (agent, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordMetrics inserts one raw sample row.
func (s *PostgresStore) RecordMetrics(ctx context.Context, m model.MetricsSnapshot) error {
	activity, err := json.Marshal(m.AgentActivity)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO raw_metrics (timestamp, poll_duration, event_volume, agent_activity) VALUES ($1, $2, $3, $4)`,
		time.Now(), m.AvgPollDuration, lastEventVolume(m.EventVolume), activity,
	)
	return err
}

// RecordAgentCompletion inserts one completion row, trimming the
// agent's log back down to maxCompletions.
func (s *PostgresStore) RecordAgentCompletion(ctx context.Context, agent string, c AgentCompletion) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_completions (agent, timestamp, bead_id, duration_ms) VALUES ($1, $2, $3, $4)`,
		agent, c.Timestamp, c.BeadID, c.DurationMs,
	)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		DELETE FROM agent_completions
		WHERE agent = $1 AND id NOT IN (
			SELECT id FROM agent_completions WHERE agent = $1 ORDER BY timestamp DESC LIMIT $2
		)`, agent, maxCompletions)
	return err
}

func (s *PostgresStore) fetchRaw(ctx context.Context, start, end time.Time) ([]RawSample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, poll_duration, event_volume, agent_activity FROM raw_metrics
		 WHERE timestamp BETWEEN $1 AND $2 ORDER BY timestamp ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RawSample
	for rows.Next() {
		var r RawSample
		var activity []byte
		if err := rows.Scan(&r.Timestamp, &r.PollDuration, &r.EventVolume, &activity); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(activity, &r.AgentActivity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryRange fetches raw rows in [start,end] and aggregates them in
// Go using the same bucketing helpers as JSONStore, so both backends
// return identical series shapes for identical data.
func (s *PostgresStore) QueryRange(ctx context.Context, start, end time.Time, interval Interval) ([]SeriesPoint, error) {
	if interval == IntervalAuto {
		interval = autoInterval(end.Sub(start))
	}

	samples, err := s.fetchRaw(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if interval == IntervalMinute {
		return rawToPoints(samples), nil
	}

	bucketDur := time.Hour
	if interval == IntervalDay {
		bucketDur = 24 * time.Hour
	}
	groups := map[int64][]RawSample{}
	for _, r := range samples {
		key := r.Timestamp.Truncate(bucketDur).Unix()
		groups[key] = append(groups[key], r)
	}
	points := make([]SeriesPoint, 0, len(groups))
	for key, group := range groups {
		b := aggregateRaw(time.Unix(key, 0).UTC(), group)
		points = append(points, SeriesPoint{
			Timestamp: b.Timestamp, PollDuration: b.PollDuration,
			EventVolume: b.EventVolume, AgentActivity: b.AgentActivity,
		})
	}
	return points, nil
}

// GetSummary mirrors JSONStore.GetSummary against rows fetched from
// Postgres.
func (s *PostgresStore) GetSummary(ctx context.Context, start, end time.Time) (Summary, error) {
	samples, err := s.fetchRaw(ctx, start, end)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Start: start, End: end, SampleCount: len(samples)}
	if len(samples) == 0 {
		return sum, nil
	}
	durations := make([]float64, len(samples))
	for i, r := range samples {
		durations[i] = float64(r.PollDuration)
		sum.AvgPollDuration += durations[i]
		sum.TotalEvents += r.EventVolume
	}
	sum.AvgPollDuration /= float64(len(samples))
	sum.AnomalyIndices = iqrOutliers(durations)
	return sum, nil
}

// GetAgentEfficiency mirrors JSONStore.GetAgentEfficiency against rows
// fetched from Postgres.
func (s *PostgresStore) GetAgentEfficiency(ctx context.Context, agent string, start, end time.Time) (AgentEfficiency, error) {
	var rows pgx.Rows
	var err error
	if agent == "" || agent == "all" {
		rows, err = s.pool.Query(ctx,
			`SELECT agent, timestamp, bead_id, duration_ms FROM agent_completions
			 WHERE timestamp BETWEEN $1 AND $2 ORDER BY timestamp ASC`, start, end)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT agent, timestamp, bead_id, duration_ms FROM agent_completions
			 WHERE agent = $1 AND timestamp BETWEEN $2 AND $3 ORDER BY timestamp ASC`, agent, start, end)
	}
	if err != nil {
		return AgentEfficiency{}, err
	}
	defer rows.Close()

	var completions []AgentCompletion
	for rows.Next() {
		var c AgentCompletion
		var a string
		if err := rows.Scan(&a, &c.Timestamp, &c.BeadID, &c.DurationMs); err != nil {
			return AgentEfficiency{}, err
		}
		completions = append(completions, c)
	}
	if err := rows.Err(); err != nil {
		return AgentEfficiency{}, err
	}

	eff := AgentEfficiency{Agent: agent, CompletionCount: len(completions)}
	if len(completions) == 0 {
		return eff, nil
	}
	var sum int64
	eff.MinDurationMs = completions[0].DurationMs
	for _, c := range completions {
		sum += c.DurationMs
		if c.DurationMs < eff.MinDurationMs {
			eff.MinDurationMs = c.DurationMs
		}
		if c.DurationMs > eff.MaxDurationMs {
			eff.MaxDurationMs = c.DurationMs
		}
	}
	eff.AvgDurationMs = float64(sum) / float64(len(completions))
	start100 := 0
	if len(completions) > 100 {
		start100 = len(completions) - 100
	}
	eff.Last100 = completions[start100:]
	return eff, nil
}

// StorageStats reports row counts in place of JSONStore's tier
// counts, since Postgres keeps only the raw tier (aggregation happens
// on read, not on a promoted second table).
func (s *PostgresStore) StorageStats(ctx context.Context) (StorageStats, error) {
	var stats StorageStats
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM raw_metrics`).Scan(&stats.RawSamples); err != nil {
		return StorageStats{}, err
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(DISTINCT agent) FROM agent_completions`).Scan(&stats.TrackedAgents); err != nil {
		return StorageStats{}, err
	}
	var lastUpdated *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT max(timestamp) FROM raw_metrics`).Scan(&lastUpdated); err != nil {
		return StorageStats{}, err
	}
	if lastUpdated != nil {
		stats.LastUpdated = *lastUpdated
	}
	return stats, nil
}

// Flush runs the retention cleanup pass against the raw_metrics table;
// Postgres writes are already durable, so nothing else needs to be
// persisted.
func (s *PostgresStore) Flush(ctx context.Context) error {
	cutoff := time.Now().Add(-rawRetention)
	_, err := s.pool.Exec(ctx, `DELETE FROM raw_metrics WHERE timestamp < $1`, cutoff)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
