package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	domain "github.com/oshokin/lifeline-core/internal/domain/call"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_records (
	session_id     TEXT PRIMARY KEY,
	destination    TEXT NOT NULL,
	severity       INTEGER NOT NULL,
	channel        TEXT,
	started_at     TEXT NOT NULL,
	ended_at       TEXT NOT NULL,
	duration_ms    INTEGER NOT NULL,
	failure_reason TEXT
);

CREATE TABLE IF NOT EXISTS configurations (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	trigger_kind     TEXT NOT NULL,
	keyword          TEXT,
	health_metric    TEXT,
	health_operator  TEXT,
	health_threshold REAL,
	delay_ms         INTEGER,
	effect           TEXT NOT NULL,
	contacts_json    TEXT NOT NULL,
	message_template TEXT,
	question         TEXT,
	severity         INTEGER NOT NULL,
	enabled          INTEGER NOT NULL DEFAULT 0
);
`

// Store persists call records and action configurations in SQLite. It
// enforces the single-enabled-configuration rule transactionally.
type Store struct {
	db *sql.DB
}

// Open opens the database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open records database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate records database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendCallRecord persists one finished call session.
func (s *Store) AppendCallRecord(ctx context.Context, record *domain.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_records
		 (session_id, destination, severity, channel, started_at, ended_at, duration_ms, failure_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID,
		record.Destination,
		int(record.Severity),
		record.ChannelName,
		record.StartedAt.UTC().Format(time.RFC3339Nano),
		record.EndedAt.UTC().Format(time.RFC3339Nano),
		record.Duration.Milliseconds(),
		record.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}

	return nil
}

// RecentCallRecords returns up to limit records, newest first.
func (s *Store) RecentCallRecords(ctx context.Context, limit int) ([]*domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, destination, severity, channel, started_at, ended_at, duration_ms, failure_reason
		 FROM call_records
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query call records: %w", err)
	}
	defer rows.Close()

	var records []*domain.Record

	for rows.Next() {
		var (
			record     domain.Record
			severity   int
			startedAt  string
			endedAt    string
			durationMS int64
		)

		if err := rows.Scan(
			&record.SessionID,
			&record.Destination,
			&severity,
			&record.ChannelName,
			&startedAt,
			&endedAt,
			&durationMS,
			&record.FailureReason,
		); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}

		record.Severity = trigger.Severity(severity)
		record.Duration = time.Duration(durationMS) * time.Millisecond

		if record.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}

		if record.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call records: %w", err)
	}

	return records, nil
}

// SaveConfiguration upserts one configuration. Enabling it disables every
// other configuration in the same transaction, so at most one is enabled
// at any point.
func (s *Store) SaveConfiguration(ctx context.Context, cfg *trigger.Config) error {
	contacts, err := json.Marshal(cfg.Contacts)
	if err != nil {
		return fmt.Errorf("marshal contacts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	if cfg.Enabled {
		if _, err := tx.ExecContext(ctx,
			`UPDATE configurations SET enabled = 0 WHERE id != ?`, cfg.ID,
		); err != nil {
			return fmt.Errorf("disable other configurations: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO configurations
		 (id, name, trigger_kind, keyword, health_metric, health_operator, health_threshold,
		  delay_ms, effect, contacts_json, message_template, question, severity, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name,
		  trigger_kind = excluded.trigger_kind,
		  keyword = excluded.keyword,
		  health_metric = excluded.health_metric,
		  health_operator = excluded.health_operator,
		  health_threshold = excluded.health_threshold,
		  delay_ms = excluded.delay_ms,
		  effect = excluded.effect,
		  contacts_json = excluded.contacts_json,
		  message_template = excluded.message_template,
		  question = excluded.question,
		  severity = excluded.severity,
		  enabled = excluded.enabled`,
		cfg.ID,
		cfg.Name,
		string(cfg.TriggerKind),
		cfg.Keyword,
		cfg.HealthMetric,
		string(cfg.HealthOperator),
		cfg.HealthThreshold,
		cfg.Delay.Milliseconds(),
		string(cfg.Effect),
		string(contacts),
		cfg.MessageTemplate,
		cfg.Question,
		int(cfg.Severity),
		boolToInt(cfg.Enabled),
	); err != nil {
		return fmt.Errorf("upsert configuration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// EnabledConfigurations returns the enabled configurations, freshly read.
// It implements the dispatcher and evaluator config contract.
func (s *Store) EnabledConfigurations(ctx context.Context) ([]*trigger.Config, error) {
	return s.queryConfigurations(ctx, `WHERE enabled = 1`)
}

// Configurations returns every stored configuration.
func (s *Store) Configurations(ctx context.Context) ([]*trigger.Config, error) {
	return s.queryConfigurations(ctx, ``)
}

// DeleteConfiguration removes one configuration by id.
func (s *Store) DeleteConfiguration(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM configurations WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("delete configuration: %w", err)
	}

	return nil
}

func (s *Store) queryConfigurations(ctx context.Context, where string) ([]*trigger.Config, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, trigger_kind, keyword, health_metric, health_operator, health_threshold,
		        delay_ms, effect, contacts_json, message_template, question, severity, enabled
		 FROM configurations `+where+` ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query configurations: %w", err)
	}
	defer rows.Close()

	var configs []*trigger.Config

	for rows.Next() {
		var (
			cfg          trigger.Config
			triggerKind  string
			operator     string
			delayMS      int64
			effect       string
			contactsJSON string
			severity     int
			enabled      int
		)

		if err := rows.Scan(
			&cfg.ID,
			&cfg.Name,
			&triggerKind,
			&cfg.Keyword,
			&cfg.HealthMetric,
			&operator,
			&cfg.HealthThreshold,
			&delayMS,
			&effect,
			&contactsJSON,
			&cfg.MessageTemplate,
			&cfg.Question,
			&severity,
			&enabled,
		); err != nil {
			return nil, fmt.Errorf("scan configuration: %w", err)
		}

		cfg.TriggerKind = trigger.Kind(triggerKind)
		cfg.HealthOperator = trigger.Operator(operator)
		cfg.Delay = time.Duration(delayMS) * time.Millisecond
		cfg.Effect = trigger.Effect(effect)
		cfg.Severity = trigger.Severity(severity)
		cfg.Enabled = enabled != 0

		if err := json.Unmarshal([]byte(contactsJSON), &cfg.Contacts); err != nil {
			return nil, fmt.Errorf("unmarshal contacts: %w", err)
		}

		configs = append(configs, &cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configurations: %w", err)
	}

	return configs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
