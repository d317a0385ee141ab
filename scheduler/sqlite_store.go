package scheduler

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists scheduled task definitions, the durable store a
// complete kernel needs but spec.md's distillation assumes away (the
// original's task_scheduler.py keeps schedules only in an in-process
// singleton). Grounded on zkoranges-go-claw's internal/persistence.Store
// database/sql usage, swapped to the pure-Go modernc.org/sqlite driver.
//
// Note: SQLiteStore.SaveTask persists the schedule and trigger only, not
// the Callable func value, which cannot be serialized. A process restart
// must re-attach callables by id via a caller-supplied registry before
// calling Scheduler.AddTask again with the loaded definitions.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) a SQLite database at path and
// ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("scheduler: open sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("scheduler: ping sqlite store: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	priority INTEGER NOT NULL,
	dependencies TEXT NOT NULL,
	trigger_kind INTEGER NOT NULL,
	trigger_expr TEXT NOT NULL,
	trigger_period_ns INTEGER NOT NULL,
	next_run_at TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	consecutive_failures INTEGER NOT NULL,
	max_consecutive_failures INTEGER NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("scheduler: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveTask upserts task's definition.
func (s *SQLiteStore) SaveTask(task ScheduledTask) error {
	deps, err := json.Marshal(task.Dependencies)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
INSERT INTO scheduled_tasks (id, name, priority, dependencies, trigger_kind, trigger_expr, trigger_period_ns, next_run_at, enabled, consecutive_failures, max_consecutive_failures)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name=excluded.name, priority=excluded.priority, dependencies=excluded.dependencies,
	trigger_kind=excluded.trigger_kind, trigger_expr=excluded.trigger_expr, trigger_period_ns=excluded.trigger_period_ns,
	next_run_at=excluded.next_run_at, enabled=excluded.enabled,
	consecutive_failures=excluded.consecutive_failures, max_consecutive_failures=excluded.max_consecutive_failures
`,
		task.ID, task.Name, task.Priority, string(deps),
		int(task.Trigger.Kind), task.Trigger.Expr, int64(task.Trigger.Period),
		task.NextRunAt.Format(time.RFC3339Nano), boolToInt(task.Enabled),
		task.ConsecutiveFailures, task.MaxConsecutiveFailures,
	)
	return err
}

// DeleteTask removes a scheduled task's persisted definition.
func (s *SQLiteStore) DeleteTask(id string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, id)
	return err
}

// LoadAll reads back every persisted scheduled task. Callable is left nil
// on every returned task; the caller must re-attach it before scheduling.
func (s *SQLiteStore) LoadAll() ([]ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT id, name, priority, dependencies, trigger_kind, trigger_expr, trigger_period_ns, next_run_at, enabled, consecutive_failures, max_consecutive_failures FROM scheduled_tasks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledTask
	for rows.Next() {
		var (
			t             ScheduledTask
			deps          string
			kind          int
			periodNS      int64
			nextRunAt     string
			enabled       int
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Priority, &deps, &kind, &t.Trigger.Expr, &periodNS, &nextRunAt, &enabled, &t.ConsecutiveFailures, &t.MaxConsecutiveFailures); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(deps), &t.Dependencies); err != nil {
			return nil, err
		}
		t.Trigger.Kind = TriggerKind(kind)
		t.Trigger.Period = time.Duration(periodNS)
		if parsed, err := time.Parse(time.RFC3339Nano, nextRunAt); err == nil {
			t.NextRunAt = parsed
		}
		t.Enabled = enabled != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
