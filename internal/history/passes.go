package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"memsweep/internal/logging"
	"memsweep/internal/scheduler"
)

// Fixed-width UTC timestamps so text ordering matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const passColumns = "id, trigger, started_at, duration_ms, bytes_before, bytes_after, freed_bytes, actions_json, failures_json, sample_error"

// Totals aggregates recorded passes.
type Totals struct {
	Passes     int       `json:"passes"`
	FreedBytes int64     `json:"freed_bytes"`
	Failures   int       `json:"failures"`
	Since      time.Time `json:"since"`
}

// Record stores one pass outcome. Recording an ID twice replaces the row.
func (s *Store) Record(ctx context.Context, outcome scheduler.Outcome) error {
	if outcome.ID == "" {
		return fmt.Errorf("record pass: missing id")
	}
	actions, err := json.Marshal(nonNil(outcome.Actions))
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	failures := outcome.Failures
	if failures == nil {
		failures = []scheduler.ActionFailure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO passes (`+passColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.ID,
		string(outcome.Trigger),
		outcome.StartedAt.UTC().Format(timeLayout),
		outcome.Duration.Milliseconds(),
		outcome.BytesBefore,
		outcome.BytesAfter,
		outcome.FreedBytes,
		string(actions),
		string(failuresJSON),
		outcome.SampleError,
	)
	if err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	return nil
}

// Recent returns up to limit passes, newest first. A non-positive limit
// returns every pass.
func (s *Store) Recent(ctx context.Context, limit int) ([]scheduler.Outcome, error) {
	query := `SELECT ` + passColumns + ` FROM passes ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close()

	var outcomes []scheduler.Outcome
	for rows.Next() {
		outcome, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

// Totals sums freed bytes across every recorded pass.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var (
		totals   Totals
		since    sql.NullString
		failures sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(freed_bytes), 0), MIN(started_at),
		        COALESCE(SUM(CASE WHEN failures_json != '[]' THEN 1 ELSE 0 END), 0)
		   FROM passes`,
	).Scan(&totals.Passes, &totals.FreedBytes, &since, &failures)
	if err != nil {
		return Totals{}, fmt.Errorf("history totals: %w", err)
	}
	totals.Failures = int(failures.Int64)
	if since.Valid {
		totals.Since, _ = time.Parse(timeLayout, since.String)
	}
	return totals, nil
}

// Prune deletes passes that started before cutoff and returns how many rows
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM passes WHERE started_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune passes: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(row rowScanner) (scheduler.Outcome, error) {
	var (
		outcome      scheduler.Outcome
		trigger      string
		startedAt    string
		durationMS   int64
		actionsJSON  string
		failuresJSON string
	)
	if err := row.Scan(
		&outcome.ID,
		&trigger,
		&startedAt,
		&durationMS,
		&outcome.BytesBefore,
		&outcome.BytesAfter,
		&outcome.FreedBytes,
		&actionsJSON,
		&failuresJSON,
		&outcome.SampleError,
	); err != nil {
		return scheduler.Outcome{}, fmt.Errorf("scan pass: %w", err)
	}
	outcome.Trigger = scheduler.Trigger(trigger)
	started, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return scheduler.Outcome{}, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	outcome.StartedAt = started
	outcome.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(actionsJSON), &outcome.Actions); err != nil {
		return scheduler.Outcome{}, fmt.Errorf("decode actions: %w", err)
	}
	if err := json.Unmarshal([]byte(failuresJSON), &outcome.Failures); err != nil {
		return scheduler.Outcome{}, fmt.Errorf("decode failures: %w", err)
	}
	if len(outcome.Failures) == 0 {
		outcome.Failures = nil
	}
	return outcome, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Recorder writes scheduler outcomes to the store and logs failures.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder adapts store to scheduler.Reporter.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logging.NewComponentLogger(logger, "history")}
}

func (r *Recorder) ReportOutcome(ctx context.Context, outcome scheduler.Outcome) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Record(context.WithoutCancel(ctx), outcome); err != nil {
		logging.WarnWithContext(r.logger, "pass history write failed", "history_write_failed",
			logging.String(logging.FieldPassID, outcome.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions or delete history.db"),
			logging.String(logging.FieldImpact, "pass missing from history"),
		)
	}
}
