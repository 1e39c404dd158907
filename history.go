package main

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// The history database records what each audit run found, so trend queries
// and the Slack summary can compare against previous runs. It is separate
// from the metadata source the checks read.

func InitHistoryDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_runs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		scope         TEXT NOT NULL,
		started_at    DATETIME NOT NULL,
		finished_at   DATETIME NOT NULL,
		check_count   INTEGER NOT NULL,
		failed_count  INTEGER NOT NULL,
		cancelled     INTEGER NOT NULL DEFAULT 0,
		provision_err TEXT DEFAULT '',
		advice        TEXT DEFAULT '',
		advice_model  TEXT DEFAULT '',
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_runs_scope ON audit_runs(scope);
	CREATE INDEX IF NOT EXISTS idx_audit_runs_started ON audit_runs(started_at);

	CREATE TABLE IF NOT EXISTS check_outcomes (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     INTEGER NOT NULL,
		check_name TEXT NOT NULL,
		row_count  INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		error      TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_check_outcomes_run ON check_outcomes(run_id);

	CREATE TABLE IF NOT EXISTS classifications (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     INTEGER NOT NULL,
		check_name TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		category   TEXT NOT NULL,
		rationale  REAL NOT NULL DEFAULT 0,
		detail     TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_classifications_run ON classifications(run_id);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// InsertAuditRun persists a run with its per-check outcomes and verdicts in
// one transaction and returns the run id.
func InsertAuditRun(db *sql.DB, run *AuditRun) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	provisionErr := ""
	if run.ProvisionErr != nil {
		provisionErr = run.ProvisionErr.Error()
	}
	res, err := tx.Exec(
		`INSERT INTO audit_runs (scope, started_at, finished_at, check_count, failed_count, cancelled, provision_err, advice, advice_model)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Scope, run.StartedAt, run.FinishedAt, len(run.Results), run.FailedChecks(),
		boolToInt(run.Cancelled), provisionErr, run.Recommendation.Text, run.Recommendation.Model,
	)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	outcomeStmt, err := tx.Prepare(
		`INSERT INTO check_outcomes (run_id, check_name, row_count, elapsed_ms, error)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer outcomeStmt.Close()

	for _, r := range run.Results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		if _, err := outcomeStmt.Exec(runID, r.CheckName, len(r.Rows), r.Elapsed.Milliseconds(), errText); err != nil {
			return 0, err
		}
	}

	classStmt, err := tx.Prepare(
		`INSERT INTO classifications (run_id, check_name, subject_id, category, rationale, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer classStmt.Close()

	for _, c := range run.Classifications {
		if _, err := classStmt.Exec(runID, c.CheckName, c.SubjectID, string(c.Category), c.RationaleValue, c.Detail); err != nil {
			return 0, err
		}
	}

	return runID, tx.Commit()
}

type RunSummary struct {
	ID          int64
	Scope       string
	StartedAt   time.Time
	FinishedAt  time.Time
	CheckCount  int
	FailedCount int
	Cancelled   bool
}

func GetRecentRuns(db *sql.DB, scope string, limit int) ([]RunSummary, error) {
	rows, err := db.Query(
		`SELECT id, scope, started_at, finished_at, check_count, failed_count, cancelled
		 FROM audit_runs
		 WHERE scope = ?
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		scope, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var cancelled int
		if err := rows.Scan(&s.ID, &s.Scope, &s.StartedAt, &s.FinishedAt, &s.CheckCount, &s.FailedCount, &cancelled); err != nil {
			return nil, err
		}
		s.Cancelled = cancelled != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

type CategoryTrend struct {
	Category string
	Count    int
}

// GetCategoryTrend counts verdicts by category across recent runs of a scope.
func GetCategoryTrend(db *sql.DB, scope string, since time.Time) ([]CategoryTrend, error) {
	rows, err := db.Query(
		`SELECT c.category, COUNT(*) as cnt
		 FROM classifications c
		 JOIN audit_runs r ON r.id = c.run_id
		 WHERE r.scope = ? AND r.started_at >= ?
		 GROUP BY c.category
		 ORDER BY cnt DESC`,
		scope, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryTrend
	for rows.Next() {
		var t CategoryTrend
		if err := rows.Scan(&t.Category, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type HistoryStats struct {
	TotalRuns       int
	CancelledRuns   int
	TotalFailures   int
	AvgRunSeconds   float64
	LastRunStarted  time.Time
	LastRunFinished time.Time
}

func GetHistoryStats(db *sql.DB, scope string) (HistoryStats, error) {
	var s HistoryStats
	err := db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(cancelled), 0),
		        COALESCE(SUM(failed_count), 0),
		        COALESCE(AVG((JULIANDAY(finished_at) - JULIANDAY(started_at)) * 86400.0), 0)
		 FROM audit_runs WHERE scope = ?`,
		scope,
	).Scan(&s.TotalRuns, &s.CancelledRuns, &s.TotalFailures, &s.AvgRunSeconds)
	if err != nil {
		return s, err
	}
	if s.TotalRuns == 0 {
		return s, nil
	}

	err = db.QueryRow(
		`SELECT started_at, finished_at FROM audit_runs
		 WHERE scope = ? ORDER BY started_at DESC, id DESC LIMIT 1`,
		scope,
	).Scan(&s.LastRunStarted, &s.LastRunFinished)
	return s, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
