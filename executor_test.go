package main

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// newMetaDB creates a metadata source with the system views the catalog
// reads, seeded with a small known scope.
func newMetaDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "metadata-test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open metadata db failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	schema := `
	CREATE TABLE jobs_history (
		job_id TEXT, user_email TEXT, billing_project TEXT,
		start_ms INTEGER, end_ms INTEGER, pending_ms INTEGER,
		total_billed_bytes INTEGER, total_processed_bytes INTEGER,
		total_slot_ms INTEGER, on_demand_cost REAL, slot_cost REAL,
		labels TEXT, referenced_table TEXT
	);
	CREATE TABLE storage_metadata (
		project_id TEXT, dataset_id TEXT, table_id TEXT,
		logical_bytes INTEGER, physical_bytes INTEGER,
		logical_cost REAL, physical_cost REAL
	);
	CREATE TABLE access_grants (principal TEXT, role TEXT, resource TEXT);
	CREATE TABLE rls_policies (project_id TEXT, table_id TEXT, policy_name TEXT, grantee_count INTEGER);
	CREATE TABLE cmek_keys (project_id TEXT, table_id TEXT, kms_key_name TEXT);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create metadata schema failed: %v", err)
	}
	return db
}

func seedMetaDB(t *testing.T, db *sql.DB) {
	t.Helper()
	now := time.Now().UnixMilli()

	jobs := []struct {
		project   string
		pendingMs int64
		billed    int64
		processed int64
		onDemand  float64
		slot      float64
		labels    string
		table     string
	}{
		{"proj-a", 200, 5000, 1000, 10.0, 7.0, "team:data", "proj-a.analytics.events"},
		{"proj-a", 1500, 80000, 2000, 5.0, 5.0, "", "proj-a.analytics.events"},
		{"proj-b", 50, 1000, 1000, 4.0, 6.0, "team:data", "proj-b.raw.logs"},
	}
	for i, j := range jobs {
		_, err := db.Exec(
			`INSERT INTO jobs_history (job_id, user_email, billing_project, start_ms, end_ms, pending_ms,
			   total_billed_bytes, total_processed_bytes, total_slot_ms, on_demand_cost, slot_cost, labels, referenced_table)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			"job-"+string(rune('a'+i)), "user@example.com", j.project, now, now+1000, j.pendingMs,
			j.billed, j.processed, 3000, j.onDemand, j.slot, j.labels, j.table,
		)
		if err != nil {
			t.Fatalf("seed jobs_history failed: %v", err)
		}
	}

	storage := []struct {
		dataset  string
		logical  float64
		physical float64
	}{
		{"analytics", 100.0, 60.0},
		{"raw", 20.0, 25.0},
	}
	for _, s := range storage {
		if _, err := db.Exec(
			`INSERT INTO storage_metadata (project_id, dataset_id, table_id, logical_bytes, physical_bytes, logical_cost, physical_cost)
			 VALUES ('proj-a', ?, 't1', 1000, 600, ?, ?)`,
			s.dataset, s.logical, s.physical,
		); err != nil {
			t.Fatalf("seed storage_metadata failed: %v", err)
		}
	}

	if _, err := db.Exec(`INSERT INTO access_grants (principal, role, resource) VALUES
		('alice@example.com', 'roles/bigquery.admin', 'proj-a'),
		('bob@example.com', 'roles/bigquery.dataViewer', 'proj-a.analytics')`); err != nil {
		t.Fatalf("seed access_grants failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO rls_policies (project_id, table_id, policy_name, grantee_count) VALUES
		('proj-a', 'events', 'region_filter', 3)`); err != nil {
		t.Fatalf("seed rls_policies failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO cmek_keys (project_id, table_id, kms_key_name) VALUES
		('proj-a', 'events', 'projects/proj-a/keys/k1'),
		('proj-a', 'scratch', '')`); err != nil {
		t.Fatalf("seed cmek_keys failed: %v", err)
	}
}

func TestRenderQuery(t *testing.T) {
	rendered, err := RenderQuery("SELECT * FROM {view} WHERE p = '{project}'", map[string]string{
		"view":    "audit_scope_jobs",
		"project": "proj-a",
	})
	if err != nil {
		t.Fatalf("RenderQuery failed: %v", err)
	}
	want := "SELECT * FROM audit_scope_jobs WHERE p = 'proj-a'"
	if rendered != want {
		t.Fatalf("rendered = %q, want %q", rendered, want)
	}
}

func TestRenderQueryUnresolvedPlaceholder(t *testing.T) {
	if _, err := RenderQuery("SELECT * FROM {view}", map[string]string{}); err == nil {
		t.Fatal("expected error for unresolved placeholder")
	}
}

func TestRenderQueryRejectsUnsafeIdentifier(t *testing.T) {
	unsafe := []string{
		"x'; DROP TABLE jobs_history; --",
		"a b",
		`a"b`,
		"",
	}
	for _, ident := range unsafe {
		if _, err := RenderQuery("SELECT * FROM {view}", map[string]string{"view": ident}); err == nil {
			t.Fatalf("expected unsafe identifier %q to be rejected", ident)
		}
	}
}

func TestRunCheckReturnsRows(t *testing.T) {
	db := newMetaDB(t)
	seedMetaDB(t, db)
	exec := &Executor{DB: db}

	check := Check{
		Name:          "grants",
		QueryTemplate: "SELECT principal, role FROM access_grants WHERE resource LIKE '{project}%' ORDER BY principal",
	}
	result := exec.RunCheck(context.Background(), check, map[string]string{"project": "proj-a"}, nil)
	if result.Failed() {
		t.Fatalf("RunCheck failed: %v", result.Err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if got, _ := asString(result.Rows[0]["principal"]); got != "alice@example.com" {
		t.Fatalf("row order not preserved, first principal = %q", got)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "principal" {
		t.Fatalf("unexpected columns: %v", result.Columns)
	}
}

func TestRunCheckFailureIsIsolated(t *testing.T) {
	db := newMetaDB(t)
	exec := &Executor{DB: db}

	bad := Check{Name: "missing_view", QueryTemplate: "SELECT * FROM no_such_view"}
	result := exec.RunCheck(context.Background(), bad, nil, nil)
	if !result.Failed() {
		t.Fatal("expected failure for missing view")
	}
	if len(result.Rows) != 0 {
		t.Fatalf("failed check must carry no rows, got %d", len(result.Rows))
	}
	var checkErr *CheckExecutionError
	if !errors.As(result.Err, &checkErr) {
		t.Fatalf("expected CheckExecutionError, got %T", result.Err)
	}
	if checkErr.CheckName != "missing_view" {
		t.Fatalf("error names wrong check: %s", checkErr.CheckName)
	}

	// The handle is still usable for the next check.
	good := Check{Name: "grants_count", QueryTemplate: "SELECT COUNT(*) AS n FROM access_grants"}
	if r := exec.RunCheck(context.Background(), good, nil, nil); r.Failed() {
		t.Fatalf("subsequent check should succeed: %v", r.Err)
	}
}
