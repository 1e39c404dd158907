package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// ScopeViewName is the provisioned view the scope-wide checks read.
const ScopeViewName = "audit_scope_jobs"

// Provisioner creates the scope-union view: one SELECT over jobs_history
// per child project, unioned. Idempotent: repeated invocation with the same
// definition neither errors nor changes state.
type Provisioner struct {
	DB *sql.DB
}

// BuildScopeViewSQL computes the view definition for the given child
// projects. The parent project is always included.
func BuildScopeViewSQL(project string, childProjects []string) (string, error) {
	scopes := append([]string{project}, childProjects...)
	var selects []string
	for _, scope := range scopes {
		if !identRe.MatchString(scope) {
			return "", fmt.Errorf("unsafe scope identifier: %q", scope)
		}
		selects = append(selects, fmt.Sprintf(
			`SELECT job_id, user_email, billing_project, start_ms, end_ms, pending_ms,
        total_billed_bytes, total_processed_bytes, total_slot_ms,
        on_demand_cost, slot_cost, labels, referenced_table
 FROM jobs_history WHERE billing_project = '%s'`, scope))
	}
	return fmt.Sprintf("CREATE VIEW IF NOT EXISTS %s AS\n%s",
		ScopeViewName, strings.Join(selects, "\nUNION ALL\n")), nil
}

// Ensure creates the scope view and verifies it is readable. The
// verification read is what makes provisioning a confirmed precondition
// rather than a fire-and-forget statement.
func (p *Provisioner) Ensure(ctx context.Context, project string, childProjects []string) error {
	ddl, err := BuildScopeViewSQL(project, childProjects)
	if err != nil {
		return &ProvisioningError{Resource: ScopeViewName, Err: err}
	}

	// CREATE VIEW IF NOT EXISTS silently keeps a stale definition, so check
	// the stored one first and recreate on mismatch.
	var existing sql.NullString
	err = p.DB.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'view' AND name = ?`, ScopeViewName,
	).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return &ProvisioningError{Resource: ScopeViewName, Err: err}
	}
	// sqlite strips the IF NOT EXISTS clause from the stored text, so
	// normalize both sides before comparing.
	if existing.Valid && stripIfNotExists(existing.String) != stripIfNotExists(ddl) {
		if _, err := p.DB.ExecContext(ctx, "DROP VIEW IF EXISTS "+ScopeViewName); err != nil {
			return &ProvisioningError{Resource: ScopeViewName, Err: err}
		}
	}
	if _, err := p.DB.ExecContext(ctx, ddl); err != nil {
		return &ProvisioningError{Resource: ScopeViewName, Err: err}
	}

	var n int
	if err := p.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ScopeViewName+" WHERE 1=0").Scan(&n); err != nil {
		return &ProvisioningError{Resource: ScopeViewName, Err: fmt.Errorf("verification read: %w", err)}
	}

	log.Printf("provisioned view=%s scopes=%d", ScopeViewName, 1+len(childProjects))
	return nil
}

func stripIfNotExists(ddl string) string {
	return strings.Replace(ddl, "IF NOT EXISTS ", "", 1)
}
