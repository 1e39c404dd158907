package main

import "time"

// Row is one result row: column name to scalar value. Values are whatever
// database/sql hands back (int64, float64, string, time.Time, or nil).
type Row map[string]any

// Check is one diagnostic query in the catalog. Identity is the Name.
// Identifier placeholders in the template look like {project} and must all
// be resolved before execution; value parameters are bound positionally.
type Check struct {
	Name          string
	Title         string
	QueryTemplate string
	// Identifier placeholder names that must be supplied at run time.
	RequiredIdents []string
	// NeedsProvisioned marks checks that read the provisioned scope view.
	NeedsProvisioned bool
}

// CheckResult holds the rows of one executed check, or the error that
// prevented them. Exactly one of Rows/Err is meaningful: a failed check
// carries no partial rows.
type CheckResult struct {
	CheckName string
	Columns   []string
	Rows      []Row
	Err       error
	Elapsed   time.Duration
}

func (r CheckResult) Failed() bool {
	return r.Err != nil
}

// Category is the recommendation bucket a classification lands in.
type Category string

const (
	CategorySwitch       Category = "SWITCH"
	CategoryKeep         Category = "KEEP"
	CategoryNeutral      Category = "NEUTRAL"
	CategoryAlert        Category = "ALERT"
	CategoryOK           Category = "OK"
	CategoryInsufficient Category = "INSUFFICIENT_DATA"
)

// Classification is one threshold verdict derived from a check's aggregates.
// Recomputed every run, never updated in place.
type Classification struct {
	CheckName string
	SubjectID string
	Category  Category
	// RationaleValue is the number the verdict hinged on (a ratio, a
	// percentile, a percentage), for the report and the digest.
	RationaleValue float64
	Detail         string
}

// DigestSection is the bounded summary of one check.
type DigestSection struct {
	CheckName string
	Summary   string
}

// Digest is the textual projection of a whole run, built once and consumed
// by the recommendation client.
type Digest struct {
	Sections []DigestSection
}

// Recommendation is the terminal artifact: free-text advice from the model,
// or the error that prevented it.
type Recommendation struct {
	Text  string
	Model string
	Usage LLMUsage
	Err   error
}

// AuditRun collects everything one pipeline run produced. Partial runs
// (cancellation, provisioning failure) still carry whatever completed.
type AuditRun struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	Scope           string
	ProvisionErr    error
	Results         []CheckResult
	Classifications []Classification
	Digest          Digest
	Recommendation  Recommendation
	Cancelled       bool
}

func (run *AuditRun) ResultByName(name string) *CheckResult {
	for i := range run.Results {
		if run.Results[i].CheckName == name {
			return &run.Results[i]
		}
	}
	return nil
}

func (run *AuditRun) FailedChecks() int {
	n := 0
	for _, r := range run.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

func (run *AuditRun) CategoryCount(cat Category) int {
	n := 0
	for _, c := range run.Classifications {
		if c.Category == cat {
			n++
		}
	}
	return n
}
