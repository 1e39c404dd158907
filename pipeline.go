package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// defaultLookback bounds the job-history window the scope checks read.
const defaultLookback = 30 * 24 * time.Hour

// Pipeline wires one audit run: provisioning, the ordered check sequence,
// classification, digest, recommendation. The metadata handle is
// constructed once per run by the caller and passed in; the pipeline holds
// no cross-run state.
type Pipeline struct {
	Config   Config
	DB       *sql.DB
	Catalog  []Check
	Lookback time.Duration
}

func NewPipeline(cfg Config, db *sql.DB) *Pipeline {
	return &Pipeline{
		Config:   cfg,
		DB:       db,
		Catalog:  DefaultCatalog(),
		Lookback: defaultLookback,
	}
}

// Run executes the audit. Cancellation stops issuing further checks but
// preserves every result already obtained; provisioning failure skips only
// the checks that read the provisioned view.
func (p *Pipeline) Run(ctx context.Context) *AuditRun {
	run := &AuditRun{StartedAt: time.Now(), Scope: p.Config.Project}
	agg := NewAggregator()
	exec := &Executor{DB: p.DB}

	prov := &Provisioner{DB: p.DB}
	if err := prov.Ensure(ctx, p.Config.Project, p.Config.ChildProjects); err != nil {
		log.Printf("provisioning failed, scope-view checks will be skipped: %v", err)
		run.ProvisionErr = err
	}

	idents := map[string]string{
		"project":    p.Config.Project,
		"dataset":    p.Config.Dataset,
		"scope_view": ScopeViewName,
	}
	cutoffMs := time.Now().Add(-p.Lookback).UnixMilli()

	runOne := func(check Check) CheckResult {
		if run.ProvisionErr != nil && check.NeedsProvisioned {
			return CheckResult{
				CheckName: check.Name,
				Err:       &CheckExecutionError{CheckName: check.Name, Err: run.ProvisionErr},
			}
		}
		var args []any
		for _, param := range checkParams(check) {
			switch param {
			case ParamCutoffMs:
				args = append(args, cutoffMs)
			}
		}
		return exec.RunCheck(ctx, check, idents, args)
	}

	if p.Config.ParallelChecks {
		// Checks never read each other's output, only the aggregator after
		// the join, so a plain fan-out is safe.
		results := make([]CheckResult, len(p.Catalog))
		var wg sync.WaitGroup
		for i, check := range p.Catalog {
			wg.Add(1)
			go func(idx int, check Check) {
				defer wg.Done()
				results[idx] = runOne(check)
			}(i, check)
		}
		wg.Wait()
		for _, r := range results {
			agg.Store(r)
		}
		run.Cancelled = ctx.Err() != nil
	} else {
		for _, check := range p.Catalog {
			if ctx.Err() != nil {
				run.Cancelled = true
				log.Printf("run cancelled after %d of %d checks", len(run.Results), len(p.Catalog))
				break
			}
			agg.Store(runOne(check))
		}
	}

	for _, name := range agg.Names() {
		if r, ok := agg.Result(name); ok {
			run.Results = append(run.Results, r)
		}
	}

	run.Classifications = p.classify(agg)
	run.Digest = BuildDigest(agg, p.Config.Policy)
	if !run.Cancelled {
		run.Recommendation = Recommend(ctx, p.Config, run.Digest, run.Classifications)
	}

	run.FinishedAt = time.Now()
	log.Printf("audit run scope=%s checks=%d failed=%d switch=%d alert=%d elapsed=%s cancelled=%v",
		run.Scope, len(run.Results), run.FailedChecks(),
		run.CategoryCount(CategorySwitch), run.CategoryCount(CategoryAlert),
		run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond), run.Cancelled)
	return run
}

// classify derives the threshold verdicts from the aggregator. Missing or
// failed inputs downgrade to INSUFFICIENT_DATA, never abort.
func (p *Pipeline) classify(agg *Aggregator) []Classification {
	policy := p.Config.Policy
	var out []Classification

	if result, ok := agg.Result(CheckPricingComparison); ok && !result.Failed() {
		out = append(out, policy.ClassifyPricingRows(
			CheckPricingComparison, result.Rows, "billing_project", "on_demand_cost", "slot_cost")...)
	} else {
		out = append(out, insufficient(CheckPricingComparison, p.Config.Project))
	}

	if result, ok := agg.Result(CheckStorageBilling); ok && !result.Failed() {
		out = append(out, policy.ClassifyPricingRows(
			CheckStorageBilling, result.Rows, "dataset", "logical_cost", "physical_cost")...)
	} else {
		out = append(out, insufficient(CheckStorageBilling, p.Config.Project))
	}

	p95, err := agg.Percentile(CheckSlotContention, "pending_ms", 95)
	out = append(out, ClassifyThreshold(CheckSlotContention, "pending_ms_p95", p95, err == nil, policy.PendingThresholdMs))
	if err != nil && !errors.Is(err, ErrEmptyResult) {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			log.Printf("classify %s: %v", CheckSlotContention, err)
		}
	}

	if result, ok := agg.Result(CheckUnlabeledCost); ok && !result.Failed() && len(result.Rows) > 0 {
		pct, valid := asFloat(result.Rows[0]["unlabeled_pct"])
		out = append(out, ClassifyThreshold(CheckUnlabeledCost, p.Config.Project, pct, valid, policy.UnlabeledCostPct))
	} else {
		out = append(out, insufficient(CheckUnlabeledCost, p.Config.Project))
	}

	if result, ok := agg.Result(CheckScanEfficiency); ok && !result.Failed() {
		for _, row := range result.Rows {
			ratio, valid := asFloat(row["scan_ratio"])
			if !valid {
				continue
			}
			table, _ := asString(row["table_id"])
			c := ClassifyThreshold(CheckScanEfficiency, table, ratio, true, policy.ScanRatioAlert)
			if c.Category == CategoryAlert {
				out = append(out, c)
			}
		}
	}

	return out
}

func insufficient(checkName, subject string) Classification {
	return Classification{
		CheckName: checkName,
		SubjectID: subject,
		Category:  CategoryInsufficient,
		Detail:    fmt.Sprintf("%v", ErrInsufficientData),
	}
}
