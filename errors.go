package main

import (
	"errors"
	"fmt"
)

// ErrEmptyResult is returned by non-count reducers over a column with no
// non-null values.
var ErrEmptyResult = errors.New("no non-null values in column")

// ErrInsufficientData marks classifications that could not be computed
// because required aggregates were absent. It downgrades to
// CategoryInsufficient, it never aborts a run.
var ErrInsufficientData = errors.New("insufficient data for classification")

// NotFoundError reports an unknown check or column lookup on the aggregator.
type NotFoundError struct {
	Kind string // "check" or "column"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// CheckExecutionError wraps the engine-side failure of a single check. It is
// recorded on the CheckResult; the pipeline continues past it.
type CheckExecutionError struct {
	CheckName string
	Err       error
}

func (e *CheckExecutionError) Error() string {
	return fmt.Sprintf("check %s: %v", e.CheckName, e.Err)
}

func (e *CheckExecutionError) Unwrap() error { return e.Err }

// ProvisioningError reports a failed namespace/view setup. Checks that read
// the provisioned view are skipped with a CheckExecutionError; independent
// checks still run.
type ProvisioningError struct {
	Resource string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s: %v", e.Resource, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// RecommendationError reports a failed synthesis call. The run still
// carries all computed results; only the free-text advice is absent.
type RecommendationError struct {
	Provider string
	Err      error
}

func (e *RecommendationError) Error() string {
	return fmt.Sprintf("recommendation via %s: %v", e.Provider, e.Err)
}

func (e *RecommendationError) Unwrap() error { return e.Err }
