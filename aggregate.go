package main

import (
	"fmt"
	"sort"
	"sync"
)

// Reducer names accepted by ScalarReduce.
const (
	ReduceSum   = "sum"
	ReduceAvg   = "avg"
	ReduceMax   = "max"
	ReduceCount = "count"
)

// Aggregator holds each check's result table for the duration of one run.
// Stored results are immutable; storing under an existing name overwrites
// the prior entry. Safe for concurrent Store from parallel checks.
type Aggregator struct {
	mu      sync.Mutex
	results map[string]CheckResult
	order   []string
}

func NewAggregator() *Aggregator {
	return &Aggregator{results: make(map[string]CheckResult)}
}

func (a *Aggregator) Store(result CheckResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, seen := a.results[result.CheckName]; !seen {
		a.order = append(a.order, result.CheckName)
	}
	a.results[result.CheckName] = result
}

// Names returns check names in first-stored order.
func (a *Aggregator) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

func (a *Aggregator) Result(checkName string) (CheckResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.results[checkName]
	return r, ok
}

// RowCount returns 0 for failed or unknown checks; counting is always safe.
func (a *Aggregator) RowCount(checkName string) int {
	r, ok := a.Result(checkName)
	if !ok {
		return 0
	}
	return len(r.Rows)
}

// Column returns the named column's values in row order, nulls included.
func (a *Aggregator) Column(checkName, columnName string) ([]any, error) {
	r, ok := a.Result(checkName)
	if !ok {
		return nil, &NotFoundError{Kind: "check", Name: checkName}
	}
	found := false
	for _, col := range r.Columns {
		if col == columnName {
			found = true
			break
		}
	}
	if !found {
		return nil, &NotFoundError{Kind: "column", Name: checkName + "." + columnName}
	}
	out := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, row[columnName])
	}
	return out, nil
}

// ScalarReduce folds a numeric column down to one value. Non-numeric and
// null cells are skipped. Sum and count over an empty column are 0; avg,
// max and percentile signal ErrEmptyResult.
func (a *Aggregator) ScalarReduce(checkName, columnName, reducer string) (float64, error) {
	values, err := a.numericColumn(checkName, columnName)
	if err != nil {
		return 0, err
	}

	switch reducer {
	case ReduceCount:
		return float64(len(values)), nil
	case ReduceSum:
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total, nil
	case ReduceAvg:
		if len(values) == 0 {
			return 0, ErrEmptyResult
		}
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total / float64(len(values)), nil
	case ReduceMax:
		if len(values) == 0 {
			return 0, ErrEmptyResult
		}
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	default:
		return 0, fmt.Errorf("unknown reducer %q", reducer)
	}
}

// Percentile computes the p-th percentile (0..100) of a numeric column with
// linear interpolation, so it is monotonic in p. Empty columns signal
// ErrEmptyResult.
func (a *Aggregator) Percentile(checkName, columnName string, p float64) (float64, error) {
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile %f out of range [0, 100]", p)
	}
	values, err := a.numericColumn(checkName, columnName)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, ErrEmptyResult
	}

	sort.Float64s(values)
	if len(values) == 1 {
		return values[0], nil
	}
	rank := p / 100 * float64(len(values)-1)
	lo := int(rank)
	if lo >= len(values)-1 {
		return values[len(values)-1], nil
	}
	frac := rank - float64(lo)
	return values[lo] + frac*(values[lo+1]-values[lo]), nil
}

func (a *Aggregator) numericColumn(checkName, columnName string) ([]float64, error) {
	raw, err := a.Column(checkName, columnName)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(raw))
	for _, v := range raw {
		if f, ok := asFloat(v); ok {
			values = append(values, f)
		}
	}
	return values, nil
}
