package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// identRe is the whole-string pattern an identifier must match before it is
// spliced into query text. Everything else (quotes, whitespace, semicolons)
// is rejected up front.
var identRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Executor runs catalog checks against the metadata source. The *sql.DB
// handle is constructed once per run by the caller and passed in; the
// executor holds no other state.
type Executor struct {
	DB *sql.DB
}

// RenderQuery resolves {name} identifier placeholders in a template.
// Identifiers are validated against identRe; value parameters stay as bound
// ? placeholders and are never spliced.
func RenderQuery(template string, idents map[string]string) (string, error) {
	var rendErr error
	rendered := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := strings.Trim(m, "{}")
		val, ok := idents[name]
		if !ok {
			rendErr = fmt.Errorf("unresolved placeholder {%s}", name)
			return m
		}
		if !identRe.MatchString(val) {
			rendErr = fmt.Errorf("unsafe identifier for {%s}: %q", name, val)
			return m
		}
		return val
	})
	if rendErr != nil {
		return "", rendErr
	}
	return rendered, nil
}

// RunCheck executes one check and materializes its rows. Engine-side
// failures are converted into the result's Err field so the pipeline can
// continue with the next check; no retry, read-only queries only.
func (e *Executor) RunCheck(ctx context.Context, check Check, idents map[string]string, args []any) CheckResult {
	result := CheckResult{CheckName: check.Name}
	started := time.Now()

	query, err := RenderQuery(check.QueryTemplate, idents)
	if err != nil {
		result.Err = &CheckExecutionError{CheckName: check.Name, Err: err}
		return result
	}

	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		result.Err = &CheckExecutionError{CheckName: check.Name, Err: err}
		result.Elapsed = time.Since(started)
		return result
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		result.Err = &CheckExecutionError{CheckName: check.Name, Err: err}
		return result
	}
	result.Columns = cols

	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			result.Rows = nil
			result.Err = &CheckExecutionError{CheckName: check.Name, Err: err}
			result.Elapsed = time.Since(started)
			return result
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeScalar(cells[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		// A failed check never carries partial rows.
		result.Rows = nil
		result.Err = &CheckExecutionError{CheckName: check.Name, Err: err}
	}

	result.Elapsed = time.Since(started)
	log.Printf("check run name=%s rows=%d elapsed=%s err=%v", check.Name, len(result.Rows), result.Elapsed.Round(time.Millisecond), result.Err)
	return result
}

// normalizeScalar keeps row values to the scalar set the aggregator and
// classifier understand.
func normalizeScalar(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	default:
		return x
	}
}
