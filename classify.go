package main

import (
	"fmt"
	"math"
)

// Policy holds the threshold cutoffs the classifier applies. Defaults match
// the published guidance the checks were written against, but every cutoff
// is tunable from config.
type Policy struct {
	// SwitchMargin is the ratio below which the alternative billing model
	// is recommended: SWITCH iff costB < costA*SwitchMargin.
	SwitchMargin float64 `yaml:"switch_margin"`
	// PendingThresholdMs flags slot contention when the pending-time
	// percentile exceeds it.
	PendingThresholdMs float64 `yaml:"pending_threshold_ms"`
	// UnlabeledCostPct alerts when more than this share of spend carries
	// no labels.
	UnlabeledCostPct float64 `yaml:"unlabeled_cost_pct"`
	// ScanRatioAlert flags tables whose bytes-billed / bytes-processed
	// ratio exceeds it (poor pruning).
	ScanRatioAlert float64 `yaml:"scan_ratio_alert"`
}

func (p Policy) withDefaults() Policy {
	if p.SwitchMargin == 0 {
		p.SwitchMargin = 0.8
	}
	if p.PendingThresholdMs == 0 {
		p.PendingThresholdMs = 1000
	}
	if p.UnlabeledCostPct == 0 {
		p.UnlabeledCostPct = 20
	}
	if p.ScanRatioAlert == 0 {
		p.ScanRatioAlert = 10
	}
	return p
}

func (p Policy) validate() error {
	if p.SwitchMargin <= 0 || p.SwitchMargin > 1 {
		return fmt.Errorf("switch_margin %f out of range (0, 1]", p.SwitchMargin)
	}
	if p.PendingThresholdMs < 0 {
		return fmt.Errorf("pending_threshold_ms %f must be >= 0", p.PendingThresholdMs)
	}
	if p.UnlabeledCostPct < 0 || p.UnlabeledCostPct > 100 {
		return fmt.Errorf("unlabeled_cost_pct %f out of range [0, 100]", p.UnlabeledCostPct)
	}
	if p.ScanRatioAlert <= 0 {
		return fmt.Errorf("scan_ratio_alert %f must be > 0", p.ScanRatioAlert)
	}
	return nil
}

// CompareCosts is the three-way billing-model split. The dead zone between
// costA*SwitchMargin and costA is deliberate: a marginal saving is not worth
// a migration, so it stays NEUTRAL.
func (p Policy) CompareCosts(costA, costB float64) Category {
	if costA <= 0 || math.IsNaN(costA) || math.IsNaN(costB) {
		return CategoryInsufficient
	}
	switch {
	case costB < costA*p.SwitchMargin:
		return CategorySwitch
	case costB > costA:
		return CategoryKeep
	default:
		return CategoryNeutral
	}
}

// ClassifyPricingRows applies CompareCosts per row of a pricing check.
// Rows missing either cost column classify INSUFFICIENT_DATA.
func (p Policy) ClassifyPricingRows(checkName string, rows []Row, subjectCol, costACol, costBCol string) []Classification {
	var out []Classification
	for i, row := range rows {
		subject := fmt.Sprintf("row-%d", i)
		if s, ok := asString(row[subjectCol]); ok && s != "" {
			subject = s
		}
		costA, okA := asFloat(row[costACol])
		costB, okB := asFloat(row[costBCol])
		if !okA || !okB {
			out = append(out, Classification{
				CheckName: checkName,
				SubjectID: subject,
				Category:  CategoryInsufficient,
				Detail:    "missing cost value",
			})
			continue
		}
		cat := p.CompareCosts(costA, costB)
		ratio := 0.0
		if costA > 0 {
			ratio = costB / costA
		}
		out = append(out, Classification{
			CheckName:      checkName,
			SubjectID:      subject,
			Category:       cat,
			RationaleValue: ratio,
			Detail:         fmt.Sprintf("on-demand=%.2f alternative=%.2f", costA, costB),
		})
	}
	return out
}

// ClassifyThreshold compares a single aggregate against a cutoff: ALERT
// above it, OK at or below. A nil aggregate (no data) is INSUFFICIENT_DATA.
func ClassifyThreshold(checkName, subject string, value float64, ok bool, cutoff float64) Classification {
	c := Classification{CheckName: checkName, SubjectID: subject, RationaleValue: value}
	switch {
	case !ok:
		c.Category = CategoryInsufficient
		c.Detail = "no data"
	case value > cutoff:
		c.Category = CategoryAlert
		c.Detail = fmt.Sprintf("%.2f exceeds threshold %.2f", value, cutoff)
	default:
		c.Category = CategoryOK
		c.Detail = fmt.Sprintf("%.2f within threshold %.2f", value, cutoff)
	}
	return c
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	default:
		return "", false
	}
}
