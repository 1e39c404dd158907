package main

import (
	"fmt"
	"strings"
)

const (
	digestTopN          = 5
	digestMaxDetailLen  = 120
	digestMaxSectionLen = 800
)

// BuildDigest renders one bounded section per stored check, in execution
// order. It summarizes scalars and top-N subjects, never full row sets, and
// is deterministic: the same aggregator state always yields the same digest.
func BuildDigest(agg *Aggregator, policy Policy) Digest {
	var d Digest
	for _, name := range agg.Names() {
		result, _ := agg.Result(name)
		d.Sections = append(d.Sections, DigestSection{
			CheckName: name,
			Summary:   summarizeCheck(agg, policy, result),
		})
	}
	return d
}

func summarizeCheck(agg *Aggregator, policy Policy, result CheckResult) string {
	if result.Failed() {
		return "check failed: " + sanitizeText(result.Err.Error())
	}

	switch result.CheckName {
	case CheckPricingComparison:
		return summarizePricing(result, policy)
	case CheckSlotContention:
		return summarizeSlotContention(agg, policy)
	case CheckUnlabeledCost:
		return summarizeUnlabeled(result, policy)
	case CheckScanEfficiency:
		return summarizeScanEfficiency(result, policy)
	case CheckCMEKCoverage:
		return summarizeCMEK(result)
	default:
		return summarizeGeneric(result)
	}
}

func summarizePricing(result CheckResult, policy Policy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d billing projects compared.", len(result.Rows))
	for i, row := range result.Rows {
		if i >= digestTopN {
			fmt.Fprintf(&b, " (+%d more)", len(result.Rows)-digestTopN)
			break
		}
		name, _ := asString(row["billing_project"])
		onDemand, okA := asFloat(row["on_demand_cost"])
		slot, okB := asFloat(row["slot_cost"])
		if !okA || !okB {
			continue
		}
		fmt.Fprintf(&b, " %s: on-demand=%.2f slot=%.2f -> %s.",
			sanitizeText(name), onDemand, slot, policy.CompareCosts(onDemand, slot))
	}
	return clampSection(b.String())
}

func summarizeSlotContention(agg *Aggregator, policy Policy) string {
	n := agg.RowCount(CheckSlotContention)
	if n == 0 {
		return "no jobs with pending time in the window."
	}
	p50, err50 := agg.Percentile(CheckSlotContention, "pending_ms", 50)
	p95, err95 := agg.Percentile(CheckSlotContention, "pending_ms", 95)
	if err50 != nil || err95 != nil {
		return fmt.Sprintf("%d jobs, pending-time percentiles unavailable.", n)
	}
	return clampSection(fmt.Sprintf("%d jobs; pending_ms p50=%.0f p95=%.0f (alert threshold %.0f).",
		n, p50, p95, policy.PendingThresholdMs))
}

func summarizeUnlabeled(result CheckResult, policy Policy) string {
	if len(result.Rows) == 0 {
		return "no spend rows in the window."
	}
	row := result.Rows[0]
	pct, ok := asFloat(row["unlabeled_pct"])
	if !ok {
		return "unlabeled share unavailable (zero total cost)."
	}
	total, _ := asFloat(row["total_cost"])
	return clampSection(fmt.Sprintf("%.1f%% of %.2f total spend is unlabeled (alert above %.0f%%).",
		pct, total, policy.UnlabeledCostPct))
}

func summarizeScanEfficiency(result CheckResult, policy Policy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d tables ranked by scan ratio.", len(result.Rows))
	shown := 0
	for _, row := range result.Rows {
		ratio, ok := asFloat(row["scan_ratio"])
		if !ok || ratio <= policy.ScanRatioAlert {
			continue
		}
		name, _ := asString(row["table_id"])
		fmt.Fprintf(&b, " %s ratio=%.1f.", sanitizeText(name), ratio)
		shown++
		if shown >= digestTopN {
			break
		}
	}
	if shown == 0 {
		fmt.Fprintf(&b, " None above the %.0fx alert ratio.", policy.ScanRatioAlert)
	}
	return clampSection(b.String())
}

func summarizeCMEK(result CheckResult) string {
	if len(result.Rows) == 0 {
		return "no table metadata."
	}
	row := result.Rows[0]
	encrypted, _ := asFloat(row["encrypted_tables"])
	total, _ := asFloat(row["total_tables"])
	return fmt.Sprintf("%.0f of %.0f tables use customer-managed keys.", encrypted, total)
}

// summarizeGeneric covers catalog checks with no bespoke summary: row count
// plus the extreme values of each numeric column.
func summarizeGeneric(result CheckResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows.", len(result.Rows))
	for _, col := range result.Columns {
		min, max, n := columnExtremes(result.Rows, col)
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, " %s: min=%.2f max=%.2f.", sanitizeText(col), min, max)
	}
	return clampSection(b.String())
}

func columnExtremes(rows []Row, col string) (min, max float64, n int) {
	for _, row := range rows {
		v, ok := asFloat(row[col])
		if !ok {
			continue
		}
		if n == 0 || v < min {
			min = v
		}
		if n == 0 || v > max {
			max = v
		}
		n++
	}
	return min, max, n
}

// Render serializes the digest for the recommendation prompt.
func (d Digest) Render() string {
	var b strings.Builder
	for _, s := range d.Sections {
		b.WriteString("## ")
		b.WriteString(sanitizeText(s.CheckName))
		b.WriteString("\n")
		b.WriteString(s.Summary)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// sanitizeText neutralizes anything that could break or redirect the
// downstream prompt: control characters, quotes and backticks are replaced,
// long values truncated.
func sanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r < 0x20 || r == 0x7f:
			// drop other control characters
		case r == '"' || r == '\'' || r == '`':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > digestMaxDetailLen {
		out = out[:digestMaxDetailLen] + "..."
	}
	return out
}

func clampSection(s string) string {
	if len(s) > digestMaxSectionLen {
		return s[:digestMaxSectionLen] + "..."
	}
	return s
}
