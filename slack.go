package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
)

// PostAuditSummary posts a compact run summary to the configured channel.
// Delivery failure is logged and returned; it never affects the run itself.
func PostAuditSummary(api *slack.Client, channelID string, run *AuditRun, reportPath string) error {
	text := buildSlackSummary(run, reportPath)
	_, _, err := api.PostMessage(
		channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		log.Printf("slack post error channel=%s: %v", channelID, err)
		return fmt.Errorf("posting audit summary: %w", err)
	}
	log.Printf("slack summary posted channel=%s", channelID)
	return nil
}

func buildSlackSummary(run *AuditRun, reportPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":bar_chart: *Warehouse audit — %s*\n", run.Scope)
	fmt.Fprintf(&b, "Checks: %d run, %d failed", len(run.Results), run.FailedChecks())
	if run.Cancelled {
		b.WriteString(" (run cancelled, partial results)")
	}
	b.WriteString("\n")

	if n := run.CategoryCount(CategorySwitch); n > 0 {
		fmt.Fprintf(&b, ":arrows_counterclockwise: %d SWITCH recommendation(s)\n", n)
	}
	if n := run.CategoryCount(CategoryAlert); n > 0 {
		fmt.Fprintf(&b, ":rotating_light: %d ALERT(s)\n", n)
	}
	if run.ProvisionErr != nil {
		fmt.Fprintf(&b, ":warning: provisioning failed: %v\n", run.ProvisionErr)
	}

	switch {
	case run.Recommendation.Err != nil:
		b.WriteString("_AI summary unavailable._\n")
	case run.Recommendation.Text != "":
		advice := strings.TrimSpace(run.Recommendation.Text)
		if len(advice) > 600 {
			advice = advice[:600] + "..."
		}
		b.WriteString("> " + strings.ReplaceAll(advice, "\n", "\n> ") + "\n")
	}

	if reportPath != "" {
		fmt.Fprintf(&b, "Full report: `%s`", reportPath)
	}
	return b.String()
}
