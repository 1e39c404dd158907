package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteReportFile renders the run to markdown under outputDir as
// <team>_<yyyymmdd>.md and returns the path.
func WriteReportFile(run *AuditRun, outputDir, teamName string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_%s.md", sanitizeFilename(teamName), run.StartedAt.Format("20060102"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(RenderReport(run)), 0644)
}

// RenderReport builds the human-readable audit report. Every completed
// check is shown regardless of sibling failures; errors appear inline in
// their section.
func RenderReport(run *AuditRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Warehouse Audit — %s\n\n", run.Scope)
	fmt.Fprintf(&b, "Run started %s, finished %s.\n\n",
		run.StartedAt.Format(time.RFC3339), run.FinishedAt.Format(time.RFC3339))

	if run.Cancelled {
		b.WriteString("**Run was cancelled; results below are partial.**\n\n")
	}
	if run.ProvisionErr != nil {
		fmt.Fprintf(&b, "**Provisioning failed:** %v — scope-view checks were skipped.\n\n", run.ProvisionErr)
	}

	titles := make(map[string]string)
	for _, check := range DefaultCatalog() {
		titles[check.Name] = check.Title
	}

	for _, section := range run.Digest.Sections {
		title := titles[section.CheckName]
		if title == "" {
			title = section.CheckName
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		if result := run.ResultByName(section.CheckName); result != nil && result.Failed() {
			fmt.Fprintf(&b, "Error: %v\n\n", result.Err)
			continue
		}
		fmt.Fprintf(&b, "%s\n\n", section.Summary)

		for _, c := range run.Classifications {
			if c.CheckName != section.CheckName || c.Category == CategoryOK {
				continue
			}
			fmt.Fprintf(&b, "- **%s** %s: %s\n", c.Category, c.SubjectID, c.Detail)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Advisor summary\n\n")
	switch {
	case run.Recommendation.Err != nil:
		fmt.Fprintf(&b, "AI summary unavailable: %v\n", run.Recommendation.Err)
	case run.Recommendation.Text == "":
		b.WriteString("AI summary disabled.\n")
	default:
		b.WriteString(strings.TrimSpace(run.Recommendation.Text))
		b.WriteString("\n")
		fmt.Fprintf(&b, "\n_Model %s, %d tokens._\n", run.Recommendation.Model, run.Recommendation.Usage.TotalTokens())
	}

	return b.String()
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}
