package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()

	metaDB, err := sql.Open(cfg.MetadataDriver, cfg.MetadataDSN)
	if err != nil {
		log.Fatalf("Failed to open metadata source: %v", err)
	}
	defer metaDB.Close()

	historyDB, err := InitHistoryDB(cfg.HistoryDBPath)
	if err != nil {
		log.Fatalf("Failed to init history database: %v", err)
	}
	defer historyDB.Close()

	os.MkdirAll(cfg.ReportOutputDir, 0755)

	var api *slack.Client
	if cfg.SlackConfigured() {
		api = slack.New(cfg.SlackBotToken)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runAudit := func() {
		pipeline := NewPipeline(cfg, metaDB)
		run := pipeline.Run(ctx)

		reportPath, err := WriteReportFile(run, cfg.ReportOutputDir, cfg.TeamName)
		if err != nil {
			log.Printf("Error writing report: %v", err)
		} else {
			log.Printf("Report written to %s", reportPath)
		}

		if _, err := InsertAuditRun(historyDB, run); err != nil {
			log.Printf("Error recording run history: %v", err)
		}

		if api != nil {
			if err := PostAuditSummary(api, cfg.SlackChannelID, run, reportPath); err != nil {
				log.Printf("Error posting to Slack: %v", err)
			}
		}
	}

	log.Printf("Starting warehouse audit scope=%s dataset=%s", cfg.Project, cfg.Dataset)
	runAudit()

	if cfg.AuditSchedule == "" {
		return
	}
	c, err := StartAuditScheduler(cfg.AuditSchedule, runAudit)
	if err != nil {
		log.Fatalf("Invalid audit_schedule '%s': %v", cfg.AuditSchedule, err)
	}
	<-ctx.Done()
	c.Stop()
	log.Println("Shutting down")
}
