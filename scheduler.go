package main

import (
	"log"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// StartAuditScheduler runs the audit on a standard 5-field cron expression
// (minute hour day-of-month month day-of-week). Overlapping runs are
// skipped, not queued. Returns the started cron so the caller can Stop it.
func StartAuditScheduler(schedule string, runAudit func()) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	spec, err := parser.Parse(schedule)
	if err != nil {
		return nil, err
	}

	var running atomic.Bool
	c := cron.New(cron.WithParser(parser))
	c.Schedule(spec, cron.FuncJob(func() {
		if !running.CompareAndSwap(false, true) {
			log.Printf("scheduled audit skipped: previous run still in progress")
			return
		}
		defer running.Store(false)
		runAudit()
	}))
	c.Start()

	log.Printf("Audit scheduled (cron: %s)", schedule)
	return c, nil
}
