package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"eventpulse/event-service/internal/store"
)

// Janitor periodically fails jobs whose external worker never reported a
// terminal status. Without it a job could sit in extracting or analyzing
// forever from the client's point of view.
type Janitor struct {
	jobs      *store.ExtractionJobStore
	threshold time.Duration
	schedule  string
	log       *logrus.Logger

	cron *cron.Cron
}

func New(jobs *store.ExtractionJobStore, threshold time.Duration, schedule string, log *logrus.Logger) *Janitor {
	return &Janitor{
		jobs:      jobs,
		threshold: threshold,
		schedule:  schedule,
		log:       log,
	}
}

// Start schedules the sweep. The schedule is a cron spec, e.g. "@every 1m".
func (j *Janitor) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, j.sweep); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	j.log.WithFields(logrus.Fields{
		"schedule":  j.schedule,
		"threshold": j.threshold.String(),
	}).Info("stale-job janitor started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.log.Info("stale-job janitor stopped")
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	j.jobs.FailStalled(ctx, j.threshold)
}
