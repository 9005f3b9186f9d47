package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"eventpulse/event-service/internal/poller"
	"eventpulse/event-service/internal/trigger"
	"eventpulse/event-service/models"
)

const triggerTimeout = 15 * time.Second

// ExtractionJobStore mirrors the server-held extraction_jobs records for one
// owner at a time and owns the client side of the job state machine.
//
// The backend is the source of truth: each poll replaces local state
// wholesale. The store applies optimistic local updates for transitions it
// initiates itself and protects them from stale poll rows by remembering the
// updated_at of each row version a local transition superseded: a poll row
// still carrying a superseded version is ignored, any other version is
// accepted as a genuine server-side write. Row versions are compared for
// equality only, so client and server clocks never have to agree.
//
// Backend failures never escape as errors; operations log them, record them in
// LastError, and return an empty/false sentinel.
type ExtractionJobStore struct {
	backend JobBackend
	extract trigger.ExtractionTrigger
	analyze trigger.AnalysisTrigger
	log     *logrus.Logger

	pollInterval time.Duration

	mu         sync.RWMutex
	jobs       map[string]models.ExtractionJob
	staleMarks map[string][]time.Time
	ownerID    string
	lastError  string
	poll       *poller.Poller
	watchers   map[int]chan struct{}
	nextWatch  int
}

func NewExtractionJobStore(backend JobBackend, extract trigger.ExtractionTrigger, analyze trigger.AnalysisTrigger, pollInterval time.Duration, log *logrus.Logger) *ExtractionJobStore {
	return &ExtractionJobStore{
		backend:      backend,
		extract:      extract,
		analyze:      analyze,
		log:          log,
		pollInterval: pollInterval,
		jobs:         make(map[string]models.ExtractionJob),
		staleMarks:   make(map[string][]time.Time),
		watchers:     make(map[int]chan struct{}),
	}
}

// QueueExtraction inserts a new pending job for the URL and fires the
// extraction trigger. Returns the new job id, or "" if the insert failed.
func (s *ExtractionJobStore) QueueExtraction(ctx context.Context, ownerID, sourceURL string) string {
	fields := map[string]interface{}{
		"user_id":    ownerID,
		"source_url": sourceURL,
		"status":     string(models.JobStatusPending),
	}
	job, err := s.backend.InsertJob(ctx, fields)
	if err != nil {
		s.fail("queue extraction failed", err)
		return ""
	}

	s.mu.Lock()
	s.jobs[job.ID.String()] = *job
	s.mu.Unlock()
	s.notify()

	s.fireExtraction(job.ID.String())
	s.log.WithFields(logrus.Fields{"job_id": job.ID, "source_url": sourceURL}).Info("extraction queued")
	return job.ID.String()
}

// StartPolling begins the recurring refresh of the owner's jobs. Calling it
// again for the same owner while polling is a no-op; a different owner
// restarts the loop against that owner.
func (s *ExtractionJobStore) StartPolling(ownerID string) {
	s.mu.Lock()
	if s.poll != nil && s.poll.Running() && s.ownerID == ownerID {
		s.mu.Unlock()
		return
	}

	// Swap in the new poller while still holding the lock, so concurrent
	// callers can never each start a loop with only one of them tracked. The
	// old poller is stopped after it has been unlinked.
	old := s.poll
	p := poller.New(s.pollInterval, func(ctx context.Context) {
		s.Refresh(ctx, ownerID)
	}, s.log)
	p.Start()
	s.ownerID = ownerID
	s.poll = p
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}

// StopPolling halts the refresh loop. Safe to call when not polling.
func (s *ExtractionJobStore) StopPolling() {
	s.mu.Lock()
	p := s.poll
	s.poll = nil
	s.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// Refresh re-fetches the owner's jobs and replaces local state wholesale,
// except for stale rows still carrying a version a local transition already
// replaced.
func (s *ExtractionJobStore) Refresh(ctx context.Context, ownerID string) bool {
	rows, err := s.backend.ListJobs(ctx, ownerID, MaxJobsPerOwner)
	if err != nil {
		s.fail("job refresh failed", err)
		return false
	}

	s.mu.Lock()
	next := make(map[string]models.ExtractionJob, len(rows))
	for _, row := range rows {
		id := row.ID.String()
		if local, exists := s.jobs[id]; exists && s.isSuperseded(id, row.UpdatedAt) {
			// Stale poll row: it still carries a version a local transition
			// already replaced. Keep ours to avoid flicker.
			next[id] = local
			continue
		}
		delete(s.staleMarks, id)
		next[id] = row
	}
	for id := range s.staleMarks {
		if _, ok := next[id]; !ok {
			delete(s.staleMarks, id)
		}
	}
	s.jobs = next
	s.mu.Unlock()

	s.notify()
	return true
}

// isSuperseded reports whether a poll row's updated_at matches a row version a
// local transition already replaced. Postgres keeps microsecond precision, so
// versions are compared at that granularity. Caller holds s.mu.
func (s *ExtractionJobStore) isSuperseded(jobID string, rowVersion time.Time) bool {
	for _, mark := range s.staleMarks[jobID] {
		if mark.Truncate(time.Microsecond).Equal(rowVersion.Truncate(time.Microsecond)) {
			return true
		}
	}
	return false
}

// markSuperseded records that prev's row version has been replaced by a local
// transition. Caller holds s.mu.
func (s *ExtractionJobStore) markSuperseded(jobID string, prev models.ExtractionJob) {
	s.staleMarks[jobID] = append(s.staleMarks[jobID], prev.UpdatedAt)
}

// SelectImage records the chosen candidate image and moves the job to
// analyzing, firing the analysis trigger. Valid only from ready, or from
// failed when candidate images are present (re-analysis without
// re-extraction). Anything else is a logged no-op.
func (s *ExtractionJobStore) SelectImage(ctx context.Context, jobID, imageURL string) bool {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		s.log.WithField("job_id", jobID).Warn("select image: job not found")
		return false
	}
	if job.Status != models.JobStatusReady && !(job.Status == models.JobStatusFailed && job.HasImages()) {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{"job_id": jobID, "status": job.Status}).Warn("select image ignored: job not selectable")
		return false
	}

	prev := job
	now := time.Now()
	job.Status = models.JobStatusAnalyzing
	job.SelectedImageURL = &imageURL
	job.ErrorMessage = nil
	job.UpdatedAt = now
	s.jobs[jobID] = job
	s.markSuperseded(jobID, prev)
	s.mu.Unlock()
	s.notify()

	fields := map[string]interface{}{
		"status":             string(models.JobStatusAnalyzing),
		"selected_image_url": imageURL,
		"error_message":      nil,
		"updated_at":         now,
	}
	if _, err := s.backend.UpdateJob(ctx, jobID, fields); err != nil {
		s.revert(jobID, prev)
		s.fail("select image failed", err)
		return false
	}

	s.fireAnalysis(jobID, imageURL)
	return true
}

// RetryExtraction re-arms a failed job. With candidate images present it goes
// back to ready for reselection; without any it goes back to pending and the
// extraction trigger is fired again.
func (s *ExtractionJobStore) RetryExtraction(ctx context.Context, jobID string) bool {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != models.JobStatusFailed {
		status := models.JobStatus("missing")
		if ok {
			status = job.Status
		}
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{"job_id": jobID, "status": status}).Warn("retry ignored: job not failed")
		return false
	}

	prev := job
	now := time.Now()
	reExtract := !job.HasImages()
	if reExtract {
		job.Status = models.JobStatusPending
	} else {
		job.Status = models.JobStatusReady
	}
	job.ErrorMessage = nil
	job.UpdatedAt = now
	s.jobs[jobID] = job
	s.markSuperseded(jobID, prev)
	s.mu.Unlock()
	s.notify()

	fields := map[string]interface{}{
		"status":        string(job.Status),
		"error_message": nil,
		"updated_at":    now,
	}
	if _, err := s.backend.UpdateJob(ctx, jobID, fields); err != nil {
		s.revert(jobID, prev)
		s.fail("retry extraction failed", err)
		return false
	}

	if reExtract {
		s.fireExtraction(jobID)
	}
	return true
}

// ResetToReady clears a finished analysis so the same job can be reused for a
// different candidate image. Requires a terminal status and candidate images.
func (s *ExtractionJobStore) ResetToReady(ctx context.Context, jobID string) bool {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || !job.IsTerminal() || !job.HasImages() {
		s.mu.Unlock()
		s.log.WithField("job_id", jobID).Warn("reset ignored: job not resettable")
		return false
	}

	prev := job
	now := time.Now()
	job.Status = models.JobStatusReady
	job.AnalysisResult = nil
	job.SelectedImageURL = nil
	job.ErrorMessage = nil
	job.UpdatedAt = now
	s.jobs[jobID] = job
	s.markSuperseded(jobID, prev)
	s.mu.Unlock()
	s.notify()

	fields := map[string]interface{}{
		"status":             string(models.JobStatusReady),
		"analysis_result":    nil,
		"selected_image_url": nil,
		"error_message":      nil,
		"updated_at":         now,
	}
	if _, err := s.backend.UpdateJob(ctx, jobID, fields); err != nil {
		s.revert(jobID, prev)
		s.fail("reset to ready failed", err)
		return false
	}
	return true
}

// RemoveExtraction deletes the job record regardless of status.
func (s *ExtractionJobStore) RemoveExtraction(ctx context.Context, jobID string) bool {
	if err := s.backend.DeleteJob(ctx, jobID); err != nil {
		s.fail("remove extraction failed", err)
		return false
	}
	s.mu.Lock()
	delete(s.jobs, jobID)
	delete(s.staleMarks, jobID)
	s.mu.Unlock()
	s.notify()
	return true
}

// ClearCompleted deletes all of the owner's completed and failed jobs.
func (s *ExtractionJobStore) ClearCompleted(ctx context.Context, ownerID string) bool {
	statuses := []models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed}
	if err := s.backend.DeleteJobsByStatus(ctx, ownerID, statuses); err != nil {
		s.fail("clear completed failed", err)
		return false
	}
	s.mu.Lock()
	for id, job := range s.jobs {
		if job.IsTerminal() {
			delete(s.jobs, id)
			delete(s.staleMarks, id)
		}
	}
	s.mu.Unlock()
	s.notify()
	return true
}

// FailStalled marks jobs stuck in a non-terminal, worker-owned state for
// longer than threshold as failed. The external workers own terminal
// transitions; this is the escalation path when one never reports back.
// Returns the number of jobs failed.
func (s *ExtractionJobStore) FailStalled(ctx context.Context, threshold time.Duration) int {
	cutoff := time.Now().Add(-threshold)

	s.mu.RLock()
	var stalled []string
	for id, job := range s.jobs {
		switch job.Status {
		case models.JobStatusPending, models.JobStatusExtracting, models.JobStatusAnalyzing:
			if job.UpdatedAt.Before(cutoff) {
				stalled = append(stalled, id)
			}
		}
	}
	s.mu.RUnlock()

	failed := 0
	for _, id := range stalled {
		fields := map[string]interface{}{
			"status":        string(models.JobStatusFailed),
			"error_message": "processing timed out",
			"updated_at":    time.Now(),
		}
		row, err := s.backend.UpdateJob(ctx, id, fields)
		if err != nil {
			s.log.WithError(err).WithField("job_id", id).Warn("could not fail stalled job")
			continue
		}
		s.mu.Lock()
		if prev, ok := s.jobs[id]; ok {
			s.markSuperseded(id, prev)
		}
		s.jobs[id] = *row
		s.mu.Unlock()
		failed++
	}
	if failed > 0 {
		s.notify()
		s.log.WithField("count", failed).Warn("stalled jobs marked failed")
	}
	return failed
}

// Jobs returns the local snapshot ordered by creation time, newest first.
func (s *ExtractionJobStore) Jobs() []models.ExtractionJob {
	s.mu.RLock()
	out := make([]models.ExtractionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Job returns one job from the local snapshot.
func (s *ExtractionJobStore) Job(jobID string) (models.ExtractionJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// LastError returns the most recent backend failure message, for UI display.
func (s *ExtractionJobStore) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Subscribe returns a channel that receives a signal whenever local job state
// changes, plus a cancel func the caller must invoke when done.
func (s *ExtractionJobStore) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *ExtractionJobStore) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *ExtractionJobStore) revert(jobID string, prev models.ExtractionJob) {
	s.mu.Lock()
	s.jobs[jobID] = prev
	// Drop the mark the failed transition added; prev is current again.
	if marks := s.staleMarks[jobID]; len(marks) > 0 {
		s.staleMarks[jobID] = marks[:len(marks)-1]
	}
	s.mu.Unlock()
	s.notify()
}

func (s *ExtractionJobStore) fail(msg string, err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
	s.log.WithError(err).Error(msg)
}

// fireExtraction and fireAnalysis are fire-and-forget: the store does not wait
// for processing, only logs when the trigger itself could not be enqueued.
// Processing failures come back as status=failed via polling.

func (s *ExtractionJobStore) fireExtraction(jobID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()
		if err := s.extract.SubmitExtraction(ctx, jobID); err != nil {
			s.log.WithError(err).WithField("job_id", jobID).Warn("extraction trigger enqueue failed")
		}
	}()
}

func (s *ExtractionJobStore) fireAnalysis(jobID, imageURL string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()
		if err := s.analyze.SubmitAnalysis(ctx, jobID, imageURL); err != nil {
			s.log.WithError(err).WithField("job_id", jobID).Warn("analysis trigger enqueue failed")
		}
	}()
}
