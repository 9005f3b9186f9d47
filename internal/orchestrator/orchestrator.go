package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"eventpulse/event-service/internal/dates"
	"eventpulse/event-service/internal/store"
	"eventpulse/event-service/internal/worker"
	"eventpulse/event-service/models"
)

// UntitledEvent is the draft title used when the analyzer found no event name.
const UntitledEvent = "Evento sin título"

// BatchItem is one queued unit of batch analysis: a candidate image of a job.
type BatchItem struct {
	JobID    string `json:"job_id" validate:"required,uuid4"`
	ImageURL string `json:"image_url" validate:"required,url"`
}

// BatchProgress is the running summary reported while a batch executes.
type BatchProgress struct {
	Total         int  `json:"total"`
	Completed     int  `json:"completed"`
	DraftsCreated int  `json:"drafts_created"`
	Failed        int  `json:"failed"`
	Running       bool `json:"running"`
}

// Orchestrator bridges the job store, draft store and date resolution to run
// the interactive and batch analysis workflows. Batch items are processed
// strictly one at a time through a single-worker queue, because each job
// record holds only one in-flight analysis.
type Orchestrator struct {
	jobs   *store.ExtractionJobStore
	drafts *store.DraftStore
	queue  *worker.Queue
	log    *logrus.Logger

	waitTimeout time.Duration

	mu         sync.Mutex
	processed  map[string]string // job id -> image URL of the last analysis turned into a draft
	progress   BatchProgress
	remaining  int
	batchOwner string
}

func New(jobs *store.ExtractionJobStore, drafts *store.DraftStore, queue *worker.Queue, waitTimeout time.Duration, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:        jobs,
		drafts:      drafts,
		queue:       queue,
		log:         log,
		waitTimeout: waitTimeout,
		processed:   make(map[string]string),
	}
}

// AnalyzeInteractive runs the single-image flow: select the image, wait for
// the poll-driven completion, and return the draft form data for the edit
// screen. Nothing is saved; the user edits and saves explicitly.
func (o *Orchestrator) AnalyzeInteractive(ctx context.Context, jobID, imageURL string) (*models.EventDraft, bool) {
	if !o.jobs.SelectImage(ctx, jobID, imageURL) {
		return nil, false
	}
	job, ok := o.waitForTerminal(ctx, jobID)
	if !ok || job.Status != models.JobStatusCompleted || job.AnalysisResult == nil {
		return nil, false
	}
	form := MapAnalysisToDraft(*job.AnalysisResult, job.UserID, &job.ID, imageURL)
	return &form, true
}

// StartBatch queues the items for sequential processing. Only one batch may
// run at a time; returns false if one is already running or nothing could be
// queued.
func (o *Orchestrator) StartBatch(ownerID string, items []BatchItem) bool {
	if len(items) == 0 {
		return false
	}

	o.mu.Lock()
	if o.progress.Running {
		o.mu.Unlock()
		o.log.Warn("batch rejected: another batch is running")
		return false
	}
	o.progress = BatchProgress{Total: len(items), Running: true}
	o.remaining = len(items)
	o.batchOwner = ownerID
	o.mu.Unlock()

	queued := 0
	for i, item := range items {
		t := &batchTask{orc: o, item: item, seq: i}
		if o.queue.Submit(t) {
			queued++
			continue
		}
		o.mu.Lock()
		o.progress.Failed++
		o.remaining--
		o.mu.Unlock()
	}
	if queued == 0 {
		o.finishBatch()
		return false
	}
	o.log.WithFields(logrus.Fields{"owner_id": ownerID, "items": queued}).Info("batch analysis started")
	return true
}

// Progress returns a snapshot of the current (or last) batch's counters.
func (o *Orchestrator) Progress() BatchProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// ProcessCompletedJob converts a job's completed analysis into a saved draft,
// at most once per analysis. Polling re-delivers the completed status every
// tick until the job is reset, so the last-processed image per job is tracked
// to avoid duplicate drafts. Returns the new draft id, or "".
func (o *Orchestrator) ProcessCompletedJob(ctx context.Context, job models.ExtractionJob) string {
	if job.Status != models.JobStatusCompleted || job.AnalysisResult == nil {
		return ""
	}
	imageURL := ""
	if job.SelectedImageURL != nil {
		imageURL = *job.SelectedImageURL
	}
	jobID := job.ID.String()

	o.mu.Lock()
	if o.processed[jobID] == imageURL {
		o.mu.Unlock()
		o.log.WithField("job_id", jobID).Debug("analysis already converted, skipping duplicate draft")
		return ""
	}
	o.mu.Unlock()

	form := MapAnalysisToDraft(*job.AnalysisResult, job.UserID, &job.ID, imageURL)
	draftID := o.drafts.SaveDraft(ctx, form)
	if draftID != "" {
		o.mu.Lock()
		o.processed[jobID] = imageURL
		o.mu.Unlock()
	}
	return draftID
}

type batchTask struct {
	orc  *Orchestrator
	item BatchItem
	seq  int
}

func (t *batchTask) ID() string {
	return fmt.Sprintf("batch-%d-%s", t.seq, t.item.JobID)
}

func (t *batchTask) Run(ctx context.Context) {
	t.orc.runItem(ctx, t.item)
	t.orc.itemDone(ctx)
}

func (o *Orchestrator) runItem(ctx context.Context, item BatchItem) {
	if !o.jobs.SelectImage(ctx, item.JobID, item.ImageURL) {
		o.markFailed(item, "image not selectable")
		return
	}

	job, ok := o.waitForTerminal(ctx, item.JobID)
	if !ok {
		o.markFailed(item, "analysis did not finish in time")
		return
	}

	switch {
	case job.Status == models.JobStatusCompleted && job.AnalysisResult != nil:
		if o.ProcessCompletedJob(ctx, job) != "" {
			o.mu.Lock()
			o.progress.DraftsCreated++
			o.mu.Unlock()
		} else {
			o.markFailed(item, "draft could not be saved")
		}
	default:
		reason := "analysis failed"
		if job.ErrorMessage != nil {
			reason = *job.ErrorMessage
		}
		o.markFailed(item, reason)
	}

	// Free the job for the next queued image, whatever the outcome. The reset
	// also clears the duplicate guard: whatever runs on this job next is a new
	// analysis, even of the same image.
	if o.jobs.ResetToReady(ctx, item.JobID) {
		o.mu.Lock()
		delete(o.processed, item.JobID)
		o.mu.Unlock()
	}
}

// waitForTerminal blocks until the job reaches completed or failed as observed
// through the store's poll-driven state, or until timeout/cancellation.
func (o *Orchestrator) waitForTerminal(ctx context.Context, jobID string) (models.ExtractionJob, bool) {
	changes, cancel := o.jobs.Subscribe()
	defer cancel()

	deadline := time.NewTimer(o.waitTimeout)
	defer deadline.Stop()

	for {
		job, ok := o.jobs.Job(jobID)
		if !ok {
			return models.ExtractionJob{}, false
		}
		if job.IsTerminal() {
			return job, true
		}
		select {
		case <-changes:
		case <-deadline.C:
			o.log.WithField("job_id", jobID).Warn("timed out waiting for analysis to finish")
			return models.ExtractionJob{}, false
		case <-ctx.Done():
			return models.ExtractionJob{}, false
		}
	}
}

func (o *Orchestrator) markFailed(item BatchItem, reason string) {
	o.mu.Lock()
	o.progress.Failed++
	o.mu.Unlock()
	o.log.WithFields(logrus.Fields{
		"job_id":    item.JobID,
		"image_url": item.ImageURL,
		"reason":    reason,
	}).Warn("batch item failed")
}

func (o *Orchestrator) itemDone(ctx context.Context) {
	o.mu.Lock()
	o.progress.Completed++
	o.remaining--
	done := o.remaining == 0
	o.mu.Unlock()
	if done {
		o.finishBatchCtx(ctx)
	}
}

func (o *Orchestrator) finishBatch() {
	o.finishBatchCtx(context.Background())
}

func (o *Orchestrator) finishBatchCtx(ctx context.Context) {
	o.mu.Lock()
	owner := o.batchOwner
	o.progress.Running = false
	summary := o.progress
	o.mu.Unlock()

	if owner != "" {
		o.drafts.FetchDrafts(ctx, owner)
	}
	o.log.WithFields(logrus.Fields{
		"total":          summary.Total,
		"completed":      summary.Completed,
		"drafts_created": summary.DraftsCreated,
		"failed":         summary.Failed,
	}).Info("batch analysis finished")
}

var priceRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// ParsePrice extracts the first numeric substring of the analyzer's price
// text. "Gratis", "No especificado" and blank values mean no price.
func ParsePrice(s string) *float64 {
	if dates.IsUnspecified(s) {
		return nil
	}
	m := priceRe.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &v
}

// MapAnalysisToDraft converts an analyzer result into draft form data,
// resolving the ambiguous date fields into the canonical main date plus
// recurrences.
func MapAnalysisToDraft(a models.AnalysisResult, ownerID uuid.UUID, jobID *uuid.UUID, imageURL string) models.EventDraft {
	resolved := dates.ResolveDates(a.Date, a.RecurringDates, a.IsRecurring)

	draft := models.EventDraft{
		UserID:          ownerID,
		ExtractionJobID: jobID,
		Title:           UntitledEvent,
		Category:        models.CategoryGeneral,
		IsRecurring:     resolved.IsRecurring,
		Price:           ParsePrice(a.Price),
		TargetAudience:  a.TargetAudience,
		Tags:            a.Tags,
		EventFeatures:   a.EventFeatures,
	}

	if title := strings.TrimSpace(a.EventName); !dates.IsUnspecified(title) {
		draft.Title = title
	}
	if resolved.MainDate != nil {
		draft.Date = strPtr(dates.FormatISO(*resolved.MainDate))
	}
	if len(resolved.RecurringDates) > 0 {
		draft.RecurringDates = dates.FormatAllISO(resolved.RecurringDates)
	}

	setOptional(&draft.Description, a.Description)
	setOptional(&draft.Time, a.Time)
	setOptional(&draft.EndTime, a.EndTime)
	setOptional(&draft.Location, a.Location)
	setOptional(&draft.Organizer, a.Organizer)
	setOptional(&draft.RegistrationFormURL, a.RegistrationURL)
	setOptional(&draft.Subcategory, a.Subcategory)

	if imageURL != "" {
		draft.Image = strPtr(imageURL)
		draft.SourceImageURL = strPtr(imageURL)
	}
	if len(draft.TargetAudience) == 0 {
		draft.TargetAudience = append([]string{}, models.DefaultTargetAudience...)
	}
	return draft
}

func setOptional(dst **string, val string) {
	if !dates.IsUnspecified(val) {
		*dst = strPtr(strings.TrimSpace(val))
	}
}

func strPtr(s string) *string { return &s }
