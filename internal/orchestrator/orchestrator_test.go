package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"eventpulse/event-service/internal/store"
	"eventpulse/event-service/internal/worker"
	"eventpulse/event-service/models"
)

const testOwner = "5f0b8a60-6a3d-4f2e-9f66-3a4c8e0a9b11"

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// fakeBackend implements both store backends in memory so the orchestrator can
// be exercised against real stores.
type fakeBackend struct {
	mu           sync.Mutex
	jobs         map[string]models.ExtractionJob
	drafts       map[string]models.EventDraft
	draftInserts int
	draftErr     error
	events       int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		jobs:   make(map[string]models.ExtractionJob),
		drafts: make(map[string]models.EventDraft),
	}
}

func (f *fakeBackend) InsertJob(_ context.Context, fields map[string]interface{}) (*models.ExtractionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	job := models.ExtractionJob{
		ID:        uuid.New(),
		UserID:    uuid.MustParse(fields["user_id"].(string)),
		SourceURL: fields["source_url"].(string),
		Status:    models.JobStatus(fields["status"].(string)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.jobs[job.ID.String()] = job
	return &job, nil
}

func (f *fakeBackend) ListJobs(_ context.Context, _ string, _ int) ([]models.ExtractionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ExtractionJob, 0, len(f.jobs))
	for _, row := range f.jobs {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeBackend) UpdateJob(_ context.Context, id string, fields map[string]interface{}) (*models.ExtractionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("row not found")
	}
	for key, val := range fields {
		switch key {
		case "status":
			row.Status = models.JobStatus(val.(string))
		case "selected_image_url":
			if val == nil {
				row.SelectedImageURL = nil
			} else {
				s := val.(string)
				row.SelectedImageURL = &s
			}
		case "error_message":
			if val == nil {
				row.ErrorMessage = nil
			} else {
				s := val.(string)
				row.ErrorMessage = &s
			}
		case "analysis_result":
			if val == nil {
				row.AnalysisResult = nil
			}
		case "updated_at":
			row.UpdatedAt = val.(time.Time)
		}
	}
	f.jobs[id] = row
	return &row, nil
}

func (f *fakeBackend) DeleteJob(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *fakeBackend) DeleteJobsByStatus(_ context.Context, _ string, _ []models.JobStatus) error {
	return nil
}

func (f *fakeBackend) InsertDraft(_ context.Context, fields map[string]interface{}) (*models.EventDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	f.draftInserts++
	draft := models.EventDraft{
		ID:        uuid.New(),
		UserID:    uuid.MustParse(fields["user_id"].(string)),
		Title:     fields["title"].(string),
		CreatedAt: time.Now(),
	}
	f.drafts[draft.ID.String()] = draft
	return &draft, nil
}

func (f *fakeBackend) ListDrafts(_ context.Context, _ string) ([]models.EventDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.EventDraft, 0, len(f.drafts))
	for _, row := range f.drafts {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeBackend) UpdateDraft(_ context.Context, id string, _ map[string]interface{}) (*models.EventDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.drafts[id]
	if !ok {
		return nil, errors.New("row not found")
	}
	return &row, nil
}

func (f *fakeBackend) DeleteDraft(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, id)
	return nil
}

func (f *fakeBackend) InsertEvent(_ context.Context, _ map[string]interface{}) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events++
	return &models.Event{ID: uuid.New()}, nil
}

func (f *fakeBackend) seedReadyJob(images ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().Add(-time.Minute)
	job := models.ExtractionJob{
		ID:              uuid.New(),
		UserID:          uuid.MustParse(testOwner),
		SourceURL:       "https://instagram.com/p/seed",
		Status:          models.JobStatusReady,
		ExtractedImages: images,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.jobs[job.ID.String()] = job
	return job.ID.String()
}

func (f *fakeBackend) jobStatus(id string) models.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id].Status
}

func (f *fakeBackend) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draftInserts
}

// completingTrigger plays the role of the external analyzer: when analysis is
// submitted it writes the completed result straight into the backend row, to
// be picked up by the next refresh.
type completingTrigger struct {
	backend  *fakeBackend
	analysis models.AnalysisResult
	complete bool
}

func (t *completingTrigger) SubmitExtraction(_ context.Context, _ string) error { return nil }

func (t *completingTrigger) SubmitAnalysis(_ context.Context, jobID, imageURL string) error {
	if !t.complete {
		return nil
	}
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	row, ok := t.backend.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	analysis := t.analysis
	row.Status = models.JobStatusCompleted
	row.AnalysisResult = &analysis
	row.SelectedImageURL = &imageURL
	row.UpdatedAt = time.Now()
	t.backend.jobs[jobID] = row
	return nil
}

// startRefresher simulates the polling loop at test speed.
func startRefresher(jobs *store.ExtractionJobStore) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				jobs.Refresh(context.Background(), testOwner)
			}
		}
	}()
	return func() { close(stop); <-done }
}

type fixture struct {
	backend *fakeBackend
	jobs    *store.ExtractionJobStore
	drafts  *store.DraftStore
	orc     *Orchestrator
}

func newFixture(t *testing.T, complete bool, analysis models.AnalysisResult) *fixture {
	t.Helper()
	backend := newFakeBackend()
	trig := &completingTrigger{backend: backend, analysis: analysis, complete: complete}
	log := quietLogger()

	jobs := store.NewExtractionJobStore(backend, trig, trig, 50*time.Millisecond, log)
	drafts := store.NewDraftStore(backend, log)

	queue := worker.NewQueue(16, log)
	queue.Start()
	t.Cleanup(queue.Stop)

	return &fixture{
		backend: backend,
		jobs:    jobs,
		drafts:  drafts,
		orc:     New(jobs, drafts, queue, 2*time.Second, log),
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func completedJob(imageURL string, analysis models.AnalysisResult) models.ExtractionJob {
	return models.ExtractionJob{
		ID:               uuid.New(),
		UserID:           uuid.MustParse(testOwner),
		Status:           models.JobStatusCompleted,
		ExtractedImages:  []string{imageURL},
		SelectedImageURL: &imageURL,
		AnalysisResult:   &analysis,
	}
}

func TestProcessCompletedJobIsIdempotentPerImage(t *testing.T) {
	f := newFixture(t, false, models.AnalysisResult{})
	ctx := context.Background()

	job := completedJob("https://cdn.example.com/a.jpg", models.AnalysisResult{EventName: "Feria"})

	if id := f.orc.ProcessCompletedJob(ctx, job); id == "" {
		t.Fatal("first delivery must create a draft")
	}
	// Polling re-delivers the same completed job every tick.
	if id := f.orc.ProcessCompletedJob(ctx, job); id != "" {
		t.Fatal("re-delivered completion must not create a second draft")
	}
	if got := f.backend.insertCount(); got != 1 {
		t.Fatalf("draft inserts = %d, want 1", got)
	}

	// A different image on the same job is a new analysis.
	next := "https://cdn.example.com/b.jpg"
	job.SelectedImageURL = &next
	if id := f.orc.ProcessCompletedJob(ctx, job); id == "" {
		t.Fatal("a new image's analysis must create its own draft")
	}
	if got := f.backend.insertCount(); got != 2 {
		t.Fatalf("draft inserts = %d, want 2", got)
	}
}

func TestProcessCompletedJobIgnoresNonCompleted(t *testing.T) {
	f := newFixture(t, false, models.AnalysisResult{})
	job := completedJob("https://cdn.example.com/a.jpg", models.AnalysisResult{})
	job.Status = models.JobStatusAnalyzing

	if id := f.orc.ProcessCompletedJob(context.Background(), job); id != "" {
		t.Fatal("only completed jobs with a result may become drafts")
	}
}

func TestProcessCompletedJobRetriesAfterSaveFailure(t *testing.T) {
	f := newFixture(t, false, models.AnalysisResult{})
	ctx := context.Background()
	job := completedJob("https://cdn.example.com/a.jpg", models.AnalysisResult{EventName: "Feria"})

	f.backend.draftErr = errors.New("boom")
	if id := f.orc.ProcessCompletedJob(ctx, job); id != "" {
		t.Fatal("save failure must not report a draft")
	}

	// A failed save must not poison the guard.
	f.backend.draftErr = nil
	if id := f.orc.ProcessCompletedJob(ctx, job); id == "" {
		t.Fatal("retry after save failure must create the draft")
	}
}

func TestAnalyzeInteractiveReturnsFormWithoutSaving(t *testing.T) {
	analysis := models.AnalysisResult{
		EventName: "Concierto de jazz",
		Date:      "2099-05-20",
		Time:      "19:00",
		Location:  "Teatro Municipal",
		Price:     "Gratis",
	}
	f := newFixture(t, true, analysis)
	jobID := f.backend.seedReadyJob("https://cdn.example.com/a.jpg")
	f.jobs.Refresh(context.Background(), testOwner)

	stopRefresh := startRefresher(f.jobs)
	defer stopRefresh()

	form, ok := f.orc.AnalyzeInteractive(context.Background(), jobID, "https://cdn.example.com/a.jpg")
	if !ok {
		t.Fatal("interactive analysis failed")
	}
	if form.Title != "Concierto de jazz" {
		t.Fatalf("title = %q", form.Title)
	}
	if form.Date == nil || *form.Date != "2099-05-20" {
		t.Fatalf("date = %v, want 2099-05-20", form.Date)
	}
	if form.Price != nil {
		t.Fatal("a Gratis price must map to nil")
	}
	if form.ExtractionJobID == nil || form.ExtractionJobID.String() != jobID {
		t.Fatal("form must reference the source job")
	}
	if got := f.backend.insertCount(); got != 0 {
		t.Fatalf("draft inserts = %d, interactive flow must not save", got)
	}
}

func TestBatchCreatesOneDraftPerItem(t *testing.T) {
	analysis := models.AnalysisResult{EventName: "Feria de primavera", Date: "2099-03-01"}
	f := newFixture(t, true, analysis)
	jobID := f.backend.seedReadyJob(
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/b.jpg",
	)
	f.jobs.Refresh(context.Background(), testOwner)

	stopRefresh := startRefresher(f.jobs)
	defer stopRefresh()

	items := []BatchItem{
		{JobID: jobID, ImageURL: "https://cdn.example.com/a.jpg"},
		{JobID: jobID, ImageURL: "https://cdn.example.com/b.jpg"},
	}
	if !f.orc.StartBatch(testOwner, items) {
		t.Fatal("batch should start")
	}

	eventually(t, func() bool { return !f.orc.Progress().Running }, "batch never finished")

	progress := f.orc.Progress()
	if progress.Completed != 2 || progress.DraftsCreated != 2 || progress.Failed != 0 {
		t.Fatalf("progress = %+v, want 2 completed, 2 drafts, 0 failed", progress)
	}
	if got := f.backend.insertCount(); got != 2 {
		t.Fatalf("draft inserts = %d, want 2", got)
	}
	if status := f.backend.jobStatus(jobID); status != models.JobStatusReady {
		t.Fatalf("job status = %s, want ready for reuse after the batch", status)
	}
}

func TestBatchSameImageTwiceCreatesTwoDrafts(t *testing.T) {
	analysis := models.AnalysisResult{EventName: "Feria de primavera", Date: "2099-03-01"}
	f := newFixture(t, true, analysis)
	jobID := f.backend.seedReadyJob("https://cdn.example.com/a.jpg")
	f.jobs.Refresh(context.Background(), testOwner)

	stopRefresh := startRefresher(f.jobs)
	defer stopRefresh()

	// The reset between items makes the second run a fresh analysis, so the
	// duplicate guard must not swallow it.
	items := []BatchItem{
		{JobID: jobID, ImageURL: "https://cdn.example.com/a.jpg"},
		{JobID: jobID, ImageURL: "https://cdn.example.com/a.jpg"},
	}
	if !f.orc.StartBatch(testOwner, items) {
		t.Fatal("batch should start")
	}
	eventually(t, func() bool { return !f.orc.Progress().Running }, "batch never finished")

	progress := f.orc.Progress()
	if progress.DraftsCreated != 2 || progress.Failed != 0 {
		t.Fatalf("progress = %+v, want both runs to produce a draft", progress)
	}
	if got := f.backend.insertCount(); got != 2 {
		t.Fatalf("draft inserts = %d, want 2", got)
	}
}

func TestStartBatchRejectsConcurrentBatch(t *testing.T) {
	// The analysis never completes, so the first batch holds the queue until
	// its wait times out.
	f := newFixture(t, false, models.AnalysisResult{})
	f.orc.waitTimeout = 200 * time.Millisecond

	jobID := f.backend.seedReadyJob("https://cdn.example.com/a.jpg")
	f.jobs.Refresh(context.Background(), testOwner)

	items := []BatchItem{{JobID: jobID, ImageURL: "https://cdn.example.com/a.jpg"}}
	if !f.orc.StartBatch(testOwner, items) {
		t.Fatal("batch with queueable items should start")
	}
	if f.orc.StartBatch(testOwner, items) {
		t.Fatal("a second batch must be rejected while one is running")
	}

	eventually(t, func() bool { return !f.orc.Progress().Running }, "batch never finished")
	progress := f.orc.Progress()
	if progress.Failed != 1 || progress.DraftsCreated != 0 {
		t.Fatalf("progress = %+v, want 1 failed item and no drafts", progress)
	}

	// Once finished, a new batch may start.
	if !f.orc.StartBatch(testOwner, items) {
		t.Fatal("a new batch must be accepted after the previous one finished")
	}
	eventually(t, func() bool { return !f.orc.Progress().Running }, "second batch never finished")
}

func TestBatchItemWithUnknownJobFails(t *testing.T) {
	f := newFixture(t, true, models.AnalysisResult{})

	items := []BatchItem{{JobID: uuid.NewString(), ImageURL: "https://cdn.example.com/a.jpg"}}
	if !f.orc.StartBatch(testOwner, items) {
		t.Fatal("batch should start even if its items turn out unselectable")
	}
	eventually(t, func() bool { return !f.orc.Progress().Running }, "batch never finished")

	progress := f.orc.Progress()
	if progress.Failed != 1 || progress.DraftsCreated != 0 {
		t.Fatalf("progress = %+v, want 1 failed item and no drafts", progress)
	}
}

func TestStartBatchRejectsEmpty(t *testing.T) {
	f := newFixture(t, true, models.AnalysisResult{})
	if f.orc.StartBatch(testOwner, nil) {
		t.Fatal("an empty batch must be rejected")
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"Gratis", nil},
		{"No especificado", nil},
		{"", nil},
		{"5000", ptr(5000.0)},
		{"$3.500", ptr(3.5)},
		{"Entrada: 1500 pesos", ptr(1500.0)},
		{"2,5", ptr(2.5)},
		{"a consultar", nil},
	}
	for _, tc := range cases {
		got := ParsePrice(tc.in)
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("ParsePrice(%q) = %v, want nil", tc.in, *got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Errorf("ParsePrice(%q) = %v, want %v", tc.in, got, *tc.want)
		}
	}
}

func TestMapAnalysisToDraftDefaults(t *testing.T) {
	owner := uuid.MustParse(testOwner)

	draft := MapAnalysisToDraft(models.AnalysisResult{
		EventName: "No especificado",
		Date:      "No especificado",
		Location:  "no especificado",
		Price:     "Gratis",
	}, owner, nil, "")

	if draft.Title != UntitledEvent {
		t.Fatalf("title = %q, want the untitled fallback", draft.Title)
	}
	if draft.Date != nil {
		t.Fatal("an unspecified date must map to nil")
	}
	if draft.Location != nil {
		t.Fatal("the sentinel is case-insensitive")
	}
	if draft.Category != models.CategoryGeneral {
		t.Fatalf("category = %q, want general", draft.Category)
	}
	if len(draft.TargetAudience) != 1 || draft.TargetAudience[0] != "general" {
		t.Fatalf("target audience = %v, want the default", draft.TargetAudience)
	}
}

func TestMapAnalysisToDraftFullMapping(t *testing.T) {
	owner := uuid.MustParse(testOwner)
	jobID := uuid.New()

	draft := MapAnalysisToDraft(models.AnalysisResult{
		EventName:       "  Taller de fotografía  ",
		Date:            "2099-04-12",
		Time:            "10:00",
		EndTime:         "13:00",
		Description:     "Taller práctico",
		Location:        "Centro Cultural",
		Organizer:       "Colectivo Lente",
		Price:           "$2000",
		RegistrationURL: "https://forms.example.com/x",
		Subcategory:     "fotografía",
		Tags:            []string{"arte"},
		TargetAudience:  []string{"adultos"},
	}, owner, &jobID, "https://cdn.example.com/flyer.jpg")

	if draft.Title != "Taller de fotografía" {
		t.Fatalf("title = %q, want it trimmed", draft.Title)
	}
	if draft.Date == nil || *draft.Date != "2099-04-12" {
		t.Fatalf("date = %v", draft.Date)
	}
	if draft.Time == nil || *draft.Time != "10:00" || draft.EndTime == nil || *draft.EndTime != "13:00" {
		t.Fatalf("time window = %v-%v", draft.Time, draft.EndTime)
	}
	if draft.Price == nil || *draft.Price != 2000 {
		t.Fatalf("price = %v", draft.Price)
	}
	if draft.Image == nil || *draft.Image != "https://cdn.example.com/flyer.jpg" {
		t.Fatalf("image = %v", draft.Image)
	}
	if draft.SourceImageURL == nil || *draft.SourceImageURL != "https://cdn.example.com/flyer.jpg" {
		t.Fatalf("source image = %v", draft.SourceImageURL)
	}
	if draft.ExtractionJobID == nil || *draft.ExtractionJobID != jobID {
		t.Fatal("job back-reference missing")
	}
	if draft.RegistrationFormURL == nil || *draft.RegistrationFormURL != "https://forms.example.com/x" {
		t.Fatalf("registration url = %v", draft.RegistrationFormURL)
	}
	if len(draft.TargetAudience) != 1 || draft.TargetAudience[0] != "adultos" {
		t.Fatalf("target audience = %v, analyzer value must win over the default", draft.TargetAudience)
	}
}

func TestMapAnalysisToDraftRecurring(t *testing.T) {
	owner := uuid.MustParse(testOwner)

	draft := MapAnalysisToDraft(models.AnalysisResult{
		EventName:      "Feria itinerante",
		IsRecurring:    true,
		RecurringDates: []string{"2099-01-10", "2099-02-10", "2099-03-10"},
	}, owner, nil, "")

	if !draft.IsRecurring {
		t.Fatal("multiple future dates must stay recurring")
	}
	if draft.Date == nil || *draft.Date != "2099-01-10" {
		t.Fatalf("main date = %v, want the earliest upcoming one", draft.Date)
	}
	if len(draft.RecurringDates) != 2 {
		t.Fatalf("recurring dates = %v, want the remaining two", draft.RecurringDates)
	}
}

func ptr(v float64) *float64 { return &v }
