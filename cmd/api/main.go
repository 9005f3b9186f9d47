package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"eventpulse/event-service/config"
	"eventpulse/event-service/handlers"
	"eventpulse/event-service/internal/analyzer"
	"eventpulse/event-service/internal/janitor"
	"eventpulse/event-service/internal/orchestrator"
	"eventpulse/event-service/internal/store"
	"eventpulse/event-service/internal/trigger"
	"eventpulse/event-service/internal/worker"
	"eventpulse/event-service/middleware"
)

const batchQueueSize = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := config.NewLogger(cfg.LogLevel)

	supaClient, err := config.NewSupabaseClient(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize Supabase client")
	}
	backend := store.NewSupabaseBackend(supaClient)
	triggers := trigger.NewEdgeFunctions(cfg.SupabaseURL, cfg.SupabaseServiceKey, log)

	jobs := store.NewExtractionJobStore(backend, triggers, triggers, cfg.PollInterval, log)
	drafts := store.NewDraftStore(backend, log)

	queue := worker.NewQueue(batchQueueSize, log)
	queue.Start()
	orc := orchestrator.New(jobs, drafts, queue, cfg.BatchWaitTimeout, log)

	sweeper := janitor.New(jobs, cfg.StaleJobThreshold, cfg.JanitorSchedule, log)
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Fatal("failed to start stale-job janitor")
	}

	flyerAnalyzer := analyzer.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, log)
	h := handlers.NewApplicationHandler(jobs, drafts, orc, flyerAnalyzer, log)

	app := fiber.New()
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(middleware.RequestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "Event service is healthy",
		})
	})

	apiV1 := app.Group("/api/v1")

	extractions := apiV1.Group("/extractions")
	extractions.Post("", h.CreateExtraction)
	extractions.Get("", h.ListExtractions)
	extractions.Delete("", h.ClearCompletedExtractions)
	extractions.Post("/polling/start", h.StartPolling)
	extractions.Post("/polling/stop", h.StopPolling)
	extractions.Post("/batch", h.BatchAnalyze)
	extractions.Get("/batch/status", h.BatchStatus)
	extractions.Get("/:id", h.GetExtraction)
	extractions.Delete("/:id", h.DeleteExtraction)
	extractions.Post("/:id/select", h.SelectImage)
	extractions.Post("/:id/retry", h.RetryExtraction)
	extractions.Post("/:id/analyze", h.AnalyzeJobImage)

	draftRoutes := apiV1.Group("/drafts")
	draftRoutes.Get("", h.ListDrafts)
	draftRoutes.Post("", h.CreateDraft)
	draftRoutes.Patch("/:id", h.UpdateDraft)
	draftRoutes.Delete("/:id", h.DeleteDraft)
	draftRoutes.Post("/:id/publish", h.PublishDraft)

	apiV1.Post("/analyze", h.AnalyzeImage)

	go func() {
		log.WithField("port", cfg.Port).Info("starting event service")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}
	jobs.StopPolling()
	sweeper.Stop()
	queue.Stop()
	log.Info("shutdown complete")
}
