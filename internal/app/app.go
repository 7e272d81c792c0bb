package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"

	"imagemill/backend/features/job"
	"imagemill/backend/features/stats"
	"imagemill/backend/internal/adapter/httpfetch"
	"imagemill/backend/internal/adapter/localstore"
	"imagemill/backend/internal/config"
	"imagemill/backend/internal/imaging"
	"imagemill/backend/internal/middleware"
	"imagemill/backend/internal/worker"
)

// consumerChannel is the NSQ channel shared by every backend instance so the
// topics are load-balanced, not broadcast.
const consumerChannel = "imagemill"

type App struct {
	Handler http.Handler

	JobService *job.Service

	Fanout     *worker.FanoutConsumer
	Products   *worker.ProductConsumer
	Completion *worker.CompletionConsumer
	Webhook    *worker.WebhookConsumer

	cfg       *config.Config
	consumers []*nsq.Consumer
}

func New(cfg *config.Config, db *sql.DB, taskPub worker.TaskPublisher) (*App, error) {
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub)
	jobHandler := job.NewHandler(jobService, cfg.MaxUploadSizeMB)
	statsHandler := stats.NewHandler(jobRepo)

	objectStore, err := localstore.New(cfg.OutputImageDir, cfg.OutputImageBaseURL)
	if err != nil {
		return nil, fmt.Errorf("object store error: %w", err)
	}

	fetcher := httpfetch.New(time.Duration(cfg.FetchTimeoutSeconds) * time.Second)
	transformer := imaging.NewTransformer(cfg.CompressionQuality)
	processor := worker.NewProcessor(fetcher, transformer, objectStore,
		time.Duration(cfg.FetchDelayMS)*time.Millisecond,
		time.Duration(cfg.ProcessTimeoutSeconds)*time.Second)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/upload", middleware.CorrelationID(enableCORS(jobHandler.Upload)))
	mux.Handle("GET /api/status/{id}", middleware.CorrelationID(enableCORS(jobHandler.Status)))
	mux.Handle("GET /api/download/{id}", middleware.CorrelationID(enableCORS(jobHandler.Download)))
	mux.Handle("GET /api/download/{id}/file", middleware.CorrelationID(enableCORS(jobHandler.DownloadFile)))
	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Image Processing Service API","status":"running"}`))
	})

	return &App{
		Handler:    mux,
		JobService: jobService,
		Fanout:     worker.NewFanoutConsumer(jobRepo, taskPub),
		Products:   worker.NewProductConsumer(jobRepo, processor, taskPub),
		Completion: worker.NewCompletionConsumer(jobRepo, taskPub, cfg.CompleteWithFailures),
		Webhook: worker.NewWebhookConsumer(jobRepo, taskPub, cfg.WebhookURL, cfg.WebhookEnabled,
			time.Duration(cfg.FetchTimeoutSeconds)*time.Second),
		cfg: cfg,
	}, nil
}

// StartConsumers connects every worker to its topic through nsqlookupd.
func (a *App) StartConsumers() error {
	handlers := []struct {
		topic   string
		handler nsq.Handler
	}{
		{config.TopicJobStart, a.Fanout},
		{config.TopicProductTask, a.Products},
		{config.TopicProductReport, a.Completion},
		{config.TopicWebhook, a.Webhook},
	}

	for _, h := range handlers {
		consumer, err := nsq.NewConsumer(h.topic, consumerChannel, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("consumer for %s: %w", h.topic, err)
		}
		consumer.AddConcurrentHandlers(h.handler, a.cfg.WorkerConcurrency)
		if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
			return fmt.Errorf("connect consumer for %s: %w", h.topic, err)
		}
		a.consumers = append(a.consumers, consumer)
		slog.Info("consumer connected", "topic", h.topic)
	}
	return nil
}

func (a *App) StopConsumers() {
	for _, c := range a.consumers {
		c.Stop()
	}
	for _, c := range a.consumers {
		<-c.StopChan
	}
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		a.StopConsumers()
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
