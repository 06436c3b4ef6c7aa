package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"review-prep/cmd"
	"review-prep/internal/api"
	"review-prep/internal/config"
	"review-prep/internal/core"
	"review-prep/internal/database"
	"review-prep/internal/messaging"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Config struct {
	Root string `env:"ROOT" envDefault:"./review-prep"`
	Port int    `env:"PORT" envDefault:"3001"`
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "review-prep.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

// requeueJobs publishes the jobs left queued by a previous run of the process.
func requeueJobs(db *gorm.DB, queue messaging.Publisher) {
	jobs, err := database.ListJobs(context.Background(), db, database.JobQueued)
	if err != nil {
		log.Fatalf("Failed to fetch jobs from database: %v", err)
	}

	for _, job := range jobs {
		if err := queue.PublishPrepareTask(context.Background(), messaging.PrepareTaskPayload{JobId: job.Id}); err != nil {
			log.Fatalf("Failed to publish prepare task: %v", err)
		}
	}

	if len(jobs) > 0 {
		slog.Info("requeued jobs", "count", len(jobs))
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	prepareCfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port)

	db := createDatabase(cfg.Root)

	tk, err := cmd.CreateTokenizer(prepareCfg.Tokenizer)
	if err != nil {
		log.Fatalf("Failed to create tokenizer: %v", err)
	}
	defer tk.Close()

	queue := messaging.NewInMemoryQueue()

	worker := core.NewTaskProcessor(
		db, queue, queue, tk, cmd.S3ProviderFactory(prepareCfg.S3),
		filepath.Join(cfg.Root, "staging"), prepareCfg.EncodeWorkers, prepareCfg.LoadWorkers,
	)

	slog.Info("starting worker")
	go worker.Start()

	requeueJobs(db, queue)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: cmd.CreateRouter(api.NewBackendService(db, queue, prepareCfg.Pipeline), true),
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
