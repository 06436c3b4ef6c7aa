package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"review-prep/cmd"
	"review-prep/internal/config"
	"review-prep/internal/core"
	"review-prep/internal/database"
	"review-prep/internal/messaging"
	"syscall"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
	StagingDir  string `env:"STAGING_DIR" envDefault:"/tmp/review-prep"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var workerCfg WorkerConfig
	if err := env.Parse(&workerCfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewDatabase(workerCfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	tk, err := cmd.CreateTokenizer(cfg.Tokenizer)
	if err != nil {
		log.Fatalf("Failed to create tokenizer: %v", err)
	}
	defer tk.Close()

	publisher, err := messaging.NewRabbitMQPublisher(workerCfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	reciever, err := messaging.NewRabbitMQReceiver(workerCfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	worker := core.NewTaskProcessor(
		db, publisher, reciever, tk, cmd.S3ProviderFactory(cfg.S3),
		filepath.Join(workerCfg.StagingDir, "jobs"), cfg.EncodeWorkers, cfg.LoadWorkers,
	)

	go worker.Start()

	slog.Info("worker started, waiting for tasks")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received, stopping worker")
	worker.Stop()

	log.Println("Worker process stopped.")
}
