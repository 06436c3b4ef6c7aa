package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"review-prep/internal/api"
	"review-prep/internal/config"
	"review-prep/internal/core/tokenizer"
	"review-prep/internal/core/tokenizer/huggingface"
	"review-prep/internal/storage"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// CreateTokenizer picks the tokenizer backend from the config. A
// tokenizer.json file takes precedence over a pretrained name, which takes
// precedence over a WordPiece vocab file.
func CreateTokenizer(cfg config.TokenizerConfig) (tokenizer.Tokenizer, error) {
	switch {
	case cfg.File != "":
		slog.Info("loading tokenizer", "file", cfg.File)
		return huggingface.FromFile(cfg.File, 0)
	case cfg.Name != "":
		slog.Info("loading pretrained tokenizer", "name", cfg.Name)
		return huggingface.FromPretrained(cfg.Name, 0)
	case cfg.VocabFile != "":
		slog.Info("loading wordpiece vocab", "file", cfg.VocabFile, "lowercase", cfg.Lowercase)
		return tokenizer.LoadWordPiece(cfg.VocabFile, cfg.Lowercase)
	default:
		return nil, fmt.Errorf("one of TOKENIZER_FILE, TOKENIZER_NAME or VOCAB_FILE must be set")
	}
}

// S3ProviderFactory creates the S3 provider the first time an s3:// location
// is used and reuses it afterwards.
func S3ProviderFactory(cfg config.S3Config) storage.NewProviderFunc {
	create := sync.OnceValues(func() (*storage.S3Provider, error) {
		return storage.NewS3Provider(context.Background(), storage.S3ProviderConfig{
			S3EndpointURL:     cfg.Endpoint,
			S3AccessKeyID:     cfg.AccessKeyID,
			S3SecretAccessKey: cfg.SecretAccessKey,
			S3Region:          cfg.Region,
		})
	})

	return func() (storage.Provider, error) {
		provider, err := create()
		if err != nil {
			return nil, fmt.Errorf("error creating s3 client: %w", err)
		}
		return provider, nil
	}
}

// CreateRouter mounts the job API under /api/v1 and the prometheus metrics
// under /metrics.
func CreateRouter(service *api.BackendService, allowCors bool) http.Handler {
	r := chi.NewRouter()

	if allowCors {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300, // Cache preflight response for 5 minutes
		}))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		service.AddRoutes(r)
	})

	return r
}
