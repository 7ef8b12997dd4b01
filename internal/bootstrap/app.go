// Package bootstrap wires configuration into concrete dependencies for the
// API and worker processes.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/drewano/VocalAlchemy/internal/analyses"
	"github.com/drewano/VocalAlchemy/internal/audio"
	"github.com/drewano/VocalAlchemy/internal/llm"
	openaillm "github.com/drewano/VocalAlchemy/internal/llm/openai"
	"github.com/drewano/VocalAlchemy/internal/notify"
	"github.com/drewano/VocalAlchemy/internal/pipeline"
	"github.com/drewano/VocalAlchemy/internal/promptflows"
	"github.com/drewano/VocalAlchemy/internal/queue"
	"github.com/drewano/VocalAlchemy/internal/shared/config"
	"github.com/drewano/VocalAlchemy/internal/shared/server"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/db"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/object"
	localstore "github.com/drewano/VocalAlchemy/internal/shared/storage/object/local"
	s3store "github.com/drewano/VocalAlchemy/internal/shared/storage/object/s3"
	"github.com/drewano/VocalAlchemy/internal/speech"
	"github.com/drewano/VocalAlchemy/internal/speech/batch"
	"github.com/drewano/VocalAlchemy/internal/transcription"
	"github.com/drewano/VocalAlchemy/internal/workerproc"
)

// App holds shared dependencies for the API and worker processes.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	Notifier notify.Notifier

	AnalysesRepo analyses.Repo
	FlowsRepo    promptflows.Repo

	AnalysesService *analyses.Service
	FlowsService    *promptflows.Service

	Orchestrator *transcription.Orchestrator
	Engine       *pipeline.Engine
	Processor    *workerproc.Processor
}

// Build prepares shared dependencies without wiring routes.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	queueClient, memQueue, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Store:    store,
		Queue:    queueClient,
		Notifier: notifier,
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	// The in-memory queue runs worker tasks inside this process.
	if memQueue != nil {
		processor := app.Processor
		memQueue.SetHandler(func(ctx context.Context, msg queue.Message) {
			payload, err := queue.EncodeMessage(msg)
			if err != nil {
				log.Printf("bootstrap: encode in-process task: %v", err)
				return
			}
			if err := processor.HandleMessage(ctx, string(payload)); err != nil {
				log.Printf("bootstrap: in-process task failed: %v", err)
			}
		})
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		AnalysesHandler: analyses.NewHandler(app.AnalysesService, analyses.NewStreamHandler(app.AnalysesService, app.Notifier)),
		FlowsHandler:    promptflows.NewHandler(app.FlowsService),
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildQueue returns an SQS client when configured, otherwise an in-process
// queue whose handler Build wires once the processor exists.
func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, *queue.MemoryClient, error) {
	if strings.TrimSpace(cfg.QueueURL) != "" {
		client, err := queue.NewSQSClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	}
	if !isDevLike(cfg.Env) {
		return nil, nil, fmt.Errorf("VA_SQS_QUEUE_URL is required")
	}
	log.Printf("bootstrap: VA_SQS_QUEUE_URL empty; using in-process queue")
	mem := queue.NewMemoryClient(nil)
	return mem, mem, nil
}

func buildNotifier(cfg config.Config) (notify.Notifier, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: REDIS_URL empty; using in-process notifier")
			return notify.NewMemoryNotifier(), nil
		}
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	return notify.NewRedisNotifier(cfg.RedisURL)
}

func buildSpeech(cfg config.Config) (speech.Provider, error) {
	if strings.TrimSpace(cfg.SpeechEndpoint) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: SPEECH_ENDPOINT empty; transcription disabled")
			return speech.PlaceholderProvider{}, nil
		}
		return nil, fmt.Errorf("SPEECH_ENDPOINT is required")
	}
	return batch.NewClient(cfg.SpeechEndpoint, cfg.SpeechAPIKey, cfg.SpeechLocale)
}

func buildNormalizer(cfg config.Config) audio.Normalizer {
	if cfg.Normalizer == "passthrough" {
		return audio.Passthrough{}
	}
	return audio.NewFFmpeg()
}

func buildServices(app *App) error {
	var analysisRepo analyses.Repo
	var flowsRepo promptflows.Repo
	if app.DB != nil {
		analysisRepo = &analyses.PGRepo{DB: app.DB}
		flowsRepo = &promptflows.PGRepo{DB: app.DB}
	} else {
		analysisRepo = analyses.NewMemoryRepo()
		flowsRepo = promptflows.NewMemoryRepo()
	}
	analysisRepo = analyses.NewNotifyingRepo(analysisRepo, app.Notifier)

	llmClient := llm.Client(llm.PlaceholderClient{})
	if app.Config.LLMProvider == "openai" {
		client, err := openaillm.NewClient(os.Getenv("OPENAI_API_KEY"), app.Config.LLMModel)
		if err != nil {
			if !isDevLike(app.Config.Env) {
				return err
			}
			log.Printf("bootstrap: %v; using placeholder LLM", err)
		} else {
			llmClient = client
		}
	}

	provider, err := buildSpeech(app.Config)
	if err != nil {
		return err
	}

	app.AnalysesRepo = analysisRepo
	app.FlowsRepo = flowsRepo

	app.AnalysesService = &analyses.Service{
		Repo:  analysisRepo,
		Flows: flowsRepo,
		Store: app.Store,
		Queue: app.Queue,
	}
	app.FlowsService = &promptflows.Service{Repo: flowsRepo}

	app.Orchestrator = &transcription.Orchestrator{
		Repo:       analysisRepo,
		Store:      app.Store,
		Provider:   provider,
		Normalizer: buildNormalizer(app.Config),
	}
	app.Engine = &pipeline.Engine{
		Repo:  analysisRepo,
		Flows: flowsRepo,
		Store: app.Store,
		LLM:   llmClient,
	}
	app.Processor = &workerproc.Processor{
		Repo:         analysisRepo,
		Store:        app.Store,
		Queue:        app.Queue,
		Orchestrator: app.Orchestrator,
		Engine:       app.Engine,
		PollInterval: app.Config.PollInterval,
	}
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
