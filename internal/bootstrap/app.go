package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"advisor-backend/internal/analyses"
	"advisor-backend/internal/companies"
	"advisor-backend/internal/llm"
	openai "advisor-backend/internal/llm/openai"
	"advisor-backend/internal/mailer"
	"advisor-backend/internal/marketdata"
	"advisor-backend/internal/queue"
	"advisor-backend/internal/search"
	"advisor-backend/internal/services/health"
	"advisor-backend/internal/shared/config"
	"advisor-backend/internal/shared/server"
	"advisor-backend/internal/shared/storage/db"
	"advisor-backend/internal/shared/telemetry"
	"advisor-backend/internal/users"
)

// App holds shared dependencies for the api and worker processes.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Queue  queue.Client

	AnalysesRepo analyses.Repo
	UsersRepo    users.Repo

	MarketData *marketdata.FMPClient
	Search     search.Provider
	LLM        llm.Client

	AnalysesService *analyses.Service
	UsersService    *users.Service
	CompanyService  *companies.Service
	HealthService   *health.Service

	AnalysisHandler *analyses.Handler
	CompanyHandler  *companies.Handler
	UserHandler     *users.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		HealthService:   app.HealthService,
		AnalysisHandler: app.AnalysisHandler,
		CompanyHandler:  app.CompanyHandler,
		UserHandler:     app.UserHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("ADVISOR_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var analysisRepo analyses.Repo
	var userRepo users.Repo
	if app.DB != nil {
		analysisRepo = &analyses.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
	} else {
		analysisRepo = analyses.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
	}

	fmpClient := marketdata.NewFMPClient(os.Getenv("FMP_API_KEY"),
		marketdata.WithBaseURL(app.Config.MarketDataBaseURL))

	searchClient, err := buildSearch(app.Config)
	if err != nil {
		return err
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	if app.Config.LLMProvider == "openai" {
		openaiClient, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), app.Config.LLMModel)
		if err != nil {
			return err
		}
		llmClient = openaiClient
	}

	analysisSvc := &analyses.Service{
		Repo:       analysisRepo,
		Queue:      app.Queue,
		Dispatcher: analyses.NewDispatcher(app.Config.WorkerConcurrency),
		Market:     fmpClient,
		Search:     searchClient,
		LLM:        llmClient,
	}

	userSvc := users.NewService(userRepo, mailer.LogSender{})
	companySvc := companies.NewService(fmpClient)

	app.AnalysesRepo = analysisRepo
	app.UsersRepo = userRepo
	app.MarketData = fmpClient
	app.Search = searchClient
	app.LLM = llmClient
	app.AnalysesService = analysisSvc
	app.UsersService = userSvc
	app.CompanyService = companySvc
	app.HealthService = health.NewService()
	app.AnalysisHandler = analyses.NewHandler(analysisSvc)
	app.CompanyHandler = companies.NewHandler(companySvc)
	app.UserHandler = users.NewHandler(userSvc)

	return nil
}

func buildSearch(cfg config.Config) (search.Provider, error) {
	client, err := search.NewTavilyClient(os.Getenv("TAVILY_API_KEY"))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.search_unavailable", map[string]any{"error": err.Error()})
			return search.Unavailable{}, nil
		}
		return nil, err
	}
	if cfg.SearchBaseURL != "" {
		client = client.WithBaseURL(cfg.SearchBaseURL)
	}
	return client, nil
}
