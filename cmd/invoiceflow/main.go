package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fatih/color"

	"github.com/finvela-ai/invoiceflow"
	"github.com/finvela-ai/invoiceflow/httpapi"
	"github.com/finvela-ai/invoiceflow/store/postgres"
	"github.com/finvela-ai/invoiceflow/store/sqlite"
)

type serverConfig struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL    string `env:"DATABASE_URL"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"invoiceflow.db"`
	PipelineConfig string `env:"PIPELINE_CONFIG"`
	AuditLogDir    string `env:"AUDIT_LOG_DIR"`
	AppEnv         string `env:"APP_ENV" envDefault:"development"`
}

func main() {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		color.Red("Error: invalid environment configuration: %v", err)
		os.Exit(1)
	}

	logger := invoiceflow.NewLogger()
	if cfg.AppEnv == "production" {
		logger = invoiceflow.NewJSONLogger()
	}

	pipelineCfg := invoiceflow.DefaultConfig()
	if cfg.PipelineConfig != "" {
		loaded, err := invoiceflow.LoadConfigFile(cfg.PipelineConfig)
		if err != nil {
			color.Red("Error: could not load pipeline config: %v", err)
			os.Exit(1)
		}
		pipelineCfg = loaded
		color.Blue("Loaded pipeline config from: %s", cfg.PipelineConfig)
	}

	var store invoiceflow.CheckpointStore
	switch {
	case strings.HasPrefix(cfg.DatabaseURL, "postgres://"),
		strings.HasPrefix(cfg.DatabaseURL, "postgresql://"):
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			color.Red("Error: could not open postgres store: %v", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
		color.Cyan("Checkpoint store: postgres")
	default:
		sq, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			color.Red("Error: could not open sqlite store: %v", err)
			os.Exit(1)
		}
		defer sq.Close()
		store = sq
		color.Cyan("Checkpoint store: sqlite (%s)", cfg.SQLitePath)
	}

	var audit invoiceflow.AuditSink = invoiceflow.NewNullAuditSink()
	if cfg.AuditLogDir != "" {
		audit = invoiceflow.NewFileAuditSink(cfg.AuditLogDir)
		color.Cyan("Audit log directory: %s", cfg.AuditLogDir)
	}

	engine, err := invoiceflow.NewEngine(invoiceflow.EngineOptions{
		Config: &pipelineCfg,
		Store:  store,
		Audit:  audit,
		Logger: logger,
	})
	if err != nil {
		color.Red("Error: could not build engine: %v", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.Handler(httpapi.Deps{Engine: engine, Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	color.Green("invoiceflow listening on %s", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		color.Red("Error: server failed: %v", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
