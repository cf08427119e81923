package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/hybrid-rag-assistant/internal/adapters/mcp"
	"github.com/kirillkom/hybrid-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/hybrid-rag-assistant/internal/config"
	"github.com/kirillkom/hybrid-rag-assistant/internal/observability/logging"
)

const (
	serviceName = "mcp"
	version     = "1.0.0"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the MCP protocol; logs go to stderr.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcpadapter.NewServer("hybrid-rag-assistant", version, mcpadapter.Dependencies{
		Tools:         app.Invoker,
		Catalog:       app.Tools,
		Queries:       app.QueryUC,
		DefaultUserID: cfg.MCPUserID,
	})

	slog.Info("mcp_serving", "transport", "stdio")
	if err := server.ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
	}
}
