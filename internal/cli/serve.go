package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cliniq/clawd/internal/config"
	"github.com/cliniq/clawd/internal/credentials"
	"github.com/cliniq/clawd/internal/events"
	"github.com/cliniq/clawd/internal/google"
	"github.com/cliniq/clawd/internal/handlers"
	"github.com/cliniq/clawd/internal/llm"
	"github.com/cliniq/clawd/internal/runstore"
	"github.com/cliniq/clawd/internal/server"
	"github.com/cliniq/clawd/internal/slackwork"
	"github.com/cliniq/clawd/internal/webscan"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	creds, closeStore, err := openCredentialStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var mirror runstore.Mirror
	if brokers := splitBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		km := events.NewKafkaMirror(brokers, cfg.Kafka.Topic)
		defer km.Close()
		mirror = km
		slog.Info("kafka run-event mirror enabled", "topic", cfg.Kafka.Topic, "brokers", len(brokers))
	}
	runs := runstore.NewStore(mirror)

	if cfg.OpenAI.APIKey == "" {
		slog.Warn("CLAWD_OPENAI_API_KEY not set, handlers fall back to deterministic picks")
	}

	deps := &handlers.Deps{
		LLM:      llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.APIBase, cfg.OpenAI.Model, cfg.OpenAI.Temperature),
		Gmail:    google.NewGmail(""),
		Calendar: google.NewCalendar(""),
		Slack:    slackwork.NewClient(""),
		Web:      webscan.NewScanner(time.Duration(cfg.Assistant.WebFetchTimeoutS) * time.Second),
		Cfg:      cfg.Assistant,
	}

	srv := server.New(cfg, runs, creds, deps)

	fmt.Print(color.CyanString(logo))
	slog.Info("clawd listening", "addr", cfg.Server.Addr, "baseUrl", cfg.Server.PublicBaseURL)
	return http.ListenAndServe(cfg.Server.Addr, srv.Handler())
}

// openCredentialStore picks the backend from config: Postgres when a DSN
// is set, a local sqlite file otherwise.
func openCredentialStore(ctx context.Context, cfg *config.Config) (credentials.Store, func(), error) {
	if dsn := strings.TrimSpace(cfg.Store.PostgresDSN); dsn != "" {
		store, err := credentials.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		slog.Info("credential store", "backend", "postgres")
		return store, func() { _ = store.Close() }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := credentials.NewSQLiteStore(cfg.Store.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	slog.Info("credential store", "backend", "sqlite", "path", cfg.Store.SQLitePath)
	return store, func() { _ = store.Close() }, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
