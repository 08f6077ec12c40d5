package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelbridge/internal/catalog"
	"modelbridge/internal/common/fsutil"
	"modelbridge/internal/config"
	"modelbridge/internal/gateway"
	"modelbridge/internal/httpapi"
	"modelbridge/internal/prefs"
	"modelbridge/internal/selection"
	"modelbridge/internal/snapshot"
	"modelbridge/pkg/types"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
	)
	root := &cobra.Command{
		Use:           "modelbridge",
		Short:         "Bridge between a local LM Studio server and a hosted model catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr, logLevel)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (yaml|json|toml)")
	root.PersistentFlags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080 (overrides config)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the modelbridge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("modelbridge", version)
		},
	})
	return root
}

func runServe(configPath, addrFlag, levelFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Addr = addrFlag
	}
	if levelFlag != "" {
		cfg.LogLevel = levelFlag
	}

	logger := newLogger(cfg.LogLevel)
	httpapi.SetLogger(logger)

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	staticCatalog := catalog.DefaultChatModels
	if cfg.CatalogPath != "" {
		if !fsutil.PathExists(cfg.CatalogPath) {
			return fmt.Errorf("catalog file not found: %s", cfg.CatalogPath)
		}
		if staticCatalog, err = catalog.LoadFile(cfg.CatalogPath); err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
	}

	gw := gateway.New(cfg.LMStudioBaseURL, logger)
	embedder := gateway.NewEmbedder(cfg.LMStudioBaseURL, cfg.EmbedModelID)
	builder := snapshot.NewBuilder(gw, logger)
	refresher := snapshot.NewRefresher(builder, time.Duration(cfg.PollIntervalSec)*time.Second, logger)
	refresher.Subscribe(httpapi.ObserveSnapshot)

	// Selection state: the persisted id survives restarts; external writes to
	// the selection file win over anything selected optimistically here.
	selStore := selection.NewFileStore(cfg.StateDir)
	confirmed, err := selStore.Load()
	if err != nil {
		return fmt.Errorf("load selection: %w", err)
	}
	if confirmed == "" {
		confirmed = catalog.DefaultChatModelID
	}
	machine := selection.NewMachine(confirmed, selStore, logger)
	stopWatch, err := selStore.Watch(machine, logger)
	if err != nil {
		return fmt.Errorf("watch selection: %w", err)
	}
	defer stopWatch()

	// A local selection cannot survive the server going away; fall back to
	// the default hosted model. The notifier fires once per offline period.
	refresher.SetOfflineNotifier(func(s types.Snapshot) {
		if catalog.IsLocalModelID(machine.Displayed()) {
			logger.Warn().Str("model_id", machine.Displayed()).Msg("local server offline, falling back to default model")
			machine.ConfirmExternal(catalog.DefaultChatModelID)
		}
	})

	preferred, err := prefs.Open(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open preferred models: %w", err)
	}
	logger.Debug().Strs("model_keys", preferred.List()).Msg("preferred models loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	httpapi.SetBaseContext(ctx)
	if catalog.AnyLocalEntitlement() {
		refresher.Start(ctx)
		defer refresher.Stop()
	}

	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins,
		[]string{"GET", "POST", "OPTIONS"},
		[]string{"Accept", "Authorization", "Content-Type"})

	mux := httpapi.NewMux(httpapi.ServerConfig{
		Snapshots:         refresher,
		Gateway:           gw,
		Embedder:          embedder,
		Sessions:          httpapi.NewSessionStore(cfg.AccessTokens),
		Catalog:           staticCatalog,
		DefaultTTLSeconds: cfg.LoadTTLSec,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("lmstudio", cfg.LMStudioBaseURL).Msg("modelbridge listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	return cfg.ApplyEnv().WithDefaults(), nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
