// Command orchestrator is the process entrypoint: it wires the catalog,
// settings, provider factory, router, store, worker, run manager, and
// diagnostics HTTP surface together and serves until interrupted.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"project-tachyon/internal/api"
	"project-tachyon/internal/audit"
	"project-tachyon/internal/catalog"
	"project-tachyon/internal/classifier"
	"project-tachyon/internal/command"
	"project-tachyon/internal/config"
	"project-tachyon/internal/governor"
	"project-tachyon/internal/logger"
	"project-tachyon/internal/provider"
	"project-tachyon/internal/router"
	"project-tachyon/internal/runmanager"
	"project-tachyon/internal/stats"
	"project-tachyon/internal/store"
	"project-tachyon/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("orchestrator exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dataDir := envOr("TACHYON_DATA_DIR", "./data")
	outputRoot := envOr("TACHYON_OUTPUT_DIR", "./output")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(outputRoot, 0755); err != nil {
		return err
	}

	log, err := logger.New(os.Stdout, filepath.Join(dataDir, "orchestrator.jsonl"))
	if err != nil {
		return err
	}

	cat, err := catalog.Open(filepath.Join(dataDir, "catalog.db"))
	if err != nil {
		return err
	}
	defer cat.Close()
	if err := catalog.Seed(cat); err != nil {
		return err
	}

	settings := config.New(cat)

	gov := governor.New(governor.Config{
		Max:            settings.MaxConcurrentTasks(),
		Min:            settings.ConcurrencyMinTasks(),
		ErrorThreshold: settings.ConcurrencyErrorThreshold(),
		Cooldown:       time.Duration(settings.ConcurrencyCooldownSeconds()) * time.Second,
		RecoveryRate:   time.Duration(settings.ConcurrencyRecoveryRateSeconds()) * time.Second,
	}, log)

	factory := buildFactory(settings)
	cl := classifier.New(classifier.Config{
		ExtraRetryableTokens:    settings.FailoverRetryableTokens(),
		ExtraNonRetryableTokens: settings.FailoverNonRetryableTokens(),
	})

	workerCfg := worker.DefaultConfig()
	workerCfg.PollInitialWait = time.Duration(settings.PollInitialWaitSeconds()) * time.Second
	workerCfg.PollInterval = time.Duration(settings.PollIntervalSeconds()) * time.Second
	workerCfg.MaxPollTime = time.Duration(settings.MaxPollTimeSeconds()) * time.Second
	w := worker.New(workerCfg, gov, log)

	s := store.New()
	r := router.New(cat)
	rm := runmanager.New(s, r, factory, cl, w, log)
	cmds := command.New(s, cat, rm, outputRoot, log)

	statsManager := stats.New(cat, outputRoot)
	auditLogger, err := audit.Open(filepath.Join(dataDir, "audit.jsonl"), log)
	if err != nil {
		return err
	}
	defer auditLogger.Close()

	server := api.New(cmds, statsManager, auditLogger)

	addr := envOr("TACHYON_LISTEN_ADDR", "127.0.0.1:8787")
	httpServer := &http.Server{Addr: addr, Handler: server}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("orchestrator listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
	return nil
}

func buildFactory(settings *config.Manager) *provider.Factory {
	apiTimeout := time.Duration(settings.APIRequestTimeoutSeconds()) * time.Second
	downloadTimeout := time.Duration(settings.DownloadTimeoutSeconds()) * time.Second

	soraHKCreds := config.Credentials("SORA_HK")
	openaiCreds := config.Credentials("OPENAI")
	aihubmixCreds := config.Credentials("AIHUBMIX")

	limiters := provider.NewLimiters(float64(settings.ProviderRatePerSecond()), settings.ProviderRateBurst())

	return provider.BuildFactory(
		provider.SoraHKConfig{
			BaseURL:         soraHKCreds.BaseURL,
			APIKey:          soraHKCreds.APIKey,
			HTTPProxy:       soraHKCreds.HTTPProxy,
			RequestTimeout:  apiTimeout,
			DownloadTimeout: downloadTimeout,
		},
		provider.OpenAIConfig{
			BaseURL:         openaiCreds.BaseURL,
			APIKey:          openaiCreds.APIKey,
			RequestTimeout:  apiTimeout,
			DownloadTimeout: downloadTimeout,
		},
		provider.AIHubMixConfig{
			BaseURL:         aihubmixCreds.BaseURL,
			APIKey:          aihubmixCreds.APIKey,
			HTTPProxy:       aihubmixCreds.HTTPProxy,
			RequestTimeout:  apiTimeout,
			DownloadTimeout: downloadTimeout,
		},
		limiters,
	)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
