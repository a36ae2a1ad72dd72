package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/groundworks/groundpool/internal/cache"
	"github.com/groundworks/groundpool/internal/config"
	"github.com/groundworks/groundpool/internal/grounding"
	"github.com/groundworks/groundpool/internal/metrics"
	"github.com/groundworks/groundpool/internal/pool"
	"github.com/groundworks/groundpool/internal/server"
	"github.com/groundworks/groundpool/internal/store"
	"github.com/groundworks/groundpool/internal/tokenizer"
	"github.com/groundworks/groundpool/internal/tracing"
	"github.com/groundworks/groundpool/internal/vault"
	"github.com/groundworks/groundpool/internal/version"
)

// Run is the main daemon orchestrator. It initialises all subsystems, loads
// the agent pool, starts the HTTP server, and blocks until a shutdown
// signal is received.
func Run(cfg *config.Config, foreground bool) error {
	// 1. Set up zerolog logger.
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	zerolog.SetGlobalLevel(parseLogLevel(cfg.Server.LogLevel))

	writers := []io.Writer{}

	// Always log to file.
	logPath := filepath.Join(dataDir, "groundpool.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()
	writers = append(writers, logFile)

	// If foreground, also write to stdout with console formatting.
	if foreground {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "groundpool").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Str("region", cfg.Server.Region).
		Bool("foreground", foreground).
		Msg("groundpool starting")

	// 2. Check if already running.
	if IsRunning(dataDir) {
		return fmt.Errorf("groundpool is already running (PID file exists at %s)", pidPath(dataDir))
	}

	// 3. Open the request store.
	dbPath := filepath.Join(dataDir, "groundpool.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	log.Info().Str("db_path", dbPath).Msg("store opened")

	// 4. Create metrics collector.
	collector := metrics.NewCollector()

	// 5. Write PID file.
	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	// 6. Start config watcher.
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}

	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			defer w.Close()
			w.OnChange(func(old, newCfg *config.Config) {
				log.Info().Msg("configuration reloaded")
				zerolog.SetGlobalLevel(parseLogLevel(newCfg.Server.LogLevel))
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	// 7. Background context for the pruner and cache purger.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	prunerDone := make(chan struct{})
	go func() {
		defer close(prunerDone)
		runPruner(bgCtx, st, cfg.Metrics.RetentionDays)
	}()

	// 8. Initialise tracing.
	if cfg.Tracing.Enabled {
		shutdown, traceErr := tracing.Init(bgCtx, tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version.Version,
			Region:      cfg.Server.Region,
			Exporter:    cfg.Tracing.Exporter,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.Tracing.Insecure,
		})
		if traceErr != nil {
			log.Warn().Err(traceErr).Msg("failed to initialise tracing; continuing without it")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("tracing shutdown error")
				}
			}()
			log.Info().Str("exporter", cfg.Tracing.Exporter).Msg("tracing initialised")
		}
	}

	// 9. Resolve the upstream API key and build the grounding client.
	apiKey := ""
	if cfg.Upstream.KeyRef != "" {
		key, keyErr := vault.New().ResolveKeyRef(cfg.Upstream.KeyRef)
		if keyErr != nil {
			log.Warn().Err(keyErr).Msg("failed to resolve upstream API key; dispatching without auth")
		} else {
			apiKey = key
		}
	}
	if cfg.Upstream.Endpoint == "" {
		log.Warn().Msg("upstream endpoint is not configured; every dispatch will fail")
	}
	client := grounding.NewHTTPClient(cfg.Upstream.Endpoint, apiKey, cfg.Upstream.TimeoutDuration())

	// 10. Load the agent pool. A bad document at startup is fatal: there is
	// no previous pool to keep serving.
	registry := pool.NewRegistry(expandHome(cfg.Pool.AgentsFile))
	p, err := registry.Reload()
	if err != nil {
		return fmt.Errorf("loading agents document: %w", err)
	}
	health := p.Health()
	setModelGauges(collector, health)
	log.Info().
		Str("file", registry.Path()).
		Int("agents", health.AgentsLoaded).
		Int("active_models", health.ActiveModels).
		Int("total_models", health.TotalModels).
		Str("status", health.Status).
		Msg("agent pool loaded")

	// 11. Watch the agents document for edits.
	if cfg.Pool.Watch {
		pw, watchErr := pool.WatchDocument(registry)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start agents watcher; refresh via the admin endpoint")
		} else {
			defer pw.Close()
			pw.OnChange(func(p *pool.Pool) {
				setModelGauges(collector, p.Health())
			})
			log.Info().Str("file", registry.Path()).Msg("agents watcher started")
		}
	}

	// 12. Create the answer cache.
	answerCache, err := cache.New(cfg.Cache.TTLSeconds, cfg.Cache.MaxEntries, cfg.Cache.Enabled)
	if err != nil {
		return fmt.Errorf("creating answer cache: %w", err)
	}
	purgerDone := answerCache.StartPurger(bgCtx)

	// 13. Assemble the HTTP server.
	authToken := ""
	if cfg.Auth.Enabled {
		authToken = cfg.Auth.Token
	}

	handler := server.NewHandler(
		registry, client, answerCache, tokenizer.New(), st, collector,
		log.Logger, cfg.Server.Region, cfg.Pool.DefaultModel,
	)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Server.IdleTimeout) * time.Second
	srv := server.NewServer(handler, addr, readTimeout, writeTimeout, idleTimeout, cfg.Tracing.Enabled, authToken)

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLSEnabled {
			log.Info().Str("addr", addr).Msg("server starting (TLS)")
			if err := srv.StartTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil {
				errCh <- err
			}
		} else {
			log.Info().Str("addr", addr).Msg("server starting")
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}
	}()

	scheme := "http"
	if cfg.Server.TLSEnabled {
		scheme = "https"
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Bool("tls", cfg.Server.TLSEnabled).
		Bool("auth", cfg.Auth.Enabled).
		Msg("groundpool is ready")

	if foreground {
		fmt.Printf("\n  groundpool is running!\n")
		fmt.Printf("  Health:   %s://localhost:%d/health\n", scheme, cfg.Server.Port)
		fmt.Printf("  Dispatch: %s://localhost:%d/bing-grounding\n\n", scheme, cfg.Server.Port)
	}

	// 14. Wait for shutdown signal or fatal error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	// 15. Graceful shutdown with 30-second timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	// 16. Wait for background goroutines before closing the store.
	bgCancel()
	<-purgerDone
	<-prunerDone
	st.Close()
	if err := RemovePID(dataDir); err != nil {
		log.Error().Err(err).Msg("failed to remove PID file during shutdown")
	}

	log.Info().Msg("groundpool stopped")
	return nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("groundpool does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		// Stale PID file; clean it up.
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("groundpool is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to groundpool (PID %d)\n", pid)

	// Wait briefly for the process to exit.
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}

	return nil
}

// Status checks if the daemon is running and prints a pool health summary.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("groundpool is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("groundpool is running (PID %d)\n", pid)

	// Fetch the health snapshot from the local server.
	scheme := "http"
	if cfg.Server.TLSEnabled {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://localhost:%d/health", scheme, cfg.Server.Port)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Println("  (server unreachable)")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	var health struct {
		pool.Health
		Region string `json:"region"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return nil
	}

	fmt.Printf("\n  Status:        %s\n", health.Status)
	fmt.Printf("  Region:        %s\n", health.Region)
	fmt.Printf("  Agents Loaded: %d\n", health.AgentsLoaded)
	fmt.Printf("  Active Models: %d / %d\n", health.ActiveModels, health.TotalModels)
	for name, mh := range health.Models {
		fmt.Printf("    %-14s %s (%d/%d agents, weight %d)\n",
			name+":", mh.Status, mh.ActiveAgents, mh.Agents, mh.TotalWeight)
	}

	return nil
}

// setModelGauges pushes per-model weight and active-agent gauges from a
// health snapshot.
func setModelGauges(collector *metrics.Collector, health pool.Health) {
	weights := make(map[string]int64, len(health.Models))
	active := make(map[string]int, len(health.Models))
	for m, mh := range health.Models {
		weights[m] = int64(mh.TotalWeight)
		active[m] = mh.ActiveAgents
	}
	collector.SetModelGauges(weights, active)
}

// runPruner periodically prunes old request records from the store.
func runPruner(ctx context.Context, st *store.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("request pruner: recovered from panic")
					}
				}()
				n, err := st.Prune(retentionDays)
				if err != nil {
					log.Error().Err(err).Msg("request pruning failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned old request records")
				}
			}()
		}
	}
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
