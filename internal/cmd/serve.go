package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/core"
	"github.com/tollgate/tollgate/internal/core/engine"
	"github.com/tollgate/tollgate/internal/core/store"
	errwrap "github.com/tollgate/tollgate/internal/errors"
	"github.com/tollgate/tollgate/internal/observability"
	"github.com/tollgate/tollgate/internal/server"
	"github.com/tollgate/tollgate/internal/server/handlers"
	servermw "github.com/tollgate/tollgate/internal/server/middleware"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// tierQuotas converts the configured tiers into the engine's policy input.
func tierQuotas(cfg config.RateLimitConfig) map[core.Tier]core.TierQuota {
	quotas := make(map[core.Tier]core.TierQuota, len(cfg.Tiers))
	for name, tier := range cfg.Tiers {
		quotas[core.Tier(name)] = core.TierQuota{
			Limit:  tier.Limit,
			Window: tier.Window,
		}
	}
	return quotas
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rate limiting HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

The server will cleanly shut down the HTTP server, stop the sweeper, close
the audit store, and flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration load failed")
		}

		// Initialize server logger
		observability.InitServerLogger(binaryName, cfg.Logging.Level)

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(binaryName, metricsPort); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics",
					zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", binaryName),
			zap.String("version", versionInfo.Version),
			zap.String("host", serverHost),
			zap.Int("port", serverPort),
			zap.Int("metrics_port", metricsPort),
			zap.Int("tiers", len(cfg.RateLimit.Tiers)))

		// Build the rate limit engine from validated config
		policy, err := engine.NewTierPolicy(tierQuotas(cfg.RateLimit))
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid tier configuration")
		}

		windows := engine.NewWindowStore()
		limiterOpts := []engine.Option{
			engine.WithStore(windows),
			engine.WithLogger(observability.ServerLogger),
		}

		// Initialize health manager
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})

		// Open the audit store when enabled; a failed open is fatal at startup
		// while a failed append at runtime is merely logged.
		var auditStore *store.Store
		if cfg.Audit.Enabled {
			auditStore, err = store.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return errwrap.WrapDatabaseError(cmd.Context(), err, "audit store open failed")
			}
			if err := auditStore.Migrate(cmd.Context()); err != nil {
				_ = auditStore.Close()
				return errwrap.WrapDatabaseError(cmd.Context(), err, "audit store migration failed")
			}
			limiterOpts = append(limiterOpts, engine.WithAuditSink(auditStore))
			hm.RegisterChecker("audit_store", handlers.HealthCheckFunc(auditStore.CheckHealth))

			observability.ServerLogger.Info("Audit trail enabled",
				zap.String("driver", auditStore.Driver()),
				zap.Duration("retention", cfg.Audit.Retention))
		}

		limiter := engine.New(policy, limiterOpts...)

		// Background workers: sweeper plus optional audit retention pruning
		workerCtx, stopWorkers := context.WithCancel(context.Background())
		defer stopWorkers()

		sweeper := engine.NewSweeper(windows, cfg.RateLimit.SweepInterval, nil, observability.ServerLogger)
		go sweeper.Run(workerCtx)

		startedAt := time.Now().UTC()
		hm.RegisterChecker("sweeper", handlers.HealthCheckFunc(func(ctx context.Context) error {
			last := sweeper.LastSweep()
			grace := 3 * sweeper.Interval()
			if last.IsZero() {
				// No pass yet; only a problem once the first tick is overdue.
				if time.Since(startedAt) > grace {
					return errwrap.NewInternalError("sweeper has not completed a pass")
				}
				return nil
			}
			if time.Since(last) > grace {
				return errwrap.NewInternalError("sweeper has stalled")
			}
			return nil
		}))

		if auditStore != nil && cfg.Audit.Retention > 0 {
			go runAuditRetention(workerCtx, auditStore, cfg.Audit.Retention)
		}

		// Create server
		srv := server.New(serverHost, serverPort, limiter, servermw.HeaderIdentity)

		// Get shutdown timeout from config
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Stop workers and close the audit store
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Stopping background workers...")
			stopWorkers()
			if auditStore != nil {
				if err := auditStore.Close(); err != nil {
					observability.ServerLogger.Warn("Audit store close returned error",
						zap.Error(err))
				}
			}
			return nil
		})

		// Handler 3: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP). Quotas are immutable for
		// the life of the process; the reload only re-reads the file so a
		// subsequent restart picks up changes.
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			observability.ServerLogger.Info("Configuration file re-read; quota changes apply on restart",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", serverHost),
				zap.Int("port", serverPort))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// runAuditRetention prunes audit records older than the retention period on
// an hourly cadence. Prune failures are logged and retried next tick.
func runAuditRetention(ctx context.Context, db *store.Store, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			pruned, err := db.Prune(ctx, cutoff)
			if err != nil {
				observability.ServerLogger.Warn("Audit retention prune failed",
					zap.Error(err))
				continue
			}
			if pruned > 0 {
				observability.ServerLogger.Debug("Pruned expired audit records",
					zap.Int64("pruned", pruned),
					zap.Time("cutoff", cutoff))
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
