package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/assessment/internal/config"
	"github.com/ehr/assessment/internal/domain/assessment"
	"github.com/ehr/assessment/internal/domain/auditevent"
	"github.com/ehr/assessment/internal/domain/cultural"
	"github.com/ehr/assessment/internal/domain/governance"
	"github.com/ehr/assessment/internal/platform/auth"
	"github.com/ehr/assessment/internal/platform/db"
	"github.com/ehr/assessment/internal/platform/inference"
	"github.com/ehr/assessment/internal/platform/middleware"
	"github.com/ehr/assessment/internal/platform/notification"
	"github.com/ehr/assessment/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "assessment-server",
		Short: "Governed clinical assessment API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rulesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the assessment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := loadStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			count, err := st.migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) to %s.\n", count, st.driver)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := loadStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			statuses, err := st.migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage governance rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List governance rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, st, err := loadGovernance(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			rules, total, err := svc.ListRules(ctx, 1000, 0)
			if err != nil {
				return err
			}
			fmt.Printf("%-36s %-16s %-7s %-3s %s\n", "ID", "TYPE", "ACTIVE", "VER", "NAME")
			for _, r := range rules {
				fmt.Printf("%-36s %-16s %-7t %-3d %s\n", r.ID, r.Type, r.Active, r.Version, r.Name)
			}
			fmt.Printf("%d rule(s)\n", total)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Install the default governance rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, st, err := loadGovernance(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := seedRules(ctx, svc)
			if err != nil {
				return fmt.Errorf("seed rules: %w", err)
			}
			fmt.Printf("Created %d rule(s).\n", n)
			return nil
		},
	})

	return cmd
}

func loadStore(ctx context.Context) (*store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return openStore(ctx, cfg)
}

func loadGovernance(ctx context.Context) (*governance.Service, *store, error) {
	st, err := loadStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	engine, err := governance.NewEngine(logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return governance.NewService(st.rules, engine, governance.NewRuleCache(st.rules, 0), logger), st, nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	switch cfg.ResolvedAuthMode() {
	case config.AuthDevelopment:
		return auth.DevAuthMiddleware(auth.AuthSkipper)
	case config.AuthHMAC:
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		})
	default:
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		})
	}
}

func writerConfig(cfg *config.Config) auditevent.WriterConfig {
	wc := auditevent.DefaultWriterConfig()
	wc.Mode = auditevent.Mode(cfg.AuditMode)
	if cfg.AuditQueueSize > 0 {
		wc.QueueSize = cfg.AuditQueueSize
	}
	if cfg.AuditWorkers > 0 {
		wc.Workers = cfg.AuditWorkers
	}
	return wc
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
		return err
	}
	defer st.Close()
	if st.driver == config.StoreSQLite {
		if _, err := st.migrator.Up(ctx); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	logger.Info().Str("driver", st.driver).Msg("store ready")

	metrics := telemetry.NewMetrics()

	// Governance
	engine, err := governance.NewEngine(logger)
	if err != nil {
		return fmt.Errorf("governance engine: %w", err)
	}
	cache := governance.NewRuleCache(st.rules, cfg.RuleCacheTTL)
	govSvc := governance.NewService(st.rules, engine, cache, logger)

	var invalidator *governance.RedisInvalidator
	if cfg.RedisURL != "" {
		invalidator, err = governance.NewRedisInvalidator(cfg.RedisURL, cache, logger)
		if err != nil {
			return err
		}
		defer invalidator.Close()
		govSvc.SetNotifier(invalidator)
	}

	// Audit trail
	writer := auditevent.NewWriter(st.audit, writerConfig(cfg), logger, metrics)

	// Crisis paging
	sender := notification.NewLogSender(logger)
	dispatcher := notification.NewDispatcher(notification.NewManager(sender, sender, metrics), 64, logger)
	pager := notification.NewCrisisPager(dispatcher, notification.NewTemplateEngine(), cfg.CrisisPagerEmail, cfg.CrisisPagerSMS)

	// Assessment
	provider := inference.NewClient(inference.Config{
		BaseURL: cfg.InferenceBaseURL,
		APIKey:  cfg.InferenceAPIKey,
		Model:   cfg.InferenceModel,
	})
	svc := assessment.NewService(st.assessments, provider, govSvc, writer, assessment.Config{
		MinConfidence:    cfg.AssessMinConfidence,
		MaxDiagnoses:     cfg.AssessMaxDiagnoses,
		InferenceTimeout: cfg.InferenceTimeout,
	}, logger)
	svc.SetMetrics(metrics)
	svc.SetPager(pager)
	if cfg.CulturalKBPath != "" {
		kb, err := cultural.LoadKnowledgeBase(cfg.CulturalKBPath)
		if err != nil {
			return fmt.Errorf("load cultural knowledge base: %w", err)
		}
		svc.SetComposer(cultural.NewComposer(kb))
		logger.Info().Str("version", kb.Version).Msg("cultural knowledge base loaded")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.RegionHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/metrics"))
	e.Use(authMiddleware(cfg))
	e.Use(middleware.Audit(logger, auditevent.NewAccessRecorder(writer), "/api/v1/governance"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.checker))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	limiter := middleware.NewRateLimiter(rateLimitConfig(cfg))
	assessment.NewHandler(svc, limiter.Middleware()).RegisterRoutes(apiV1)
	governance.NewHandler(govSvc).RegisterRoutes(apiV1)
	auditevent.NewHandler(auditevent.NewService(st.audit)).RegisterRoutes(apiV1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Str("audit_mode", string(writer.Mode())).Msg("starting assessment server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	if invalidator != nil {
		g.Go(func() error {
			if err := invalidator.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("rule invalidation subscriber stopped")
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		if err := writer.Close(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("audit queue not drained")
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("notification queue not drained")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
