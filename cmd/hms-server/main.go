package main

import (
	"context"
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

	"github.com/hospitalos/hms/internal/config"
	"github.com/hospitalos/hms/internal/domain/billing"
	"github.com/hospitalos/hms/internal/domain/booking"
	"github.com/hospitalos/hms/internal/domain/emergency"
	"github.com/hospitalos/hms/internal/domain/encounter"
	"github.com/hospitalos/hms/internal/domain/inpatient"
	"github.com/hospitalos/hms/internal/domain/lab"
	"github.com/hospitalos/hms/internal/domain/medication"
	"github.com/hospitalos/hms/internal/domain/projection"
	"github.com/hospitalos/hms/internal/lifecycle"
	"github.com/hospitalos/hms/internal/platform/auth"
	"github.com/hospitalos/hms/internal/platform/cache"
	"github.com/hospitalos/hms/internal/platform/db"
	"github.com/hospitalos/hms/internal/platform/events"
	"github.com/hospitalos/hms/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Clinical encounter and order lifecycle server",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	var migrationsDir string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}
	migrateUpCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(migrationsDir, func(ctx context.Context, m *db.Migrator) error {
				n, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("applied %d migration(s)\n", n)
				return nil
			})
		},
	}
	migrateStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(migrationsDir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, st := range statuses {
					state := "pending"
					if st.Applied {
						state = "applied " + st.AppliedAt.Format(time.RFC3339)
					}
					fmt.Printf("%04d  %-40s %s\n", st.Version, st.Name, state)
				}
				return nil
			})
		},
	}
	migrateCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)

	rootCmd.AddCommand(serveCmd, migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigrate(dir string, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	runner := db.NewPoolRunner(pool)

	// One registry holds every entity's transition graph; one engine
	// enforces them all.
	reg := lifecycle.NewRegistry()
	booking.RegisterLifecycle(reg)
	encounter.RegisterLifecycle(reg)
	medication.RegisterLifecycle(reg)
	inpatient.RegisterLifecycle(reg)
	billing.RegisterLifecycle(reg)
	lab.RegisterLifecycle(reg)
	engine := lifecycle.NewEngine(reg)

	bus := events.NewBus(logger, cfg.EventBuffer)

	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		bus.Subscribe(pub)
		logger.Info().Msg("amqp publisher enabled")
	}

	var dashCache *cache.Cache
	if cfg.RedisURL != "" {
		dashCache, err = cache.New(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer dashCache.Close()
		bus.Subscribe(projection.InvalidationListener(dashCache))
		logger.Info().Msg("dashboard cache enabled")
	}

	// Services. The medication service doubles as the open-order counter
	// behind both discharge guards.
	medSvc := medication.NewService(medication.NewRepo(pool), engine, runner, bus)
	engine.AddGuard(encounter.EntityType, encounter.StatusFinished, encounter.DischargeGuard(medSvc))
	engine.AddGuard(inpatient.EntityType, inpatient.StatusDischarged, inpatient.DischargeGuard(medSvc))

	encSvc := encounter.NewService(encounter.NewRepo(pool), engine, runner, bus, medSvc)
	bookSvc := booking.NewService(booking.NewRepo(pool), engine, runner, bus, encSvc)
	emergSvc := emergency.NewService(emergency.NewRepo(pool))
	staySvc := inpatient.NewService(inpatient.NewRepo(pool), engine, runner, bus)
	billSvc := billing.NewService(billing.NewRepo(pool), engine, runner, bus)
	labSvc := lab.NewService(lab.NewRepo(pool), engine, runner, bus)
	projSvc := projection.NewService(projection.NewRepo(pool), dashCache)

	bus.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	e.GET("/health", db.HealthHandler(pool))

	api := e.Group("/api/v1")
	if cfg.IsDev() && cfg.JWTSecret == "" {
		logger.Warn().Msg("running with header-based dev auth; set JWT_SECRET for production")
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware([]byte(cfg.JWTSecret)))
	}
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	booking.NewHandler(bookSvc).RegisterRoutes(api)
	encounter.NewHandler(encSvc).RegisterRoutes(api)
	medication.NewHandler(medSvc).RegisterRoutes(api)
	emergency.NewHandler(emergSvc).RegisterRoutes(api)
	inpatient.NewHandler(staySvc).RegisterRoutes(api)
	billing.NewHandler(billSvc).RegisterRoutes(api)
	lab.NewHandler(labSvc).RegisterRoutes(api)
	projection.NewHandler(projSvc).RegisterRoutes(api)

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	bus.Wait()
	return nil
}
