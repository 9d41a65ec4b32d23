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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lifelink/lifelink/internal/config"
	"github.com/lifelink/lifelink/internal/domain/admin"
	"github.com/lifelink/lifelink/internal/domain/bankrequest"
	"github.com/lifelink/lifelink/internal/domain/donation"
	"github.com/lifelink/lifelink/internal/domain/drive"
	"github.com/lifelink/lifelink/internal/domain/inbox"
	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/domain/support"
	"github.com/lifelink/lifelink/internal/domain/user"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/blobstore"
	"github.com/lifelink/lifelink/internal/platform/db"
	"github.com/lifelink/lifelink/internal/platform/events"
	"github.com/lifelink/lifelink/internal/platform/middleware"
	"github.com/lifelink/lifelink/internal/platform/notification"
	"github.com/lifelink/lifelink/internal/platform/websocket"
	"github.com/lifelink/lifelink/pkg/apiresp"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "lifelink-server",
		Short: "LifeLink blood donation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedAdminCmd())
	rootCmd.AddCommand(expireUnitsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if dir == "" {
					dir = cfg.MigrationsDir
				}
				count, err := db.NewMigrator(pool, dir).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if dir == "" {
					dir = cfg.MigrationsDir
				}
				statuses, err := db.NewMigrator(pool, dir).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(os.Stdout, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an admin account, or promote an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			phone, _ := cmd.Flags().GetString("phone")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				tokens := auth.NewTokenManager(tokenConfig(cfg))
				svc := user.NewService(user.NewRepoPG(pool), tokens, nil, nil, newLogger(cfg.Env))
				created, err := svc.SeedAdmin(ctx, name, email, password, phone)
				if err != nil {
					return err
				}
				if created {
					fmt.Printf("Admin %s created.\n", email)
				} else {
					fmt.Printf("Existing account %s promoted to admin.\n", email)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("name", "Administrator", "Display name")
	cmd.Flags().String("email", "", "Login email")
	cmd.Flags().String("password", "", "Login password")
	cmd.Flags().String("phone", "0000000000", "Contact phone")
	return cmd
}

func expireUnitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-units",
		Short: "Mark Available blood units past their expiry date as Expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				svc := inventory.NewService(inventory.NewUnitRepoPG(pool), db.NewTxRunner(pool), nil, nil, newLogger(cfg.Env))
				n, err := svc.ExpireOverdue(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Expired %d unit(s).\n", n)
				return nil
			})
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	tx := db.NewTxRunner(pool)

	// Authorization
	pol := auth.DefaultPolicy()
	if cfg.PolicyFile != "" {
		if err := pol.LoadPolicyFile(cfg.PolicyFile); err != nil {
			logger.Fatal().Err(err).Str("file", cfg.PolicyFile).Msg("failed to load policy file")
		}
		logger.Info().Str("file", cfg.PolicyFile).Msg("policy overrides loaded")
	}
	tokens := auth.NewTokenManager(tokenConfig(cfg))
	revoked, err := newRevocationStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer revoked.Close()

	// Outbound integrations
	publisher := newPublisher(cfg)
	defer publisher.Close()
	emitter := events.NewEmitter(publisher, logger)

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise blob store")
	}

	var sender notification.EmailSender
	if cfg.EmailAPIURL != "" {
		sender = notification.NewHTTPEmailSender(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom)
	}
	mailer := notification.NewMailer(sender, nil, logger)

	hub := websocket.NewHub(logger)
	defer hub.Close()

	// Services
	inboxSvc := inbox.NewService(inbox.NewRepoPG(pool), hub, logger)
	userSvc := user.NewService(user.NewRepoPG(pool), tokens, revoked, blobs, logger)
	inventorySvc := inventory.NewService(inventory.NewUnitRepoPG(pool), tx, emitter, hub, logger)
	donationSvc := donation.NewService(donation.NewRepoPG(pool), userSvc, inboxSvc, mailer, tx, emitter, logger)
	bankSvc := bankrequest.NewService(bankrequest.NewRepoPG(pool), inventorySvc, donationSvc, userSvc, inboxSvc, mailer, tx, emitter, logger)
	driveSvc := drive.NewService(drive.NewRepoPG(pool), inboxSvc, emitter, logger)
	supportSvc := support.NewService(support.NewRepoPG(pool), inboxSvc, logger)
	adminSvc := admin.NewService(userSvc, inventorySvc, bankSvc, donationSvc.CountPending, driveSvc.CountUpcoming, logger)

	go inventorySvc.RunExpirySweeper(ctx, cfg.ExpirySweepInterval)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apiresp.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/ws", "/api/admin/export"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	if local, ok := blobs.(*blobstore.LocalStore); ok {
		e.Static("/uploads", local.Dir)
	}

	jwt := auth.JWTMiddleware(tokens, revoked)
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api", jwt, middleware.RateLimit(rateLimitCfg), middleware.Audit(logger, auditRecorder(emitter)))
	user.NewHandler(userSvc).RegisterRoutes(api, pol)
	inventory.NewHandler(inventorySvc).RegisterRoutes(api, pol)
	bankrequest.NewHandler(bankSvc).RegisterRoutes(api, pol)
	donation.NewHandler(donationSvc).RegisterRoutes(api, pol)
	drive.NewHandler(driveSvc).RegisterRoutes(api, pol)
	inbox.NewHandler(inboxSvc).RegisterRoutes(api, pol)
	support.NewHandler(supportSvc).RegisterRoutes(api, pol)
	admin.NewHandler(adminSvc).RegisterRoutes(api, pol)

	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""), jwt, auth.Authorize(pol, auth.OpLiveUpdates))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
