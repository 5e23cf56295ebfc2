package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/solatis/schemamap/internal/core/api"
	"github.com/solatis/schemamap/internal/core/auth"
	"github.com/solatis/schemamap/internal/core/config"
	"github.com/solatis/schemamap/internal/core/db"
	"github.com/solatis/schemamap/internal/core/server"
	"github.com/solatis/schemamap/internal/core/skeleton"
	"github.com/solatis/schemamap/internal/core/telemetry"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC and HTTP mapping services",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("grpc-port", 50051, "gRPC server port")
	serveCmd.Flags().Int("http-port", 8080, "HTTP server port")
	serveCmd.Flags().String("skeleton", "", "template skeleton JSON file")
	serveCmd.Flags().Bool("insecure", false, "serve without API key authentication")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}
	insecure, _ := cmd.Flags().GetBool("insecure")

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	metrics := telemetry.New()

	loader, err := skeleton.NewLoader(cfg.Skeleton.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to load skeleton: %w", err)
	}
	loader.OnReload = metrics.ObserveSkeletonReload
	if cfg.Skeleton.Watch && loader.Path() != "" {
		go func() {
			if err := loader.Watch(ctx); err != nil {
				logger.Error("skeleton watch stopped", "path", loader.Path(), "error", err)
			}
		}()
	}

	// store stays a nil interface when storage is disabled
	var store api.MappingSetStore
	var dbStore *db.Store
	if cfg.Database.URL != "" {
		database, err := db.Open(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		if err := requireMigrations(database); err != nil {
			return err
		}
		dbStore, err = db.NewStore(database)
		if err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}
		store = dbStore
	}

	interceptors := []grpc.UnaryServerInterceptor{metrics.UnaryServerInterceptor()}
	var authMiddleware func(http.Handler) http.Handler
	if insecure {
		logger.Warn("authentication disabled, every request is accepted")
	} else {
		authenticator, err := newAuthenticator(dbStore)
		if err != nil {
			return err
		}
		interceptors = append(interceptors, authenticator.UnaryInterceptor(server.HealthCheckMethod))
		authMiddleware = authenticator.Middleware
	}

	service, err := api.NewService(engine, store, loader, metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcService, err := api.NewGRPCService(service)
	if err != nil {
		return fmt.Errorf("failed to create gRPC service: %w", err)
	}
	handler, err := api.NewHTTPHandler(service, authMiddleware, cfg.Server.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to create HTTP handler: %w", err)
	}

	grpcAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
	grpcServer, err := server.NewGRPCServer(grpcAddr, grpcService, interceptors...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	httpAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HTTPPort))
	httpServer := server.NewHTTPServer(httpAddr, handler.Router())

	if _, err := grpcServer.Listen(); err != nil {
		return err
	}
	if _, err := httpServer.Listen(); err != nil {
		if cerr := grpcServer.Close(); cerr != nil {
			logger.Error("grpc listener close", "error", cerr)
		}
		return err
	}

	logger.Info("starting schemamap",
		"version", Version,
		"grpc_addr", grpcAddr,
		"http_addr", httpAddr,
		"storage", cfg.Database.URL != "",
		"skeleton", loader.Path(),
	)

	errChan := make(chan error, 2)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
		logger.Error("server stopped", "error", serveErr)
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("grpc shutdown", "error", err)
	}
	return serveErr
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("grpc-port") {
		cfg.Server.GRPCPort, _ = flags.GetInt("grpc-port")
	}
	if flags.Changed("http-port") {
		cfg.Server.HTTPPort, _ = flags.GetInt("http-port")
	}
	if flags.Changed("skeleton") {
		cfg.Skeleton.Path, _ = flags.GetString("skeleton")
	}
	if cfg.Server.GRPCPort == cfg.Server.HTTPPort {
		return fmt.Errorf("grpc and http ports must differ, both are %d", cfg.Server.GRPCPort)
	}
	return nil
}

// requireMigrations refuses to serve against a schema that is behind.
func requireMigrations(database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'schemamap migrate up' first", s.ID)
		}
	}
	return nil
}

func newAuthenticator(store *db.Store) (*auth.Authenticator, error) {
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("no HMAC secrets configured (set SM_HMAC_SECRET environment variable, or pass --insecure)")
	}
	if store == nil {
		return nil, fmt.Errorf("API key authentication needs a database (--db-url), or pass --insecure")
	}
	return auth.NewAuthenticator(secrets, store.Queries()), nil
}
