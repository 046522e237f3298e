// Clientdesk - agency client records service
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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/clientdesk/internal/activity"
	"github.com/aethra/clientdesk/internal/api"
	"github.com/aethra/clientdesk/internal/config"
	"github.com/aethra/clientdesk/internal/database"
	"github.com/aethra/clientdesk/internal/engine"
	"github.com/aethra/clientdesk/internal/logger"
	"github.com/aethra/clientdesk/internal/security"
	"github.com/aethra/clientdesk/internal/storage"
	"github.com/aethra/clientdesk/internal/store"
	"github.com/aethra/clientdesk/internal/upstream"
)

var Version = "1.0.0"

const serviceName = "clientdesk"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath)
		},
	}

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Agency client records service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(serve)
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(configPath, func(db *gorm.DB, log *zap.Logger) error {
				if err := database.RunMigrations(db, log); err != nil {
					return err
				}
				fmt.Println("Migrations complete")
				return nil
			})
		},
	})
	cmd.AddCommand(portalCmd(&configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", serviceName, Version)
		},
	})
	return cmd
}

func portalCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portal",
		Short: "Manage the portal catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List portals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(*configPath, func(db *gorm.DB, log *zap.Logger) error {
				portals, err := engine.NewPortalEngine(db, nil, log).ListPortals(cmd.Context())
				if err != nil {
					return err
				}
				for _, p := range portals {
					fmt.Printf("%s  %s  %s\n", p.ID, p.Name, p.LoginURL)
				}
				return nil
			})
		},
	})

	var name, loginURL string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(*configPath, func(db *gorm.DB, log *zap.Logger) error {
				p, err := engine.NewPortalEngine(db, nil, log).CreatePortal(cmd.Context(), engine.PortalInput{Name: name, LoginURL: loginURL})
				if err != nil {
					return err
				}
				fmt.Printf("Portal created: %s (%s)\n", p.Name, p.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "Portal name")
	create.Flags().StringVar(&loginURL, "login-url", "", "Portal login URL")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("login-url")
	cmd.AddCommand(create)

	return cmd
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func withDatabase(configPath string, fn func(db *gorm.DB, log *zap.Logger) error) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return fn(db, log)
}

func runServer(configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("starting", zap.String("version", Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := database.RunMigrations(db, log); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	cipher, err := security.NewFieldCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return err
	}

	var cache store.KV
	if cfg.Redis.Addr != "" {
		client, err := store.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, profile cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cache = store.NewRedisKV(client)
		}
	}

	objects, err := objectStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	dispatcher := activity.NewDispatcher(
		upstream.NewActivityLogClient(cfg.Upstream.FinanceAPIURL, cfg.Upstream.ActivityTimeout),
		cfg.Upstream.ActivityTimeout, log, reg,
	)
	defer dispatcher.Wait()

	engines := api.Engines{
		Clients:  engine.NewClientEngine(db, objects, dispatcher, cfg.Storage.PresignTTL, log),
		Portals:  engine.NewPortalEngine(db, cipher, log),
		Services: engine.NewServiceLinkEngine(db, log),
		Taxonomy: engine.NewTaxonomyEngine(db, log),
		Settings: engine.NewSettingsEngine(db, log),
	}
	identity := upstream.NewIdentityClient(cfg.Auth.LoginURL, cfg.Upstream.Timeout, cache, cfg.Auth.ProfileCacheTTL, log)
	catalog := upstream.NewCatalogClient(cfg.Upstream.ServiceAPIURL, cfg.Auth.LoginURL, cfg.Upstream.Timeout, log)

	gin.SetMode(cfg.Server.Mode)
	handler := api.NewHandler(engines, identity, catalog, log, Version)
	router := api.SetupRouter(handler, cfg.CORS, api.NewMetrics(reg), log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// objectStore picks S3 when a bucket is configured and the in-process store otherwise
func objectStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.ObjectStore, error) {
	if cfg.Bucket == "" {
		log.Warn("S3_BUCKET_NAME not set, photos are kept in memory")
		return storage.NewMemoryStore("http://localhost/photos"), nil
	}
	return storage.NewS3Store(ctx, cfg)
}
