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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/logger"
	"github.com/vipauto/autoelectric-crm/metrics"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/routes"
	"github.com/vipauto/autoelectric-crm/services"
	"github.com/vipauto/autoelectric-crm/utils"
)

const (
	serviceName     = "autoelectric-crm"
	shutdownTimeout = 10 * time.Second
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Auto-electric workshop CRM API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newCreateDirectorCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			if !skipMigrate {
				if err := migrate(cmd.Context()); err != nil {
					return err
				}
			}
			if err := initImageStorage(cmd.Context(), cfg); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not run auto-migration on start")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := bootstrap(); err != nil {
				return err
			}
			return migrate(cmd.Context())
		},
	}
}

func newCreateDirectorCommand() *cobra.Command {
	var input services.RegisterInput
	cmd := &cobra.Command{
		Use:   "create-director",
		Short: "Create the first director account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := bootstrap(); err != nil {
				return err
			}
			if err := migrate(cmd.Context()); err != nil {
				return err
			}
			input.Role = models.RoleDirector
			master, err := services.NewMasterService(config.GetDB()).Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Director %q created with id %d\n", master.FullName, master.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&input.Phone, "phone", "", "login phone number")
	cmd.Flags().StringVar(&input.Password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// bootstrap loads configuration, installs the logger and metrics, and connects to the database
func bootstrap() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Init(logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	}))
	metrics.Init(metrics.New(prometheus.DefaultRegisterer))

	if err := config.ConnectDatabase(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrate(ctx context.Context) error {
	if err := models.AutoMigrate(config.GetDB().WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Get().Info(ctx, "database migration completed")
	return nil
}

// initImageStorage stores order photos in S3 when a bucket is configured, otherwise on local disk
func initImageStorage(ctx context.Context, cfg *config.Config) error {
	if !cfg.S3Enabled() {
		services.InitLocalImageService(utils.UploadDir)
		logger.Get().Warn(ctx, "AWS_S3_BUCKET not set, order images are stored in "+utils.UploadDir)
		return nil
	}

	s3Service, err := services.InitS3Service(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize S3: %w", err)
	}
	services.InitImageService(s3Service)
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Get().Info(ctx, "server is running on http://localhost:"+cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Get().Info(context.Background(), "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
