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
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caresync-backend/internal/platform/auth"
	"caresync-backend/internal/platform/db"
	"caresync-backend/internal/platform/logging"
	"caresync-backend/internal/platform/metrics"
	"caresync-backend/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "caresync",
		Short:        "Attendance backend for care staff",
		SilenceUsage: true,
		// サブコマンド無しは serve
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", db.DefaultConfigPath, "path to config.yaml")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd.Context(), configPath)
			},
		},
		newCreateManagerCmd(&configPath),
	)
	return root
}

// create-manager: 最初の manager を作る。以降のユーザは manager が API で作る
func newCreateManagerCmd(configPath *string) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-manager",
		Short: "Create a manager user with a login account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("CARESYNC_MANAGER_PASSWORD")
			}
			return runCreateManager(cmd.Context(), *configPath, name, email, password)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password (or CARESYNC_MANAGER_PASSWORD)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runCreateManager(ctx context.Context, configPath, name, email, password string) error {
	cfg, err := db.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, cfg.DB.Driver); err != nil {
		return err
	}

	id, err := auth.NewService(conn, []byte(cfg.Auth.JWTSecret)).CreateManager(ctx, name, email, password)
	switch {
	case errors.Is(err, auth.ErrAlreadyExists):
		return fmt.Errorf("user %s already exists", email)
	case errors.Is(err, auth.ErrWeakPassword):
		return fmt.Errorf("password must be at least 8 characters")
	case err != nil:
		return err
	}
	log.Info("manager created", zap.Int64("user_id", id), zap.String("email", auth.NormalizeEmail(email)))
	return nil
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := db.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn, cfg.DB.Driver); err != nil {
		return err
	}
	log.Info("migration completed", zap.String("driver", cfg.DB.Driver))
	return nil
}

func runServe(ctx context.Context, configPath string) error {
	// 設定読み込み
	cfg, err := db.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("starting", zap.String("mode", cfg.Mode), zap.String("version", cfg.Version))

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connected to DB", zap.String("driver", cfg.DB.Driver), zap.String("dbname", cfg.DB.DBName))

	if err := db.Migrate(ctx, conn, cfg.DB.Driver); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	publisher := server.NewPublisher(cfg.Kafka, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("publisher close failed", zap.Error(err))
		}
	}()

	r := server.NewRouter(server.Deps{
		Config:    cfg,
		DB:        conn,
		Logger:    log,
		Metrics:   metrics.New(reg),
		Publisher: publisher,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled() {
			certFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Key)
			log.Info("listening", zap.String("addr", "https://"+cfg.Server.Addr))
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Info("listening", zap.String("addr", "http://"+cfg.Server.Addr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-sigCtx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
