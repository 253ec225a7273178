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
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"groupdraw-server-go/config"
	"groupdraw-server-go/db"
	"groupdraw-server-go/handlers"
	"groupdraw-server-go/roster"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sorteio",
		Short:        "Draws balanced student groups with at least one newcomer each",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to config file (default ./config.yaml)")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	root.AddCommand(serve, newDrawCmd(), newSearchCmd(), newDrawsCmd())
	root.RunE = runServe
	return root
}

// loadConfig loads the configuration named by the --config flag
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return cfg, nil
}

// openStore returns the configured draw store. The Redis service is also
// returned so the caller can use it as roster cache.
func openStore(cfg *config.Config) (db.DrawStore, *db.RedisService, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		client, err := db.InitializeRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		svc := db.NewRedisService(client)
		return svc, svc, nil
	default:
		logrus.WithField("path", cfg.Store.Path).Info("Using file draw store")
		return db.NewFileStore(cfg.Store.Path), nil, nil
	}
}

// loadInitialRoster prefers a roster cached in Redis and falls back to
// the configured file. A missing file starts the server with an empty
// roster until one is uploaded.
func loadInitialRoster(cfg *config.Config, cache *db.RedisService) *roster.Roster {
	if cache != nil {
		students, err := cache.LoadRoster()
		if err != nil {
			logrus.WithError(err).Warn("Could not read cached roster")
		} else if len(students) > 0 {
			r, err := roster.New(students)
			if err == nil {
				logrus.WithField("students", r.Len()).Info("Loaded roster from Redis")
				return r
			}
			logrus.WithError(err).Warn("Ignoring invalid cached roster")
		}
	}

	r, err := loadRosterFile(cfg.Roster.Path)
	if err != nil {
		logrus.WithError(err).WithField("path", cfg.Roster.Path).Warn("No roster loaded; upload one through the API")
		empty, _ := roster.New(nil)
		return empty
	}
	logrus.WithFields(logrus.Fields{"path": cfg.Roster.Path, "students": r.Len()}).Info("Loaded roster file")
	return r
}

func loadRosterFile(path string) (*roster.Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return roster.Load(path, f)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, redisService, err := openStore(cfg)
	if err != nil {
		return err
	}

	apiHandler := handlers.NewAPIHandler(store, loadInitialRoster(cfg, redisService), cfg.Draw, cfg.Auth)
	if redisService != nil {
		apiHandler.RosterCache = redisService
	}
	if cfg.Auth.Password == "" {
		logrus.Warn("auth.password is empty: login and every protected route are disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(apiHandler, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logrus.WithField("addr", server.Addr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			return fmt.Errorf("failed to run server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
