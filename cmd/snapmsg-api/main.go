package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapmsg/backend/internal/auth"
	"github.com/snapmsg/backend/internal/config"
	"github.com/snapmsg/backend/internal/database"
	"github.com/snapmsg/backend/internal/feed"
	"github.com/snapmsg/backend/internal/interactions"
	"github.com/snapmsg/backend/internal/logging"
	"github.com/snapmsg/backend/internal/profiles"
	"github.com/snapmsg/backend/internal/server"
	"github.com/snapmsg/backend/internal/snaps"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "snapmsg-api",
		Short: "SnapMsg snap service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("auth-service-url", "", "Base URL of the auth service")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("profile-service-url", "", "Base URL of the profile service")
	cmd.PersistentFlags().Int("max-message-length", defaults.GetInt("snaps.max_message_length"), "Maximum snap length in characters")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.service_url", "auth-service-url")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "profile.service_url", "profile-service-url")
	bindFlag(cmd, "snaps.max_message_length", "max-message-length")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	resolver, err := buildResolver(appConfig, logger)
	if err != nil {
		return err
	}

	profileClient, err := profiles.NewClient(profiles.ClientConfig{
		BaseURL: appConfig.ProfileServiceURL,
		Timeout: appConfig.ProfileTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	store, err := snaps.NewStore(snaps.StoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: snaps.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	snapService, err := snaps.NewService(snaps.ServiceConfig{
		Store:            store,
		Graph:            profileClient,
		MaxMessageLength: appConfig.MaxMessageLength,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	ledger, err := interactions.NewLedger(interactions.LedgerConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: snaps.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	assembler, err := feed.NewAssembler(feed.AssemblerConfig{
		Snaps:         store,
		Interactions:  ledger,
		Graph:         profileClient,
		Clock:         time.Now,
		TrendWindow:   appConfig.TrendingWindow,
		TrendingLimit: appConfig.TrendingLimit,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Resolver:     resolver,
		SnapService:  snapService,
		Ledger:       ledger,
		Feed:         assembler,
		Profiles:     profileClient,
		AdminEmails:  appConfig.AdminEmails,
		AllowOrigins: appConfig.AllowedOrigins,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildResolver prefers locally signed session tokens and falls back to the
// auth service when both are configured.
func buildResolver(appConfig config.AppConfig, logger *zap.Logger) (auth.Resolver, error) {
	var resolvers []auth.Resolver
	if appConfig.AuthSigningSecret != "" {
		validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
			SigningSecret: []byte(appConfig.AuthSigningSecret),
			Issuer:        appConfig.AuthIssuer,
		})
		if err != nil {
			return nil, err
		}
		resolvers = append(resolvers, validator)
	}
	if appConfig.AuthServiceURL != "" {
		serviceResolver, err := auth.NewServiceResolver(auth.ServiceResolverConfig{
			BaseURL: appConfig.AuthServiceURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		resolvers = append(resolvers, serviceResolver)
	}
	return auth.NewChainResolver(resolvers...), nil
}
