// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Siggiio/CredentialServer/internal/config"
	"github.com/Siggiio/CredentialServer/internal/rest"
	"github.com/Siggiio/CredentialServer/pkg/logging"
	"github.com/Siggiio/CredentialServer/pkg/namespace"
)

// shutdownTimeout bounds how long in-flight requests may finish during
// shutdown.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the credential server",
	Long: `Load the configuration, open every namespace's storage backend, and
serve the credential API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.Logging.Debug)

	manager, err := namespace.NewManager(ctx, cfg.Namespaces)
	if err != nil {
		return err
	}
	defer func() { logger.MaybeError(manager.Close()) }()

	for _, ns := range manager.All() {
		logger.Info("Namespace ready", "name", ns.Name(), "types", ns.Registry().Names())
	}

	tlsConfig, err := cfg.TLS.Build()
	if err != nil {
		return err
	}

	server, err := rest.NewServer(&rest.Config{
		Port:         cfg.Server.Port,
		Namespaces:   manager,
		TLSConfig:    tlsConfig,
		WebRoot:      cfg.Server.WebRoot,
		Logger:       logger,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() { errs <- server.Start() }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// loadConfig reads the config file and applies flag and environment
// overrides.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv("CREDENTIALSERVER_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if port := viper.GetInt("server.port"); port != 0 {
		cfg.Server.Port = port
	}
	cfg.Logging.Debug = cfg.Logging.Debug || viper.GetBool("logging.debug")
	return cfg, nil
}
