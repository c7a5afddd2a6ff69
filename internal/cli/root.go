// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package cli implements the credentialserver command.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultConfigPath is used when neither the flag nor the environment
// names a config file.
const defaultConfigPath = "/etc/credentialserver/config.yaml"

var configFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "credentialserver",
	Short: "Multi-factor credential server",
	Long: `CredentialServer stores and verifies user credentials for other
services: passwords, time-based one-time passwords, and WebAuthn
authenticators. Users live in isolated namespaces, each backed by its
own file or PostgreSQL storage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is "+defaultConfigPath+")")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Int("port", 0, "override the configured HTTP port")

	// Flags and CREDENTIALSERVER_* environment variables override the
	// config file.
	viper.SetEnvPrefix("CREDENTIALSERVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("logging.debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
