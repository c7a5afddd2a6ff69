// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package main

import (
	"log/slog"
	"os"

	"github.com/Siggiio/CredentialServer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		slog.Error("credentialserver failed", slog.Any("error", err))
		os.Exit(1)
	}
}
