// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the kokoro-auth server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kokoro-labs/kokoro-auth/cmd/kokoro-auth/app"
	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
)

func main() {
	logger.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		cancel()
		os.Exit(1)
	}
}
