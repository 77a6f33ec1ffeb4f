// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// manifold-registry serves the attendance registry and the signaling
// relay from one HTTP listener.
//
// Routes:
//
//	POST /join, POST /leave, GET /spaces, GET /spaces/:space   registry
//	GET  /signal                                               signaling websocket
//	GET  /metrics                                              Prometheus
//	GET  /healthz                                              liveness
//
// An attendee's signaling identity doubles as its registry id, so a
// dropped signaling socket removes the attendee from every space.
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
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/syntheticmagus/manifold-meeting-space/lib/config"
	"github.com/syntheticmagus/manifold-meeting-space/lib/logging"
	"github.com/syntheticmagus/manifold-meeting-space/lib/process"
	"github.com/syntheticmagus/manifold-meeting-space/lib/version"
	"github.com/syntheticmagus/manifold-meeting-space/metrics"
	"github.com/syntheticmagus/manifold-meeting-space/registry"
	"github.com/syntheticmagus/manifold-meeting-space/signaling"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal("manifold-registry", err)
	}
}

func run() error {
	var configPath, address string
	var showVersion bool

	flagSet := pflag.NewFlagSet("manifold-registry", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML or JSONC config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&address, "address", "", "listen address, overriding server.address")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println(version.Info("manifold-registry"))
		return nil
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if address != "" {
		cfg.Server.Address = address
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}

	collectors := metrics.New()
	directory := registry.NewDirectory()
	registryServer := registry.NewServer(registry.ServerConfig{
		Directory: directory,
		Logger:    logger,
		Metrics:   collectors,
	})
	signalServer := signaling.NewServer(signaling.ServerConfig{
		Logger:     logger,
		Metrics:    collectors,
		ReadLimit:  cfg.Server.ReadLimit,
		PingPeriod: cfg.Signaling.PingPeriod.Std(),
		OnDisconnect: func(id transport.Identity) {
			if spaces := directory.Forget(string(id)); len(spaces) > 0 {
				logger.Info("removed disconnected attendee", "id", id, "spaces", spaces)
			}
		},
	})

	if cfg.Environment == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	registryServer.Routes(router)
	router.GET("/signal", signalServer.HandleWebSocket)
	router.GET("/metrics", gin.WrapH(collectors.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("registry listening", "address", cfg.Server.Address, "version", version.Version)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("registry shutting down")
		signalServer.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
