// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// manifold-attendee joins a space as a headless attendee. It sends
// silent audio and an orbiting camera pose, drains the audio it
// receives, and logs attendees as they come and go. It leaves the space
// on SIGINT or SIGTERM.
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

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/syntheticmagus/manifold-meeting-space/attendee"
	"github.com/syntheticmagus/manifold-meeting-space/audio"
	"github.com/syntheticmagus/manifold-meeting-space/lib/clock"
	"github.com/syntheticmagus/manifold-meeting-space/lib/config"
	"github.com/syntheticmagus/manifold-meeting-space/lib/logging"
	"github.com/syntheticmagus/manifold-meeting-space/lib/process"
	"github.com/syntheticmagus/manifold-meeting-space/lib/version"
	"github.com/syntheticmagus/manifold-meeting-space/metrics"
	"github.com/syntheticmagus/manifold-meeting-space/pose"
	"github.com/syntheticmagus/manifold-meeting-space/registry"
	"github.com/syntheticmagus/manifold-meeting-space/space"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal("manifold-attendee", err)
	}
}

func run() error {
	var (
		configPath  string
		spaceName   string
		orbitRadius float64
		orbitPeriod time.Duration
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("manifold-attendee", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML or JSONC config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVarP(&spaceName, "space", "s", "", "space to join (required)")
	flagSet.Float64Var(&orbitRadius, "orbit-radius", 1.5, "radius in meters of the camera orbit; 0 holds still")
	flagSet.DurationVar(&orbitPeriod, "orbit-period", 20*time.Second, "time for one full orbit")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println(version.Info("manifold-attendee"))
		return nil
	}
	if spaceName == "" {
		return errors.New("--space is required")
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}

	collectors := metrics.New()
	registryClient, err := registry.NewClient(registry.ClientConfig{URL: cfg.Registry.URL, Logger: logger})
	if err != nil {
		return err
	}
	opener := transport.WebRTCOpener(
		func(ctx context.Context) (transport.Signaler, error) {
			signaler, err := transport.DialSignaler(ctx, cfg.Signaling.URL, logger)
			if err != nil {
				return nil, err
			}
			return signaler, nil
		},
		transport.WebRTCConfig{ICE: transport.ICEConfigFromSettings(cfg.ICE.Servers), Logger: logger},
	)

	var poseSource pose.Source = pose.DefaultSource()
	if orbitRadius > 0 {
		poseSource = pose.NewOrbit(clock.Real(), pose.DefaultCameraPosition, orbitRadius, orbitPeriod)
	}

	controller, err := space.New(space.Config{
		Opener:            opener,
		Registry:          registryClient,
		Audio:             audio.NewSilenceSource(audio.SilenceConfig{Logger: logger}),
		Sink:              audio.NewDrainSink(logger, collectors),
		Pose:              poseSource,
		Logger:            logger,
		Metrics:           collectors,
		ConnectTimeout:    cfg.Session.ConnectTimeout.Std(),
		PairingTimeout:    cfg.Session.PairingTimeout.Std(),
		BroadcastInterval: cfg.Session.BroadcastInterval.Std(),
	})
	if err != nil {
		return err
	}
	controller.OnAttendeeJoined().Add(func(remote *attendee.RemoteAttendee) {
		logger.Info("attendee joined", "peer", remote.ID())
	})
	controller.OnAttendeeLeft().Add(func(remote *attendee.RemoteAttendee) {
		logger.Info("attendee left", "peer", remote.ID())
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := controller.Join(ctx, spaceName); err != nil {
		return fmt.Errorf("joining %s: %w", spaceName, err)
	}
	logger.Info("joined space", "space", spaceName, "id", controller.ID(),
		"attendees", len(controller.Attendees()), "version", version.Version)

	group, groupCtx := errgroup.WithContext(ctx)
	if cfg.Metrics.Address != "" {
		metricsServer := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           collectors.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		group.Go(func() error {
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			return metricsServer.Close()
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("leaving space", "space", spaceName)
		controller.Leave()
		return nil
	})
	return group.Wait()
}
