// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
amphtml-host is the viewer host daemon: the page-side endpoint embedded
documents connect to for intercepted fetches, cookies and identity tokens.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Exlord/amphtml/config"
	"github.com/Exlord/amphtml/core/audit"
	"github.com/Exlord/amphtml/core/authtoken"
	"github.com/Exlord/amphtml/core/cookiejar"
	"github.com/Exlord/amphtml/server"
)

const (
	// Values for http.Server timeouts.
	// ref: gosec: G112
	readHeaderTimeout time.Duration = 15 * time.Second
	readTimeout       time.Duration = 15 * time.Second
	idleTimeout       time.Duration = 30 * time.Second

	serverShutdownDeadline time.Duration = 5 * time.Second
)

// main is the entry point of the application.
func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

// run orchestrates the application startup and graceful shutdown.
func run() error {
	audit.SetDefaultLogger()

	if err := config.Global.LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	jar, err := cookiejar.Open(config.Global.Cookie.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open cookie jar: %w", err)
	}
	defer jar.Close()

	if deleted, err := jar.Prune(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Cookie jar prune failed")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("Pruned expired cookies")
	}

	audience := net.JoinHostPort(config.Global.Basic.Host, config.Global.Basic.Port)

	assist, err := authtoken.NewPasetoAssistance(config.Global.Basic.PasetoSecret, audience)
	if err != nil {
		return fmt.Errorf("failed to set up viewer assistance: %w", err)
	}

	host := server.NewHost(server.HostOptions{
		Capabilities:     config.Global.Viewer.Capabilities,
		Trusted:          true,
		Jar:              jar,
		FetchesPerSecond: config.Global.Viewer.FetchesPerSecond,
		FetchBurst:       config.Global.Viewer.FetchBurst,
		FetchTimeout:     config.Global.Viewer.MessageTimeout,
		CookieMaxAge:     config.Global.Cookie.MaxAge,
		TrustedOrigins:   config.Global.CDN.TrustedOrigins,
		Assist:           assist,
		InitiallyVisible: true,
	})

	// No WriteTimeout: viewer sessions are long-lived WebSocket
	// connections.
	httpServer := &http.Server{
		Handler:           host.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
	}

	listener, err := chooseListener()
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownDeadline)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("Server exited gracefully")

	return nil
}

func chooseListener() (net.Listener, error) {
	addr := net.JoinHostPort(config.Global.Basic.Host, config.Global.Basic.Port)

	tcpListener, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start TCP listener on %v: %w", addr, err)
	}

	addr = tcpListener.Addr().String()

	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		_ = tcpListener.Close()

		return nil, fmt.Errorf("failed to parse listener address %q: %w", addr, err)
	}

	log.Info().
		Str("address", addr).
		Str("port", port).
		Str("url", fmt.Sprintf("ws://localhost:%v/viewer", port)).
		Msg("Listening on address")

	return tcpListener, nil
}
