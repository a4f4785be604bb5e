// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	stdtls "crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/tls"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication service",
		Long: `Start the HTTP authentication endpoints, the observability server,
and the background sweep of expired sessions and remember tokens.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().String("database.url", "", "PostgreSQL connection string (overrides config)")
	cmd.Flags().String("log.format", "", "log format: json or text (overrides config)")
	cmd.Flags().String("metrics.listen", "", "observability listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.Log.Format)
	logger := logging.Setup("gatehouse", version, cfg.Log.Format, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := openRepos(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.close()

	svc, err := buildService(cfg, r, logger)
	if err != nil {
		return err
	}

	janitor := auth.NewJanitor(r.sessions, r.tokens, cfg.Session.IdleTimeout, cfg.Janitor.Interval)
	janitor.Start(ctx)
	defer janitor.Stop()

	var ready atomic.Bool
	obsServer := observability.NewServer(cfg.Metrics.Listen, ready.Load)
	obsErrCh, err := obsServer.Start()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
			logger.Error("observability server stop failed", "error", stopErr)
		}
	}()

	api, err := httpapi.NewServer(svc, httpapi.Options{
		SessionCookie:  cfg.Session.CookieName,
		RememberCookie: cfg.Remember.CookieName,
		CookieSecure:   cfg.Session.CookieSecure,
	}, logger)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLS.Enabled {
		tlsConf, tlsErr := serverTLSConfig(cfg, logger)
		if tlsErr != nil {
			return tlsErr
		}
		httpSrv.TLSConfig = tlsConf
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("authentication service started", "addr", cfg.Listen, "tls", cfg.TLS.Enabled)
		ready.Store(true)
		var serveErr error
		if cfg.TLS.Enabled {
			serveErr = httpSrv.ListenAndServeTLS("", "")
		} else {
			serveErr = httpSrv.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serveErrCh:
		return oops.With("operation", "serve http").Wrap(serveErr)
	case obsErr := <-obsErrCh:
		return oops.With("operation", "serve observability").Wrap(obsErr)
	}

	ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return oops.With("operation", "shutdown http server").Wrap(err)
	}

	logger.Info("authentication service stopped")
	return nil
}

// serverTLSConfig builds the TLS configuration, generating a self-signed
// development certificate when no key pair is configured.
func serverTLSConfig(cfg *config.Config, logger *slog.Logger) (*stdtls.Config, error) {
	var cert stdtls.Certificate
	var err error

	if cfg.TLS.CertFile != "" {
		cert, err = tls.Load(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	} else {
		logger.Warn("no TLS key pair configured, using a self-signed development certificate",
			"dir", xdg.CertsDir())
		cert, err = tls.LoadOrGenerate(xdg.CertsDir(), []string{"localhost", "127.0.0.1"})
	}
	if err != nil {
		return nil, oops.With("operation", "load tls key pair").Wrap(err)
	}

	return &stdtls.Config{
		Certificates: []stdtls.Certificate{cert},
		MinVersion:   stdtls.VersionTLS12,
	}, nil
}
