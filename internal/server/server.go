// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/catalog"
	"codeberg.org/oliverandrich/intragate/internal/config"
	"codeberg.org/oliverandrich/intragate/internal/database"
	"codeberg.org/oliverandrich/intragate/internal/discord"
	"codeberg.org/oliverandrich/intragate/internal/handlers"
	"codeberg.org/oliverandrich/intragate/internal/intra"
	"codeberg.org/oliverandrich/intragate/internal/repository"
	"codeberg.org/oliverandrich/intragate/internal/services/email"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Run starts the gateway: HTTP server, Discord bot and sweeper.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting intragate",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"redirect_url", cfg.Intra.RedirectURL,
	)

	if err := catalog.Load(cfg.Server.MessagesFile); err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	// Audit log
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()
	repo := repository.New(db)

	// Collaborators
	identity := intra.NewClient(intra.Config{
		ClientID:     cfg.Intra.ClientID,
		ClientSecret: cfg.Intra.ClientSecret,
		RedirectURL:  cfg.Intra.RedirectURL,
		AuthURL:      cfg.Intra.AuthURL,
		TokenURL:     cfg.Intra.TokenURL,
		APIBaseURL:   cfg.Intra.APIBaseURL,
		Scopes:       cfg.Intra.Scopes,
	})

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}

	opts := []verification.ServiceOption{verification.WithAuditor(repo)}
	if cfg.SMTP.Enabled() {
		alerter, alertErr := email.NewService(&cfg.SMTP, cfg.Server.BaseURL)
		if alertErr != nil {
			return fmt.Errorf("failed to configure alerts: %w", alertErr)
		}
		opts = append(opts, verification.WithAlerter(alerter))
		slog.Info("operator alerts enabled", "recipients", len(cfg.SMTP.AlertTo))
	} else {
		slog.Info("operator alerts disabled")
	}

	// Verification
	registry := verification.NewRegistry()
	svc := verification.NewService(registry, identity, discord.NewClient(session, cfg.Discord), opts...)
	sweeper := verification.NewSweeper(registry, verification.DefaultSweepInterval, verification.DefaultMaxAge, repo)
	bot := discord.NewBot(session, svc, cfg.Discord, discord.WithHistory(repo))

	e := newEcho(cfg, handlers.New(svc, bot, db))

	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return bot.Run(gctx) })
	serve(gctx, g, e, cfg, tlsResult)

	err = g.Wait()
	slog.Info("intragate stopped", "pending_dropped", registry.Size())
	return err
}

// newEcho builds the HTTP surface.
func newEcho(cfg *config.Config, h *handlers.Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler(e)

	setupMiddleware(e, cfg)
	setupRoutes(e, h)
	return e
}

func setupRoutes(e *echo.Echo, h *handlers.Handlers) {
	e.GET("/health", h.Health)
	e.GET("/auth/callback", h.Callback)
	e.GET("/auth/rules/accept", h.Accept)
	e.GET("/auth/rules/decline", h.Decline)
}

// serve starts the listeners for the resolved TLS mode inside g and stops
// them when ctx is cancelled.
func serve(ctx context.Context, g *errgroup.Group, e *echo.Echo, cfg *config.Config, tlsResult *TLSResult) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	var redirect *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		g.Go(func() error {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			return ignoreClosed(e.Start(addr))
		})

	case TLSModeACME:
		g.Go(func() error {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			return ignoreClosed(startTLSServer(ctx, e, ":443", tlsResult.TLSConfig))
		})

		redirect = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("HTTP to HTTPS redirect active", "addr", ":80")
			return ignoreClosed(redirect.ListenAndServe())
		})

	case TLSModeSelfSigned, TLSModeManual:
		g.Go(func() error {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			return ignoreClosed(startTLSServer(ctx, e, addr, tlsResult.TLSConfig))
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown main server", "error", err)
		}
		if redirect != nil {
			if err := redirect.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to shutdown HTTP redirect server", "error", err)
			}
		}
		return nil
	})
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(ctx context.Context, e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.Server.Serve(e.TLSListener)
}
