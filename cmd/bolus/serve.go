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

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	adapthttp "bolus/internal/adapter/http"
	"bolus/internal/app"
	"bolus/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and web UI",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("no-auth", false, "disable authentication (single local user)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authSvc := app.NewAuthService(rt.users, rt.sessions, rt.log)
	srv := adapthttp.New(rt.dose, rt.history, rt.reports, authSvc, rt.cfg.Server.WebDir, rt.log)

	noAuth, _ := cmd.Flags().GetBool("no-auth")
	if noAuth || rt.cfg.Server.DisableAuth {
		rt.log.Warn("authentication disabled")
		srv.WithoutAuth()
	}
	if rt.cfg.SSOEnabled() {
		oc, err := newOIDC(ctx, rt.cfg.OIDC)
		if err != nil {
			return err
		}
		srv.WithOIDC(oc)
	}

	go purgeSessions(ctx, authSvc, rt)

	httpServer := &http.Server{
		Addr:              rt.cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.WithField("addr", rt.cfg.Server.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	rt.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx) //nolint:contextcheck // parent context already cancelled
}

func newOIDC(ctx context.Context, c config.OIDCSection) (adapthttp.OIDCConfig, error) {
	provider, err := oidc.NewProvider(ctx, c.Issuer)
	if err != nil {
		return adapthttp.OIDCConfig{}, fmt.Errorf("oidc provider %s: %w", c.Issuer, err)
	}
	return adapthttp.OIDCConfig{
		Enabled:  true,
		Provider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func purgeSessions(ctx context.Context, auth *app.AuthService, rt *runtime) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := auth.PurgeExpiredSessions(ctx); err != nil {
				rt.log.WithError(err).Warn("session purge")
			}
		}
	}
}
