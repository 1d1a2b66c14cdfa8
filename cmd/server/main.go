package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-backoffice/identity"
	"github.com/jrsteele09/go-backoffice/identity/memprovider"
	"github.com/jrsteele09/go-backoffice/identity/oidcprovider"
	"github.com/jrsteele09/go-backoffice/identity/redisprovider"
	"github.com/jrsteele09/go-backoffice/internal/config"
	"github.com/jrsteele09/go-backoffice/internal/logging"
	"github.com/jrsteele09/go-backoffice/retry"
	"github.com/jrsteele09/go-backoffice/server"
	"github.com/jrsteele09/go-backoffice/users"
	"github.com/jrsteele09/go-backoffice/users/sqlstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	logging.Setup(c.GetEnv())
	displayAppname(c.GetAppName())

	ctx := context.Background()
	store, err := sqlstore.NewSQLiteStore(ctx, c.GetDatabasePath())
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer store.Close()

	userService, err := users.NewService(store, users.WithRetryPolicy(retry.Policy{
		Name:        "access user store",
		MaxAttempts: c.GetRetryMaxAttempts(),
		Backoff:     retry.Exponential(c.GetRetryInitialBackoff(), c.GetRetryMaxBackoff()),
		IsRetryable: retry.IsTransient,
	}))
	if err != nil {
		return err
	}

	provider, closeProvider, err := newIdentityProvider(ctx, c)
	if err != nil {
		return err
	}
	defer closeProvider()

	handler, err := server.New(c, userService, provider)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(httpServer) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func newIdentityProvider(ctx context.Context, c config.Config) (identity.Provider, func(), error) {
	secure := strings.HasPrefix(c.GetBaseURL(), "https://")

	switch c.GetIdentityProvider() {
	case config.ProviderRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", c.GetRedisAddr(), err)
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("Using redis session provider")
		provider := redisprovider.New(client, c.GetRedisPrefix(), c.GetSessionDuration(), redisprovider.WithSecureCookies(secure))
		return provider, func() { client.Close() }, nil

	case config.ProviderOIDC:
		provider, err := oidcprovider.New(ctx, oidcprovider.Config{
			IssuerURL:    c.GetOIDCIssuer(),
			ClientID:     c.GetOIDCClientID(),
			ClientSecret: c.GetOIDCClientSecret(),
			RedirectURL:  c.GetBaseURL() + server.RouteAuthCallback,
		}, oidcprovider.WithSecureCookies(secure))
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("issuer", c.GetOIDCIssuer()).Msg("Using OIDC identity provider")
		return provider, func() {}, nil

	default:
		log.Info().Msg("Using in-memory session provider")
		return memprovider.New(c.GetSessionDuration(), memprovider.WithSecureCookies(secure)), func() {}, nil
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
