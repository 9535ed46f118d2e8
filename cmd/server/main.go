package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/prepa-auth/internal/config"
	"github.com/jrsteele09/prepa-auth/server"
	"github.com/jrsteele09/prepa-auth/users/pgrepo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const revocationCleanupInterval = 10 * time.Minute

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "prepa-auth",
		Short:        "Authentication service issuing JWT access and refresh tokens",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file (yaml, json or toml); environment variables take precedence")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context())
		},
	})
	return rootCmd
}

func run(ctx context.Context) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := buildApp(ctx, c)
	if err != nil {
		return err
	}
	defer app.close()

	handler, err := server.New(c, app.auth)
	if err != nil {
		return err
	}

	go cleanupRevocations(ctx, app)

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func migrate(ctx context.Context) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	setupLogging(c)

	if c.GetDatabaseURL() == "" {
		return errors.New("DATABASE_URL is required to run migrations")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := pgrepo.Open(ctx, c.GetDatabaseURL())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := pgrepo.RunMigrations(ctx, db); err != nil {
		return err
	}
	log.Info().Msg("Migrations applied")
	return nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func cleanupRevocations(ctx context.Context, app *application) {
	ticker := time.NewTicker(revocationCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.auth.CleanupRevokedTokens()
		}
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
