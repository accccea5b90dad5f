package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/rewind/internal/auth"
	"github.com/desertthunder/rewind/internal/server"
	"github.com/desertthunder/rewind/internal/shared"
	"github.com/urfave/cli/v3"
)

const janitorInterval = time.Minute

// Serve runs the HTTP server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd.String("config")); err != nil {
		return err
	}
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := cmd.Int("port"); port != 0 {
		r.config.Server.Port = int(port)
	}

	if err := r.config.ValidateSpotify(); err != nil {
		return err
	}

	authenticator, err := auth.NewAuthenticator(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}

	// Sessions default to process memory; a configured database path makes
	// them survive restarts.
	var sessions auth.SessionStore = auth.NewMemorySessionStore()
	if r.config.Database.Path != "" {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open session database: %w", err)
		}
		defer db.Close()

		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		sessions = auth.NewSQLiteSessionStore(db)
		r.logger.Info("sessions persisted to database", "path", r.config.Database.Path)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	codes := auth.NewMemoryCodeStore()
	codes.StartJanitor(ctx, janitorInterval)

	srv := server.New(server.Opts{
		Config:        r.config,
		Logger:        r.logger,
		Authenticator: authenticator,
		Sessions:      sessions,
		Codes:         codes,
	})

	return srv.Run(ctx)
}

// serveCommand starts the backend HTTP server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Rewind backend server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind to (overrides config)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides config)",
			},
		},
		Action: r.Serve,
	}
}
