// Package main applies the keyword_runs schema migrations.
//
//	migrate -up               apply pending migrations
//	migrate -down             roll everything back
//	migrate -steps N          move N steps, negative goes down
//	migrate -version          print the current version
//	migrate -force V          mark V as clean after a failed migration
//
// Migrations come from database.migration_path, or from the binary itself
// when that is empty or -embedded is set. -path overrides both.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/database"
	"github.com/helixir/keyword-hunter/internal/observability"
)

const connectTimeout = 30 * time.Second

var errNoAction = errors.New("specify one of -up, -down, -steps N, -version, -force V")

// schemaMigrator is the part of *database.Migrator an action drives.
type schemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

// action is one parsed invocation.
type action struct {
	name  string
	apply func(m schemaMigrator) error

	path     string
	embedded bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	act, err := parseAction(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "migrate").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, act.source(cfg.Database.MigrationPath), logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	return act.execute(migrator, logger)
}

// parseAction reads the flags and requires exactly one action.
func parseAction(args []string, usage io.Writer) (action, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(usage)

	up := fs.Bool("up", false, "apply all pending migrations")
	down := fs.Bool("down", false, "roll back all migrations")
	steps := fs.Int("steps", 0, "apply N steps, negative rolls back")
	version := fs.Bool("version", false, "print the current migration version")
	force := fs.Int("force", -1, "mark version V as clean")
	path := fs.String("path", "", "migrations directory, overrides the config")
	embedded := fs.Bool("embedded", false, "use the migrations compiled into the binary")
	if err := fs.Parse(args); err != nil {
		return action{}, err
	}

	var picked []action
	if *up {
		picked = append(picked, action{name: "up", apply: schemaMigrator.Up})
	}
	if *down {
		picked = append(picked, action{name: "down", apply: schemaMigrator.Down})
	}
	if *steps != 0 {
		n := *steps
		picked = append(picked, action{name: "steps", apply: func(m schemaMigrator) error { return m.Steps(n) }})
	}
	if *version {
		picked = append(picked, action{name: "version"})
	}
	if *force >= 0 {
		v := *force
		picked = append(picked, action{name: "force", apply: func(m schemaMigrator) error { return m.Force(v) }})
	}

	switch len(picked) {
	case 0:
		fs.Usage()
		return action{}, errNoAction
	case 1:
	default:
		return action{}, fmt.Errorf("specify only one action at a time, got %d", len(picked))
	}

	act := picked[0]
	act.path = *path
	act.embedded = *embedded
	return act, nil
}

// source picks the migrations directory; empty selects the embedded set.
func (a action) source(configured string) string {
	switch {
	case a.path != "":
		return a.path
	case a.embedded:
		return ""
	default:
		return configured
	}
}

// execute runs the action and reports the resulting version.
func (a action) execute(m schemaMigrator, logger zerolog.Logger) error {
	if a.apply != nil {
		logger.Info().Str("action", a.name).Msg("migrating")
		if err := a.apply(m); err != nil {
			return fmt.Errorf("migrate %s: %w", a.name, err)
		}
	}

	v, dirty, err := m.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return nil
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("current migration version")
	return nil
}
