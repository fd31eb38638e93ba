// Package cli implements the hunter command line: one-shot research runs,
// seed generation, the interactive wizard and the region catalog.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/keyword-hunter/internal/cache"
	"github.com/helixir/keyword-hunter/internal/clock"
	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/keyso"
	"github.com/helixir/keyword-hunter/internal/observability"
	"github.com/helixir/keyword-hunter/internal/pipeline"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// App carries the dependencies shared by every command. Zero fields are
// filled from the loaded configuration.
type App struct {
	Config *config.Config
	Logger *zerolog.Logger

	// Service overrides the analytics client built from Config.Keyso.
	Service pipeline.Service

	Clock   clock.Clock
	Sampler pipeline.Sampler

	// In is read by the interactive wizard. Defaults to os.Stdin.
	In io.Reader
}

// NewRootCmd builds the command tree bound to app.
func NewRootCmd(app *App) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "hunter",
		Short: "Find low-frequency search phrases for a niche",
		Long: `hunter expands a niche description into seed phrases, pulls suggestions
and related phrases from the Keys.so analytics API, and keeps the long-tail
phrases that pass the frequency and word-count thresholds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return app.init(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./config.yaml, env KEYHUNTER_*)")

	root.AddCommand(
		newRunCmd(app),
		newSeedsCmd(app),
		newInteractiveCmd(app),
		newRegionsCmd(),
		newVersionCmd(),
	)
	return root
}

func (a *App) init(configPath string) error {
	if a.Config == nil {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.Config = cfg
	}
	if a.Logger == nil {
		// stdout belongs to the report, logs go to stderr.
		logger := observability.NewLogger(observability.LoggingConfig{
			Level:      a.Config.Logging.Level,
			Format:     "console",
			Output:     "stderr",
			TimeFormat: time.TimeOnly,
		})
		a.Logger = &logger
	}
	if a.Clock == nil {
		a.Clock = clock.Real()
	}
	if a.In == nil {
		a.In = os.Stdin
	}
	return nil
}

// service returns the analytics client and a function releasing it.
func (a *App) service(kc config.KeysoConfig, offline bool) (pipeline.Service, func()) {
	if a.Service != nil {
		return a.Service, func() {}
	}

	opts := []keyso.Option{
		keyso.WithClock(a.Clock),
		keyso.WithLogger(*a.Logger),
	}
	release := func() {}
	if a.Config.Cache.Enabled && !offline {
		c := cache.FromConfig(a.Config.Cache, nil)
		opts = append(opts, keyso.WithCache(c))
		release = func() {
			if err := c.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to close suggestion cache")
			}
		}
	}
	return keyso.FromConfig(kc, opts...), release
}

// ExitMessage formats a command error for the terminal, leading with what
// kind of failure ended the command.
func ExitMessage(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", domain.ClassifyFailure(err).Describe(), err)
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
