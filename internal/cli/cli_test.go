package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/keyword-hunter/internal/clock"
	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/pipeline"
)

var epoch = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

// fakeAPI answers every call from memory; the expansion job succeeds on
// the first poll.
type fakeAPI struct {
	page    []domain.Candidate
	lookups []string
}

func (f *fakeAPI) Suggest(context.Context, []string, int) ([]string, error) {
	return []string{"ремонт квартир под ключ недорого"}, nil
}

func (f *fakeAPI) SuggestMultiRegion(context.Context, []string, []int) (map[int][]string, error) {
	return map[int][]string{}, nil
}

func (f *fakeAPI) CreateExpansion(context.Context, domain.ExpansionParams) (domain.JobHandle, error) {
	return "job-7", nil
}

func (f *fakeAPI) ExpansionState(context.Context, domain.JobHandle) (domain.JobStatus, error) {
	return domain.JobStatus{State: domain.JobStateSucceeded, Progress: 100}, nil
}

func (f *fakeAPI) ExpansionPage(_ context.Context, _ domain.JobHandle, q domain.PageQuery) (domain.Page, error) {
	if q.Page > 1 {
		return domain.Page{}, nil
	}
	return domain.Page{Data: f.page}, nil
}

func (f *fakeAPI) DeleteDuplicates(_ context.Context, phrases []string) ([]string, error) {
	return phrases, nil
}

func (f *fakeAPI) KeywordDashboard(_ context.Context, _, phrase string) (*domain.Candidate, error) {
	f.lookups = append(f.lookups, phrase)
	return nil, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Logging: config.LoggingConfig{Level: "info"},
		Keyso: config.KeysoConfig{
			BaseURL:      "http://127.0.0.1:1",
			TokenHeader:  "X-Keyso-TOKEN",
			PollInterval: time.Second,
			MaxWait:      time.Minute,
			PageSize:     100,
		},
		Research: config.ResearchConfig{
			Niche:        "ремонт квартир",
			Base:         "msk",
			RegionID:     213,
			SeedCount:    20,
			WSKThreshold: 80,
			WSThreshold:  1000,
			MinNumWords:  3,
			StopWords:    []string{"бесплатно", "видео"},
			ReturnTop:    50,
			MaxResults:   1000,
			SampleSize:   5,
			OutputDir:    t.TempDir(),
			Format:       "both",
		},
	}
}

func newTestApp(t *testing.T, input string) (*App, *fakeAPI) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	api := &fakeAPI{}
	return &App{
		Config:  testConfig(t),
		Logger:  &logger,
		Service: api,
		Clock:   clock.NewFake(epoch),
		Sampler: pipeline.FirstSampler(),
		In:      strings.NewReader(input),
	}, api
}

func execute(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	root := NewRootCmd(app)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func outputFiles(t *testing.T, dir, pattern string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)
	return matches
}

func TestRootCmd_Subcommands(t *testing.T) {
	app, _ := newTestApp(t, "")
	root := NewRootCmd(app)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "seeds", "interactive", "regions", "version"} {
		assert.Contains(t, names, want)
	}

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag, "config flag should exist")
	assert.Equal(t, "", flag.DefValue)
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	logger := zerolog.New(io.Discard)
	app := &App{Logger: &logger}

	_, err := execute(t, app, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestVersionCmd(t *testing.T) {
	app, _ := newTestApp(t, "")

	out, err := execute(t, app, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "hunter version "+Version)
}

func TestRegionsCmd(t *testing.T) {
	app, _ := newTestApp(t, "")

	out, err := execute(t, app, "regions")

	require.NoError(t, err)
	for _, r := range domain.Regions() {
		assert.Contains(t, out, r.Base)
	}
	assert.Contains(t, out, domain.MultiBase)
}

func TestSeedsCmd(t *testing.T) {
	app, _ := newTestApp(t, "")

	out, err := execute(t, app, "seeds", "доставка цветов", "--count", "10")

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.NotEmpty(t, lines)
	assert.LessOrEqual(t, len(lines), 10)
}

func TestSeedsCmd_JSON(t *testing.T) {
	app, _ := newTestApp(t, "")

	out, err := execute(t, app, "seeds", "--json", "--targets", "купить цветы с доставкой, букет роз на заказ")

	require.NoError(t, err)
	var seeds []string
	require.NoError(t, json.Unmarshal([]byte(out), &seeds))
	require.NotEmpty(t, seeds)
	assert.Equal(t, "купить цветы с доставкой", seeds[0])
}

func TestSeedsCmd_RequiresNiche(t *testing.T) {
	app, _ := newTestApp(t, "")
	app.Config.Research.Niche = ""

	_, err := execute(t, app, "seeds")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "niche is required")
}

func TestRunCmd_SeedsOnly(t *testing.T) {
	app, api := newTestApp(t, "")

	out, err := execute(t, app, "run", "--seeds-only")

	require.NoError(t, err)
	assert.Contains(t, out, "Seeds:")
	assert.Contains(t, out, "1. ")
	assert.Empty(t, api.lookups)
	assert.Empty(t, outputFiles(t, app.Config.Research.OutputDir, "*"))
}

func TestRunCmd_RequiresToken(t *testing.T) {
	app, _ := newTestApp(t, "")

	_, err := execute(t, app, "run")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "KEYHUNTER_KEYSO_API_TOKEN")
}

func TestRunCmd_InvalidFormat(t *testing.T) {
	app, _ := newTestApp(t, "")

	_, err := execute(t, app, "run", "--offline", "--format", "xml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}

func TestRunCmd_Offline(t *testing.T) {
	app, api := newTestApp(t, "")
	dir := filepath.Join(app.Config.Research.OutputDir, "exports")

	out, err := execute(t, app, "run", "--offline", "--format", "csv", "--out", dir)

	require.NoError(t, err)
	assert.Len(t, outputFiles(t, dir, "keywords_msk_*.csv"), 1)
	assert.Empty(t, outputFiles(t, dir, "*.json"))
	assert.Len(t, outputFiles(t, dir, "report_msk_*.txt"), 1)
	assert.Contains(t, out, "Saved ")
	assert.NotContains(t, out, "Sample validation")
	assert.Empty(t, api.lookups, "offline runs never call the API")
}

func TestRunCmd_Online(t *testing.T) {
	app, api := newTestApp(t, "")
	app.Config.Keyso.Token = "secret"
	api.page = []domain.Candidate{
		{DestinationKey: "ремонт квартир под ключ цена", WSK: 12, NumWords: 5},
		{DestinationKey: "ремонт квартир видео", WSK: 5, NumWords: 3},
		{DestinationKey: "ремонт", WSK: 5000, NumWords: 1},
	}
	app.Config.Research.SampleSize = 1

	out, err := execute(t, app, "run", "--format", "json")

	require.NoError(t, err)
	dir := app.Config.Research.OutputDir
	files := outputFiles(t, dir, "keywords_msk_*.json")
	require.Len(t, files, 1)
	assert.Empty(t, outputFiles(t, dir, "*.csv"))

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "ремонт квартир под ключ цена")
	assert.NotContains(t, string(data), "ремонт квартир видео")

	assert.Contains(t, out, "Sample validation:")
	assert.Contains(t, out, "[missing] ремонт квартир под ключ цена")
	assert.Equal(t, []string{"ремонт квартир под ключ цена"}, api.lookups)
}

func TestRunCmd_NoResults(t *testing.T) {
	app, _ := newTestApp(t, "")
	app.Config.Keyso.Token = "secret"
	app.Config.Research.WSKThreshold = 1

	out, err := execute(t, app, "run")

	require.NoError(t, err)
	assert.Contains(t, out, "No matching keyword phrases found")
	assert.Empty(t, outputFiles(t, app.Config.Research.OutputDir, "*"))
}

func TestExitMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "config",
			err:  domain.NewConfigError("api_token", "required"),
			want: "the configuration is invalid: ",
		},
		{
			name: "auth",
			err:  fmt.Errorf("keyword pipeline: %w", domain.NewAuthError("keyso")),
			want: "the analytics service rejected the API token: keyword pipeline: ",
		},
		{
			name: "timeout",
			err:  &domain.JobTimeoutError{Handle: "job-1", Waited: time.Minute},
			want: "the expansion job did not finish in time: ",
		},
		{
			name: "cancelled",
			err:  context.Canceled,
			want: "the run was cancelled: context canceled",
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: "an internal error occurred: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(ExitMessage(tt.err), tt.want), ExitMessage(tt.err))
		})
	}
	assert.Empty(t, ExitMessage(nil))
}

func TestRunCmd_RequiresTokenExitMessage(t *testing.T) {
	app, _ := newTestApp(t, "")

	out, err := execute(t, app, "run")

	require.Error(t, err)
	assert.NotContains(t, out, "Error:", "the entry point prints the error once")
	assert.True(t, strings.HasPrefix(ExitMessage(err), domain.FailureConfig.Describe()))
}

func TestRunFlags_Apply(t *testing.T) {
	app, _ := newTestApp(t, "")

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, rc config.ResearchConfig)
	}{
		{
			name: "unset flags keep config",
			args: nil,
			check: func(t *testing.T, rc config.ResearchConfig) {
				assert.Equal(t, app.Config.Research, rc)
			},
		},
		{
			name: "base resets region",
			args: []string{"--base", "SPB"},
			check: func(t *testing.T, rc config.ResearchConfig) {
				assert.Equal(t, "spb", rc.Base)
				assert.Equal(t, 0, rc.RegionID)
			},
		},
		{
			name: "explicit region wins",
			args: []string{"--base", "spb", "--region", "213"},
			check: func(t *testing.T, rc config.ResearchConfig) {
				assert.Equal(t, 213, rc.RegionID)
			},
		},
		{
			name: "lists are split",
			args: []string{"--minus", "скачать, , торрент", "--targets", "ремонт ванной"},
			check: func(t *testing.T, rc config.ResearchConfig) {
				assert.Equal(t, []string{"скачать", "торрент"}, rc.StopWords)
				assert.Equal(t, []string{"ремонт ванной"}, rc.SeedTargets)
			},
		},
		{
			name: "zero values are honoured",
			args: []string{"--ws", "0", "--wsk", "40", "--words", "2"},
			check: func(t *testing.T, rc config.ResearchConfig) {
				assert.Equal(t, 0, rc.WSThreshold)
				assert.Equal(t, 40, rc.WSKThreshold)
				assert.Equal(t, 2, rc.MinNumWords)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &runFlags{}
			cmd := &cobra.Command{Use: "run"}
			f.register(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))

			rc := app.Config.Research
			f.apply(cmd, &rc)
			tt.check(t, rc)
		})
	}
}
