package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/export"
	"github.com/helixir/keyword-hunter/internal/observability"
	"github.com/helixir/keyword-hunter/internal/pipeline"
	"github.com/helixir/keyword-hunter/internal/runner"
	"github.com/helixir/keyword-hunter/internal/seeds"
)

var rule = strings.Repeat("=", 80)

type runFlags struct {
	niche      string
	base       string
	region     int
	wsk        int
	ws         int
	words      int
	minus      string
	targets    string
	top        int
	maxResults int
	seeds      int
	format     string
	out        string
	offline    bool
	seedsOnly  bool
}

func newRunCmd(app *App) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run keyword research for a niche",
		Long: `Generates seeds from the niche, expands them through the analytics API,
filters the results and writes CSV/JSON exports plus a text report.

Flags override the research section of the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc := app.Config.Research
			f.apply(cmd, &rc)
			return app.research(cmd.Context(), cmd.OutOrStdout(), session{
				research:  rc,
				keyso:     app.Config.Keyso,
				seedsOnly: f.seedsOnly,
			})
		},
	}

	f.register(cmd)
	return cmd
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.niche, "niche", "", "niche description (1-3 sentences)")
	fl.StringVar(&f.base, "base", "", "market base (msk, spb, ... or multi)")
	fl.IntVar(&f.region, "region", 0, "suggestion region id")
	fl.IntVar(&f.wsk, "wsk", 0, "maximum exact frequency")
	fl.IntVar(&f.ws, "ws", 0, "maximum broad frequency, 0 disables")
	fl.IntVar(&f.words, "words", 0, "minimum words per phrase")
	fl.StringVar(&f.minus, "minus", "", "comma separated stop words")
	fl.StringVar(&f.targets, "targets", "", "comma separated seeds placed ahead of generated ones")
	fl.IntVar(&f.top, "top", 0, "candidates listed in the report")
	fl.IntVar(&f.maxResults, "max-results", 0, "cap on the final candidate set")
	fl.IntVar(&f.seeds, "seeds", 0, "number of seeds to generate")
	fl.StringVar(&f.format, "format", "", "export format: csv, json or both")
	fl.StringVarP(&f.out, "out", "o", "", "output directory")
	fl.BoolVar(&f.offline, "offline", false, "skip the API and export the seeds")
	fl.BoolVar(&f.seedsOnly, "seeds-only", false, "print the generated seeds and exit")
}

// apply overlays the flags the user set on rc.
func (f *runFlags) apply(cmd *cobra.Command, rc *config.ResearchConfig) {
	set := cmd.Flags().Changed
	if set("niche") {
		rc.Niche = f.niche
	}
	if set("base") {
		rc.Base = strings.ToLower(strings.TrimSpace(f.base))
		if !set("region") {
			// The configured region belongs to the configured base.
			rc.RegionID = 0
		}
	}
	if set("region") {
		rc.RegionID = f.region
	}
	if set("wsk") {
		rc.WSKThreshold = f.wsk
	}
	if set("ws") {
		rc.WSThreshold = f.ws
	}
	if set("words") {
		rc.MinNumWords = f.words
	}
	if set("minus") {
		rc.StopWords = splitList(f.minus)
	}
	if set("targets") {
		rc.SeedTargets = splitList(f.targets)
	}
	if set("top") {
		rc.ReturnTop = f.top
	}
	if set("max-results") {
		rc.MaxResults = f.maxResults
	}
	if set("seeds") {
		rc.SeedCount = f.seeds
	}
	if set("format") {
		rc.Format = f.format
	}
	if set("out") {
		rc.OutputDir = f.out
	}
	if set("offline") {
		rc.Offline = f.offline
	}
}

// session is one research invocation.
type session struct {
	research  config.ResearchConfig
	keyso     config.KeysoConfig
	seedsOnly bool
}

func (a *App) research(ctx context.Context, out io.Writer, s session) error {
	rc := s.research

	check := rc
	if s.seedsOnly {
		check.Offline = true
	}
	if err := check.Validate(s.keyso.Token); err != nil {
		return err
	}
	format, err := export.ParseFormat(rc.Format)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "KEYWORD HUNTER")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "Niche: %s\n", rc.Niche)
	fmt.Fprintf(out, "Base: %s | Region: %d\n", rc.Base, rc.RegionID)
	fmt.Fprintf(out, "WSK <= %d | Min words >= %d\n", rc.WSKThreshold, rc.MinNumWords)
	fmt.Fprintln(out, rule)

	seedList := seeds.NewGenerator(rc.Niche, rc.SeedTargets).Generate(rc.SeedCount)
	fmt.Fprintf(out, "\nGenerated %d seeds\n", len(seedList))

	if s.seedsOnly {
		fmt.Fprintln(out, "\nSeeds:")
		for i, seed := range seedList {
			fmt.Fprintf(out, "%d. %s\n", i+1, seed)
		}
		return nil
	}

	run, err := domain.NewRun(rc.RunSpec())
	if err != nil {
		return err
	}
	logger := observability.WithRunContext(*a.Logger, run.ID.String(), run.Niche)

	svc, release := a.service(s.keyso, rc.Offline)
	defer release()

	p := pipeline.New(pipeline.Deps{
		Service: svc,
		Clock:   a.Clock,
		Sampler: a.Sampler,
	}, runner.PipelineOptions(run, s.keyso), logger)

	res, err := p.Execute(ctx, seedList)
	if err != nil {
		return fmt.Errorf("keyword pipeline: %w", err)
	}
	if !rc.Offline {
		fmt.Fprintf(out, "Suggestions: %d | Collected: %d | Duplicates removed: %d\n",
			res.Suggestions, res.Collected, res.Duplicates)
	}

	if len(res.Candidates) == 0 {
		fmt.Fprintln(out, "\nNo matching keyword phrases found")
		return nil
	}

	sorted := export.SortCandidates(res.Candidates)
	now := a.Clock.Now()
	files := export.Files(rc.OutputDir, rc.Base, now)
	if rc.OutputDir != "" {
		if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	if format.WantsCSV() {
		if err := writeFile(files.CSV, func(w io.Writer) error { return export.WriteCSV(w, sorted) }); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved %s\n", files.CSV)
	}
	if format.WantsJSON() {
		if err := writeFile(files.JSON, func(w io.Writer) error { return export.WriteJSON(w, sorted) }); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved %s\n", files.JSON)
	}

	report := export.Report(sorted, seedList, export.ReportOptions{
		Niche:        rc.Niche,
		Base:         rc.Base,
		WSKThreshold: rc.WSKThreshold,
		MinWords:     rc.MinNumWords,
		ReturnTop:    rc.ReturnTop,
		StopWords:    rc.StopWords,
		GeneratedAt:  now,
	})
	if err := os.WriteFile(files.Report, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(out, "Saved %s\n\n", files.Report)
	fmt.Fprintln(out, report)

	if !rc.Offline && rc.SampleSize > 0 && len(sorted) >= rc.SampleSize {
		printValidation(out, p.SampleValidation(ctx, sorted, rc.SampleSize))
	}
	return nil
}

func printValidation(out io.Writer, results []pipeline.ValidationResult) {
	fmt.Fprintln(out, "Sample validation:")
	for _, r := range results {
		switch {
		case r.Error != "":
			fmt.Fprintf(out, "  [error]   %s: %s\n", r.Phrase, r.Error)
		case r.Found:
			fmt.Fprintf(out, "  [found]   %s\n", r.Phrase)
		default:
			fmt.Fprintf(out, "  [missing] %s\n", r.Phrase)
		}
	}
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
