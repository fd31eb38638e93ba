package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/filter"
)

// maxReportSeeds is how many seeds the report lists before summarising.
const maxReportSeeds = 30

// ReportOptions carries the run parameters echoed in the report.
type ReportOptions struct {
	Niche        string
	Base         string
	WSKThreshold int
	MinWords     int
	ReturnTop    int
	StopWords    []string
	GeneratedAt  time.Time
}

var (
	rule = strings.Repeat("=", 80)
	dash = strings.Repeat("-", 80)
)

// Report renders a plain-text summary: the top candidates, the seeds used,
// aggregate statistics and a timestamp.
func Report(cands []domain.Candidate, seeds []string, opts ReportOptions) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("%s", rule)
	line("Long-tail keywords for niche: %s", opts.Niche)
	line("Base: %s · WSK threshold: <=%d · Min words: >=%d", opts.Base, opts.WSKThreshold, opts.MinWords)
	line("%s", rule)
	line("")

	top := min(opts.ReturnTop, len(cands))
	if top < 0 {
		top = 0
	}
	line("TOP-%d KEYWORDS:", top)
	line("%s", dash)
	for i, c := range cands[:top] {
		line("%d. %s", i+1, c.Phrase())
		line("   └─ wsk: %d · words: %d", c.WSK, c.NumWords)
	}

	line("")
	line("%s", rule)
	line("GENERATED SEEDS (%d):", len(seeds))
	line("%s", dash)
	for i, s := range seeds[:min(maxReportSeeds, len(seeds))] {
		line("%d. %s", i+1, s)
	}
	if len(seeds) > maxReportSeeds {
		line("... and %d more seeds", len(seeds)-maxReportSeeds)
	}

	stats := Summarize(cands, opts.StopWords)
	line("")
	line("%s", rule)
	line("STATISTICS:")
	line("%s", dash)
	line("Seeds generated: %d", len(seeds))
	line("Keywords collected: %d", stats.Count)
	line("Mean WSK: %.0f", stats.MeanWSK)
	line("Mean length: %.1f words", stats.MeanWords)
	line("Stop-word matches: ~%d", stats.StopWordHits)

	generated := opts.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	line("")
	line("%s", rule)
	line("Report generated: %s", generated.Format("2006-01-02 15:04:05"))
	b.WriteString(rule)

	return b.String()
}

// Stats aggregates a result set.
type Stats struct {
	Count        int
	MeanWSK      float64
	MeanWords    float64
	StopWordHits int
}

// Summarize computes report statistics. Means are zero for an empty set.
func Summarize(cands []domain.Candidate, stopWords []string) Stats {
	s := Stats{Count: len(cands)}
	if len(cands) == 0 {
		return s
	}

	var wsk, words int
	for _, c := range cands {
		wsk += c.WSK
		words += c.NumWords
		if filter.ContainsStopWord(c.Phrase(), stopWords) {
			s.StopWordHits++
		}
	}
	s.MeanWSK = float64(wsk) / float64(len(cands))
	s.MeanWords = float64(words) / float64(len(cands))
	return s
}
