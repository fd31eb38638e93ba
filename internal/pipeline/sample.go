package pipeline

import (
	"context"
	"math/rand/v2"
	"sort"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// DefaultSampleSize is how many final candidates are re-checked.
const DefaultSampleSize = 5

// Sampler picks k distinct indices out of [0, n).
type Sampler interface {
	Sample(n, k int) []int
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(n, k int) []int

// Sample calls f.
func (f SamplerFunc) Sample(n, k int) []int { return f(n, k) }

// RandomSampler samples uniformly with math/rand/v2.
func RandomSampler() Sampler {
	return SamplerFunc(func(n, k int) []int {
		idx := rand.Perm(n)[:k]
		sort.Ints(idx)
		return idx
	})
}

// FirstSampler always picks the first k indices.
func FirstSampler() Sampler {
	return SamplerFunc(func(_, k int) []int {
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i
		}
		return idx
	})
}

// ValidationResult records whether one sampled phrase exists in the base.
type ValidationResult struct {
	Phrase string `json:"phrase"`
	Found  bool   `json:"found"`
	Error  string `json:"error,omitempty"`
}

// SampleValidation looks up a random sample of cands on the keyword
// dashboard. Lookups are informational: misses and failures are recorded in
// the result and logged, never returned.
func (p *Pipeline) SampleValidation(ctx context.Context, cands []domain.Candidate, size int) []ValidationResult {
	if size <= 0 {
		size = DefaultSampleSize
	}
	size = min(size, len(cands))
	if size == 0 {
		return nil
	}

	base := p.opts.Base
	results := make([]ValidationResult, 0, size)
	for _, i := range p.sampler.Sample(len(cands), size) {
		if i < 0 || i >= len(cands) {
			continue
		}
		phrase := cands[i].Phrase()
		res := ValidationResult{Phrase: phrase}

		found, err := p.svc.KeywordDashboard(ctx, base, phrase)
		switch {
		case err != nil:
			res.Error = err.Error()
			p.logger.Warn().Err(err).Str("phrase", phrase).Msg("sample validation lookup failed")
		case found != nil:
			res.Found = true
			p.logger.Info().Str("phrase", phrase).Msg("sample phrase exists in base")
		default:
			p.logger.Warn().Str("phrase", phrase).Msg("sample phrase not found in base")
		}
		results = append(results, res)
	}
	return results
}
