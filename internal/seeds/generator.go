// Package seeds expands a niche description into seed phrases by filling
// intent, location, constraint, question and seasonal templates.
package seeds

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// DefaultCount is the number of seeds generated when none is requested.
const DefaultCount = 100

const (
	maxBases     = 5
	minSeedWords = 2
	minSeedRunes = 10
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var (
	transactional = []string{"купить", "заказать", "цена", "стоимость", "прайс", "скидка", "акция", "в наличии"}
	localization  = []string{"москва", "спб", "рядом", "около", "24/7", "круглосуточно"}
	locIntents    = []string{"купить", "заказать", "доставка"}
	constraints   = []string{"недорого", "дешево", "срочно", "быстро", "ночью", "рассрочка", "гарантия", "возврат"}
	conIntents    = []string{"купить", "заказать"}
	questions     = []string{"как выбрать", "где купить", "сколько стоит", "какой лучше", "что лучше", "отличия"}
	seasons       = []string{"черная пятница", "новый год", "8 марта", "23 февраля", "день рождения"}
)

// Generator produces seed phrases for one niche.
type Generator struct {
	niche   string
	targets []string
}

// NewGenerator creates a generator. targets are caller-chosen seeds placed
// ahead of the generated ones.
func NewGenerator(niche string, targets []string) *Generator {
	return &Generator{
		niche:   domain.NormalizePhrase(niche),
		targets: targets,
	}
}

// Generate returns at most count seeds. Targets fill up to half of the
// budget; phrases that are permutations of an earlier phrase are dropped, as
// are phrases shorter than two words or ten characters.
func (g *Generator) Generate(count int) []string {
	if count <= 0 {
		count = DefaultCount
	}

	var seeds []string
	if n := count / 2; n > 0 && len(g.targets) > 0 {
		seeds = append(seeds, g.targets[:min(n, len(g.targets))]...)
	}

	bases := g.basePhrases()
	if len(bases) > maxBases {
		bases = bases[:maxBases]
	}
	for _, base := range bases {
		seeds = append(seeds, transactionalSeeds(base)...)
		seeds = append(seeds, localizedSeeds(base)...)
		seeds = append(seeds, constrainedSeeds(base)...)
		seeds = append(seeds, questionSeeds(base)...)
		seeds = append(seeds, seasonalSeeds(base)...)
	}

	seeds = filterQuality(dedupe(seeds))
	if len(seeds) > count {
		seeds = seeds[:count]
	}
	return seeds
}

// basePhrases returns the first two words, the first three words and the
// whole niche, skipping repeats.
func (g *Generator) basePhrases() []string {
	words := wordPattern.FindAllString(g.niche, -1)
	if len(words) == 0 {
		return nil
	}

	var candidates []string
	if len(words) >= 2 {
		candidates = append(candidates, strings.Join(words[:2], " "))
	}
	if len(words) >= 3 {
		candidates = append(candidates, strings.Join(words[:3], " "))
	}
	candidates = append(candidates, strings.Join(words, " "))

	out := candidates[:0]
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func transactionalSeeds(base string) []string {
	out := make([]string, 0, 2*len(transactional))
	for _, intent := range transactional {
		out = append(out, intent+" "+base, base+" "+intent)
	}
	return out
}

func localizedSeeds(base string) []string {
	out := make([]string, 0, len(localization)*len(locIntents))
	for _, loc := range localization {
		for _, intent := range locIntents {
			out = append(out, intent+" "+base+" "+loc)
		}
	}
	return out
}

func constrainedSeeds(base string) []string {
	out := make([]string, 0, len(constraints)*(1+len(conIntents)))
	for _, c := range constraints {
		out = append(out, base+" "+c)
		for _, intent := range conIntents {
			out = append(out, intent+" "+base+" "+c)
		}
	}
	return out
}

func questionSeeds(base string) []string {
	out := make([]string, 0, len(questions))
	for _, q := range questions {
		out = append(out, q+" "+base)
	}
	return out
}

func seasonalSeeds(base string) []string {
	out := make([]string, 0, 2*len(seasons))
	for _, s := range seasons {
		out = append(out, base+" "+s, base+" на "+s)
	}
	return out
}

// dedupe keeps the first phrase of every group sharing the same multiset of
// lowercase words.
func dedupe(seeds []string) []string {
	seen := make(map[string]bool, len(seeds))
	out := make([]string, 0, len(seeds))
	for _, s := range seeds {
		words := strings.Fields(strings.ToLower(s))
		sort.Strings(words)
		key := strings.Join(words, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func filterQuality(seeds []string) []string {
	out := seeds[:0]
	for _, s := range seeds {
		if len(strings.Fields(s)) >= minSeedWords && utf8.RuneCountInString(s) >= minSeedRunes {
			out = append(out, s)
		}
	}
	return out
}
