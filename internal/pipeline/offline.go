package pipeline

import (
	"strings"

	"github.com/helixir/keyword-hunter/internal/domain"
)

var interrogatives = map[string]struct{}{
	"как": {}, "где": {}, "сколько": {}, "что": {}, "какой": {}, "какая": {}, "какое": {}, "какие": {},
	"почему": {}, "зачем": {}, "когда": {}, "куда": {},
	"how": {}, "what": {}, "where": {}, "why": {}, "which": {}, "when": {},
}

// Offline turns seeds into zero-scored candidates without calling the API.
// Word counts are computed locally and the question flag is set when the
// phrase contains an interrogative word. No filtering or dedup is applied.
func Offline(seeds []string, maxResults int) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(seeds))
	for _, seed := range seeds {
		c := domain.Candidate{
			Word:           seed,
			DestinationKey: seed,
			NumWords:       domain.CountWords(seed),
			Offline:        true,
		}
		if IsQuestion(seed) {
			c.IsQuest = 1
		}
		out = append(out, c)
	}
	return truncate(out, maxResults)
}

// IsQuestion reports whether phrase contains a whole interrogative word.
func IsQuestion(phrase string) bool {
	for _, w := range strings.Fields(strings.ToLower(phrase)) {
		if _, ok := interrogatives[strings.Trim(w, "?!.,")]; ok {
			return true
		}
	}
	return false
}
