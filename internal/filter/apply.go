package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// minPhraseRunes is the shortest phrase kept.
const minPhraseRunes = 5

// invalidChars matches anything other than letters, digits, underscore,
// whitespace and hyphen.
var invalidChars = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Z}\-]`)

// Reason names the rule that rejected a candidate.
type Reason string

const (
	Accepted          Reason = ""
	ReasonWordCount   Reason = "word_count"
	ReasonFrequency   Reason = "frequency"
	ReasonStopWord    Reason = "stop_word"
	ReasonShort       Reason = "too_short"
	ReasonCharacters  Reason = "invalid_characters"
	ReasonRepetitions Reason = "repeated_words"
)

// Check returns the first rule c fails under t, or Accepted.
func Check(c domain.Candidate, t Thresholds) Reason {
	phrase := c.Phrase()
	switch {
	case c.NumWords < t.MinWords:
		return ReasonWordCount
	case c.WSK > t.MaxWSK:
		return ReasonFrequency
	case ContainsStopWord(phrase, t.StopWords):
		return ReasonStopWord
	}
	return phraseReason(phrase)
}

// Apply keeps the candidates that pass every rule, in order.
func Apply(cands []domain.Candidate, t Thresholds) []domain.Candidate {
	kept, _ := ApplyWithStats(cands, t)
	return kept
}

// ApplyWithStats is Apply that also counts rejections per rule.
func ApplyWithStats(cands []domain.Candidate, t Thresholds) ([]domain.Candidate, map[Reason]int) {
	kept := make([]domain.Candidate, 0, len(cands))
	rejected := make(map[Reason]int)
	for _, c := range cands {
		if r := Check(c, t); r != Accepted {
			rejected[r]++
			continue
		}
		kept = append(kept, c)
	}
	return kept, rejected
}

// ContainsStopWord reports whether text contains any non-blank stop word,
// ignoring case.
func ContainsStopWord(text string, stopWords []string) bool {
	lower := strings.ToLower(text)
	for _, w := range stopWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// IsValidPhrase applies the phrase quality heuristics: a minimum length, a
// restricted character set and no more than half the words repeated.
func IsValidPhrase(text string) bool {
	return phraseReason(text) == Accepted
}

func phraseReason(text string) Reason {
	if utf8.RuneCountInString(text) < minPhraseRunes {
		return ReasonShort
	}
	if invalidChars.MatchString(text) {
		return ReasonCharacters
	}

	words := strings.Fields(text)
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	if float64(len(unique)) < float64(len(words))*0.5 {
		return ReasonRepetitions
	}
	return Accepted
}
