package domain

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// MissingWSK is the exact-frequency value assumed for a candidate the service
// returned without one. It is large enough to fail any realistic threshold.
const MissingWSK = 999999

// whitespaceRegex matches one or more whitespace characters (spaces, tabs, newlines).
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Candidate is a keyword phrase returned by the analytics service together
// with its frequency scores and metadata. Identity is the phrase, compared
// case-sensitively.
type Candidate struct {
	// Word is the phrase as the service names it in suggestion-style payloads.
	Word string `json:"word,omitempty"`

	// DestinationKey is the canonical phrase in expansion payloads. When
	// present it takes precedence over Word.
	DestinationKey string `json:"destination_key,omitempty"`

	// WSK is the exact-frequency score.
	WSK int `json:"wsk"`

	// WS is the broad-frequency score.
	WS int `json:"ws"`

	// NumWords is the number of words in the phrase.
	NumWords int `json:"numwords"`

	// IsQuest flags question intent (0 or 1).
	IsQuest int `json:"isquest"`

	// IsGeo flags geographic intent (0 or 1).
	IsGeo int `json:"isgeo"`

	// AdsCount is the number of advertisers bidding on the phrase.
	AdsCount int `json:"adscnt"`

	// AvgBid is the average bid estimate.
	AvgBid float64 `json:"avbid"`

	// Docs is the document count.
	Docs int `json:"docs"`

	// Count is the service's raw occurrence count.
	Count int `json:"cnt"`

	// Offline marks candidates synthesised locally without the service.
	Offline bool `json:"offline,omitempty"`
}

// Phrase returns the canonical phrase: DestinationKey, falling back to Word.
func (c Candidate) Phrase() string {
	if c.DestinationKey != "" {
		return c.DestinationKey
	}
	return c.Word
}

// candidateWire mirrors Candidate with loosely typed numbers. The service is
// inconsistent about emitting integers as 12 or 12.0.
type candidateWire struct {
	Word           string       `json:"word"`
	DestinationKey string       `json:"destination_key"`
	WSK            *json.Number `json:"wsk"`
	WS             json.Number  `json:"ws"`
	NumWords       json.Number  `json:"numwords"`
	IsQuest        json.Number  `json:"isquest"`
	IsGeo          json.Number  `json:"isgeo"`
	AdsCount       json.Number  `json:"adscnt"`
	AvgBid         json.Number  `json:"avbid"`
	Docs           json.Number  `json:"docs"`
	Count          json.Number  `json:"cnt"`
	Offline        bool         `json:"offline"`
}

// UnmarshalJSON decodes a service candidate. A missing or null wsk becomes
// MissingWSK so the candidate cannot pass a frequency threshold by accident.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var w candidateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	wsk := MissingWSK
	if w.WSK != nil && *w.WSK != "" {
		wsk = numberToInt(*w.WSK)
	}

	avgBid, _ := w.AvgBid.Float64()

	*c = Candidate{
		Word:           w.Word,
		DestinationKey: w.DestinationKey,
		WSK:            wsk,
		WS:             numberToInt(w.WS),
		NumWords:       numberToInt(w.NumWords),
		IsQuest:        numberToInt(w.IsQuest),
		IsGeo:          numberToInt(w.IsGeo),
		AdsCount:       numberToInt(w.AdsCount),
		AvgBid:         avgBid,
		Docs:           numberToInt(w.Docs),
		Count:          numberToInt(w.Count),
		Offline:        w.Offline,
	}
	return nil
}

func numberToInt(n json.Number) int {
	if n == "" {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return int(math.Round(f))
}

// Phrases extracts the canonical phrase of every candidate, in order.
func Phrases(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Phrase()
	}
	return out
}

// NormalizePhrase normalizes a phrase string by:
// - Converting to lowercase
// - Trimming leading/trailing whitespace
// - Collapsing multiple whitespace characters into a single space
func NormalizePhrase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// ComputePhraseSetHash computes a deterministic SHA-256 hash for a set of
// phrases within a region. Order and duplicates do not change the hash.
func ComputePhraseSetHash(region int, phrases []string) string {
	sorted := make([]string, len(phrases))
	copy(sorted, phrases)
	sort.Strings(sorted)

	var b strings.Builder
	fmt.Fprintf(&b, "%d", region)
	prev := ""
	for i, p := range sorted {
		if i > 0 && p == prev {
			continue
		}
		b.WriteByte('|')
		b.WriteString(p)
		prev = p
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", hash)
}
