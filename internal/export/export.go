// Package export writes keyword results as CSV, JSON and a plain-text report.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// Format selects which data files are written.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatBoth Format = "both"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatJSON, FormatBoth:
		return f, nil
	case "":
		return FormatBoth, nil
	default:
		return "", domain.NewConfigError("format", fmt.Sprintf("unsupported export format %q (want csv, json or both)", s))
	}
}

// WantsCSV reports whether f includes CSV output.
func (f Format) WantsCSV() bool { return f == FormatCSV || f == FormatBoth }

// WantsJSON reports whether f includes JSON output.
func (f Format) WantsJSON() bool { return f == FormatJSON || f == FormatBoth }

// Columns is the fixed CSV column order.
var Columns = []string{"word", "wsk", "ws", "numwords", "isquest", "isgeo", "adscnt", "avbid", "docs", "cnt"}

// SortCandidates orders candidates by exact frequency ascending, then word
// count descending. Candidates without a frequency carry domain.MissingWSK
// and sort last. The input is not modified.
func SortCandidates(cands []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WSK != out[j].WSK {
			return out[i].WSK < out[j].WSK
		}
		return out[i].NumWords > out[j].NumWords
	})
	return out
}

// WriteCSV writes a header row and one row per candidate.
func WriteCSV(w io.Writer, cands []domain.Candidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, c := range cands {
		row := []string{
			c.Phrase(),
			strconv.Itoa(c.WSK),
			strconv.Itoa(c.WS),
			strconv.Itoa(c.NumWords),
			strconv.Itoa(c.IsQuest),
			strconv.Itoa(c.IsGeo),
			strconv.Itoa(c.AdsCount),
			strconv.FormatFloat(c.AvgBid, 'f', -1, 64),
			strconv.Itoa(c.Docs),
			strconv.Itoa(c.Count),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record is the exported form of a candidate: the canonical phrase lives
// under "word" and destination_key is dropped.
type Record struct {
	Word     string  `json:"word"`
	WSK      int     `json:"wsk"`
	WS       int     `json:"ws"`
	NumWords int     `json:"numwords"`
	IsQuest  int     `json:"isquest"`
	IsGeo    int     `json:"isgeo"`
	AdsCount int     `json:"adscnt"`
	AvgBid   float64 `json:"avbid"`
	Docs     int     `json:"docs"`
	Count    int     `json:"cnt"`
	Offline  bool    `json:"offline,omitempty"`
}

// ToRecords converts candidates to export records.
func ToRecords(cands []domain.Candidate) []Record {
	out := make([]Record, len(cands))
	for i, c := range cands {
		out[i] = Record{
			Word:     c.Phrase(),
			WSK:      c.WSK,
			WS:       c.WS,
			NumWords: c.NumWords,
			IsQuest:  c.IsQuest,
			IsGeo:    c.IsGeo,
			AdsCount: c.AdsCount,
			AvgBid:   c.AvgBid,
			Docs:     c.Docs,
			Count:    c.Count,
			Offline:  c.Offline,
		}
	}
	return out
}

// WriteJSON writes candidates as an indented JSON array of records.
func WriteJSON(w io.Writer, cands []domain.Candidate) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ToRecords(cands)); err != nil {
		return fmt.Errorf("writing json: %w", err)
	}
	return nil
}

// FileSet names the files produced by one run.
type FileSet struct {
	CSV    string
	JSON   string
	Report string
}

// timestampLayout renders as YYYYMMDD_HHMMSS.
const timestampLayout = "20060102_150405"

// Files returns the output paths for a run against base finished at now.
func Files(dir, base string, now time.Time) FileSet {
	ts := now.Format(timestampLayout)
	stem := fmt.Sprintf("keywords_%s_%s", base, ts)
	return FileSet{
		CSV:    filepath.Join(dir, stem+".csv"),
		JSON:   filepath.Join(dir, stem+".json"),
		Report: filepath.Join(dir, fmt.Sprintf("report_%s_%s.txt", base, ts)),
	}
}
