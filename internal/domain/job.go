package domain

// JobHandle identifies a server-side asynchronous expansion job. A handle is
// never reused after a terminal state has been observed.
type JobHandle string

// JobState is the state code the analytics service reports for a job.
type JobState int

const (
	// JobStateFailed is the terminal failure state.
	JobStateFailed JobState = 2
	// JobStateSucceeded is the terminal success state.
	JobStateSucceeded JobState = 10
)

// IsTerminal reports whether no further transitions are expected.
func (s JobState) IsTerminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// String returns a label suitable for logs.
func (s JobState) String() string {
	switch s {
	case JobStateSucceeded:
		return "succeeded"
	case JobStateFailed:
		return "failed"
	default:
		return "in_progress"
	}
}

// JobStatus is one observation of a job: its state and a 0-100 progress value.
type JobStatus struct {
	State    JobState `json:"state"`
	Progress int      `json:"progress"`
}

// ExpansionConfig carries the tuning knobs of an expansion job.
type ExpansionConfig struct {
	Similarity      int  `json:"similarity"`
	DeleteDuplicate bool `json:"deleteDuplicate"`
	Additions       bool `json:"additions"`
}

// DefaultSimilarity is the similarity used for every expansion job.
const DefaultSimilarity = 30

// ExpansionParams describes a new expansion job.
type ExpansionParams struct {
	Base    string
	Phrases []string
	Config  ExpansionConfig
}

// NewExpansionParams returns params with the fixed similarity and both
// duplicate deletion and additions enabled.
func NewExpansionParams(base string, phrases []string) ExpansionParams {
	return ExpansionParams{
		Base:    base,
		Phrases: phrases,
		Config: ExpansionConfig{
			Similarity:      DefaultSimilarity,
			DeleteDuplicate: true,
			Additions:       true,
		},
	}
}

// PageQuery selects one page of expansion results. Page is 1-indexed.
type PageQuery struct {
	Page    int
	PerPage int
	Filter  string
	Sort    string
}

// Page is one page of expansion results. Total is informational only.
type Page struct {
	Data  []Candidate `json:"data"`
	Total int         `json:"total"`
}
