package httpserver

import (
	"time"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// Run response types for JSON serialization.

type runResponse struct {
	RunID        string                   `json:"run_id"`
	Niche        string                   `json:"niche"`
	Base         string                   `json:"base"`
	Regions      []int                    `json:"regions"`
	Mode         string                   `json:"mode"`
	Status       string                   `json:"status"`
	JobUID       string                   `json:"job_uid,omitempty"`
	Progress     int                      `json:"progress"`
	SeedCount    int                      `json:"seed_count"`
	ResultCount  int                      `json:"result_count"`
	ErrorKind    string                   `json:"error_kind,omitempty"`
	ErrorMessage string                   `json:"error_message,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	StartedAt    *time.Time               `json:"started_at,omitempty"`
	CompletedAt  *time.Time               `json:"completed_at,omitempty"`
	Duration     string                   `json:"duration,omitempty"`
	Config       *domain.RunConfiguration `json:"configuration,omitempty"`
}

type runSummaryResponse struct {
	RunID       string     `json:"run_id"`
	Niche       string     `json:"niche"`
	Base        string     `json:"base"`
	Status      string     `json:"status"`
	ResultCount int        `json:"result_count"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type listRunsResponse struct {
	Runs          []runSummaryResponse `json:"runs"`
	NextPageToken string               `json:"next_page_token,omitempty"`
	TotalCount    int                  `json:"total_count"`
}

type keywordResponse struct {
	Phrase   string  `json:"phrase"`
	WSK      int     `json:"wsk"`
	WS       int     `json:"ws"`
	NumWords int     `json:"numwords"`
	IsQuest  bool    `json:"isquest"`
	IsGeo    bool    `json:"isgeo"`
	AdsCount int     `json:"adscnt"`
	AvgBid   float64 `json:"avbid"`
	Offline  bool    `json:"offline,omitempty"`
}

type listKeywordsResponse struct {
	Keywords      []keywordResponse `json:"keywords"`
	NextPageToken string            `json:"next_page_token,omitempty"`
	TotalCount    int               `json:"total_count"`
}

type seedsResponse struct {
	Niche string   `json:"niche"`
	Seeds []string `json:"seeds"`
	Count int      `json:"count"`
}

type regionsResponse struct {
	Regions   []domain.Region `json:"regions"`
	MultiBase string          `json:"multi_base"`
}

type runCancelResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type cacheInvalidationResponse struct {
	Region  int   `json:"region"`
	Removed int64 `json:"removed"`
}

// Converter functions

func domainRunToResponse(r *domain.Run) runResponse {
	cfg := r.Configuration
	resp := runResponse{
		RunID:        r.ID.String(),
		Niche:        r.Niche,
		Base:         r.Base,
		Regions:      r.Regions,
		Mode:         string(r.Mode),
		Status:       string(r.Status),
		JobUID:       string(r.JobUID),
		Progress:     r.Progress,
		SeedCount:    r.SeedCount,
		ResultCount:  r.ResultCount,
		ErrorKind:    string(r.ErrorKind),
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		Config:       &cfg,
	}
	if d := r.Duration(); d > 0 {
		resp.Duration = d.String()
	}
	return resp
}

func domainRunToSummary(r *domain.Run) runSummaryResponse {
	return runSummaryResponse{
		RunID:       r.ID.String(),
		Niche:       r.Niche,
		Base:        r.Base,
		Status:      string(r.Status),
		ResultCount: r.ResultCount,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}

func domainCandidateToResponse(c domain.Candidate) keywordResponse {
	return keywordResponse{
		Phrase:   c.Phrase(),
		WSK:      c.WSK,
		WS:       c.WS,
		NumWords: c.NumWords,
		IsQuest:  c.IsQuest == 1,
		IsGeo:    c.IsGeo == 1,
		AdsCount: c.AdsCount,
		AvgBid:   c.AvgBid,
		Offline:  c.Offline,
	}
}
