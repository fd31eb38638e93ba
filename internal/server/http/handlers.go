package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/export"
	"github.com/helixir/keyword-hunter/internal/seeds"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 1000
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	exportBatchSize    = 1000
	defaultSeedCount   = 100
)

// createRunRequest is the JSON request body for starting a run. Omitted
// fields take the server defaults.
type createRunRequest struct {
	Niche       string   `json:"niche" validate:"required,min=2,max=200"`
	Base        string   `json:"base,omitempty" validate:"omitempty,max=32"`
	Region      int      `json:"region,omitempty" validate:"gte=0"`
	Mode        string   `json:"mode,omitempty" validate:"omitempty,oneof=single multi offline"`
	SeedTargets []string `json:"seed_targets,omitempty" validate:"max=100,dive,min=2,max=200"`
	SeedCount   *int     `json:"seed_count,omitempty" validate:"omitempty,gte=1,lte=1000"`
	WSK         *int     `json:"wsk_threshold,omitempty" validate:"omitempty,gte=0"`
	WS          *int     `json:"ws_threshold,omitempty" validate:"omitempty,gte=0"`
	MinNumWords *int     `json:"min_num_words,omitempty" validate:"omitempty,gte=1,lte=20"`
	StopWords   []string `json:"stop_words,omitempty" validate:"max=100,dive,min=1,max=64"`
	SafeFilters *bool    `json:"safe_filters,omitempty"`
	RawFilter   string   `json:"raw_filter,omitempty" validate:"max=500"`
	MaxResults  *int     `json:"max_results,omitempty" validate:"omitempty,gte=1,lte=100000"`
}

// seedsRequest is the JSON request body for seed generation.
type seedsRequest struct {
	Niche   string   `json:"niche" validate:"required,min=2,max=200"`
	Targets []string `json:"targets,omitempty" validate:"max=100,dive,min=2,max=200"`
	Count   int      `json:"count,omitempty" validate:"gte=0,lte=1000"`
}

// decodeBody reads and validates a JSON body into dst, writing a 400 on
// failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage names the first failing field and rule.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
	return "invalid request"
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// specFromRequest overlays req on the server defaults.
func (s *Server) specFromRequest(req createRunRequest) domain.RunSpec {
	spec := s.defaults
	cfg := spec.Configuration
	cfg.StopWords = append([]string(nil), cfg.StopWords...)

	spec.Niche = strings.TrimSpace(req.Niche)
	if req.Base != "" {
		spec.Base = strings.ToLower(strings.TrimSpace(req.Base))
		spec.Region = 0
	}
	if req.Region > 0 {
		spec.Region = req.Region
	}
	if req.Mode != "" {
		spec.Mode = domain.RunMode(req.Mode)
	}
	if req.SeedTargets != nil {
		cfg.SeedTargets = req.SeedTargets
	}
	if req.SeedCount != nil {
		cfg.SeedCount = *req.SeedCount
	}
	if req.WSK != nil {
		cfg.WSKThreshold = *req.WSK
	}
	if req.WS != nil {
		cfg.WSThreshold = *req.WS
	}
	if req.MinNumWords != nil {
		cfg.MinNumWords = *req.MinNumWords
	}
	if req.StopWords != nil {
		cfg.StopWords = req.StopWords
	}
	if req.SafeFilters != nil {
		cfg.SafeFilters = *req.SafeFilters
	}
	if req.RawFilter != "" {
		cfg.RawFilter = req.RawFilter
	}
	if req.MaxResults != nil {
		cfg.MaxResults = *req.MaxResults
	}
	spec.Configuration = cfg
	return spec
}

// createRun handles POST /api/v1/runs.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	run, err := s.runs.Submit(r.Context(), s.specFromRequest(req))
	if err != nil {
		s.logger.Warn().Err(err).Msg("run submission failed")
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID.String())
	writeJSON(w, http.StatusAccepted, domainRunToResponse(run))
}

// getRun handles GET /api/v1/runs/{runID}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, err := s.reader.Get(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainRunToResponse(run))
}

// listRuns handles GET /api/v1/runs.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	filter := domain.RunFilter{
		Base:   strings.ToLower(r.URL.Query().Get("base")),
		Limit:  limit,
		Offset: offset,
	}
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := domain.RunStatus(statusParam)
		switch status {
		case domain.RunStatusPending, domain.RunStatusRunning, domain.RunStatusCompleted, domain.RunStatusFailed:
		default:
			writeError(w, http.StatusBadRequest, "status must be one of pending, running, completed, failed")
			return
		}
		filter.Status = &status
	}

	runs, totalCount, err := s.reader.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]runSummaryResponse, len(runs))
	for i, run := range runs {
		summaries[i] = domainRunToSummary(run)
	}

	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:          summaries,
		NextPageToken: encodeHTTPPageToken(offset, limit, int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// getRunKeywords handles GET /api/v1/runs/{runID}/keywords.
func (s *Server) getRunKeywords(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := s.reader.Get(ctx, runID); err != nil {
		writeDomainError(w, err)
		return
	}

	limit, offset := parsePaginationParams(r)
	cands, totalCount, err := s.reader.ListKeywords(ctx, runID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	keywords := make([]keywordResponse, len(cands))
	for i, c := range cands {
		keywords[i] = domainCandidateToResponse(c)
	}

	writeJSON(w, http.StatusOK, listKeywordsResponse{
		Keywords:      keywords,
		NextPageToken: encodeHTTPPageToken(offset, limit, int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// exportRun handles GET /api/v1/runs/{runID}/export. It streams every
// keyword of a completed run as CSV or JSON, sorted like the file export.
func (s *Server) exportRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	format := export.FormatCSV
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := export.ParseFormat(f)
		if err != nil || parsed == export.FormatBoth {
			writeError(w, http.StatusBadRequest, "format must be csv or json")
			return
		}
		format = parsed
	}

	ctx := r.Context()
	run, err := s.reader.Get(ctx, runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if run.Status != domain.RunStatusCompleted {
		writeError(w, http.StatusConflict, "run is not completed")
		return
	}

	var all []domain.Candidate
	for offset := 0; ; offset += exportBatchSize {
		batch, total, err := s.reader.ListKeywords(ctx, runID, exportBatchSize, offset)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		all = append(all, batch...)
		if len(batch) == 0 || int64(len(all)) >= total {
			break
		}
	}
	all = export.SortCandidates(all)

	finished := run.CreatedAt
	if run.CompletedAt != nil {
		finished = *run.CompletedAt
	}
	files := export.Files("", run.Base, finished)

	name, contentType := files.CSV, "text/csv; charset=utf-8"
	if format == export.FormatJSON {
		name, contentType = files.JSON, "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(name)))
	w.WriteHeader(http.StatusOK)

	if format == export.FormatJSON {
		err = export.WriteJSON(w, all)
	} else {
		err = export.WriteCSV(w, all)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("export write failed")
	}
}

// generateSeeds handles POST /api/v1/seeds. No analytics API call is made.
func (s *Server) generateSeeds(w http.ResponseWriter, r *http.Request) {
	var req seedsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	count := req.Count
	if count == 0 {
		count = s.defaults.Configuration.SeedCount
	}
	if count <= 0 {
		count = defaultSeedCount
	}

	niche := strings.TrimSpace(req.Niche)
	list := seeds.NewGenerator(niche, req.Targets).Generate(count)
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, seedsResponse{Niche: niche, Seeds: list, Count: len(list)})
}

// listRegions handles GET /api/v1/regions.
func (s *Server) listRegions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, regionsResponse{Regions: domain.Regions(), MultiBase: domain.MultiBase})
}

// invalidateSuggestions handles DELETE /api/v1/cache/suggestions/{region}.
func (s *Server) invalidateSuggestions(w http.ResponseWriter, r *http.Request) {
	region, err := strconv.Atoi(chi.URLParam(r, "region"))
	if err != nil || region < 0 {
		writeError(w, http.StatusBadRequest, "region must be a non-negative integer")
		return
	}

	removed, err := s.cache.Invalidate(r.Context(), region)
	if err != nil {
		s.logger.Error().Err(err).Int("region", region).Msg("suggestion cache invalidation failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info().Int("region", region).Int64("removed", removed).Msg("suggestion cache invalidated")
	writeJSON(w, http.StatusOK, cacheInvalidationResponse{Region: region, Removed: removed})
}

// cancelRun handles POST /api/v1/runs/{runID}/cancel.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, err := s.reader.Get(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !run.IsActive() {
		writeError(w, http.StatusConflict, fmt.Sprintf("run is already %s", run.Status))
		return
	}

	if err := s.workflows.CancelRun(r.Context(), runID); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("run cancellation failed")
		writeError(w, http.StatusBadGateway, "run could not be cancelled")
		return
	}

	s.logger.Info().Str("run_id", runID.String()).Msg("run cancellation requested")
	writeJSON(w, http.StatusAccepted, runCancelResponse{RunID: runID.String(), Status: "cancelling"})
}

// writeDomainError maps domain errors to HTTP status codes and writes a JSON
// error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var ve *domain.ValidationError
	var ce *domain.ConfigError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &ce):
		writeError(w, http.StatusBadRequest, ce.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts page_size and page_token from query parameters.
// It applies default and maximum bounds to the page size.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodeHTTPPageToken encodes the next offset as a base64 page token.
// Returns an empty string if there are no more results.
func encodeHTTPPageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
