package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// Compile-time interface verification.
var (
	_ RunRepository = (*PgRunRepository)(nil)
	_ KeywordStore  = (*PgRunRepository)(nil)
)

// validStatusTransitions lists, per target status, the statuses a run may
// move from.
var validStatusTransitions = map[domain.RunStatus][]domain.RunStatus{
	domain.RunStatusRunning:   {domain.RunStatusPending},
	domain.RunStatusCompleted: {domain.RunStatusRunning},
	domain.RunStatusFailed:    {domain.RunStatusPending, domain.RunStatusRunning},
}

const runColumns = `id, niche, base, regions, mode, configuration,
	status, job_uid, progress, seed_count, result_count, error_kind, error_message,
	created_at, updated_at, started_at, completed_at`

// PgRunRepository is a PostgreSQL implementation of RunRepository and KeywordStore.
type PgRunRepository struct {
	db DBTX
}

// NewPgRunRepository creates a new PostgreSQL run repository.
func NewPgRunRepository(db DBTX) *PgRunRepository {
	return &PgRunRepository{db: db}
}

// Create inserts a new run.
func (r *PgRunRepository) Create(ctx context.Context, run *domain.Run) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.ID == uuid.Nil {
		return domain.NewValidationError("id", "run ID is required")
	}
	if strings.TrimSpace(run.Niche) == "" {
		return domain.NewValidationError("niche", "niche is required")
	}
	if !run.Mode.Valid() {
		return domain.NewValidationError("mode", fmt.Sprintf("unknown mode %q", run.Mode))
	}

	configJSON, err := json.Marshal(run.Configuration)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	query := `
		INSERT INTO keyword_runs (
			id, niche, base, regions, mode, configuration,
			status, progress, seed_count, result_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		run.ID, run.Niche, run.Base, run.Regions, run.Mode, configJSON,
		run.Status, run.Progress, run.SeedCount, run.ResultCount, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("run %s: %w", run.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
func (r *PgRunRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM keyword_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("run", id.String())
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List returns runs matching filter, newest first.
func (r *PgRunRepository) List(ctx context.Context, filter domain.RunFilter) ([]*domain.Run, int64, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)

	var conditions []string
	var args []any
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Base != "" {
		args = append(args, filter.Base)
		conditions = append(conditions, fmt.Sprintf("base = $%d", len(args)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM keyword_runs %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	selectQuery := fmt.Sprintf(`SELECT %s FROM keyword_runs %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, runColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0, filter.Limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, total, nil
}

// MarkRunning moves a pending run to running.
func (r *PgRunRepository) MarkRunning(ctx context.Context, id uuid.UUID, seedCount int) error {
	now := time.Now().UTC()
	query := `
		UPDATE keyword_runs
		SET status = $2, seed_count = $3, started_at = COALESCE(started_at, $4), updated_at = $4
		WHERE id = $1 AND status = ANY($5)`

	return r.transition(ctx, id, domain.RunStatusRunning, query, seedCount, now)
}

// UpdateProgress records the job handle and progress of a running run.
func (r *PgRunRepository) UpdateProgress(ctx context.Context, id uuid.UUID, jobUID domain.JobHandle, progress int) error {
	progress = min(max(progress, 0), 100)
	query := `
		UPDATE keyword_runs
		SET job_uid = COALESCE($2, job_uid), progress = $3, updated_at = $4
		WHERE id = $1 AND status = $5`

	tag, err := r.db.Exec(ctx, query, id, nullString(string(jobUID)), progress, time.Now().UTC(), domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.explainMiss(ctx, id, domain.RunStatusRunning)
	}
	return nil
}

// MarkCompleted moves a running run to completed.
func (r *PgRunRepository) MarkCompleted(ctx context.Context, id uuid.UUID, resultCount int) error {
	now := time.Now().UTC()
	query := `
		UPDATE keyword_runs
		SET status = $2, result_count = $3, progress = 100, completed_at = $4, updated_at = $4
		WHERE id = $1 AND status = ANY($5)`

	return r.transition(ctx, id, domain.RunStatusCompleted, query, resultCount, now)
}

// MarkFailed moves a pending or running run to failed.
func (r *PgRunRepository) MarkFailed(ctx context.Context, id uuid.UUID, kind domain.FailureKind, message string) error {
	now := time.Now().UTC()
	query := `
		UPDATE keyword_runs
		SET status = $2, error_kind = $3, error_message = $4, completed_at = $5, updated_at = $5
		WHERE id = $1 AND status = ANY($6)`

	return r.transition(ctx, id, domain.RunStatusFailed, query, nullString(string(kind)), nullString(message), now)
}

// transition runs a guarded status update. query must take the run ID as $1,
// the target status as $2, then extra, then the allowed source statuses last.
func (r *PgRunRepository) transition(ctx context.Context, id uuid.UUID, to domain.RunStatus, query string, extra ...any) error {
	from := make([]string, 0, len(validStatusTransitions[to]))
	for _, s := range validStatusTransitions[to] {
		from = append(from, string(s))
	}

	args := append([]any{id, to}, extra...)
	args = append(args, from)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark run %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return r.explainMiss(ctx, id, to)
	}
	return nil
}

// explainMiss distinguishes a missing run from a disallowed transition after
// a guarded update matched no rows.
func (r *PgRunRepository) explainMiss(ctx context.Context, id uuid.UUID, to domain.RunStatus) error {
	var current domain.RunStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM keyword_runs WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("run", id.String())
		}
		return fmt.Errorf("failed to read run status: %w", err)
	}
	return fmt.Errorf("invalid status transition from %s to %s: %w", current, to, domain.ErrInvalidInput)
}

// SaveKeywords replaces the stored candidates of a run in one round trip.
func (r *PgRunRepository) SaveKeywords(ctx context.Context, runID uuid.UUID, cands []domain.Candidate) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM run_keywords WHERE run_id = $1`, runID)

	insert := `
		INSERT INTO run_keywords (
			run_id, position, word, destination_key, wsk, ws, num_words,
			is_quest, is_geo, ads_count, avg_bid, docs, cnt, offline
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	for i, c := range cands {
		batch.Queue(insert,
			runID, i, c.Phrase(), nullString(c.DestinationKey), c.WSK, c.WS, c.NumWords,
			c.IsQuest, c.IsGeo, c.AdsCount, c.AvgBid, c.Docs, c.Count, c.Offline,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	if _, err := br.Exec(); err != nil {
		return fmt.Errorf("failed to clear keywords: %w", err)
	}
	for i := range cands {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save keyword at index %d: %w", i, err)
		}
	}
	return nil
}

// ListKeywords returns a page of a run's candidates in stored order.
func (r *PgRunRepository) ListKeywords(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.Candidate, int64, error) {
	applyPaginationDefaults(&limit, &offset)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM run_keywords WHERE run_id = $1`, runID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count keywords: %w", err)
	}

	query := `
		SELECT word, destination_key, wsk, ws, num_words, is_quest, is_geo,
			ads_count, avg_bid, docs, cnt, offline
		FROM run_keywords
		WHERE run_id = $1
		ORDER BY position
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	cands := make([]domain.Candidate, 0, min(limit, int(total)))
	for rows.Next() {
		var c domain.Candidate
		var destKey *string
		if err := rows.Scan(
			&c.Word, &destKey, &c.WSK, &c.WS, &c.NumWords, &c.IsQuest, &c.IsGeo,
			&c.AdsCount, &c.AvgBid, &c.Docs, &c.Count, &c.Offline,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan keyword: %w", err)
		}
		c.DestinationKey = derefString(destKey)
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating keywords: %w", err)
	}

	return cands, total, nil
}

// runScanDest holds the destination pointers for scanning a run row.
type runScanDest struct {
	run          domain.Run
	configJSON   []byte
	jobUID       *string
	errorKind    *string
	errorMessage *string
}

func (d *runScanDest) destinations() []any {
	return []any{
		&d.run.ID, &d.run.Niche, &d.run.Base, &d.run.Regions, &d.run.Mode, &d.configJSON,
		&d.run.Status, &d.jobUID, &d.run.Progress, &d.run.SeedCount, &d.run.ResultCount,
		&d.errorKind, &d.errorMessage,
		&d.run.CreatedAt, &d.run.UpdatedAt, &d.run.StartedAt, &d.run.CompletedAt,
	}
}

func (d *runScanDest) finalize() (*domain.Run, error) {
	if len(d.configJSON) > 0 {
		if err := json.Unmarshal(d.configJSON, &d.run.Configuration); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
		}
	}
	d.run.JobUID = domain.JobHandle(derefString(d.jobUID))
	d.run.ErrorKind = domain.FailureKind(derefString(d.errorKind))
	d.run.ErrorMessage = derefString(d.errorMessage)
	return &d.run, nil
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var dest runScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
