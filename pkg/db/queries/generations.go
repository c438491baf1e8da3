package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const generationColumns = `id, user_id, project_id, generation_type, model_name, prompt, negative_prompt, enhanced_prompt,
	parameters, provider_job_id, status, result_url, error_message, processing_time, cost, created_at, completed_at`

// ErrProjectMissing is returned by CreateGeneration when project_id references no project.
var ErrProjectMissing = errors.New("referenced project does not exist")

// ErrDuplicateJob is returned by CreateGeneration when another record already
// carries the provider job id.
var ErrDuplicateJob = errors.New("provider job already recorded")

// CompletionResult is what a successful terminal transition records.
type CompletionResult struct {
	ResultURL      string
	ProcessingTime *float64
	Cost           *float64
	CompletedAt    time.Time
}

type GenerationQueries struct {
	db *sqlx.DB
}

func NewGenerationQueries(dbx *sqlx.DB) *GenerationQueries {
	return &GenerationQueries{db: dbx}
}

// CreateGeneration stores a submitted generation in a single statement, so the
// provider job id and its status become visible together.
func (q *GenerationQueries) CreateGeneration(ctx context.Context, gen *db.Generation) error {
	query := `
		INSERT INTO generations (user_id, project_id, generation_type, model_name, prompt, negative_prompt,
			enhanced_prompt, parameters, provider_job_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := q.db.QueryRowxContext(ctx, query,
		gen.UserID, gen.ProjectID, gen.GenerationType, gen.ModelName, gen.Prompt, gen.NegativePrompt,
		gen.EnhancedPrompt, gen.Parameters, gen.ProviderJobID, gen.Status,
	).Scan(&gen.ID, &gen.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch {
			case pqErr.Code == "23503" && pqErr.Constraint == "generations_project_id_fkey":
				return ErrProjectMissing
			case pqErr.Code == "23505" && pqErr.Constraint == "generations_provider_job_id_key":
				return ErrDuplicateJob
			}
		}
		log.Errorf("Error creating generation for job '%s': %v", gen.ProviderJobID, err)
		return fmt.Errorf("failed to create generation: %w", err)
	}

	log.Debugf("Generation %s stored with status '%s' (job %s).", gen.ID.String(), gen.Status, gen.ProviderJobID)
	return nil
}

// FindGenerationByID returns nil, nil when the generation does not exist.
func (q *GenerationQueries) FindGenerationByID(ctx context.Context, id uuid.UUID) (*db.Generation, error) {
	return q.findOne(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = $1`, id)
}

// FindGenerationByProviderJobID returns nil, nil when no generation carries that job id.
func (q *GenerationQueries) FindGenerationByProviderJobID(ctx context.Context, jobID string) (*db.Generation, error) {
	return q.findOne(ctx, `SELECT `+generationColumns+` FROM generations WHERE provider_job_id = $1`, jobID)
}

func (q *GenerationQueries) findOne(ctx context.Context, query string, arg any) (*db.Generation, error) {
	gen := &db.Generation{}
	if err := q.db.GetContext(ctx, gen, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Errorf("Error finding generation by %v: %v", arg, err)
		return nil, fmt.Errorf("error finding generation: %w", err)
	}
	return gen, nil
}

// ListGenerationsByUserAndType returns newest first; (created_at, id) is the stable sort key.
func (q *GenerationQueries) ListGenerationsByUserAndType(ctx context.Context, userID uuid.UUID, kind db.GenerationType) ([]db.Generation, error) {
	gens := []db.Generation{}
	query := `SELECT ` + generationColumns + ` FROM generations
		WHERE user_id = $1 AND generation_type = $2
		ORDER BY created_at DESC, id DESC`
	if err := q.db.SelectContext(ctx, &gens, query, userID, kind); err != nil {
		log.Errorf("Error listing %s generations for user ID '%s': %v", kind, userID.String(), err)
		return nil, fmt.Errorf("error listing generations: %w", err)
	}
	return gens, nil
}

// ListProcessingGenerations returns up to limit non-terminal records, oldest first.
func (q *GenerationQueries) ListProcessingGenerations(ctx context.Context, limit int) ([]db.Generation, error) {
	gens := []db.Generation{}
	query := `SELECT ` + generationColumns + ` FROM generations
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`
	if err := q.db.SelectContext(ctx, &gens, query, db.StatusProcessing, limit); err != nil {
		log.Errorf("Error listing processing generations: %v", err)
		return nil, fmt.Errorf("error listing processing generations: %w", err)
	}
	return gens, nil
}

// MarkGenerationCompleted moves a processing record to completed. It reports
// false when the record was no longer processing.
func (q *GenerationQueries) MarkGenerationCompleted(ctx context.Context, id uuid.UUID, res CompletionResult) (bool, error) {
	query := `
		UPDATE generations
		SET status = $2, result_url = $3, processing_time = $4, cost = $5, completed_at = $6
		WHERE id = $1 AND status = $7`

	result, err := q.db.ExecContext(ctx, query, id, db.StatusCompleted, res.ResultURL,
		nullFloat(res.ProcessingTime), nullFloat(res.Cost), res.CompletedAt, db.StatusProcessing)
	if err != nil {
		log.Errorf("Error completing generation '%s': %v", id.String(), err)
		return false, fmt.Errorf("failed to complete generation: %w", err)
	}
	return affectedOne(result)
}

// MarkGenerationFailed moves a processing record to failed. It reports false
// when the record was no longer processing.
func (q *GenerationQueries) MarkGenerationFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) (bool, error) {
	query := `
		UPDATE generations
		SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1 AND status = $5`

	result, err := q.db.ExecContext(ctx, query, id, db.StatusFailed, message, at, db.StatusProcessing)
	if err != nil {
		log.Errorf("Error failing generation '%s': %v", id.String(), err)
		return false, fmt.Errorf("failed to mark generation failed: %w", err)
	}
	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
