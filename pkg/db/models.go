package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

type User struct {
	ID         uuid.UUID `db:"id"`
	ExternalID string    `db:"external_id"` // identity provider user id, unique
	Email      string    `db:"email"`
	Username   string    `db:"username"`
	FullName   string    `db:"full_name"`
	AvatarURL  string    `db:"avatar_url"`
	IsActive   bool      `db:"is_active"`
	IsPremium  bool      `db:"is_premium"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

const (
	ProjectTypeImage  = "image"
	ProjectTypeVideo  = "video"
	ProjectTypeDesign = "design"
)

type Project struct {
	ID           uuid.UUID          `db:"id"`
	UserID       uuid.UUID          `db:"user_id"`
	Name         string             `db:"name"`
	Description  string             `db:"description"`
	ProjectType  string             `db:"project_type"`
	Data         types.NullJSONText `db:"data"` // layers, settings, etc.
	ThumbnailURL sql.NullString     `db:"thumbnail_url"`
	IsPublic     bool               `db:"is_public"`
	CreatedAt    time.Time          `db:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at"`
}

// ReadableBy reports whether userID may read the project.
func (p *Project) ReadableBy(userID uuid.UUID) bool {
	return p.UserID == userID || p.IsPublic
}

type GenerationType string

const (
	GenerationTypeImage GenerationType = "image"
	GenerationTypeVideo GenerationType = "video"
)

type GenerationStatus string

const (
	StatusPending    GenerationStatus = "pending"
	StatusProcessing GenerationStatus = "processing"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s GenerationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Generation struct {
	ID             uuid.UUID        `db:"id"`
	UserID         uuid.UUID        `db:"user_id"`
	ProjectID      uuid.NullUUID    `db:"project_id"`
	GenerationType GenerationType   `db:"generation_type"`
	ModelName      string           `db:"model_name"`
	Prompt         string           `db:"prompt"`
	NegativePrompt sql.NullString   `db:"negative_prompt"`
	EnhancedPrompt sql.NullString   `db:"enhanced_prompt"` // what was sent to the provider, when rewritten
	Parameters     types.JSONText   `db:"parameters"`
	ProviderJobID  string           `db:"provider_job_id"`
	Status         GenerationStatus `db:"status"`
	ResultURL      sql.NullString   `db:"result_url"`
	ErrorMessage   sql.NullString   `db:"error_message"`
	ProcessingTime sql.NullFloat64  `db:"processing_time"`
	Cost           sql.NullFloat64  `db:"cost"`
	CreatedAt      time.Time        `db:"created_at"`
	CompletedAt    sql.NullTime     `db:"completed_at"`
}

// NewGeneration builds an unsaved record. Pending is only the constructor
// default; records are persisted once the provider has accepted the job.
func NewGeneration(userID uuid.UUID, kind GenerationType, model, prompt string) *Generation {
	return &Generation{
		UserID:         userID,
		GenerationType: kind,
		ModelName:      model,
		Prompt:         prompt,
		Parameters:     types.JSONText("{}"),
		Status:         StatusPending,
	}
}

// PromptSent returns the prompt text the provider received.
func (g *Generation) PromptSent() string {
	if g.EnhancedPrompt.Valid && g.EnhancedPrompt.String != "" {
		return g.EnhancedPrompt.String
	}
	return g.Prompt
}
