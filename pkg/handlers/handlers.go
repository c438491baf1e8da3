package handlers

import (
	"context"
	"time"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/identity"
	"github.com/bavena95/mode-app/pkg/services"
	"github.com/google/uuid"
)

// GenerationService is the lifecycle manager as seen by the HTTP layer.
type GenerationService interface {
	Submit(ctx context.Context, user *db.User, in services.SubmitInput) (*db.Generation, error)
	Status(ctx context.Context, user *db.User, kind db.GenerationType, id uuid.UUID) (*db.Generation, error)
	Get(ctx context.Context, user *db.User, kind db.GenerationType, id uuid.UUID) (*db.Generation, error)
	List(ctx context.Context, user *db.User, kind db.GenerationType) ([]db.Generation, error)
}

type ProjectStore interface {
	CreateProject(ctx context.Context, project *db.Project) (*db.Project, error)
	FindProjectByID(ctx context.Context, projectID uuid.UUID) (*db.Project, error)
	FindProjectsByUserID(ctx context.Context, userID uuid.UUID) ([]db.Project, error)
	UpdateProject(ctx context.Context, project *db.Project) error
	DeleteProject(ctx context.Context, projectID, userID uuid.UUID) error
}

type UserDirectory interface {
	ResolveOrCreate(ctx context.Context, ident *identity.ExternalIdentity) (*db.User, error)
	Sync(ctx context.Context, ident *identity.ExternalIdentity) (*db.User, error)
}

type TokenIssuer interface {
	GenerateToken(user *db.User) (string, time.Time, error)
}

// Pinger reports database health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers holds the dependencies of the API endpoints.
type Handlers struct {
	Generations GenerationService
	Projects    ProjectStore
	Users       UserDirectory
	Tokens      TokenIssuer
	DB          Pinger
}

func NewHandlers(generations GenerationService, projects ProjectStore, users UserDirectory, tokens TokenIssuer, pinger Pinger) *Handlers {
	return &Handlers{
		Generations: generations,
		Projects:    projects,
		Users:       users,
		Tokens:      tokens,
		DB:          pinger,
	}
}
