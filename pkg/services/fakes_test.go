package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/db/queries"
	"github.com/bavena95/mode-app/pkg/provider"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory GenerationStore and ProjectLookup with the same
// guarded-update semantics as the SQL queries.
type memStore struct {
	mu       sync.Mutex
	gens     map[uuid.UUID]*db.Generation
	projects map[uuid.UUID]*db.Project
	clock    time.Time
}

func newMemStore() *memStore {
	return &memStore{
		gens:     map[uuid.UUID]*db.Generation{},
		projects: map[uuid.UUID]*db.Project{},
		clock:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) CreateGeneration(ctx context.Context, gen *db.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen.ProjectID.Valid {
		if _, ok := s.projects[gen.ProjectID.UUID]; !ok {
			return queries.ErrProjectMissing
		}
	}
	for _, other := range s.gens {
		if other.ProviderJobID == gen.ProviderJobID {
			return queries.ErrDuplicateJob
		}
	}
	gen.ID = uuid.New()
	s.clock = s.clock.Add(time.Second)
	gen.CreatedAt = s.clock
	cp := *gen
	s.gens[gen.ID] = &cp
	return nil
}

func (s *memStore) FindGenerationByID(ctx context.Context, id uuid.UUID) (*db.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.gens[id]
	if !ok {
		return nil, nil
	}
	cp := *gen
	return &cp, nil
}

func (s *memStore) FindGenerationByProviderJobID(ctx context.Context, jobID string) (*db.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, gen := range s.gens {
		if gen.ProviderJobID == jobID {
			cp := *gen
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListGenerationsByUserAndType(ctx context.Context, userID uuid.UUID, kind db.GenerationType) ([]db.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Generation
	for _, gen := range s.gens {
		if gen.UserID == userID && gen.GenerationType == kind {
			out = append(out, *gen)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListProcessingGenerations(ctx context.Context, limit int) ([]db.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Generation
	for _, gen := range s.gens {
		if gen.Status == db.StatusProcessing {
			out = append(out, *gen)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkGenerationCompleted(ctx context.Context, id uuid.UUID, res queries.CompletionResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.gens[id]
	if !ok || gen.Status != db.StatusProcessing {
		return false, nil
	}
	gen.Status = db.StatusCompleted
	gen.ResultURL = sql.NullString{String: res.ResultURL, Valid: true}
	if res.ProcessingTime != nil {
		gen.ProcessingTime = sql.NullFloat64{Float64: *res.ProcessingTime, Valid: true}
	}
	if res.Cost != nil {
		gen.Cost = sql.NullFloat64{Float64: *res.Cost, Valid: true}
	}
	gen.CompletedAt = sql.NullTime{Time: res.CompletedAt, Valid: true}
	return true, nil
}

func (s *memStore) MarkGenerationFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.gens[id]
	if !ok || gen.Status != db.StatusProcessing {
		return false, nil
	}
	gen.Status = db.StatusFailed
	gen.ErrorMessage = sql.NullString{String: message, Valid: true}
	gen.CompletedAt = sql.NullTime{Time: at, Valid: true}
	return true, nil
}

func (s *memStore) FindProjectByID(ctx context.Context, id uuid.UUID) (*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gens)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Submit(ctx context.Context, req provider.SubmitRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) Poll(ctx context.Context, job provider.Job) (provider.Status, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(provider.Status), args.Error(1)
}

func (m *mockProvider) FetchResult(ctx context.Context, job provider.Job) (*provider.Result, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Result), args.Error(1)
}

type mockEnhancer struct {
	mock.Mock
}

func (m *mockEnhancer) EnhancePrompt(ctx context.Context, kind, prompt string) (string, error) {
	args := m.Called(ctx, kind, prompt)
	return args.String(0), args.Error(1)
}

func testUser() *db.User {
	return &db.User{ID: uuid.New(), ExternalID: "ext-" + uuid.NewString()[:8], IsActive: true}
}

func imageInput(prompt string) SubmitInput {
	return SubmitInput{
		Kind:   db.GenerationTypeImage,
		Model:  "fal-ai/flux/schnell",
		Prompt: prompt,
		Image:  &provider.ImageParams{Width: 1024, Height: 1024, NumImages: 1, GuidanceScale: 7.5, NumInferenceSteps: 50},
	}
}

func videoInput(prompt string) SubmitInput {
	return SubmitInput{
		Kind:   db.GenerationTypeVideo,
		Model:  "fal-ai/runway-gen3/turbo/image-to-video",
		Prompt: prompt,
		Video:  &provider.VideoParams{Duration: 5, FPS: 24, Width: 1024, Height: 576},
	}
}
