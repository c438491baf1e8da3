package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bavena95/mode-app/pkg/apperrors"
	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/identity"
	"github.com/bavena95/mode-app/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGenerations struct {
	mock.Mock
}

func (m *mockGenerations) Submit(ctx context.Context, user *db.User, in services.SubmitInput) (*db.Generation, error) {
	args := m.Called(ctx, user, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Generation), args.Error(1)
}

func (m *mockGenerations) Status(ctx context.Context, user *db.User, kind db.GenerationType, id uuid.UUID) (*db.Generation, error) {
	args := m.Called(ctx, user, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Generation), args.Error(1)
}

func (m *mockGenerations) Get(ctx context.Context, user *db.User, kind db.GenerationType, id uuid.UUID) (*db.Generation, error) {
	args := m.Called(ctx, user, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Generation), args.Error(1)
}

func (m *mockGenerations) List(ctx context.Context, user *db.User, kind db.GenerationType) ([]db.Generation, error) {
	args := m.Called(ctx, user, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.Generation), args.Error(1)
}

type mockProjects struct {
	mock.Mock
}

func (m *mockProjects) CreateProject(ctx context.Context, project *db.Project) (*db.Project, error) {
	args := m.Called(ctx, project)
	if fn, ok := args.Get(0).(func(context.Context, *db.Project) *db.Project); ok {
		return fn(ctx, project), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Project), args.Error(1)
}

func (m *mockProjects) FindProjectByID(ctx context.Context, projectID uuid.UUID) (*db.Project, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Project), args.Error(1)
}

func (m *mockProjects) FindProjectsByUserID(ctx context.Context, userID uuid.UUID) ([]db.Project, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.Project), args.Error(1)
}

func (m *mockProjects) UpdateProject(ctx context.Context, project *db.Project) error {
	return m.Called(ctx, project).Error(0)
}

func (m *mockProjects) DeleteProject(ctx context.Context, projectID, userID uuid.UUID) error {
	return m.Called(ctx, projectID, userID).Error(0)
}

// staticUsers resolves every identity to the same user.
type staticUsers struct {
	user   *db.User
	synced *identity.ExternalIdentity
}

func (s *staticUsers) ResolveOrCreate(ctx context.Context, ident *identity.ExternalIdentity) (*db.User, error) {
	return s.user, nil
}

func (s *staticUsers) Sync(ctx context.Context, ident *identity.ExternalIdentity) (*db.User, error) {
	s.synced = ident
	u := *s.user
	if ident.Email != nil {
		u.Email = *ident.Email
	}
	return &u, nil
}

type tokenFunc func(user *db.User) (string, time.Time, error)

func (f tokenFunc) GenerateToken(user *db.User) (string, time.Time, error) { return f(user) }

type fixture struct {
	router      *gin.Engine
	user        *db.User
	users       *staticUsers
	generations *mockGenerations
	projects    *mockProjects
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		user:        &db.User{ID: uuid.New(), ExternalID: "stack-1", Email: "a@x.io", IsActive: true},
		generations: new(mockGenerations),
		projects:    new(mockProjects),
	}
	f.users = &staticUsers{user: f.user}

	verifier := identity.VerifierFunc(func(ctx context.Context, credential string) (*identity.ExternalIdentity, error) {
		if credential != "good" {
			return nil, apperrors.NewAuthError(nil)
		}
		email := "new@x.io"
		return &identity.ExternalIdentity{ID: "stack-1", Email: &email}, nil
	})
	tokens := tokenFunc(func(user *db.User) (string, time.Time, error) {
		return "session-" + user.ExternalID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil
	})

	h := NewHandlers(f.generations, f.projects, f.users, tokens, nil)
	f.router = NewRouter(h, verifier, []string{"http://localhost:3000"})
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func processingGeneration(userID uuid.UUID, kind db.GenerationType) *db.Generation {
	return &db.Generation{
		ID:             uuid.New(),
		UserID:         userID,
		GenerationType: kind,
		ModelName:      DefaultImageModel,
		Prompt:         "a cat",
		Parameters:     types.JSONText(`{"width":1024}`),
		ProviderJobID:  "req-1",
		Status:         db.StatusProcessing,
		CreatedAt:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "modeapp_http_request_duration_seconds")
}

func TestUnauthenticated(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/images/generate", bytes.NewBufferString(`{"prompt":"a cat"}`))
	req.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	f.generations.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateImage_AppliesDefaults(t *testing.T) {
	f := newFixture(t)
	gen := processingGeneration(f.user.ID, db.GenerationTypeImage)

	f.generations.On("Submit", mock.Anything, f.user, mock.MatchedBy(func(in services.SubmitInput) bool {
		return in.Kind == db.GenerationTypeImage &&
			in.Model == DefaultImageModel &&
			in.Prompt == "a cat" &&
			in.Image.Width == 1024 && in.Image.Height == 1024 &&
			in.Image.NumImages == 1 && in.Image.GuidanceScale == 7.5 && in.Image.NumInferenceSteps == 50 &&
			in.Video == nil
	})).Return(gen, nil)

	w := f.do(http.MethodPost, "/images/generate", map[string]any{"prompt": "  a cat "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got GenerationResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, gen.ID, got.ID)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "processing", got.Status)
	assert.Nil(t, got.ResultURL)
	assert.Nil(t, got.CompletedAt)
}

func TestGenerateVideo_AppliesDefaults(t *testing.T) {
	f := newFixture(t)
	gen := processingGeneration(f.user.ID, db.GenerationTypeVideo)

	f.generations.On("Submit", mock.Anything, f.user, mock.MatchedBy(func(in services.SubmitInput) bool {
		return in.Kind == db.GenerationTypeVideo && in.Model == DefaultVideoModel &&
			in.Video.Duration == 5 && in.Video.FPS == 24 && in.Video.Width == 1024 && in.Video.Height == 576
	})).Return(gen, nil)

	w := f.do(http.MethodPost, "/videos/generate", map[string]any{"prompt": "waves"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGenerateVideo_IgnoresNegativePrompt(t *testing.T) {
	f := newFixture(t)
	gen := processingGeneration(f.user.ID, db.GenerationTypeVideo)

	f.generations.On("Submit", mock.Anything, f.user, mock.MatchedBy(func(in services.SubmitInput) bool {
		return in.Kind == db.GenerationTypeVideo && in.NegativePrompt == ""
	})).Return(gen, nil)

	w := f.do(http.MethodPost, "/videos/generate", map[string]any{"prompt": "waves", "negative_prompt": "blurry"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.generations.AssertExpectations(t)
}

func TestGenerate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"missing prompt", "/images/generate", `{}`},
		{"blank prompt", "/images/generate", `{"prompt":"   "}`},
		{"width too small", "/images/generate", `{"prompt":"a","width":100}`},
		{"too many images", "/images/generate", `{"prompt":"a","num_images":5}`},
		{"guidance out of range", "/images/generate", `{"prompt":"a","guidance_scale":25}`},
		{"duration too long", "/videos/generate", `{"prompt":"a","duration":11}`},
		{"fps too low", "/videos/generate", `{"prompt":"a","fps":5}`},
		{"bad project id", "/videos/generate", `{"prompt":"a","project_id":"nope"}`},
		{"malformed json", "/images/generate", `{"prompt":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			assert.False(t, decode(t, w).Success)
			f.generations.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGenerate_ValidationReportsJSONFieldNames(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/images/generate", `{"prompt":"a","num_inference_steps":5}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, string(decode(t, w).Error), `"field":"num_inference_steps"`)
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"provider", apperrors.NewProviderError("submit", errors.New("boom")), http.StatusInternalServerError},
		{"missing project", apperrors.NewNotFoundError("project"), http.StatusNotFound},
		{"foreign project", apperrors.NewAuthorizationError("project"), http.StatusForbidden},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.generations.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			w := f.do(http.MethodPost, "/images/generate", `{"prompt":"a cat"}`)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestGenerationStatus(t *testing.T) {
	f := newFixture(t)
	gen := processingGeneration(f.user.ID, db.GenerationTypeImage)
	gen.Status = db.StatusCompleted
	gen.ResultURL = sql.NullString{String: "https://x/1.png", Valid: true}
	gen.CompletedAt = sql.NullTime{Time: gen.CreatedAt.Add(time.Minute), Valid: true}
	f.generations.On("Status", mock.Anything, f.user, db.GenerationTypeImage, gen.ID).Return(gen, nil)

	w := f.do(http.MethodGet, "/images/generations/"+gen.ID.String()+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got StatusResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, "completed", got.Status)
	require.NotNil(t, got.ResultURL)
	assert.Equal(t, "https://x/1.png", *got.ResultURL)
	assert.Nil(t, got.ErrorMessage)
}

func TestGenerationStatus_Errors(t *testing.T) {
	f := newFixture(t)
	missing, foreign := uuid.New(), uuid.New()
	f.generations.On("Status", mock.Anything, mock.Anything, db.GenerationTypeVideo, missing).Return(nil, apperrors.NewNotFoundError("generation"))
	f.generations.On("Status", mock.Anything, mock.Anything, db.GenerationTypeVideo, foreign).Return(nil, apperrors.NewAuthorizationError("generation"))

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/videos/generations/"+missing.String()+"/status", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/videos/generations/"+foreign.String()+"/status", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/videos/generations/not-a-uuid/status", nil).Code)
}

func TestGetGenerationDoesNotReconcile(t *testing.T) {
	f := newFixture(t)
	gen := processingGeneration(f.user.ID, db.GenerationTypeImage)
	f.generations.On("Get", mock.Anything, f.user, db.GenerationTypeImage, gen.ID).Return(gen, nil)

	w := f.do(http.MethodGet, "/images/generations/"+gen.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	f.generations.AssertNotCalled(t, "Status", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	var got GenerationResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.JSONEq(t, `{"width":1024}`, string(got.Parameters))
}

func TestListGenerations(t *testing.T) {
	f := newFixture(t)
	f.generations.On("List", mock.Anything, f.user, db.GenerationTypeVideo).Return([]db.Generation{}, nil)

	w := f.do(http.MethodGet, "/videos/generations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(decode(t, w).Data))
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"stack_user_id":"stack-1"`)

	w = f.do(http.MethodPost, "/auth/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"email":"new@x.io"`)
	require.NotNil(t, f.users.synced)
	assert.Equal(t, "stack-1", f.users.synced.ID)

	w = f.do(http.MethodPost, "/auth/token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &tok))
	assert.Equal(t, "session-stack-1", tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)
}

func TestProjects_CreateAndList(t *testing.T) {
	f := newFixture(t)
	f.projects.On("CreateProject", mock.Anything, mock.MatchedBy(func(p *db.Project) bool {
		return p.UserID == f.user.ID && p.Name == "Poster" && p.ProjectType == db.ProjectTypeImage && p.Data.Valid
	})).Return(func(ctx context.Context, p *db.Project) *db.Project {
		p.ID = uuid.New()
		return p
	}, nil)

	w := f.do(http.MethodPost, "/projects", `{"name":"Poster","data":{"layers":[]}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, string(decode(t, w).Data), `"layers":[]`)

	f.projects.On("FindProjectsByUserID", mock.Anything, f.user.ID).Return([]db.Project{{ID: uuid.New(), UserID: f.user.ID, Name: "Poster"}}, nil)
	w = f.do(http.MethodGet, "/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"name":"Poster"`)

	w = f.do(http.MethodPost, "/projects", `{"name":"x","project_type":"audio"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestProjects_Access(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	own := &db.Project{ID: uuid.New(), UserID: f.user.ID, Name: "mine"}
	public := &db.Project{ID: uuid.New(), UserID: other, Name: "shared", IsPublic: true}
	private := &db.Project{ID: uuid.New(), UserID: other, Name: "secret"}
	missing := uuid.New()

	f.projects.On("FindProjectByID", mock.Anything, own.ID).Return(own, nil)
	f.projects.On("FindProjectByID", mock.Anything, public.ID).Return(public, nil)
	f.projects.On("FindProjectByID", mock.Anything, private.ID).Return(private, nil)
	f.projects.On("FindProjectByID", mock.Anything, missing).Return(nil, nil)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/projects/"+own.ID.String(), nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/projects/"+public.ID.String(), nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/projects/"+private.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/projects/"+missing.String(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/projects/abc", nil).Code)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPut, "/projects/"+public.ID.String(), `{"name":"mine now"}`).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/projects/"+public.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/projects/"+missing.String(), nil).Code)
	f.projects.AssertNotCalled(t, "UpdateProject", mock.Anything, mock.Anything)
	f.projects.AssertNotCalled(t, "DeleteProject", mock.Anything, mock.Anything, mock.Anything)
}

func TestProjects_UpdateIsPartial(t *testing.T) {
	f := newFixture(t)
	own := &db.Project{ID: uuid.New(), UserID: f.user.ID, Name: "mine", Description: "keep me", ProjectType: db.ProjectTypeDesign}
	f.projects.On("FindProjectByID", mock.Anything, own.ID).Return(own, nil)
	f.projects.On("UpdateProject", mock.Anything, mock.MatchedBy(func(p *db.Project) bool {
		return p.Name == "renamed" && p.Description == "keep me" && p.IsPublic
	})).Return(nil)
	f.projects.On("DeleteProject", mock.Anything, own.ID, f.user.ID).Return(nil)

	w := f.do(http.MethodPut, "/projects/"+own.ID.String(), `{"name":"renamed","is_public":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(http.MethodDelete, "/projects/"+own.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	f.projects.AssertExpectations(t)
}
