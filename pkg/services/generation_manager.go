package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bavena95/mode-app/pkg/apperrors"
	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/db/queries"
	"github.com/bavena95/mode-app/pkg/metrics"
	"github.com/bavena95/mode-app/pkg/provider"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"
)

const defaultFailureReason = "generation failed"

// GenerationStore persists generation records.
type GenerationStore interface {
	CreateGeneration(ctx context.Context, gen *db.Generation) error
	FindGenerationByID(ctx context.Context, id uuid.UUID) (*db.Generation, error)
	FindGenerationByProviderJobID(ctx context.Context, jobID string) (*db.Generation, error)
	ListGenerationsByUserAndType(ctx context.Context, userID uuid.UUID, kind db.GenerationType) ([]db.Generation, error)
	ListProcessingGenerations(ctx context.Context, limit int) ([]db.Generation, error)
	MarkGenerationCompleted(ctx context.Context, id uuid.UUID, res queries.CompletionResult) (bool, error)
	MarkGenerationFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) (bool, error)
}

type ProjectLookup interface {
	FindProjectByID(ctx context.Context, id uuid.UUID) (*db.Project, error)
}

// PromptEnhancer rewrites a prompt for the given kind.
type PromptEnhancer interface {
	EnhancePrompt(ctx context.Context, kind, prompt string) (string, error)
}

// SubmitInput is a validated generation request. Exactly one of Image and
// Video is set, matching Kind.
type SubmitInput struct {
	Kind           db.GenerationType
	Model          string
	Prompt         string
	NegativePrompt string
	ProjectID      *uuid.UUID
	EnhancePrompt  bool
	Image          *provider.ImageParams
	Video          *provider.VideoParams
}

// GenerationManager owns the generation lifecycle: submission, ownership
// checks and reconciliation against the provider.
type GenerationManager struct {
	store    GenerationStore
	projects ProjectLookup
	provider provider.Client
	enhancer PromptEnhancer

	postSubmitDelay time.Duration
	now             func() time.Time

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

type ManagerOption func(*GenerationManager)

// WithPromptEnhancer enables enhance_prompt requests.
func WithPromptEnhancer(e PromptEnhancer) ManagerOption {
	return func(m *GenerationManager) { m.enhancer = e }
}

// WithPostSubmitCheck reconciles each new record once, delay after submission.
func WithPostSubmitCheck(delay time.Duration) ManagerOption {
	return func(m *GenerationManager) { m.postSubmitDelay = delay }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *GenerationManager) { m.now = now }
}

func NewGenerationManager(store GenerationStore, projects ProjectLookup, client provider.Client, opts ...ManagerOption) *GenerationManager {
	m := &GenerationManager{
		store:    store,
		projects: projects,
		provider: client,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bgCtx, m.bgCancel = context.WithCancel(context.Background())
	return m
}

// Close stops pending post-submission checks and waits for running ones.
func (m *GenerationManager) Close() {
	m.bgCancel()
	m.bgWG.Wait()
}

// Submit sends a generation job to the provider and records it as processing.
// Nothing is stored when the provider rejects the job.
func (m *GenerationManager) Submit(ctx context.Context, user *db.User, in SubmitInput) (*db.Generation, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	logger := log.WithFields(log.Fields{"user_id": user.ID.String(), "type": string(in.Kind), "model": in.Model})

	if in.ProjectID != nil {
		if err := m.checkProject(ctx, user, *in.ProjectID); err != nil {
			return nil, err
		}
	}

	gen := db.NewGeneration(user.ID, in.Kind, in.Model, in.Prompt)
	if in.NegativePrompt != "" {
		gen.NegativePrompt = sql.NullString{String: in.NegativePrompt, Valid: true}
	}
	if in.ProjectID != nil {
		gen.ProjectID = uuid.NullUUID{UUID: *in.ProjectID, Valid: true}
	}
	if in.EnhancePrompt {
		if enhanced, ok := m.enhance(ctx, logger, in); ok {
			gen.EnhancedPrompt = sql.NullString{String: enhanced, Valid: true}
		}
	}

	params, err := encodeParams(in)
	if err != nil {
		return nil, err
	}
	gen.Parameters = params

	jobID, err := m.provider.Submit(ctx, provider.SubmitRequest{
		Kind:           provider.Kind(in.Kind),
		Model:          in.Model,
		Prompt:         gen.PromptSent(),
		NegativePrompt: in.NegativePrompt,
		Image:          in.Image,
		Video:          in.Video,
	})
	if err != nil {
		metrics.GenerationsSubmitted.WithLabelValues(string(in.Kind), "error").Inc()
		logger.Errorf("Submit: provider rejected job: %v", err)
		if !apperrors.Is(err, apperrors.KindProvider) {
			err = apperrors.NewProviderError("submit", err)
		}
		return nil, err
	}

	gen.ProviderJobID = jobID
	gen.Status = db.StatusProcessing
	if err := m.store.CreateGeneration(ctx, gen); err != nil {
		if errors.Is(err, queries.ErrDuplicateJob) {
			return m.existingJob(ctx, logger, user, in.Kind, jobID)
		}
		metrics.GenerationsSubmitted.WithLabelValues(string(in.Kind), "error").Inc()
		logger.WithField("job_id", jobID).Errorf("Submit: failed to record accepted job: %v", err)
		if errors.Is(err, queries.ErrProjectMissing) {
			return nil, apperrors.NewNotFoundError("project")
		}
		return nil, fmt.Errorf("record generation: %w", err)
	}

	metrics.GenerationsSubmitted.WithLabelValues(string(in.Kind), "accepted").Inc()
	logger.WithFields(log.Fields{"generation_id": gen.ID.String(), "job_id": jobID}).Info("Submit: generation accepted")

	if m.postSubmitDelay > 0 {
		m.schedulePostSubmitCheck(gen.ID)
	}
	return gen, nil
}

// existingJob resolves a submission whose job id the provider had already
// handed out, such as a deduplicated retry. Only the owner gets the record back.
func (m *GenerationManager) existingJob(ctx context.Context, logger *log.Entry, user *db.User, kind db.GenerationType, jobID string) (*db.Generation, error) {
	logger = logger.WithField("job_id", jobID)
	gen, err := m.store.FindGenerationByProviderJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load recorded job: %w", err)
	}
	if gen == nil || gen.UserID != user.ID || gen.GenerationType != kind {
		metrics.GenerationsSubmitted.WithLabelValues(string(kind), "error").Inc()
		logger.Error("Submit: provider returned a job id recorded for another submission")
		return nil, apperrors.NewProviderError("submit", queries.ErrDuplicateJob)
	}
	metrics.GenerationsSubmitted.WithLabelValues(string(kind), "duplicate").Inc()
	logger.WithField("generation_id", gen.ID.String()).Info("Submit: job already recorded, returning existing generation")
	return gen, nil
}

// Status returns the caller's generation after reconciling it with the
// provider.
func (m *GenerationManager) Status(ctx context.Context, user *db.User, kind db.GenerationType, id uuid.UUID) (*db.Generation, error) {
	gen, err := m.Get(ctx, user, kind, id)
	if err != nil {
		return nil, err
	}
	return m.Reconcile(ctx, gen)
}

// Get returns the caller's generation as stored. Existence is checked before
// ownership.
func (m *GenerationManager) Get(ctx context.Context, user *db.User, kind db.GenerationType, id uuid.UUID) (*db.Generation, error) {
	gen, err := m.store.FindGenerationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if gen == nil || gen.GenerationType != kind {
		return nil, apperrors.NewNotFoundError("generation")
	}
	if gen.UserID != user.ID {
		return nil, apperrors.NewAuthorizationError("generation")
	}
	return gen, nil
}

// List returns the caller's generations of kind, newest first.
func (m *GenerationManager) List(ctx context.Context, user *db.User, kind db.GenerationType) ([]db.Generation, error) {
	gens, err := m.store.ListGenerationsByUserAndType(ctx, user.ID, kind)
	if err != nil {
		return nil, err
	}
	if gens == nil {
		gens = []db.Generation{}
	}
	return gens, nil
}

// Reconcile brings a processing record up to date with the provider. Provider
// failures leave the record unchanged and are not returned; only store
// failures are.
func (m *GenerationManager) Reconcile(ctx context.Context, gen *db.Generation) (*db.Generation, error) {
	if gen.Status != db.StatusProcessing {
		return gen, nil
	}
	logger := log.WithFields(log.Fields{"generation_id": gen.ID.String(), "job_id": gen.ProviderJobID})
	job := provider.Job{Model: gen.ModelName, RequestID: gen.ProviderJobID}

	status, err := m.provider.Poll(ctx, job)
	if err != nil {
		metrics.Reconciliations.WithLabelValues(metrics.OutcomePollError).Inc()
		logger.Warnf("Reconcile: poll failed, keeping record as is: %v", err)
		return gen, nil
	}

	switch status.State {
	case provider.StateCompleted:
		return m.complete(ctx, logger, gen, job)
	case provider.StateFailed:
		return m.fail(ctx, logger, gen, status.Reason)
	default:
		metrics.Reconciliations.WithLabelValues(metrics.OutcomeInFlight).Inc()
		return gen, nil
	}
}

func (m *GenerationManager) complete(ctx context.Context, logger *log.Entry, gen *db.Generation, job provider.Job) (*db.Generation, error) {
	res, err := m.provider.FetchResult(ctx, job)
	if err != nil {
		metrics.Reconciliations.WithLabelValues(metrics.OutcomeFetchError).Inc()
		logger.Warnf("Reconcile: job completed but result fetch failed, will retry: %v", err)
		return gen, nil
	}

	at := m.now()
	processingTime := res.ProcessingTime
	if processingTime == nil {
		wall := at.Sub(gen.CreatedAt).Seconds()
		processingTime = &wall
	}

	updated, err := m.store.MarkGenerationCompleted(ctx, gen.ID, queries.CompletionResult{
		ResultURL:      res.URL,
		ProcessingTime: processingTime,
		Cost:           res.Cost,
		CompletedAt:    at,
	})
	if err != nil {
		return nil, fmt.Errorf("mark generation completed: %w", err)
	}
	if !updated {
		return m.reload(ctx, logger, gen)
	}

	metrics.Reconciliations.WithLabelValues(metrics.OutcomeCompleted).Inc()
	logger.Infof("Reconcile: generation completed: %s", res.URL)

	done := *gen
	done.Status = db.StatusCompleted
	done.ResultURL = sql.NullString{String: res.URL, Valid: true}
	done.ProcessingTime = sql.NullFloat64{Float64: *processingTime, Valid: true}
	if res.Cost != nil {
		done.Cost = sql.NullFloat64{Float64: *res.Cost, Valid: true}
	}
	done.CompletedAt = sql.NullTime{Time: at, Valid: true}
	return &done, nil
}

func (m *GenerationManager) fail(ctx context.Context, logger *log.Entry, gen *db.Generation, reason string) (*db.Generation, error) {
	if reason == "" {
		reason = defaultFailureReason
	}
	at := m.now()

	updated, err := m.store.MarkGenerationFailed(ctx, gen.ID, reason, at)
	if err != nil {
		return nil, fmt.Errorf("mark generation failed: %w", err)
	}
	if !updated {
		return m.reload(ctx, logger, gen)
	}

	metrics.Reconciliations.WithLabelValues(metrics.OutcomeFailed).Inc()
	logger.Infof("Reconcile: generation failed: %s", reason)

	done := *gen
	done.Status = db.StatusFailed
	done.ErrorMessage = sql.NullString{String: reason, Valid: true}
	done.CompletedAt = sql.NullTime{Time: at, Valid: true}
	return &done, nil
}

// reload returns the stored record after a guarded update matched no row.
func (m *GenerationManager) reload(ctx context.Context, logger *log.Entry, gen *db.Generation) (*db.Generation, error) {
	metrics.Reconciliations.WithLabelValues(metrics.OutcomeSuperseded).Inc()
	logger.Debug("Reconcile: record already left processing, reloading")

	fresh, err := m.store.FindGenerationByID(ctx, gen.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return gen, nil
	}
	return fresh, nil
}

func (m *GenerationManager) checkProject(ctx context.Context, user *db.User, projectID uuid.UUID) error {
	project, err := m.projects.FindProjectByID(ctx, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return apperrors.NewNotFoundError("project")
	}
	if project.UserID != user.ID {
		return apperrors.NewAuthorizationError("project")
	}
	return nil
}

func (m *GenerationManager) enhance(ctx context.Context, logger *log.Entry, in SubmitInput) (string, bool) {
	if m.enhancer == nil {
		logger.Warn("Submit: prompt enhancement requested but no enhancer is configured")
		return "", false
	}
	enhanced, err := m.enhancer.EnhancePrompt(ctx, string(in.Kind), in.Prompt)
	if err != nil {
		logger.Warnf("Submit: prompt enhancement failed, sending original prompt: %v", err)
		return "", false
	}
	return enhanced, true
}

func (m *GenerationManager) schedulePostSubmitCheck(id uuid.UUID) {
	m.bgWG.Add(1)
	go func() {
		defer m.bgWG.Done()

		timer := time.NewTimer(m.postSubmitDelay)
		defer timer.Stop()
		select {
		case <-m.bgCtx.Done():
			return
		case <-timer.C:
		}

		gen, err := m.store.FindGenerationByID(m.bgCtx, id)
		if err != nil || gen == nil {
			log.Warnf("schedulePostSubmitCheck: could not load generation %s: %v", id.String(), err)
			return
		}
		if _, err := m.Reconcile(m.bgCtx, gen); err != nil {
			log.Warnf("schedulePostSubmitCheck: reconcile of %s failed: %v", id.String(), err)
		}
	}()
}

func validateInput(in SubmitInput) error {
	if in.Prompt == "" {
		return apperrors.NewValidationError("prompt is required", nil)
	}
	if in.Model == "" {
		return apperrors.NewValidationError("model is required", nil)
	}
	switch in.Kind {
	case db.GenerationTypeImage:
		if in.Image == nil || in.Video != nil {
			return apperrors.NewValidationError("image generation needs image parameters", nil)
		}
	case db.GenerationTypeVideo:
		if in.Video == nil || in.Image != nil {
			return apperrors.NewValidationError("video generation needs video parameters", nil)
		}
		if in.NegativePrompt != "" {
			return apperrors.NewValidationError("video generation does not take a negative prompt", nil)
		}
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown generation type %q", in.Kind), nil)
	}
	return nil
}

func encodeParams(in SubmitInput) (types.JSONText, error) {
	var v any = in.Image
	if in.Kind == db.GenerationTypeVideo {
		v = in.Video
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode generation parameters: %w", err)
	}
	return types.JSONText(raw), nil
}
