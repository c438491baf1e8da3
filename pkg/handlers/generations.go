package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bavena95/mode-app/pkg/apperrors"
	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/provider"
	"github.com/bavena95/mode-app/pkg/services"
	"github.com/bavena95/mode-app/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultImageModel = "fal-ai/flux/schnell"
	DefaultVideoModel = "fal-ai/runway-gen3/turbo/image-to-video"
)

// ImageGenerateRequest is the body of POST /images/generate. Absent fields
// keep the defaults set by newImageGenerateRequest.
type ImageGenerateRequest struct {
	Prompt            string     `json:"prompt" binding:"required,max=2000"`
	NegativePrompt    string     `json:"negative_prompt" binding:"max=1000"`
	Model             string     `json:"model" binding:"required,max=200"`
	Width             int        `json:"width" binding:"min=256,max=2048"`
	Height            int        `json:"height" binding:"min=256,max=2048"`
	NumImages         int        `json:"num_images" binding:"min=1,max=4"`
	GuidanceScale     float64    `json:"guidance_scale" binding:"min=1,max=20"`
	NumInferenceSteps int        `json:"num_inference_steps" binding:"min=10,max=100"`
	ProjectID         *uuid.UUID `json:"project_id"`
	EnhancePrompt     bool       `json:"enhance_prompt"`
}

func newImageGenerateRequest() ImageGenerateRequest {
	return ImageGenerateRequest{
		Model:             DefaultImageModel,
		Width:             1024,
		Height:            1024,
		NumImages:         1,
		GuidanceScale:     7.5,
		NumInferenceSteps: 50,
	}
}

// VideoGenerateRequest is the body of POST /videos/generate. Video models take
// no negative prompt, so an unknown negative_prompt key is ignored.
type VideoGenerateRequest struct {
	Prompt        string     `json:"prompt" binding:"required,max=2000"`
	Model         string     `json:"model" binding:"required,max=200"`
	Duration      int        `json:"duration" binding:"min=1,max=10"`
	FPS           int        `json:"fps" binding:"min=12,max=30"`
	Width         int        `json:"width" binding:"min=256,max=1920"`
	Height        int        `json:"height" binding:"min=256,max=1080"`
	ProjectID     *uuid.UUID `json:"project_id"`
	EnhancePrompt bool       `json:"enhance_prompt"`
}

func newVideoGenerateRequest() VideoGenerateRequest {
	return VideoGenerateRequest{
		Model:    DefaultVideoModel,
		Duration: 5,
		FPS:      24,
		Width:    1024,
		Height:   576,
	}
}

type GenerationResponse struct {
	ID             uuid.UUID       `json:"id"`
	RequestID      string          `json:"request_id"`
	Status         string          `json:"status"`
	GenerationType string          `json:"generation_type"`
	ModelName      string          `json:"model_name"`
	Prompt         string          `json:"prompt"`
	NegativePrompt *string         `json:"negative_prompt"`
	EnhancedPrompt *string         `json:"enhanced_prompt"`
	Parameters     json.RawMessage `json:"parameters"`
	ResultURL      *string         `json:"result_url"`
	ErrorMessage   *string         `json:"error_message"`
	ProcessingTime *float64        `json:"processing_time"`
	Cost           *float64        `json:"cost"`
	ProjectID      *uuid.UUID      `json:"project_id"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at"`
}

func newGenerationResponse(g *db.Generation) GenerationResponse {
	resp := GenerationResponse{
		ID:             g.ID,
		RequestID:      g.ProviderJobID,
		Status:         string(g.Status),
		GenerationType: string(g.GenerationType),
		ModelName:      g.ModelName,
		Prompt:         g.Prompt,
		Parameters:     json.RawMessage(g.Parameters),
		CreatedAt:      g.CreatedAt,
	}
	if g.NegativePrompt.Valid {
		resp.NegativePrompt = &g.NegativePrompt.String
	}
	if g.EnhancedPrompt.Valid {
		resp.EnhancedPrompt = &g.EnhancedPrompt.String
	}
	if len(resp.Parameters) == 0 {
		resp.Parameters = json.RawMessage("{}")
	}
	if g.ResultURL.Valid {
		resp.ResultURL = &g.ResultURL.String
	}
	if g.ErrorMessage.Valid {
		resp.ErrorMessage = &g.ErrorMessage.String
	}
	if g.ProcessingTime.Valid {
		resp.ProcessingTime = &g.ProcessingTime.Float64
	}
	if g.Cost.Valid {
		resp.Cost = &g.Cost.Float64
	}
	if g.ProjectID.Valid {
		resp.ProjectID = &g.ProjectID.UUID
	}
	if g.CompletedAt.Valid {
		resp.CompletedAt = &g.CompletedAt.Time
	}
	return resp
}

type StatusResponse struct {
	ID           uuid.UUID `json:"id"`
	Status       string    `json:"status"`
	ResultURL    *string   `json:"result_url"`
	ErrorMessage *string   `json:"error_message"`
}

func newStatusResponse(g *db.Generation) StatusResponse {
	full := newGenerationResponse(g)
	return StatusResponse{ID: full.ID, Status: full.Status, ResultURL: full.ResultURL, ErrorMessage: full.ErrorMessage}
}

// GenerateImage submits an image generation job.
func (h *Handlers) GenerateImage(c *gin.Context) {
	req := newImageGenerateRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("GenerateImage: invalid request body: %v", err)
		utils.ResponseWithValidationError(c, err)
		return
	}

	h.submit(c, services.SubmitInput{
		Kind:           db.GenerationTypeImage,
		Model:          req.Model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		ProjectID:      req.ProjectID,
		EnhancePrompt:  req.EnhancePrompt,
		Image: &provider.ImageParams{
			Width:             req.Width,
			Height:            req.Height,
			NumImages:         req.NumImages,
			GuidanceScale:     req.GuidanceScale,
			NumInferenceSteps: req.NumInferenceSteps,
		},
	})
}

// GenerateVideo submits a video generation job.
func (h *Handlers) GenerateVideo(c *gin.Context) {
	req := newVideoGenerateRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("GenerateVideo: invalid request body: %v", err)
		utils.ResponseWithValidationError(c, err)
		return
	}

	h.submit(c, services.SubmitInput{
		Kind:          db.GenerationTypeVideo,
		Model:         req.Model,
		Prompt:        req.Prompt,
		ProjectID:     req.ProjectID,
		EnhancePrompt: req.EnhancePrompt,
		Video: &provider.VideoParams{
			Duration: req.Duration,
			FPS:      req.FPS,
			Width:    req.Width,
			Height:   req.Height,
		},
	})
}

func (h *Handlers) submit(c *gin.Context, in services.SubmitInput) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	in.Prompt = strings.TrimSpace(in.Prompt)
	in.NegativePrompt = strings.TrimSpace(in.NegativePrompt)
	if in.Prompt == "" {
		utils.ResponseWithAppError(c, apperrors.NewValidationError("Request validation failed", []utils.FieldError{{Field: "prompt", Rule: "required"}}))
		return
	}

	gen, err := h.Generations.Submit(c.Request.Context(), user, in)
	if err != nil {
		utils.ResponseWithAppError(c, err)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Generation started", newGenerationResponse(gen))
}

// ListGenerations lists the caller's generations of kind, newest first.
func (h *Handlers) ListGenerations(kind db.GenerationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}

		gens, err := h.Generations.List(c.Request.Context(), user, kind)
		if err != nil {
			utils.ResponseWithAppError(c, err)
			return
		}

		out := make([]GenerationResponse, len(gens))
		for i := range gens {
			out[i] = newGenerationResponse(&gens[i])
		}
		utils.ResponseWithSuccess(c, http.StatusOK, "Generations retrieved successfully", out)
	}
}

// GetGeneration returns the stored record without contacting the provider.
func (h *Handlers) GetGeneration(kind db.GenerationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, id, ok := userAndGenerationID(c)
		if !ok {
			return
		}

		gen, err := h.Generations.Get(c.Request.Context(), user, kind, id)
		if err != nil {
			utils.ResponseWithAppError(c, err)
			return
		}
		utils.ResponseWithSuccess(c, http.StatusOK, "Generation retrieved successfully", newGenerationResponse(gen))
	}
}

// GenerationStatus reconciles the record with the provider and reports it.
func (h *Handlers) GenerationStatus(kind db.GenerationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, id, ok := userAndGenerationID(c)
		if !ok {
			return
		}

		gen, err := h.Generations.Status(c.Request.Context(), user, kind, id)
		if err != nil {
			utils.ResponseWithAppError(c, err)
			return
		}
		utils.ResponseWithSuccess(c, http.StatusOK, "Generation status retrieved successfully", newStatusResponse(gen))
	}
}

func userAndGenerationID(c *gin.Context) (*db.User, uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		log.Debugf("userAndGenerationID: invalid generation ID format '%s': %v", idParam, err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid generation ID format", nil)
		return nil, uuid.Nil, false
	}
	user, ok := currentUser(c)
	if !ok {
		return nil, uuid.Nil, false
	}
	return user, id, true
}
