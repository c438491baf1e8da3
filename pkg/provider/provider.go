// Package provider talks to the asynchronous generation provider.
package provider

import "context"

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// ImageParams are the image-specific generation settings.
type ImageParams struct {
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumImages         int     `json:"num_images"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
}

// VideoParams are the video-specific generation settings.
type VideoParams struct {
	Duration int `json:"duration"`
	FPS      int `json:"fps"`
	Width    int `json:"width"`
	Height   int `json:"height"`
}

type SubmitRequest struct {
	Kind           Kind
	Model          string
	Prompt         string
	NegativePrompt string
	Image          *ImageParams
	Video          *VideoParams
}

// Job identifies a submitted job. The model is needed to address it on the queue.
type Job struct {
	Model     string
	RequestID string
}

type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

type Status struct {
	State State
	// Reason is the provider's failure description, if any.
	Reason string
}

type Result struct {
	URL            string
	URLs           []string
	ProcessingTime *float64
	Cost           *float64
}

// Client is the submit/poll/fetch contract of the provider. Every call is a
// remote round trip; FetchResult is only valid after Poll reported completed.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Poll(ctx context.Context, job Job) (Status, error)
	FetchResult(ctx context.Context, job Job) (*Result, error)
}
