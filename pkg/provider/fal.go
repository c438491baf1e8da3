package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bavena95/mode-app/pkg/apperrors"
	log "github.com/sirupsen/logrus"
)

// FalClient is a Client for the fal.ai queue API.
type FalClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewFalClient(apiKey, baseURL string, timeout time.Duration) *FalClient {
	return &FalClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type falSubmitResponse struct {
	RequestID string `json:"request_id"`
}

type falStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type falFile struct {
	URL string `json:"url"`
}

type falResultResponse struct {
	Images  []falFile `json:"images"`
	Image   *falFile  `json:"image"`
	Video   *falFile  `json:"video"`
	Timings struct {
		Inference *float64 `json:"inference"`
	} `json:"timings"`
	Cost *float64 `json:"cost"`
}

func (c *FalClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	args, err := submitArguments(req)
	if err != nil {
		return "", apperrors.NewProviderError("submit", err)
	}

	var resp falSubmitResponse
	if err := c.do(ctx, http.MethodPost, "/"+req.Model, args, &resp); err != nil {
		log.Errorf("FalClient.Submit: %s submission to %s failed: %v", req.Kind, req.Model, err)
		return "", apperrors.NewProviderError("submit", err)
	}
	if resp.RequestID == "" {
		return "", apperrors.NewProviderError("submit", fmt.Errorf("response carried no request_id"))
	}

	log.Infof("FalClient.Submit: %s job %s accepted by %s", req.Kind, resp.RequestID, req.Model)
	return resp.RequestID, nil
}

func (c *FalClient) Poll(ctx context.Context, job Job) (Status, error) {
	var resp falStatusResponse
	if err := c.do(ctx, http.MethodGet, jobPath(job)+"/status", nil, &resp); err != nil {
		return Status{}, apperrors.NewProviderError("status", err)
	}

	switch strings.ToUpper(resp.Status) {
	case "IN_QUEUE":
		return Status{State: StateQueued}, nil
	case "IN_PROGRESS":
		return Status{State: StateProcessing}, nil
	case "COMPLETED":
		if resp.Error != "" {
			return Status{State: StateFailed, Reason: resp.Error}, nil
		}
		return Status{State: StateCompleted}, nil
	case "FAILED", "ERROR":
		return Status{State: StateFailed, Reason: resp.Error}, nil
	default:
		return Status{}, apperrors.NewProviderError("status", fmt.Errorf("unknown job status %q", resp.Status))
	}
}

func (c *FalClient) FetchResult(ctx context.Context, job Job) (*Result, error) {
	var resp falResultResponse
	if err := c.do(ctx, http.MethodGet, jobPath(job), nil, &resp); err != nil {
		return nil, apperrors.NewProviderError("result", err)
	}

	res := &Result{ProcessingTime: resp.Timings.Inference, Cost: resp.Cost}
	for _, img := range resp.Images {
		if img.URL != "" {
			res.URLs = append(res.URLs, img.URL)
		}
	}
	for _, f := range []*falFile{resp.Video, resp.Image} {
		if f != nil && f.URL != "" {
			res.URLs = append(res.URLs, f.URL)
		}
	}
	if len(res.URLs) == 0 {
		return nil, apperrors.NewProviderError("result", fmt.Errorf("job %s returned no artifact", job.RequestID))
	}
	res.URL = res.URLs[0]
	return res, nil
}

func (c *FalClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func submitArguments(req SubmitRequest) (map[string]any, error) {
	args := map[string]any{"prompt": req.Prompt}
	switch req.Kind {
	case KindImage:
		if req.Image == nil {
			return nil, fmt.Errorf("image parameters are required")
		}
		args["image_size"] = map[string]int{"width": req.Image.Width, "height": req.Image.Height}
		args["num_images"] = req.Image.NumImages
		args["guidance_scale"] = req.Image.GuidanceScale
		args["num_inference_steps"] = req.Image.NumInferenceSteps
		if req.NegativePrompt != "" {
			args["negative_prompt"] = req.NegativePrompt
		}
	case KindVideo:
		if req.Video == nil {
			return nil, fmt.Errorf("video parameters are required")
		}
		args["duration"] = req.Video.Duration
		args["fps"] = req.Video.FPS
		args["resolution"] = map[string]int{"width": req.Video.Width, "height": req.Video.Height}
	default:
		return nil, fmt.Errorf("unsupported generation kind %q", req.Kind)
	}
	return args, nil
}

// jobPath addresses a request under the model's app id (owner/app), which is
// how the queue exposes status and result endpoints.
func jobPath(job Job) string {
	return "/" + appID(job.Model) + "/requests/" + url.PathEscape(job.RequestID)
}

func appID(model string) string {
	parts := strings.Split(strings.Trim(model, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}
