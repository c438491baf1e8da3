// pkg/llm/gemini.go

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Generator is the slice of the Gemini model the enhancer needs.
type Generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Service rewrites generation prompts with Gemini.
type Service struct {
	client *genai.Client
	model  Generator
}

// NewGeminiService creates a new Gemini prompt enhancer.
func NewGeminiService(ctx context.Context, apiKey, modelName string) (*Service, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	return &Service{client: client, model: model}, nil
}

// NewService wraps an existing generator. Used by tests.
func NewService(model Generator) *Service {
	return &Service{model: model}
}

const enhanceTemplate = `You rewrite prompts for a %s generation model.
Expand the user's prompt into a single, vivid, concrete description: subject, setting, lighting, style, composition%s.
Keep the user's intent and every explicit detail. Do not add text overlays, watermarks or people that were not asked for.
Reply with the rewritten prompt only, on one line, with no quotes, labels or commentary.

User prompt: "%s"`

// EnhancePrompt returns a richer version of prompt for the given generation
// kind ("image" or "video").
func (s *Service) EnhancePrompt(ctx context.Context, kind, prompt string) (string, error) {
	log.Debugf("EnhancePrompt: rewriting %s prompt: %s", kind, prompt)

	extra := ""
	if kind == "video" {
		extra = ", camera movement and motion"
	}

	resp, err := s.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(enhanceTemplate, kind, extra, prompt)))
	if err != nil {
		log.Errorf("EnhancePrompt: gemini call failed: %v", err)
		return "", fmt.Errorf("gemini API call failed during prompt enhancement: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Warn("EnhancePrompt: gemini returned no candidates")
		return "", fmt.Errorf("gemini API returned no content for prompt enhancement")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("gemini API returned non-text content for prompt enhancement")
	}

	enhanced := cleanResponse(string(text))
	if enhanced == "" {
		return "", fmt.Errorf("gemini API returned an empty prompt")
	}

	log.Infof("EnhancePrompt: rewrote %s prompt (%d -> %d chars)", kind, len(prompt), len(enhanced))
	return enhanced, nil
}

// cleanResponse strips the code fences and quotes Gemini likes to wrap
// answers in.
func cleanResponse(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```") && len(cleaned) >= 6 {
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "```"), "```")
		if i := strings.IndexByte(cleaned, '\n'); i >= 0 && !strings.Contains(cleaned[:i], " ") {
			cleaned = cleaned[i+1:]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	cleaned = strings.Trim(cleaned, "\"'")
	cleaned = strings.TrimPrefix(cleaned, "Prompt:")
	return strings.TrimSpace(cleaned)
}

// Close releases the underlying Gemini client.
func (s *Service) Close() error {
	if s.client == nil {
		return nil
	}
	log.Info("Closing Gemini client.")
	return s.client.Close()
}
