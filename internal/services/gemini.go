package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"geminichat-backend/internal/logger"
)

// Generator turns a prompt into reply text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var ErrEmptyResponse = errors.New("empty response from Gemini")

// ModelAttempt records the outcome of one model in the fallback order.
type ModelAttempt struct {
	Model string
	Err   error
}

// GenerationError is returned when every configured model failed.
type GenerationError struct {
	Attempts []ModelAttempt
}

func (e *GenerationError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Model, a.Err))
	}
	return "all Gemini models failed (" + strings.Join(parts, "; ") + ")"
}

// contentModel is the part of *genai.GenerativeModel the service calls.
type contentModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type namedModel struct {
	name  string
	model contentModel
}

type GeminiService struct {
	client *genai.Client
	models []namedModel
	log    *logger.Logger
}

// NewGeminiService builds one model handle per name, tried in the given order.
func NewGeminiService(ctx context.Context, apiKey string, modelNames []string, temperature float32, log *logger.Logger) (*GeminiService, error) {
	if len(modelNames) == 0 {
		return nil, errors.New("at least one Gemini model name is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	models := make([]namedModel, 0, len(modelNames))
	for _, name := range modelNames {
		model := client.GenerativeModel(name)
		model.SetTemperature(temperature)
		model.SetTopP(0.95)
		models = append(models, namedModel{name: name, model: model})
	}

	return &GeminiService{client: client, models: models, log: log.With("component", "gemini")}, nil
}

func (s *GeminiService) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// Generate tries each model once, in order, and returns the first non-empty reply.
func (s *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	attempts := make([]ModelAttempt, 0, len(s.models))
	for _, m := range s.models {
		text, err := s.generateWith(ctx, m.model, prompt)
		if err == nil {
			return text, nil
		}
		s.log.Warn("Gemini model attempt failed", "model", m.name, "error", err)
		attempts = append(attempts, ModelAttempt{Model: m.name, Err: err})
	}
	return "", &GenerationError{Attempts: attempts}
}

func (s *GeminiService) generateWith(ctx context.Context, model contentModel, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonUnspecified {
			s.log.Debug("Gemini candidate finished early", "finish_reason", cand.FinishReason.String())
		}
	}
	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ListModels returns the models that support generateContent.
func (s *GeminiService) ListModels(ctx context.Context) ([]string, error) {
	available := make([]string, 0)
	it := s.client.ListModels(ctx)
	for {
		info, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list Gemini models: %w", err)
		}
		for _, method := range info.SupportedGenerationMethods {
			if method == "generateContent" {
				available = append(available, info.Name)
				break
			}
		}
	}
	return available, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
