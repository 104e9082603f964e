// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"

	"github.com/verbavid/verbavid-api/internal/core/model"
)

// TextModel is a generative model that answers a prompt with plain text.
// Implementations pace their own requests but never retry; a rate limit or
// token limit is reported by wrapping model.ErrRateLimited or model.ErrTokenLimit.
type TextModel interface {
	GenerateText(ctx context.Context, instruction string, prompt string) (string, error)
}

// ClassifyModelError maps provider errors onto the pipeline error kinds.
// Errors that are neither a rate limit nor a token limit are returned unchanged.
func ClassifyModelError(err error) error {
	if err == nil {
		return nil
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return classify(err, gErr.Code, gErr.Status+" "+gErr.Message)
	}
	var oErr *openai.Error
	if errors.As(err, &oErr) {
		return classify(err, oErr.StatusCode, oErr.Code+" "+oErr.Message)
	}
	return err
}

func classify(err error, code int, detail string) error {
	detail = strings.ToLower(detail)
	switch {
	case code == http.StatusTooManyRequests || strings.Contains(detail, "resource_exhausted"):
		return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
	case code == http.StatusBadRequest && isTokenLimit(detail),
		code == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %w", model.ErrTokenLimit, err)
	}
	return err
}

func isTokenLimit(detail string) bool {
	for _, marker := range []string{"token", "context_length", "context length", "too long", "input size"} {
		if strings.Contains(detail, marker) {
			return true
		}
	}
	return false
}

// NewTextModel builds the adapter selected by the model's provider.
func NewTextModel(ctx context.Context, config *Config, values AgentModel) (TextModel, error) {
	switch values.Provider {
	case ProviderOpenAI:
		if config.Application.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("provider %s requires %s", ProviderOpenAI, EnvOpenAIAPIKey)
		}
		return NewOpenAITextModel(config.Application.OpenAIAPIKey, values), nil
	case ProviderVertex, ProviderGemini, "":
		cc := &genai.ClientConfig{Backend: genai.BackendGeminiAPI, APIKey: config.Application.GeminiAPIKey}
		if values.Provider == ProviderVertex {
			cc = &genai.ClientConfig{
				Backend:  genai.BackendVertexAI,
				Project:  config.Application.GoogleProjectId,
				Location: config.Application.GoogleLocation,
			}
		} else if cc.APIKey == "" {
			return nil, fmt.Errorf("provider %s requires %s", ProviderGemini, EnvGeminiAPIKey)
		}
		gc, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("error creating genai client: %w", err)
		}
		return NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, gc.Models, values.RateLimit), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", values.Provider)
	}
}
