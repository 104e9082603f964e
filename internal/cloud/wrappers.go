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

// Package cloud provides components for interacting with Google Cloud and the
// other external services the pipeline depends on.
// This file implements a wrapper around the genai Models service. The wrapper
// uses the Decorator design pattern to pace requests against the model quota
// and to record token usage, and it adapts the service to the TextModel interface.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: Wraps `genai.Models` with a rate limiter and token counters.
//
// Functions:
//   - NewQuotaAwareModel: A constructor to create a new instance of the wrapped model.
//   - NewGenerateContentConfig: Builds the request configuration from an AgentModel.
//   - GenerateContent: Waits for quota and calls the model.
//   - GenerateText: TextModel implementation on top of GenerateContent.
package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// MeterName is the namespace of every metric the service records.
const MeterName = "github.com/verbavid/verbavid-api"

// QuotaAwareGenerativeAIModel is a decorator struct that wraps the `genai.Models`
// service to add rate-limiting and token accounting.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig // Base request configuration.
	ModelName               string                       // The model name sent with every request.
	ModelHandle             *genai.Models                // The wrapped service.
	RateLimit               *rate.Limiter                // Token bucket of requests per second.
	inputTokens             metric.Int64Counter
	outputTokens            metric.Int64Counter
}

// NewQuotaAwareModel is a constructor function that creates a new
// QuotaAwareGenerativeAIModel.
//
// Inputs:
//   - wrapped: The base request configuration.
//   - name: The model name.
//   - modelHandle: The genai Models service.
//   - requestsPerSecond: The sustained request rate, also used as the burst size.
//
// Outputs:
//   - *QuotaAwareGenerativeAIModel: A pointer to the newly created wrapper.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	meter := otel.Meter(MeterName)
	inputTokens, err := meter.Int64Counter("genai.tokens.input")
	if err != nil {
		slog.Warn("error creating input token counter", "error", err)
	}
	outputTokens, err := meter.Int64Counter("genai.tokens.output")
	if err != nil {
		slog.Warn("error creating output token counter", "error", err)
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(rate.Every(time.Second/time.Duration(requestsPerSecond)), requestsPerSecond),
		inputTokens:             inputTokens,
		outputTokens:            outputTokens,
	}
}

// NewGenerateContentConfig translates an AgentModel into a genai request configuration.
func NewGenerateContentConfig(values AgentModel) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](values.Temperature),
		TopP:            genai.Ptr[float32](values.TopP),
		MaxOutputTokens: values.MaxTokens,
		SafetySettings:  DefaultSafetySettings,
	}
	if values.TopK > 0 {
		cfg.TopK = genai.Ptr[float32](values.TopK)
	}
	if values.SystemInstructions != "" {
		cfg.SystemInstruction = genai.NewContentFromText(values.SystemInstructions, genai.RoleUser)
	}
	return cfg
}

// GenerateContent waits for the rate limiter and then calls the model once.
// Failures are classified but not retried.
//
// Inputs:
//   - ctx: The context for the request. Cancelling it aborts the wait and the call.
//   - config: The request configuration; nil uses the base configuration.
//   - content: The prompt contents.
//
// Outputs:
//   - *genai.GenerateContentResponse: The response from the AI model if successful.
//   - error: The classified error.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, config *genai.GenerateContentConfig, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	if config == nil {
		config = q.GenerativeContentConfig
	}
	resp, err := q.ModelHandle.GenerateContent(ctx, q.ModelName, content, config)
	if err != nil {
		return nil, ClassifyModelError(err)
	}
	if resp.UsageMetadata != nil {
		if q.inputTokens != nil {
			q.inputTokens.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		}
		if q.outputTokens != nil {
			q.outputTokens.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
		}
	}
	return resp, nil
}

// GenerateText sends a single user prompt, with instruction as the system
// instruction, and returns the concatenated text of the response.
func (q *QuotaAwareGenerativeAIModel) GenerateText(ctx context.Context, instruction string, prompt string) (string, error) {
	config := q.GenerativeContentConfig
	if instruction != "" {
		scoped := *q.GenerativeContentConfig
		scoped.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
		config = &scoped
	}
	resp, err := q.GenerateContent(ctx, config, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model %s returned an empty response", q.ModelName)
	}
	return text, nil
}
