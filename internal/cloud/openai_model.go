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
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// OpenAITextModel adapts the OpenAI chat completions API to TextModel.
type OpenAITextModel struct {
	client      openai.Client
	model       string
	temperature float32
	maxTokens   int32
	limiter     *rate.Limiter
	tokens      metric.Int64Counter
}

// NewOpenAITextModel creates an adapter. The client's own retries are disabled
// so rate limits reach the caption generator's backoff policy.
func NewOpenAITextModel(apiKey string, values AgentModel, opts ...option.RequestOption) *OpenAITextModel {
	rps := values.RateLimit
	if rps <= 0 {
		rps = 1
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	tokens, err := otel.Meter(MeterName).Int64Counter("openai.tokens.total")
	if err != nil {
		slog.Warn("error creating token counter", "error", err)
	}
	return &OpenAITextModel{
		client:      openai.NewClient(opts...),
		model:       values.Model,
		temperature: values.Temperature,
		maxTokens:   values.MaxTokens,
		limiter:     rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), rps),
		tokens:      tokens,
	}
}

func (m *OpenAITextModel) GenerateText(ctx context.Context, instruction string, prompt string) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if instruction != "" {
		messages = append(messages, openai.SystemMessage(instruction))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(m.model),
		Temperature: openai.Float(float64(m.temperature)),
	}
	if m.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(m.maxTokens))
	}
	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", ClassifyModelError(err)
	}
	if m.tokens != nil {
		m.tokens.Add(ctx, completion.Usage.TotalTokens)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", errors.New("openai returned an empty completion")
	}
	return completion.Choices[0].Message.Content, nil
}
