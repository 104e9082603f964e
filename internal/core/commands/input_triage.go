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

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// InputTriage compresses oversized source text before captioning. Text whose
// estimated token count is above the summary threshold is summarized by the
// text model; when that fails the raw text is truncated instead and the
// request carries on.
type InputTriage struct {
	cor.BaseCommand
	textModel       cloud.TextModel
	settings        cloud.CaptionSettings
	prompts         *Prompts
	summaryCounter  metric.Int64Counter
	fallbackCounter metric.Int64Counter
}

func NewInputTriage(name string, textModel cloud.TextModel, settings cloud.CaptionSettings, prompts *Prompts) *InputTriage {
	out := &InputTriage{
		BaseCommand: *cor.NewStageCommand(name, string(model.StateTriage)),
		textModel:   textModel,
		settings:    settings,
		prompts:     prompts,
	}
	out.summaryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.summary", out.GetName()))
	out.fallbackCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.fallback", out.GetName()))
	return out
}

// Triage returns text unchanged when it is under the threshold, its summary
// otherwise, or a truncation of it when summarizing fails.
func (t *InputTriage) Triage(ctx context.Context, text string) string {
	tokens := EstimateTokens(text)
	if tokens <= t.settings.SummaryTokenThreshold {
		return text
	}

	t.summaryCounter.Add(ctx, 1)
	summary, err := t.summarize(ctx, text)
	if err == nil {
		slog.InfoContext(ctx, "source text summarized", "estimated_tokens", tokens, "summary_tokens", EstimateTokens(summary))
		return summary
	}

	t.fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", err.Error())))
	slog.WarnContext(ctx, "summarization failed, truncating source text", "estimated_tokens", tokens, "error", err)
	truncated, _ := TruncateMiddle(text, t.settings.InputCeiling)
	return truncated
}

func (t *InputTriage) summarize(ctx context.Context, text string) (string, error) {
	prompt, err := t.prompts.SummaryPrompt(text)
	if err != nil {
		return "", err
	}
	summary, err := t.textModel.GenerateText(ctx, SummaryInstruction, prompt)
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}

func (t *InputTriage) Execute(context cor.Context) {
	text, ok := context.Get(t.GetInputParam()).(string)
	if !ok || strings.TrimSpace(text) == "" {
		failStage(&t.BaseCommand, context, fmt.Errorf("%w: empty source text", model.ErrInvalidRequest))
		return
	}
	t.Succeed(context, t.Triage(context.GetContext(), text))
}
