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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that turns source text into caption lines.
//
// Logic Flow:
//  1. The source text is reduced to the input ceiling by keeping a prefix and
//     a suffix joined by an elision marker.
//  2. A prompt is rendered from the caption or document template, carrying the
//     caption range of the requested length tier.
//  3. The text model is called. A rate limit sleeps with an exponential backoff
//     and retries; a token limit truncates the working text to the token limit
//     ceiling and retries immediately. Both share one attempt budget.
//  4. The response is parsed into a CaptionSet. Any other model error, an
//     exhausted budget or an empty parse fails with ErrCaptionGenerationFailed.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CaptionGenerator is a command that asks the text model for the captions of
// the request.
type CaptionGenerator struct {
	cor.BaseCommand
	textModel    cloud.TextModel       // The model captions are generated with.
	settings     cloud.CaptionSettings // Ceilings and the retry policy.
	prompts      *Prompts              // Parsed prompt templates.
	sleep        Sleeper               // Waits out rate limit backoffs.
	retryCounter metric.Int64Counter   // Incremented for every retried model call.
}

// NewCaptionGenerator is the constructor for the CaptionGenerator command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - textModel: The model used for captioning.
//   - settings: The caption ceilings and retry policy.
//   - prompts: The parsed prompt templates.
//
// Outputs:
//   - *CaptionGenerator: The command, entering the Captioning stage when run.
func NewCaptionGenerator(name string, textModel cloud.TextModel, settings cloud.CaptionSettings, prompts *Prompts) *CaptionGenerator {
	out := &CaptionGenerator{
		BaseCommand: *cor.NewStageCommand(name, string(model.StateCaptioning)),
		textModel:   textModel,
		settings:    settings,
		prompts:     prompts,
		sleep:       SleepContext,
	}
	out.retryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.retry", out.GetName()))
	return out
}

// WithSleeper replaces the backoff sleeper.
func (c *CaptionGenerator) WithSleeper(sleep Sleeper) *CaptionGenerator {
	c.sleep = sleep
	return c
}

// Backoff returns the delay before retrying after the given failed attempt,
// counting from 1.
func (c *CaptionGenerator) Backoff(attempt int) time.Duration {
	delay := c.settings.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.settings.MaxDelay {
			return c.settings.MaxDelay
		}
	}
	if delay > c.settings.MaxDelay {
		return c.settings.MaxDelay
	}
	return delay
}

// Generate produces the captions for source.
//
// Inputs:
//   - ctx: Cancels the model calls and the backoff sleeps.
//   - source: The raw prompt or extracted document text.
//   - isDocument: Selects the document prompt.
//   - tier: The length tier whose caption range is requested.
//
// Outputs:
//   - model.CaptionSet: At least one caption line.
//   - error: Wraps model.ErrCaptionGenerationFailed.
func (c *CaptionGenerator) Generate(ctx context.Context, source string, isDocument bool, tier model.LengthTier) (model.CaptionSet, error) {
	working, truncated := TruncateMiddle(source, c.settings.InputCeiling)
	if truncated {
		slog.InfoContext(ctx, "source text truncated",
			"kind", model.ErrInputTooLarge.Error(), "ceiling", c.settings.InputCeiling)
	}

	attempts := c.settings.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		prompt, err := c.prompts.CaptionPrompt(working, isDocument, tier)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrCaptionGenerationFailed, err)
		}

		raw, err := c.textModel.GenerateText(ctx, CaptionInstruction, prompt)
		if err == nil {
			captions := model.ParseCaptions(raw)
			if len(captions) == 0 {
				return nil, fmt.Errorf("%w: model returned no caption lines", model.ErrCaptionGenerationFailed)
			}
			return captions, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, model.ErrRateLimited):
			if attempt == attempts {
				continue
			}
			delay := c.Backoff(attempt)
			c.retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "rate_limit")))
			slog.WarnContext(ctx, "caption model rate limited, backing off",
				"attempt", attempt, "delay", delay.String())
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return nil, fmt.Errorf("%w: %w", model.ErrCaptionGenerationFailed, sleepErr)
			}
		case errors.Is(err, model.ErrTokenLimit):
			shorter, cut := TruncateMiddle(working, c.settings.TokenLimitCeiling)
			if !cut {
				return nil, fmt.Errorf("%w: %w", model.ErrCaptionGenerationFailed, err)
			}
			working = shorter
			c.retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "token_limit")))
			slog.WarnContext(ctx, "caption model token limit, truncating input",
				"attempt", attempt, "ceiling", c.settings.TokenLimitCeiling)
		default:
			return nil, fmt.Errorf("%w: %w", model.ErrCaptionGenerationFailed, err)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", model.ErrCaptionGenerationFailed, attempts, lastErr)
}

// IsExecutable requires the source text and the request.
func (c *CaptionGenerator) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && VideoRequestFrom(context) != nil
}

// Execute reads the source text from the input parameter and writes the
// CaptionSet to the output parameter.
func (c *CaptionGenerator) Execute(context cor.Context) {
	ctx, span := c.GetTracer().Start(context.GetContext(), c.GetName())
	defer span.End()

	source := context.Get(c.GetInputParam()).(string)
	req := VideoRequestFrom(context)

	captions, err := c.Generate(ctx, source, req.IsDocument, req.Length)
	if err != nil {
		span.RecordError(err)
		failStage(&c.BaseCommand, context, err)
		return
	}
	span.SetAttributes(attribute.Int("captions", len(captions)))
	c.Succeed(context, captions)
}
