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
// command that binds an image to every caption line.
//
// Logic Flow:
//  1. Every caption is sanitized into a search query. Hashtags and non-word
//     characters are removed; an empty query is bound to no image.
//  2. The lookups fan out over a bounded worker pool (errgroup with a limit),
//     each writing to its own slot of the result slice so input order is kept.
//  3. A lookup checks the image cache first. Misses for the same key that are
//     in flight at the same time share one search call (singleflight). The
//     shared call ignores the cancellation of the request that started it;
//     each caller stops waiting when its own context ends.
//  4. A search without results is cached as an absent image. A failed search
//     is logged, bound to no image and not cached.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// searchFlightTimeout bounds a shared search once it is detached from the
// request that started it.
const searchFlightTimeout = time.Minute

var (
	hashtagPattern    = regexp.MustCompile(`#\w+`)
	nonWordPattern    = regexp.MustCompile(`[^\w\s]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeQuery turns a caption line into an image search query.
func SanitizeQuery(line string) string {
	q := hashtagPattern.ReplaceAllString(line, " ")
	q = nonWordPattern.ReplaceAllString(q, " ")
	q = whitespacePattern.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// VisualResolver is a command that resolves one image per caption line.
type VisualResolver struct {
	cor.BaseCommand
	searcher     cloud.ImageSearcher
	cache        ImageCache
	group        singleflight.Group
	concurrency  int
	hitCounter   metric.Int64Counter
	missCounter  metric.Int64Counter
	emptyCounter metric.Int64Counter
}

// NewVisualResolver is the constructor for the VisualResolver command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - searcher: The stock photo search client.
//   - cache: The image cache shared by every request.
//   - concurrency: The maximum number of lookups in flight per request.
//
// Outputs:
//   - *VisualResolver: The command, entering the ImageResolution stage when run.
func NewVisualResolver(name string, searcher cloud.ImageSearcher, cache ImageCache, concurrency int) *VisualResolver {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := &VisualResolver{
		BaseCommand: *cor.NewStageCommand(name, string(model.StateImageResolution)),
		searcher:    searcher,
		cache:       cache,
		concurrency: concurrency,
	}
	out.hitCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.cache.hit", out.GetName()))
	out.missCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.cache.miss", out.GetName()))
	out.emptyCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.absent", out.GetName()))
	return out
}

// Resolve returns one image URL per line, in line order. Lines without an
// image map to the empty string.
func (v *VisualResolver) Resolve(ctx context.Context, lines []string, orientation model.Orientation) []string {
	images := make([]string, len(lines))

	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, line := range lines {
		g.Go(func() error {
			images[i] = v.lookup(ctx, SanitizeQuery(line), orientation)
			return nil
		})
	}
	_ = g.Wait()

	return images
}

func (v *VisualResolver) lookup(ctx context.Context, query string, orientation model.Orientation) string {
	if query == "" {
		return ""
	}
	key := ImageCacheKey(query, orientation)
	if url, ok := v.cache.Get(ctx, key); ok {
		v.hitCounter.Add(ctx, 1)
		return url
	}

	// The flight outlives any single caller: requests joining it must not see
	// the leader's cancellation.
	flight := v.group.DoChan(key, func() (interface{}, error) {
		searchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), searchFlightTimeout)
		defer cancel()
		// A concurrent flight may have filled the entry since the first check.
		if url, ok := v.cache.Get(searchCtx, key); ok {
			return url, nil
		}
		v.missCounter.Add(searchCtx, 1)
		url, err := v.searcher.SearchImage(searchCtx, query, orientation)
		if err != nil {
			return "", err
		}
		v.cache.Add(searchCtx, key, url)
		return url, nil
	})

	select {
	case <-ctx.Done():
		return ""
	case res := <-flight:
		if res.Err != nil {
			slog.WarnContext(ctx, "image search failed", "query", query, "orientation", orientation, "error", res.Err)
			return ""
		}
		return res.Val.(string)
	}
}

// IsExecutable requires the captions and the request.
func (v *VisualResolver) IsExecutable(context cor.Context) bool {
	return v.BaseCommand.IsExecutable(context) && VideoRequestFrom(context) != nil
}

// Execute reads the CaptionSet from the input parameter and writes
// IllustratedCaptions to the output parameter. Missing images never fail the
// command.
func (v *VisualResolver) Execute(context cor.Context) {
	ctx, span := v.GetTracer().Start(context.GetContext(), v.GetName())
	defer span.End()

	captions := context.Get(v.GetInputParam()).(model.CaptionSet)
	req := VideoRequestFrom(context)

	images := v.Resolve(ctx, captions, req.Orientation)

	absent := 0
	for _, url := range images {
		if url == "" {
			absent++
		}
	}
	if absent > 0 {
		v.emptyCounter.Add(ctx, int64(absent))
		slog.InfoContext(ctx, model.ErrImageResolutionPartial.Error(),
			"request_id", context.GetRequestID(), "absent", absent, "lines", len(captions))
	}
	span.SetAttributes(attribute.Int("lines", len(captions)), attribute.Int("absent", absent))

	v.Succeed(context, &IllustratedCaptions{Captions: captions, Images: images})
}
