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

package commands_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/commands"
	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
	test "github.com/verbavid/verbavid-api/internal/testutil"
)

func captionSettings() cloud.CaptionSettings {
	return cloud.CaptionSettings{
		MaxAttempts:           3,
		BaseDelay:             time.Second,
		MaxDelay:              30 * time.Second,
		InputCeiling:          500_000,
		TokenLimitCeiling:     10_000,
		SummaryTokenThreshold: 800_000,
	}
}

func prompts(t *testing.T) *commands.Prompts {
	t.Helper()
	p, err := commands.NewPrompts(cloud.PromptTemplates{})
	require.NoError(t, err)
	return p
}

// sleepRecorder collects requested backoffs without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) Total() time.Duration {
	var total time.Duration
	for _, d := range s.delays {
		total += d
	}
	return total
}

func rateLimited() error {
	return fmt.Errorf("%w: 429 resource exhausted", model.ErrRateLimited)
}

func newRequestContext(req *model.VideoRequest) cor.Context {
	chCtx := cor.NewRequestContext(req.RequestID)
	chCtx.SetContext(context.Background())
	chCtx.Add(commands.ParamVideoRequest, req)
	return chCtx
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, commands.EstimateTokens(""))
	assert.Equal(t, 1, commands.EstimateTokens("abcd"))
	assert.Equal(t, 2, commands.EstimateTokens("abcde"))
	assert.Equal(t, 1, commands.EstimateTokens("éééé"))
}

func TestTruncateMiddleBoundary(t *testing.T) {
	const ceiling = 100

	exact := strings.Repeat("a", ceiling)
	out, truncated := commands.TruncateMiddle(exact, ceiling)
	assert.False(t, truncated)
	assert.Equal(t, exact, out)

	over := strings.Repeat("a", 50) + strings.Repeat("b", 51)
	out, truncated = commands.TruncateMiddle(over, ceiling)
	assert.True(t, truncated)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), ceiling)
	assert.Contains(t, out, commands.ElisionMarker)

	keep := (ceiling - utf8.RuneCountInString(commands.ElisionMarker)) / 2
	assert.Equal(t, strings.Repeat("a", keep)+commands.ElisionMarker+strings.Repeat("b", keep), out)
}

func TestTruncateMiddleCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 80)
	out, truncated := commands.TruncateMiddle(text, 80)
	assert.False(t, truncated)
	assert.Equal(t, text, out)

	out, truncated = commands.TruncateMiddle(text+"é", 80)
	assert.True(t, truncated)
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, utf8.RuneCountInString(out), 80)
}

func TestCaptionGeneratorRetriesRateLimit(t *testing.T) {
	textModel := test.NewFakeTextModel(
		test.FakeResponse{Err: rateLimited()},
		test.FakeResponse{Err: rateLimited()},
		test.FakeResponse{Text: "1. Cats are great.\n- Dogs are loyal.\n"},
	)
	sleeper := &sleepRecorder{}
	gen := commands.NewCaptionGenerator("captions", textModel, captionSettings(), prompts(t)).WithSleeper(sleeper.Sleep)

	captions, err := gen.Generate(context.Background(), "pets", false, model.LengthShort)
	require.NoError(t, err)
	assert.Equal(t, model.CaptionSet{"Cats are great.", "Dogs are loyal."}, captions)
	assert.Equal(t, 3, textModel.CallCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.GreaterOrEqual(t, sleeper.Total(), 3*time.Second)
}

func TestCaptionGeneratorExhaustsAttempts(t *testing.T) {
	textModel := test.NewFakeTextModel(test.FakeResponse{Err: rateLimited()})
	sleeper := &sleepRecorder{}
	gen := commands.NewCaptionGenerator("captions", textModel, captionSettings(), prompts(t)).WithSleeper(sleeper.Sleep)

	_, err := gen.Generate(context.Background(), "pets", false, model.LengthShort)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCaptionGenerationFailed)
	assert.ErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, 3, textModel.CallCount())
	assert.Len(t, sleeper.delays, 2)
}

func TestCaptionGeneratorTruncatesOnTokenLimit(t *testing.T) {
	textModel := test.NewFakeTextModel(
		test.FakeResponse{Err: fmt.Errorf("%w: context length exceeded", model.ErrTokenLimit)},
		test.FakeResponse{Text: "A long story, shortened."},
	)
	sleeper := &sleepRecorder{}
	gen := commands.NewCaptionGenerator("captions", textModel, captionSettings(), prompts(t)).WithSleeper(sleeper.Sleep)

	source := strings.Repeat("x", 20_000)
	captions, err := gen.Generate(context.Background(), source, false, model.LengthMedium)
	require.NoError(t, err)
	assert.Len(t, captions, 1)
	assert.Empty(t, sleeper.delays)

	require.Len(t, textModel.Calls, 2)
	assert.NotContains(t, textModel.Calls[0].Prompt, commands.ElisionMarker)
	assert.Contains(t, textModel.Calls[1].Prompt, commands.ElisionMarker)
	assert.Less(t, len(textModel.Calls[1].Prompt), len(textModel.Calls[0].Prompt))
}

func TestCaptionGeneratorFatalError(t *testing.T) {
	textModel := test.NewFakeTextModel(test.FakeResponse{Err: errors.New("permission denied")})
	gen := commands.NewCaptionGenerator("captions", textModel, captionSettings(), prompts(t)).WithSleeper((&sleepRecorder{}).Sleep)

	_, err := gen.Generate(context.Background(), "pets", false, model.LengthShort)
	assert.ErrorIs(t, err, model.ErrCaptionGenerationFailed)
	assert.Equal(t, 1, textModel.CallCount())
}

func TestCaptionGeneratorEmptyResponse(t *testing.T) {
	textModel := test.NewFakeTextModel(test.FakeResponse{Text: " \n - \n"})
	gen := commands.NewCaptionGenerator("captions", textModel, captionSettings(), prompts(t))

	_, err := gen.Generate(context.Background(), "pets", false, model.LengthShort)
	assert.ErrorIs(t, err, model.ErrCaptionGenerationFailed)
}

func TestCaptionGeneratorPrompts(t *testing.T) {
	settings := captionSettings()
	settings.InputCeiling = 100
	textModel := test.NewFakeTextModel(test.FakeResponse{Text: "One line."})
	gen := commands.NewCaptionGenerator("captions", textModel, settings, prompts(t))

	_, err := gen.Generate(context.Background(), strings.Repeat("y", 500), true, model.LengthShort)
	require.NoError(t, err)

	call := textModel.Calls[0]
	assert.Equal(t, commands.CaptionInstruction, call.Instruction)
	assert.Contains(t, call.Prompt, "between 6 and 12")
	assert.Contains(t, call.Prompt, "extracted from a document")
	assert.Contains(t, call.Prompt, commands.ElisionMarker)
	assert.NotContains(t, call.Prompt, strings.Repeat("y", 100))
}

func TestCaptionGeneratorBackoffCap(t *testing.T) {
	gen := commands.NewCaptionGenerator("captions", nil, captionSettings(), prompts(t))
	assert.Equal(t, time.Second, gen.Backoff(1))
	assert.Equal(t, 2*time.Second, gen.Backoff(2))
	assert.Equal(t, 16*time.Second, gen.Backoff(5))
	assert.Equal(t, 30*time.Second, gen.Backoff(6))
	assert.Equal(t, 30*time.Second, gen.Backoff(40))
}

func TestCaptionGeneratorCommandFailsWithStage(t *testing.T) {
	textModel := test.NewFakeTextModel(test.FakeResponse{Err: errors.New("boom")})
	gen := commands.NewCaptionGenerator("captions", textModel, captionSettings(), prompts(t))

	req := model.NewVideoRequest("pets", "", "", "")
	chCtx := newRequestContext(req)
	chCtx.Add(cor.CtxIn, req.Text)
	require.True(t, gen.IsExecutable(chCtx))
	gen.Execute(chCtx)

	require.True(t, chCtx.HasErrors())
	assert.Equal(t, model.StateCaptioning, model.StageOf(chCtx.Err()))
	assert.ErrorIs(t, chCtx.Err(), model.ErrCaptionGenerationFailed)
}

func TestInputTriage(t *testing.T) {
	settings := captionSettings()
	settings.SummaryTokenThreshold = 10
	settings.InputCeiling = 60

	t.Run("under threshold", func(t *testing.T) {
		textModel := test.NewFakeTextModel(test.FakeResponse{Text: "unused"})
		triage := commands.NewInputTriage("triage", textModel, settings, prompts(t))
		assert.Equal(t, "short text", triage.Triage(context.Background(), "short text"))
		assert.Equal(t, 0, textModel.CallCount())
	})

	t.Run("summarized", func(t *testing.T) {
		textModel := test.NewFakeTextModel(test.FakeResponse{Text: "  a summary  "})
		triage := commands.NewInputTriage("triage", textModel, settings, prompts(t))
		assert.Equal(t, "a summary", triage.Triage(context.Background(), strings.Repeat("z", 200)))
		assert.Equal(t, commands.SummaryInstruction, textModel.Calls[0].Instruction)
	})

	t.Run("summary fails", func(t *testing.T) {
		textModel := test.NewFakeTextModel(test.FakeResponse{Err: rateLimited()})
		triage := commands.NewInputTriage("triage", textModel, settings, prompts(t))
		out := triage.Triage(context.Background(), strings.Repeat("z", 200))
		assert.Contains(t, out, commands.ElisionMarker)
		assert.LessOrEqual(t, utf8.RuneCountInString(out), 60)
	})
}

func TestSanitizeQuery(t *testing.T) {
	cases := map[string]string{
		"Cats are #great!":           "Cats are",
		"Hello, world... 123":        "Hello world 123",
		"  #only #tags  ":            "",
		"Dogs\tare   loyal.":         "Dogs are loyal",
		"Snake_case stays together.": "Snake_case stays together",
	}
	for in, want := range cases {
		assert.Equal(t, want, commands.SanitizeQuery(in), in)
	}
}

func newResolver(t *testing.T, searcher *test.FakeImageSearcher, size int) *commands.VisualResolver {
	t.Helper()
	cache, err := commands.NewLRUImageCache(size)
	require.NoError(t, err)
	return commands.NewVisualResolver("images", searcher, cache, 4)
}

func TestVisualResolverPreservesOrder(t *testing.T) {
	searcher := test.NewFakeImageSearcher(map[string]string{
		"First":  "https://img/1.jpg",
		"Second": "https://img/2.jpg",
		"third":  "https://img/3.jpg",
	})
	searcher.Delays["First"] = 40 * time.Millisecond
	searcher.Delays["Second"] = 20 * time.Millisecond

	resolver := newResolver(t, searcher, 16)
	images := resolver.Resolve(context.Background(), []string{"First!", "Second?", "#tag third"}, model.OrientationPortrait)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg", "https://img/3.jpg"}, images)
}

func TestVisualResolverCachesPerQueryAndOrientation(t *testing.T) {
	searcher := test.NewFakeImageSearcher(map[string]string{"Sunny beach": "https://img/beach.jpg"})
	resolver := newResolver(t, searcher, 16)

	for i := 0; i < 2; i++ {
		images := resolver.Resolve(context.Background(), []string{"Sunny beach!"}, model.OrientationPortrait)
		assert.Equal(t, []string{"https://img/beach.jpg"}, images)
	}
	assert.Equal(t, 1, searcher.Calls("Sunny beach"))

	resolver.Resolve(context.Background(), []string{"Sunny beach"}, model.OrientationLandscape)
	assert.Equal(t, 2, searcher.Calls("Sunny beach"))
}

func TestVisualResolverDuplicateLinesInOneRequest(t *testing.T) {
	searcher := test.NewFakeImageSearcher(map[string]string{"Rain": "https://img/rain.jpg"})
	searcher.Delays["Rain"] = 20 * time.Millisecond
	resolver := newResolver(t, searcher, 16)

	images := resolver.Resolve(context.Background(), []string{"Rain", "Rain.", "Rain!"}, model.OrientationSquare)
	assert.Equal(t, []string{"https://img/rain.jpg", "https://img/rain.jpg", "https://img/rain.jpg"}, images)
	assert.Equal(t, 1, searcher.Calls("Rain"))
}

func TestVisualResolverSharedSearchSurvivesLeaderCancellation(t *testing.T) {
	searcher := test.NewFakeImageSearcher(map[string]string{"Beach": "https://img/beach.jpg"})
	searcher.Delays["Beach"] = 100 * time.Millisecond
	resolver := newResolver(t, searcher, 16)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leader := make(chan []string, 1)
	go func() {
		leader <- resolver.Resolve(leaderCtx, []string{"Beach"}, model.OrientationPortrait)
	}()
	time.Sleep(20 * time.Millisecond)

	follower := make(chan []string, 1)
	go func() {
		follower <- resolver.Resolve(context.Background(), []string{"Beach"}, model.OrientationPortrait)
	}()
	time.Sleep(10 * time.Millisecond)
	cancelLeader()

	assert.Equal(t, []string{""}, <-leader)
	assert.Equal(t, []string{"https://img/beach.jpg"}, <-follower)
	assert.Equal(t, 1, searcher.Calls("Beach"))

	images := resolver.Resolve(context.Background(), []string{"Beach"}, model.OrientationPortrait)
	assert.Equal(t, []string{"https://img/beach.jpg"}, images)
	assert.Equal(t, 1, searcher.Calls("Beach"))
}

func TestVisualResolverAbsentImages(t *testing.T) {
	searcher := test.NewFakeImageSearcher(map[string]string{"Found": "https://img/found.jpg"})
	searcher.Errors["Broken"] = errors.New("503 from upstream")
	resolver := newResolver(t, searcher, 16)

	for i := 0; i < 2; i++ {
		images := resolver.Resolve(context.Background(), []string{"Found", "Nothing here", "Broken", "###"}, model.OrientationPortrait)
		assert.Equal(t, []string{"https://img/found.jpg", "", "", ""}, images)
	}
	assert.Equal(t, 1, searcher.Calls("Nothing here"), "an empty result is cached")
	assert.Equal(t, 2, searcher.Calls("Broken"), "a failed search is not cached")
	assert.Equal(t, 0, searcher.Calls(""), "an empty query is never searched")
}

func TestVisualResolverCommand(t *testing.T) {
	searcher := test.NewFakeImageSearcher(map[string]string{"Cats are great": "https://img/cats.jpg"})
	resolver := newResolver(t, searcher, 16)

	req := model.NewVideoRequest("", "", "", "")
	chCtx := newRequestContext(req)
	chCtx.Add(cor.CtxIn, model.CaptionSet{"Cats are great.", "Dogs are loyal."})
	resolver.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	out := chCtx.Get(cor.CtxOut).(*commands.IllustratedCaptions)
	assert.Equal(t, []string{"https://img/cats.jpg", ""}, out.Images)
	assert.Equal(t, model.CaptionSet{"Cats are great.", "Dogs are loyal."}, out.Captions)
}

func TestLRUImageCacheEvicts(t *testing.T) {
	cache, err := commands.NewLRUImageCache(2)
	require.NoError(t, err)
	ctx := context.Background()

	cache.Add(ctx, "a", "1")
	cache.Add(ctx, "b", "2")
	_, _ = cache.Get(ctx, "a")
	cache.Add(ctx, "c", "3")

	_, ok := cache.Get(ctx, "b")
	assert.False(t, ok)
	v, ok := cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 2, cache.Len())
}

func TestTieredImageCacheBackfillsLocal(t *testing.T) {
	local, err := commands.NewLRUImageCache(4)
	require.NoError(t, err)
	shared, err := commands.NewLRUImageCache(4)
	require.NoError(t, err)
	ctx := context.Background()

	shared.Add(ctx, "k", "")
	cache := &commands.TieredImageCache{Local: local, Shared: shared}

	v, ok := cache.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "", v)
	_, ok = local.Get(ctx, "k")
	assert.True(t, ok)

	cache.Add(ctx, "n", "url")
	_, ok = shared.Get(ctx, "n")
	assert.True(t, ok)
}

func TestNewImageCacheWithoutRedis(t *testing.T) {
	cache, err := commands.NewImageCache(cloud.ImageSearch{CacheSize: 8}, nil)
	require.NoError(t, err)
	assert.IsType(t, &commands.LRUImageCache{}, cache)
}
