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
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/commands"
	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
	test "github.com/verbavid/verbavid-api/internal/testutil"
)

func TestBuildPlanFrameArithmetic(t *testing.T) {
	for _, tier := range []model.LengthTier{model.LengthShort, model.LengthMedium, model.LengthLong} {
		f := tier.FramesPerCaption()
		for n := 0; n <= 32; n++ {
			captions := make(model.CaptionSet, n)
			for i := range captions {
				captions[i] = "line"
			}
			plan := commands.BuildPlan(captions, nil, tier, model.OrientationPortrait, model.TemplateModern)

			require.Equal(t, n*f, plan.TotalFrames)
			sum := 0
			for i, scene := range plan.Scenes {
				assert.Equal(t, i*f, scene.StartFrame)
				assert.Equal(t, f, scene.FrameCount)
				if i > 0 {
					assert.Equal(t, plan.Scenes[i-1].EndFrame(), scene.StartFrame)
				}
				sum += scene.FrameCount
			}
			assert.Equal(t, plan.TotalFrames, sum)
		}
	}
}

func TestBuildPlanPresets(t *testing.T) {
	plan := commands.BuildPlan(model.CaptionSet{"Cats are great.", "Dogs are loyal."}, []string{"https://img/cats.jpg"},
		model.LengthShort, model.OrientationLandscape, model.TemplateVibrant)

	require.Len(t, plan.Scenes, 2)
	assert.Equal(t, 96, plan.TotalFrames)
	assert.Equal(t, model.FPS, plan.FPS)
	assert.Equal(t, model.Dimensions{Width: 1920, Height: 1080}, plan.Dimensions)
	assert.Equal(t, "CaptionedVideo-landscape", plan.CompositionID)
	assert.True(t, plan.Scenes[0].HasImage())
	assert.False(t, plan.Scenes[1].HasImage())
}

func TestScenePlanBuilderRejectsEmptyPlan(t *testing.T) {
	req := model.NewVideoRequest("", "", "", "short")
	chCtx := newRequestContext(req)
	chCtx.Add(cor.CtxIn, &commands.IllustratedCaptions{})

	commands.NewScenePlanBuilder("plan").Execute(chCtx)

	require.True(t, chCtx.HasErrors())
	assert.ErrorIs(t, chCtx.Err(), model.ErrEmptyPlan)
	assert.Equal(t, model.StatePlanBuilt, model.StageOf(chCtx.Err()))
}

func samplePlan() *model.ScenePlan {
	return commands.BuildPlan(model.CaptionSet{"Cats are great.", "Dogs are loyal."},
		[]string{"https://img/cats.jpg", ""}, model.LengthShort, model.OrientationPortrait, model.TemplateModern)
}

func renderSettings() cloud.Render {
	return cloud.Render{Command: "npx", ProjectDir: "video-generator", EntryPoint: "src/index.ts", Timeout: time.Minute}
}

func TestRenderInvokerWritesPropsAndRuns(t *testing.T) {
	outputDir := t.TempDir()
	runner := &test.FakeRunner{}
	invoker := commands.NewRenderInvoker("render", renderSettings(), outputDir, runner)

	job, err := invoker.Render(context.Background(), "req-1", samplePlan())
	require.NoError(t, err)
	assert.Equal(t, model.RenderSucceeded, job.Status)
	assert.Equal(t, "CaptionedVideo", job.CompositionID)
	assert.Equal(t, 96, job.TotalFrames)

	dir, err := filepath.Abs(filepath.Join(outputDir, "req-1"))
	require.NoError(t, err)
	propsPath := filepath.Join(dir, commands.PropsFileName)
	outputPath := filepath.Join(dir, commands.VideoFileName)
	assert.Equal(t, outputPath, job.OutputPath)

	assert.Equal(t, []string{"video-generator"}, runner.Dirs)
	assert.Equal(t, []string{"npx"}, runner.Names)
	assert.Equal(t, []string{
		"remotion", "render", "src/index.ts", "CaptionedVideo", outputPath,
		"--props=" + propsPath, "--frames=0-95",
	}, runner.LastArgs())

	raw, err := os.ReadFile(propsPath)
	require.NoError(t, err)
	var props map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &props))
	assert.Equal(t, "Cats are great.\nDogs are loyal.", props["promptText"])
	assert.Equal(t, "Cats are great. Dogs are loyal.", props["textForSpeech"])
	assert.Equal(t, float64(96), props["durationInFrames"])
	assert.Equal(t, float64(48), props["framesPerCaption"])
	assert.Equal(t, []interface{}{"https://img/cats.jpg", ""}, props["images"])
	assert.Equal(t, "portrait", props["orientation"])
	assert.Equal(t, "modern", props["templateName"])
	assert.Equal(t, "short", props["videoLength"])
}

func TestRenderInvokerDeletesStaleOutputAndSurfacesFailure(t *testing.T) {
	outputDir := t.TempDir()
	stale := commands.VideoPath(outputDir, "req-2")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	runner := &test.FakeRunner{Output: []byte("Error: composition crashed\n"), Err: errors.New("exit status 1")}
	invoker := commands.NewRenderInvoker("render", renderSettings(), outputDir, runner)

	job, err := invoker.Render(context.Background(), "req-2", samplePlan())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRenderFailed)
	assert.Contains(t, err.Error(), "composition crashed")
	require.NotNil(t, job)
	assert.Equal(t, model.RenderFailedRun, job.Status)
	assert.Equal(t, "Error: composition crashed", job.Message)

	_, statErr := os.Stat(stale)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRenderInvokerIgnoresCallerCancellation(t *testing.T) {
	settings := renderSettings()
	settings.Timeout = 50 * time.Millisecond
	runner := &test.FakeRunner{Block: true}
	invoker := commands.NewRenderInvoker("render", settings, t.TempDir(), runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	job, err := invoker.Render(ctx, "req-3", samplePlan())
	assert.ErrorIs(t, err, model.ErrRenderFailed)
	assert.GreaterOrEqual(t, time.Since(start), settings.Timeout)
	assert.Contains(t, job.Message, "timed out")
}

func TestRenderInvokerRejectsEmptyPlan(t *testing.T) {
	runner := &test.FakeRunner{}
	invoker := commands.NewRenderInvoker("render", renderSettings(), t.TempDir(), runner)

	_, err := invoker.Render(context.Background(), "req-4", &model.ScenePlan{})
	assert.ErrorIs(t, err, model.ErrEmptyPlan)
	assert.Equal(t, 0, runner.RunCount())
}

func TestRenderInvokerStaysInsideOutputDir(t *testing.T) {
	root := t.TempDir()
	outputDir := filepath.Join(root, "renders")
	runner := &test.FakeRunner{}
	invoker := commands.NewRenderInvoker("render", renderSettings(), outputDir, runner)

	for _, id := range []string{"../escaped", "..", "", "a/b"} {
		_, err := invoker.Render(context.Background(), id, samplePlan())
		assert.ErrorIs(t, err, model.ErrInvalidRequest, id)
	}
	assert.Equal(t, 0, runner.RunCount())
	_, err := os.Stat(filepath.Join(root, "escaped"))
	assert.True(t, os.IsNotExist(err))
}

func TestRenderInvokerCommand(t *testing.T) {
	invoker := commands.NewRenderInvoker("render", renderSettings(), t.TempDir(), &test.FakeRunner{})
	req := model.NewVideoRequest("", "", "", "short")
	chCtx := newRequestContext(req)
	chCtx.Add(cor.CtxIn, samplePlan())

	require.True(t, invoker.IsExecutable(chCtx))
	invoker.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	job := commands.RenderJobFrom(chCtx)
	require.NotNil(t, job)
	assert.Equal(t, req.RequestID, job.RequestID)
	assert.Same(t, job, chCtx.Get(cor.CtxOut))
}

func docx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, err := w.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = ct.Write([]byte(`<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`))
	require.NoError(t, err)

	doc, err := w.Create("word/document.xml")
	require.NoError(t, err)
	body := `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	for _, p := range paragraphs {
		body += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	body += `</w:body></w:document>`
	_, err = doc.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractText(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		text, err := commands.ExtractText(&commands.DocumentUpload{FileName: "notes.txt", Data: []byte("  Cats are great.\n")})
		require.NoError(t, err)
		assert.Equal(t, "Cats are great.", text)
	})

	t.Run("docx", func(t *testing.T) {
		text, err := commands.ExtractText(&commands.DocumentUpload{FileName: "report.docx", Data: docx(t, "First paragraph.", "Second paragraph.")})
		require.NoError(t, err)
		assert.Equal(t, "First paragraph.\nSecond paragraph.", text)
	})

	t.Run("malformed pdf", func(t *testing.T) {
		_, err := commands.ExtractText(&commands.DocumentUpload{FileName: "broken.pdf", Data: []byte("%PDF-1.4\nnot really a pdf")})
		assert.ErrorIs(t, err, model.ErrDocumentParseFailed)
	})

	t.Run("binary", func(t *testing.T) {
		data := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 600)...)
		_, err := commands.ExtractText(&commands.DocumentUpload{FileName: "old.doc", Data: data})
		assert.ErrorIs(t, err, model.ErrDocumentParseFailed)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := commands.ExtractText(&commands.DocumentUpload{FileName: "blank.txt", Data: []byte("   \n")})
		assert.ErrorIs(t, err, model.ErrDocumentParseFailed)
	})
}

func TestDocumentExtractorUpdatesRequest(t *testing.T) {
	req := model.NewVideoRequest("", "", "", "")
	chCtx := newRequestContext(req)
	chCtx.Add(cor.CtxIn, &commands.DocumentUpload{FileName: "notes.txt", Data: []byte("Solar power is cheap.")})

	commands.NewDocumentExtractor("extract").Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, "Solar power is cheap.", chCtx.Get(cor.CtxOut))
	assert.True(t, req.IsDocument)
	assert.Equal(t, "Solar power is cheap.", req.Text)
}

func TestRenderTriggerReader(t *testing.T) {
	chCtx := cor.NewRequestContext("msg-1")
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, test.GetTestRenderRequestMessageText())

	commands.NewRenderTriggerReader("trigger").Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	req := commands.VideoRequestFrom(chCtx)
	require.NotNil(t, req)
	assert.Equal(t, "0b0d1f0e-5a8e-4a51-9d4f-7c1d0d8a1e01", req.RequestID)
	assert.Equal(t, model.OrientationLandscape, req.Orientation)
	assert.Equal(t, model.LengthShort, req.Length)
	assert.Equal(t, model.TemplateMinimal, req.Template)
	assert.Equal(t, "Cats are great.\nDogs are loyal.", chCtx.Get(cor.CtxOut))

	bad := cor.NewRequestContext("msg-2")
	bad.SetContext(context.Background())
	bad.Add(cor.CtxIn, `{"template":"modern"}`)
	commands.NewRenderTriggerReader("trigger").Execute(bad)
	assert.ErrorIs(t, bad.Err(), model.ErrInvalidRequest)
}

func TestRenderTriggerReaderRejectsNonUUIDRequestID(t *testing.T) {
	chCtx := cor.NewRequestContext("msg-3")
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, `{"requestId":"../escaped","userPrompt":"Cats"}`)

	commands.NewRenderTriggerReader("trigger").Execute(chCtx)

	require.True(t, chCtx.HasErrors())
	assert.ErrorIs(t, chCtx.Err(), model.ErrInvalidRequest)
	assert.Equal(t, model.StateReceived, model.StageOf(chCtx.Err()))
	assert.Nil(t, commands.VideoRequestFrom(chCtx))
}

func TestPublishingCommandsSkipWithoutClients(t *testing.T) {
	req := model.NewVideoRequest("", "", "", "")
	chCtx := newRequestContext(req)
	chCtx.Add(commands.ParamRenderJob, &model.RenderJob{RequestID: req.RequestID, Status: model.RenderSucceeded})

	assert.False(t, commands.NewVideoUpload("upload", nil, "bucket").IsExecutable(chCtx))
	assert.False(t, commands.NewRenderPersistToBigQuery("persist", nil, "ds", "jobs").IsExecutable(chCtx))
}
