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
// command that drives the external render engine.
//
// Logic Flow:
//  1. The per-request directory `<output dir>/<request id>` is created and any
//     video left there by an earlier run is deleted.
//  2. The scene plan is serialized into the engine's props document.
//  3. The engine CLI renders exactly plan.TotalFrames frames of the composition
//     selected by the orientation. The process runs in its own process group,
//     is detached from the caller's cancellation and is killed on timeout.
//  4. A non-zero exit, or an exit without an output file, fails the job with
//     the engine's combined output as the diagnostic.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

const (
	PropsFileName = "props.json"
	VideoFileName = "video.mp4"
)

// maxDiagnostic bounds the engine output kept on a failed job.
const maxDiagnostic = 4096

// ProcessRunner runs an external program to completion and returns its
// combined output.
type ProcessRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// ArtifactDir returns the directory holding the artifacts of one request.
func ArtifactDir(outputDir string, requestID string) string {
	return filepath.Join(outputDir, requestID)
}

// artifactDirWithin resolves the request directory and rejects ids that
// would leave the output root.
func artifactDirWithin(outputDir string, requestID string) (string, error) {
	root, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrRenderFailed, err)
	}
	dir := filepath.Join(root, requestID)
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || rel == ".." || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("%w: request id %q escapes the output directory", model.ErrInvalidRequest, requestID)
	}
	return dir, nil
}

// VideoPath returns the rendered video location of one request.
func VideoPath(outputDir string, requestID string) string {
	return filepath.Join(ArtifactDir(outputDir, requestID), VideoFileName)
}

// RenderArgs builds the engine CLI arguments for a render of totalFrames frames.
func RenderArgs(entryPoint string, compositionID string, outputPath string, propsPath string, totalFrames int) []string {
	return []string{
		"remotion", "render", entryPoint, compositionID, outputPath,
		"--props=" + propsPath,
		fmt.Sprintf("--frames=0-%d", totalFrames-1),
	}
}

// RenderInvoker is a command that renders the scene plan into a video file.
type RenderInvoker struct {
	cor.BaseCommand
	settings  cloud.Render
	outputDir string
	runner    ProcessRunner
	duration  metric.Float64Histogram
}

// NewRenderInvoker is the constructor for the RenderInvoker command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - settings: The engine command, project directory, entry point and timeout.
//   - outputDir: The root of the per-request artifact directories.
//   - runner: Runs the engine process.
//
// Outputs:
//   - *RenderInvoker: The command, entering the Rendering stage when run.
func NewRenderInvoker(name string, settings cloud.Render, outputDir string, runner ProcessRunner) *RenderInvoker {
	out := &RenderInvoker{
		BaseCommand: *cor.NewStageCommand(name, string(model.StateRendering)),
		settings:    settings,
		outputDir:   outputDir,
		runner:      runner,
	}
	out.duration, _ = out.GetMeter().Float64Histogram(fmt.Sprintf("%s.duration", out.GetName()), metric.WithUnit("s"))
	return out
}

// Render writes the props document and runs the engine for one request. The
// returned job is non-nil whenever the engine was started, also on failure.
func (r *RenderInvoker) Render(ctx context.Context, requestID string, plan *model.ScenePlan) (*model.RenderJob, error) {
	if plan.IsEmpty() {
		return nil, model.ErrEmptyPlan
	}

	dir, err := artifactDirWithin(r.outputDir, requestID)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %w", model.ErrRenderFailed, dir, err)
	}
	propsPath := filepath.Join(dir, PropsFileName)
	outputPath := filepath.Join(dir, VideoFileName)

	if err = os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to delete stale output: %w", model.ErrRenderFailed, err)
	}

	props, err := json.MarshalIndent(model.NewRenderProps(plan), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrRenderFailed, err)
	}
	if err = os.WriteFile(propsPath, props, 0o644); err != nil {
		return nil, fmt.Errorf("%w: failed to write props: %w", model.ErrRenderFailed, err)
	}

	job := model.NewRenderJob(requestID, plan, propsPath, outputPath)
	args := RenderArgs(r.settings.EntryPoint, plan.CompositionID, outputPath, propsPath, plan.TotalFrames)

	runCtx := context.WithoutCancel(ctx)
	if r.settings.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, r.settings.Timeout)
		defer cancel()
	}

	slog.InfoContext(ctx, "starting render", "request_id", requestID,
		"composition", plan.CompositionID, "frames", plan.TotalFrames)
	start := time.Now()
	output, err := r.runner.Run(runCtx, r.settings.ProjectDir, r.settings.Command, args...)
	r.duration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("composition", plan.CompositionID)))

	if err != nil {
		detail := diagnostic(output)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			detail = fmt.Sprintf("render timed out after %s: %s", r.settings.Timeout, detail)
		}
		job.Fail(detail)
		return job, fmt.Errorf("%w: %v: %s", model.ErrRenderFailed, err, detail)
	}
	if _, err = os.Stat(outputPath); err != nil {
		job.Fail("engine exited without writing " + VideoFileName)
		return job, fmt.Errorf("%w: %s", model.ErrRenderFailed, job.Message)
	}

	job.Succeed()
	return job, nil
}

func diagnostic(output []byte) string {
	detail := strings.TrimSpace(string(output))
	if len(detail) > maxDiagnostic {
		detail = detail[len(detail)-maxDiagnostic:]
	}
	return detail
}

func (r *RenderInvoker) IsExecutable(context cor.Context) bool {
	return r.BaseCommand.IsExecutable(context) && VideoRequestFrom(context) != nil
}

// Execute reads the ScenePlan from the input parameter and writes the
// finished RenderJob to the output parameter.
func (r *RenderInvoker) Execute(context cor.Context) {
	ctx, span := r.GetTracer().Start(context.GetContext(), r.GetName())
	defer span.End()

	plan := context.Get(r.GetInputParam()).(*model.ScenePlan)
	req := VideoRequestFrom(context)

	job, err := r.Render(ctx, req.RequestID, plan)
	if job != nil {
		context.Add(ParamRenderJob, job)
	}
	if err != nil {
		span.RecordError(err)
		failStage(&r.BaseCommand, context, err)
		return
	}
	span.SetAttributes(attribute.String("output", job.OutputPath))
	r.Succeed(context, job)
}
