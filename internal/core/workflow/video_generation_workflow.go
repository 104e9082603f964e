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

// Package workflow defines the high-level orchestrations, combining commands
// into coherent pipelines. This file implements the video generation pipeline:
// the per-request state machine
//
//	Received -> [DocumentExtraction] -> Triage -> Captioning -> ImageResolution -> PlanBuilt -> Rendering -> Done | Failed
//
// Stages run strictly in sequence. A failing stage stops the chain and the
// request moves to Failed with that stage's error attached; the Go context is
// checked between stages so a caller that goes away stops the request before
// the next stage starts. Rendering itself is detached from the caller.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/commands"
	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// PipelineDependencies are the external collaborators of the pipeline.
type PipelineDependencies struct {
	TextModel   cloud.TextModel
	ImageSearch cloud.ImageSearcher
	ImageCache  commands.ImageCache
	Runner      commands.ProcessRunner
}

// NewPipelineDependencies wires the caption model, the image search client,
// the two-tier image cache and the process runner from the service clients.
func NewPipelineDependencies(config *cloud.Config, clients *cloud.ServiceClients) (PipelineDependencies, error) {
	textModel, err := clients.CaptionModel(config)
	if err != nil {
		return PipelineDependencies{}, err
	}
	cache, err := commands.NewImageCache(config.ImageSearch, clients.Redis)
	if err != nil {
		return PipelineDependencies{}, err
	}
	return PipelineDependencies{
		TextModel:   textModel,
		ImageSearch: clients.ImageSearch,
		ImageCache:  cache,
		Runner:      commands.ExecRunner{},
	}, nil
}

// VideoResult is the outcome of one successful pipeline run.
type VideoResult struct {
	RequestID  string           `json:"requestId"`
	OutputPath string           `json:"outputPath"`
	Plan       *model.ScenePlan `json:"plan"`
	Job        *model.RenderJob `json:"job"`
	Stages     []string         `json:"stages"`
}

// VideoGenerationWorkflow turns a prompt, or an uploaded document, into a
// rendered video.
type VideoGenerationWorkflow struct {
	cor.BaseCommand
	config   *cloud.Config
	deps     PipelineDependencies
	prompts  *commands.Prompts
	document bool
	chain    cor.Chain
}

// NewVideoGenerationWorkflow builds the pipeline. The document variant
// expects a *commands.DocumentUpload as its input and adds the extraction stage.
//
// Inputs:
//   - config: The application's configuration.
//   - deps: The text model, image search, image cache and process runner.
//   - document: Whether the input is an uploaded document.
//
// Outputs:
//   - *VideoGenerationWorkflow: The workflow, ready to Execute or Run.
//   - error: An error if a prompt template does not parse.
func NewVideoGenerationWorkflow(config *cloud.Config, deps PipelineDependencies, document bool) (*VideoGenerationWorkflow, error) {
	prompts, err := commands.NewPrompts(config.PromptTemplates)
	if err != nil {
		return nil, err
	}
	name := "video-generation-pipeline"
	if document {
		name = "document-video-generation-pipeline"
	}
	w := &VideoGenerationWorkflow{
		BaseCommand: *cor.NewBaseCommand(name),
		config:      config,
		deps:        deps,
		prompts:     prompts,
		document:    document,
	}
	w.initializeChain()
	return w, nil
}

func (w *VideoGenerationWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	if w.document {
		out.AddCommand(commands.NewDocumentExtractor("extract-document-text"))
	}
	out.AddCommand(commands.NewInputTriage("triage-input", w.deps.TextModel, w.config.Captions, w.prompts))
	out.AddCommand(commands.NewCaptionGenerator("generate-captions", w.deps.TextModel, w.config.Captions, w.prompts))
	out.AddCommand(commands.NewVisualResolver("resolve-images", w.deps.ImageSearch, w.deps.ImageCache, w.config.Application.ThreadPoolSize))
	out.AddCommand(commands.NewScenePlanBuilder("build-scene-plan"))
	out.AddCommand(commands.NewRenderInvoker("render-video", w.config.Render, w.config.Storage.OutputDir, w.deps.Runner))

	w.chain = out
}

// Chain returns the underlying chain.
func (w *VideoGenerationWorkflow) Chain() cor.Chain {
	return w.chain
}

// IsExecutable requires the input and the request.
func (w *VideoGenerationWorkflow) IsExecutable(context cor.Context) bool {
	return w.BaseCommand.IsExecutable(context) && commands.VideoRequestFrom(context) != nil
}

// Execute runs the chain and moves the request to Done or Failed.
func (w *VideoGenerationWorkflow) Execute(context cor.Context) {
	context.SetStage(string(model.StateReceived))
	w.chain.Execute(context)
	if context.HasErrors() {
		context.SetStage(string(model.StateFailed))
		return
	}
	context.SetStage(string(model.StateDone))
}

// Run executes the pipeline for a single request.
//
// Inputs:
//   - ctx: The caller's context; cancelling it stops the pipeline between stages.
//   - req: The request. Its RequestID keys the output directory.
//   - input: The prompt text, or a *commands.DocumentUpload for the document variant.
//
// Outputs:
//   - *VideoResult: The rendered video and the stages the request passed through.
//   - error: A *model.StageError naming the failed stage.
func (w *VideoGenerationWorkflow) Run(ctx context.Context, req *model.VideoRequest, input interface{}) (*VideoResult, error) {
	if req == nil || input == nil {
		return nil, model.NewStageError(model.StateReceived, fmt.Errorf("%w: missing input", model.ErrInvalidRequest))
	}
	chCtx := cor.NewRequestContext(req.RequestID)
	defer chCtx.Close()
	chCtx.SetContext(ctx)
	chCtx.Add(commands.ParamVideoRequest, req)
	chCtx.Add(cor.CtxIn, input)

	w.Execute(chCtx)

	if err := chCtx.Err(); err != nil {
		var stageErr *model.StageError
		if !errors.As(err, &stageErr) {
			history := chCtx.GetStageHistory()
			stage := model.StateReceived
			// The last entry is Failed; the one before it is where the request stopped.
			if len(history) >= 2 {
				stage = model.PipelineState(history[len(history)-2])
			}
			err = model.NewStageError(stage, err)
		}
		return nil, err
	}

	job := commands.RenderJobFrom(chCtx)
	if job == nil {
		return nil, model.NewStageError(model.StateRendering, fmt.Errorf("%w: no render job was produced", model.ErrRenderFailed))
	}
	plan, _ := chCtx.Get(commands.ParamScenePlan).(*model.ScenePlan)
	return &VideoResult{
		RequestID:  req.RequestID,
		OutputPath: job.OutputPath,
		Plan:       plan,
		Job:        job,
		Stages:     chCtx.GetStageHistory(),
	}, nil
}
