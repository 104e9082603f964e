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
// Responsibility (COR) pattern's Command interface. Every stage of the video
// pipeline is one command. Besides the CtxIn/CtxOut pipe, the stages share a
// few named context values defined in this file.
package commands

import (
	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// Named context keys shared across pipeline stages.
const (
	ParamVideoRequest = "__VIDEO_REQUEST__" // *model.VideoRequest of the run.
	ParamScenePlan    = "__SCENE_PLAN__"    // *model.ScenePlan once built.
	ParamRenderJob    = "__RENDER_JOB__"    // *model.RenderJob once rendering started.
)

// IllustratedCaptions pairs every caption with its resolved image. An empty
// image marks a line no image could be found for.
type IllustratedCaptions struct {
	Captions model.CaptionSet
	Images   []string
}

// VideoRequestFrom returns the request stored in the context, or nil.
func VideoRequestFrom(context cor.Context) *model.VideoRequest {
	req, _ := context.Get(ParamVideoRequest).(*model.VideoRequest)
	return req
}

// RenderJobFrom returns the render job stored in the context, or nil.
func RenderJobFrom(context cor.Context) *model.RenderJob {
	job, _ := context.Get(ParamRenderJob).(*model.RenderJob)
	return job
}

// failStage records err against the command wrapped with the command's stage.
func failStage(c *cor.BaseCommand, context cor.Context, err error) {
	c.Fail(context, model.NewStageError(model.PipelineState(c.GetStage()), err))
}
