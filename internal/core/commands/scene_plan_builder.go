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
	"fmt"

	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// BuildPlan lays the captions out as contiguous scenes of the tier's frame
// count. Scene i starts at frame i*framesPerCaption. images[i] is bound to
// scene i; missing entries leave the scene without an image.
func BuildPlan(captions model.CaptionSet, images []string, tier model.LengthTier, orientation model.Orientation, tmpl model.Template) *model.ScenePlan {
	framesPerCaption := tier.FramesPerCaption()
	scenes := make([]model.Scene, len(captions))
	for i, caption := range captions {
		var image string
		if i < len(images) {
			image = images[i]
		}
		scenes[i] = model.Scene{
			Index:      i,
			Caption:    caption,
			ImageURL:   image,
			StartFrame: i * framesPerCaption,
			FrameCount: framesPerCaption,
		}
	}
	return &model.ScenePlan{
		Scenes:           scenes,
		FPS:              model.FPS,
		FramesPerCaption: framesPerCaption,
		TotalFrames:      len(captions) * framesPerCaption,
		Orientation:      orientation,
		Dimensions:       orientation.Dimensions(),
		CompositionID:    orientation.CompositionID(),
		Template:         tmpl,
		Length:           tier,
	}
}

// ScenePlanBuilder is the command wrapping BuildPlan. It rejects an empty
// plan so nothing zero-length is ever rendered.
type ScenePlanBuilder struct {
	cor.BaseCommand
}

func NewScenePlanBuilder(name string) *ScenePlanBuilder {
	return &ScenePlanBuilder{BaseCommand: *cor.NewStageCommand(name, string(model.StatePlanBuilt))}
}

func (s *ScenePlanBuilder) IsExecutable(context cor.Context) bool {
	return s.BaseCommand.IsExecutable(context) && VideoRequestFrom(context) != nil
}

func (s *ScenePlanBuilder) Execute(context cor.Context) {
	in := context.Get(s.GetInputParam()).(*IllustratedCaptions)
	req := VideoRequestFrom(context)

	plan := BuildPlan(in.Captions, in.Images, req.Length, req.Orientation, req.Template)
	if plan.IsEmpty() {
		failStage(&s.BaseCommand, context, fmt.Errorf("%w: no captions to lay out", model.ErrEmptyPlan))
		return
	}
	context.Add(ParamScenePlan, plan)
	s.Succeed(context, plan)
}
