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

package model_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbavid/verbavid-api/internal/core/model"
)

// TestPresetsFallBack verifies that unknown or empty preset values resolve to
// the documented defaults.
func TestPresetsFallBack(t *testing.T) {
	assert.Equal(t, model.TemplateModern, model.ParseTemplate("neon"))
	assert.Equal(t, model.TemplateVibrant, model.ParseTemplate(" Vibrant "))
	assert.Equal(t, model.OrientationPortrait, model.ParseOrientation(""))
	assert.Equal(t, model.OrientationSquare, model.ParseOrientation("SQUARE"))
	assert.Equal(t, model.LengthMedium, model.ParseLengthTier("epic"))
	assert.Equal(t, model.LengthShort, model.ParseLengthTier("short"))
}

// TestOrientationPresets checks dimensions and composition ids per orientation.
func TestOrientationPresets(t *testing.T) {
	cases := []struct {
		in          model.Orientation
		dims        model.Dimensions
		composition string
	}{
		{model.OrientationPortrait, model.Dimensions{Width: 1080, Height: 1920}, "CaptionedVideo"},
		{model.OrientationLandscape, model.Dimensions{Width: 1920, Height: 1080}, "CaptionedVideo-landscape"},
		{model.OrientationSquare, model.Dimensions{Width: 1080, Height: 1080}, "CaptionedVideo-square"},
	}
	for _, c := range cases {
		assert.Equal(t, c.dims, c.in.Dimensions(), c.in)
		assert.Equal(t, c.composition, c.in.CompositionID(), c.in)
	}
}

// TestLengthTierPacing checks frames per caption and the requested caption range.
func TestLengthTierPacing(t *testing.T) {
	assert.Equal(t, 48, model.LengthShort.FramesPerCaption())
	assert.Equal(t, 60, model.LengthMedium.FramesPerCaption())
	assert.Equal(t, 72, model.LengthLong.FramesPerCaption())

	lo, hi := model.LengthLong.CaptionRange()
	assert.Equal(t, 24, lo)
	assert.Equal(t, 32, hi)
}

// TestParseCaptions verifies bullets, numbering and blank lines are removed.
func TestParseCaptions(t *testing.T) {
	raw := "1. Cats are great.\r\n\n  - Dogs are loyal.  \n* \n2) Birds sing"
	got := model.ParseCaptions(raw)
	assert.Equal(t, model.CaptionSet{"Cats are great.", "Dogs are loyal.", "Birds sing"}, got)
	assert.Equal(t, "Cats are great.\nDogs are loyal.\nBirds sing", got.Text())
}

// TestNewRenderProps verifies the props document mirrors the plan.
func TestNewRenderProps(t *testing.T) {
	plan := &model.ScenePlan{
		Scenes: []model.Scene{
			{Index: 0, Caption: "a", ImageURL: "http://img/a", StartFrame: 0, FrameCount: 48},
			{Index: 1, Caption: "b", StartFrame: 48, FrameCount: 48},
		},
		FramesPerCaption: 48,
		TotalFrames:      96,
		Orientation:      model.OrientationSquare,
		Template:         model.TemplateMinimal,
		Length:           model.LengthShort,
	}
	props := model.NewRenderProps(plan)
	assert.Equal(t, "a\nb", props.PromptText)
	assert.Equal(t, "a b", props.TextForSpeech)
	assert.Equal(t, []string{"http://img/a", ""}, props.Images)
	assert.Equal(t, 96, props.DurationInFrames)
	assert.Equal(t, model.TemplateMinimal, props.TemplateName)
}

// TestStageError verifies the stage is recoverable and the kind is matchable.
func TestStageError(t *testing.T) {
	err := fmt.Errorf("pipeline: %w", model.NewStageError(model.StateRendering, fmt.Errorf("%w: exit 1", model.ErrRenderFailed)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrRenderFailed))
	assert.Equal(t, model.StateRendering, model.StageOf(err))
	assert.Equal(t, model.StateFailed, model.StageOf(errors.New("plain")))
}
