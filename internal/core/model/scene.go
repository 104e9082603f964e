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

package model

// Scene is one contiguous time slot of the output video.
type Scene struct {
	Index      int    `json:"index"`
	Caption    string `json:"caption"`
	ImageURL   string `json:"imageUrl"` // Empty when no image could be resolved.
	StartFrame int    `json:"startFrame"`
	FrameCount int    `json:"frameCount"`
}

// HasImage reports whether the scene has a background image bound to it.
func (s Scene) HasImage() bool {
	return s.ImageURL != ""
}

// EndFrame is the first frame after the scene.
func (s Scene) EndFrame() int {
	return s.StartFrame + s.FrameCount
}

// ScenePlan is the ordered scene manifest handed to the render engine.
// The scene frame counts always sum to TotalFrames.
type ScenePlan struct {
	Scenes           []Scene     `json:"scenes"`
	FPS              int         `json:"fps"`
	FramesPerCaption int         `json:"framesPerCaption"`
	TotalFrames      int         `json:"totalFrames"`
	Orientation      Orientation `json:"orientation"`
	Dimensions       Dimensions  `json:"dimensions"`
	CompositionID    string      `json:"compositionId"`
	Template         Template    `json:"template"`
	Length           LengthTier  `json:"videoLength"`
}

// IsEmpty reports a zero-length plan, which must never be rendered.
func (p *ScenePlan) IsEmpty() bool {
	return p == nil || len(p.Scenes) == 0 || p.TotalFrames == 0
}

// Captions returns the caption of every scene in order.
func (p *ScenePlan) Captions() CaptionSet {
	out := make(CaptionSet, len(p.Scenes))
	for i, s := range p.Scenes {
		out[i] = s.Caption
	}
	return out
}

// Images returns the image URL of every scene in order, keeping empty
// entries so indexes line up with the captions.
func (p *ScenePlan) Images() []string {
	out := make([]string, len(p.Scenes))
	for i, s := range p.Scenes {
		out[i] = s.ImageURL
	}
	return out
}
