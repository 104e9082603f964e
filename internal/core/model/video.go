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

// Package model defines the core data structures for the application.
// This file holds the request-level types of the video pipeline: the length
// tier, orientation and template presets a caller may choose, and the
// VideoRequest that carries them through a workflow.
package model

import (
	"strings"

	"github.com/google/uuid"
)

// FPS is the fixed frame rate of every composition.
const FPS = 24

// LengthTier is a coarse pacing preset controlling caption count and
// frames per caption.
type LengthTier string

const (
	LengthShort  LengthTier = "short"
	LengthMedium LengthTier = "medium"
	LengthLong   LengthTier = "long"
)

// ParseLengthTier maps a user supplied value to a tier, falling back to medium.
func ParseLengthTier(in string) LengthTier {
	switch LengthTier(strings.ToLower(strings.TrimSpace(in))) {
	case LengthShort:
		return LengthShort
	case LengthLong:
		return LengthLong
	default:
		return LengthMedium
	}
}

// FramesPerCaption returns the number of frames each caption is shown for
// at FPS: short 2s, medium 2.5s, long 3s.
func (t LengthTier) FramesPerCaption() int {
	switch t {
	case LengthShort:
		return 48
	case LengthLong:
		return 72
	default:
		return 60
	}
}

// CaptionRange is the caption count the model is asked to produce.
func (t LengthTier) CaptionRange() (minCount int, maxCount int) {
	switch t {
	case LengthShort:
		return 6, 12
	case LengthLong:
		return 24, 32
	default:
		return 12, 16
	}
}

// Orientation is the aspect-ratio preset of the output video. It also
// frames the image search.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
	OrientationSquare    Orientation = "square"
)

// Dimensions is the pixel size of a composition.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ParseOrientation maps a user supplied value to an orientation, falling back to portrait.
func ParseOrientation(in string) Orientation {
	switch Orientation(strings.ToLower(strings.TrimSpace(in))) {
	case OrientationLandscape:
		return OrientationLandscape
	case OrientationSquare:
		return OrientationSquare
	default:
		return OrientationPortrait
	}
}

// Dimensions returns the fixed output size for the orientation.
func (o Orientation) Dimensions() Dimensions {
	switch o {
	case OrientationLandscape:
		return Dimensions{Width: 1920, Height: 1080}
	case OrientationSquare:
		return Dimensions{Width: 1080, Height: 1080}
	default:
		return Dimensions{Width: 1080, Height: 1920}
	}
}

// CompositionID returns the render engine composition registered for the orientation.
func (o Orientation) CompositionID() string {
	switch o {
	case OrientationLandscape:
		return "CaptionedVideo-landscape"
	case OrientationSquare:
		return "CaptionedVideo-square"
	default:
		return "CaptionedVideo"
	}
}

// Template names the visual style the render engine applies to each scene.
type Template string

const (
	TemplateModern  Template = "modern"
	TemplateMinimal Template = "minimal"
	TemplateVibrant Template = "vibrant"
)

// ParseTemplate maps a user supplied value to a template, falling back to modern.
func ParseTemplate(in string) Template {
	switch Template(strings.ToLower(strings.TrimSpace(in))) {
	case TemplateMinimal:
		return TemplateMinimal
	case TemplateVibrant:
		return TemplateVibrant
	default:
		return TemplateModern
	}
}

// VideoRequest is the input of one pipeline run.
type VideoRequest struct {
	RequestID   string      `json:"requestId"`   // Keys the render output directory.
	Text        string      `json:"userPrompt"`  // Raw prompt or extracted document text.
	IsDocument  bool        `json:"isDocument"`  // Selects the document prompt framing.
	Template    Template    `json:"template"`    // Visual template.
	Orientation Orientation `json:"orientation"` // Aspect-ratio preset.
	Length      LengthTier  `json:"videoLength"` // Pacing preset.
}

// NewVideoRequest normalizes the optional presets and assigns a fresh request id.
func NewVideoRequest(text string, template string, orientation string, length string) *VideoRequest {
	return &VideoRequest{
		RequestID:   uuid.NewString(),
		Text:        text,
		Template:    ParseTemplate(template),
		Orientation: ParseOrientation(orientation),
		Length:      ParseLengthTier(length),
	}
}
