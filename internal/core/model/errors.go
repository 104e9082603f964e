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

import (
	"errors"
	"fmt"
)

// PipelineState is the position of one request in the video pipeline.
type PipelineState string

const (
	StateReceived        PipelineState = "Received"
	StateExtraction      PipelineState = "DocumentExtraction"
	StateTriage          PipelineState = "Triage"
	StateCaptioning      PipelineState = "Captioning"
	StateImageResolution PipelineState = "ImageResolution"
	StatePlanBuilt       PipelineState = "PlanBuilt"
	StateRendering       PipelineState = "Rendering"
	StateDone            PipelineState = "Done"
	StateFailed          PipelineState = "Failed"
)

// Error kinds. Wrap these so callers can test them with errors.Is.
var (
	ErrInputTooLarge           = errors.New("input too large")
	ErrRateLimited             = errors.New("rate limited")
	ErrTokenLimit              = errors.New("token limit exceeded")
	ErrCaptionGenerationFailed = errors.New("caption generation failed")
	ErrImageResolutionPartial  = errors.New("image resolution partial")
	ErrEmptyPlan               = errors.New("scene plan is empty")
	ErrRenderFailed            = errors.New("render failed")
	ErrDocumentParseFailed     = errors.New("document parse failed")
	ErrInvalidRequest          = errors.New("invalid request")
)

// StageError attaches the pipeline state that failed to the underlying error.
type StageError struct {
	Stage PipelineState
	Err   error
}

// NewStageError wraps err with the stage it happened in.
func NewStageError(stage PipelineState, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failed stage carried by err, or StateFailed when err
// does not carry one.
func StageOf(err error) PipelineState {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StateFailed
}
