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
// This file contains the render-side types: the props document the render
// engine reads, and the RenderJob record that describes one invocation of it.
// RenderJob is also the row persisted to the render history table, so its
// fields carry both json and bigquery tags.
package model

import "time"

// RenderProps is the input document of the render engine. Its json shape is
// a contract with the compositions and must not change.
type RenderProps struct {
	PromptText       string      `json:"promptText"`       // Captions, one per line.
	DurationInFrames int         `json:"durationInFrames"` // Exact length of the video.
	Images           []string    `json:"images"`           // One entry per caption, empty when absent.
	TextForSpeech    string      `json:"textForSpeech"`    // Captions joined for narration.
	Orientation      Orientation `json:"orientation"`
	TemplateName     Template    `json:"templateName"`
	VideoLength      LengthTier  `json:"videoLength"`
	FramesPerCaption int         `json:"framesPerCaption"`
}

// NewRenderProps serializes a scene plan into the engine's props document.
func NewRenderProps(plan *ScenePlan) *RenderProps {
	captions := plan.Captions()
	return &RenderProps{
		PromptText:       captions.Text(),
		DurationInFrames: plan.TotalFrames,
		Images:           plan.Images(),
		TextForSpeech:    captions.Speech(),
		Orientation:      plan.Orientation,
		TemplateName:     plan.Template,
		VideoLength:      plan.Length,
		FramesPerCaption: plan.FramesPerCaption,
	}
}

// RenderStatus is the terminal state of a render job.
type RenderStatus string

const (
	RenderPending   RenderStatus = "pending"
	RenderSucceeded RenderStatus = "succeeded"
	RenderFailedRun RenderStatus = "failed"
)

// RenderJob records a single render engine invocation.
type RenderJob struct {
	RequestID     string       `json:"requestId" bigquery:"request_id"`
	CompositionID string       `json:"compositionId" bigquery:"composition_id"`
	Template      string       `json:"template" bigquery:"template"`
	Orientation   string       `json:"orientation" bigquery:"orientation"`
	TotalFrames   int          `json:"totalFrames" bigquery:"total_frames"`
	SceneCount    int          `json:"sceneCount" bigquery:"scene_count"`
	PropsPath     string       `json:"propsPath" bigquery:"props_path"`
	OutputPath    string       `json:"outputPath" bigquery:"output_path"`
	PublicURL     string       `json:"publicUrl,omitempty" bigquery:"public_url"`
	Status        RenderStatus `json:"status" bigquery:"status"`
	Message       string       `json:"message,omitempty" bigquery:"message"`
	StartedAt     time.Time    `json:"startedAt" bigquery:"started_at"`
	FinishedAt    time.Time    `json:"finishedAt" bigquery:"finished_at"`
}

// NewRenderJob prepares a pending job for the plan.
func NewRenderJob(requestID string, plan *ScenePlan, propsPath string, outputPath string) *RenderJob {
	return &RenderJob{
		RequestID:     requestID,
		CompositionID: plan.CompositionID,
		Template:      string(plan.Template),
		Orientation:   string(plan.Orientation),
		TotalFrames:   plan.TotalFrames,
		SceneCount:    len(plan.Scenes),
		PropsPath:     propsPath,
		OutputPath:    outputPath,
		Status:        RenderPending,
		StartedAt:     time.Now(),
	}
}

// Succeed marks the job finished.
func (j *RenderJob) Succeed() {
	j.Status = RenderSucceeded
	j.FinishedAt = time.Now()
}

// Fail marks the job failed with the engine diagnostic.
func (j *RenderJob) Fail(message string) {
	j.Status = RenderFailedRun
	j.Message = message
	j.FinishedAt = time.Now()
}

// RenderRequestMessage is the Pub/Sub payload of an asynchronous render request.
type RenderRequestMessage struct {
	RequestID   string `json:"requestId,omitempty"`
	UserPrompt  string `json:"userPrompt"`
	Template    string `json:"template,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	VideoLength string `json:"videoLength,omitempty"`
}
