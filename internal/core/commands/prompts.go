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
	"bytes"
	"fmt"
	"text/template"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

const (
	// CaptionInstruction is the system instruction of every caption request.
	CaptionInstruction = "You write short, vivid on-screen captions for narrated short-form videos."

	// SummaryInstruction is the system instruction of the triage summarization pass.
	SummaryInstruction = "You condense long texts without losing their facts."
)

const defaultCaptionPrompt = `Write between {{.MinCaptions}} and {{.MaxCaptions}} captions for a short video about the text below.
Each caption is a single sentence of at most 15 words and the captions read as one continuous story.
Output only the captions, one per line, with no numbering, bullets, hashtags or emojis.

Text:
{{.Text}}`

const defaultDocumentPrompt = `The text below was extracted from a document. Write between {{.MinCaptions}} and {{.MaxCaptions}} captions for a short video explaining its subject matter.
Ignore page numbers, headers, footers, tables of contents, references and any other layout artifacts of the document.
Each caption is a single sentence of at most 15 words.
Output only the captions, one per line, with no numbering, bullets, hashtags or emojis.

Document:
{{.Text}}`

const defaultSummaryPrompt = `Summarize the text below in plain prose. Keep names, facts, figures and the order of events.
Do not add commentary.

Text:
{{.Text}}`

// PromptParams is the data every prompt template is executed with.
type PromptParams struct {
	Text        string
	MinCaptions int
	MaxCaptions int
}

// Prompts holds the parsed prompt templates.
type Prompts struct {
	Caption  *template.Template
	Document *template.Template
	Summary  *template.Template
}

// NewPrompts parses the configured templates, using the built in prompt for
// every template left empty.
func NewPrompts(values cloud.PromptTemplates) (*Prompts, error) {
	caption, err := parsePrompt("caption", values.CaptionPrompt, defaultCaptionPrompt)
	if err != nil {
		return nil, err
	}
	document, err := parsePrompt("document", values.DocumentPrompt, defaultDocumentPrompt)
	if err != nil {
		return nil, err
	}
	summary, err := parsePrompt("summary", values.SummaryPrompt, defaultSummaryPrompt)
	if err != nil {
		return nil, err
	}
	return &Prompts{Caption: caption, Document: document, Summary: summary}, nil
}

func parsePrompt(name string, text string, fallback string) (*template.Template, error) {
	if text == "" {
		text = fallback
	}
	t, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid %s prompt template: %w", name, err)
	}
	return t, nil
}

// CaptionPrompt renders the captioning prompt for text at the given tier.
func (p *Prompts) CaptionPrompt(text string, isDocument bool, tier model.LengthTier) (string, error) {
	t := p.Caption
	if isDocument {
		t = p.Document
	}
	minCount, maxCount := tier.CaptionRange()
	return render(t, PromptParams{Text: text, MinCaptions: minCount, MaxCaptions: maxCount})
}

// SummaryPrompt renders the triage summarization prompt.
func (p *Prompts) SummaryPrompt(text string) (string, error) {
	return render(p.Summary, PromptParams{Text: text})
}

func render(t *template.Template, params PromptParams) (string, error) {
	var buffer bytes.Buffer
	if err := t.Execute(&buffer, params); err != nil {
		return "", fmt.Errorf("failed to execute prompt template %s: %w", t.Name(), err)
	}
	return buffer.String(), nil
}
