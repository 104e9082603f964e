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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// RenderTriggerReader parses a Pub/Sub render request. It stores the
// resulting VideoRequest under ParamVideoRequest and passes the prompt text on
// as the next command's input. Parse failures are reported against the
// Received stage.
type RenderTriggerReader struct {
	cor.BaseCommand
}

func NewRenderTriggerReader(name string) *RenderTriggerReader {
	return &RenderTriggerReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *RenderTriggerReader) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	var msg model.RenderRequestMessage
	if err := json.Unmarshal([]byte(in), &msg); err != nil {
		c.Fail(context, model.NewStageError(model.StateReceived, fmt.Errorf("%w: failed to unmarshal render request: %w", model.ErrInvalidRequest, err)))
		return
	}
	if strings.TrimSpace(msg.UserPrompt) == "" {
		c.Fail(context, model.NewStageError(model.StateReceived, fmt.Errorf("%w: userPrompt is required", model.ErrInvalidRequest)))
		return
	}

	req := model.NewVideoRequest(msg.UserPrompt, msg.Template, msg.Orientation, msg.VideoLength)
	if msg.RequestID != "" {
		id, err := uuid.Parse(msg.RequestID)
		if err != nil {
			c.Fail(context, model.NewStageError(model.StateReceived, fmt.Errorf("%w: requestId %q is not a uuid", model.ErrInvalidRequest, msg.RequestID)))
			return
		}
		req.RequestID = id.String()
	}
	context.Add(ParamVideoRequest, req)
	c.Succeed(context, req.Text)
}
