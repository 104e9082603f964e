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

// This file attaches the processing workflows to the Pub/Sub listeners.
package main

import (
	"context"
	"log/slog"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/workflow"
)

// RenderRequestTopic is the logical name of the render request subscription.
const RenderRequestTopic = "RenderRequestTopic"

// SetupListeners starts the render request listener when its subscription is
// configured. Other configured listeners are left idle.
//
// Inputs:
//   - config: The application's configuration.
//   - cloudClients: Holds the listeners created for the configured subscriptions.
//   - generation: The prompt pipeline shared with the HTTP handlers.
//   - ctx: Stops the listeners when cancelled.
func SetupListeners(config *cloud.Config, cloudClients *cloud.ServiceClients, generation *workflow.VideoGenerationWorkflow, ctx context.Context) {
	listener, ok := cloudClients.PubSubListeners[RenderRequestTopic]
	if !ok {
		slog.Info("no render request subscription configured")
		return
	}
	renderRequests := workflow.NewRenderRequestWorkflow(config, cloudClients, generation)
	listener.SetCommand(renderRequests)
	listener.Listen(ctx)
}
