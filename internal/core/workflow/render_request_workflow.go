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

// Package workflow defines the high-level orchestrations, combining commands
// into coherent pipelines. This file implements the asynchronous render
// workflow driven by the RenderRequestTopic subscription.
package workflow

import (
	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/commands"
	"github.com/verbavid/verbavid-api/internal/core/cor"
)

// RenderRequestWorkflow handles one Pub/Sub render request: it parses the
// message, runs the video generation pipeline and publishes the video. The
// render job is then written to the render history table whether or not the
// render succeeded.
type RenderRequestWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	storageClient  *storage.Client
	bigqueryClient *bigquery.Client
	generation     *VideoGenerationWorkflow
	persist        cor.Command
	chain          cor.Chain
}

// NewRenderRequestWorkflow is the constructor for the RenderRequestWorkflow.
//
// Inputs:
//   - config: The application's configuration.
//   - serviceClients: Supplies the storage and BigQuery clients; either may be nil.
//   - generation: The prompt variant of the video generation pipeline.
func NewRenderRequestWorkflow(config *cloud.Config, serviceClients *cloud.ServiceClients, generation *VideoGenerationWorkflow) *RenderRequestWorkflow {
	w := &RenderRequestWorkflow{
		BaseCommand:    *cor.NewBaseCommand("render-request-workflow"),
		config:         config,
		storageClient:  serviceClients.StorageClient,
		bigqueryClient: serviceClients.BigQueryClient,
		generation:     generation,
	}
	w.initializeChain()
	return w
}

func (w *RenderRequestWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	// Step 1: Parse the JSON payload into a VideoRequest.
	out.AddCommand(commands.NewRenderTriggerReader("render-trigger-reader"))

	// Step 2: Run the full pipeline, ending with a RenderJob in the context.
	out.AddCommand(w.generation)

	// Step 3: Publish the video when a bucket is configured.
	out.AddCommand(commands.NewVideoUpload("publish-video", w.storageClient, w.config.Storage.VideoBucket))

	w.chain = out

	w.persist = commands.NewRenderPersistToBigQuery("write-render-job-to-bigquery",
		w.bigqueryClient,
		w.config.BigQueryDataSource.DatasetName,
		w.config.BigQueryDataSource.RenderJobTable)
}

// IsExecutable requires the raw message.
func (w *RenderRequestWorkflow) IsExecutable(context cor.Context) bool {
	return w.BaseCommand.IsExecutable(context)
}

func (w *RenderRequestWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
	if w.persist.IsExecutable(context) {
		w.persist.Execute(context)
	}
}
