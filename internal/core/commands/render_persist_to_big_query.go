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
	"log/slog"

	"cloud.google.com/go/bigquery"

	"github.com/verbavid/verbavid-api/internal/core/cor"
)

// RenderPersistToBigQuery streams the RenderJob of the request into the render
// history table. Failed jobs are recorded too.
type RenderPersistToBigQuery struct {
	cor.BaseCommand
	client  *bigquery.Client
	dataset string
	table   string
}

func NewRenderPersistToBigQuery(name string, client *bigquery.Client, dataset string, table string) *RenderPersistToBigQuery {
	return &RenderPersistToBigQuery{BaseCommand: *cor.NewBaseCommand(name), client: client, dataset: dataset, table: table}
}

func (s *RenderPersistToBigQuery) IsExecutable(context cor.Context) bool {
	return context != nil && s.client != nil && s.dataset != "" && s.table != "" && RenderJobFrom(context) != nil
}

func (s *RenderPersistToBigQuery) Execute(context cor.Context) {
	job := RenderJobFrom(context)

	i := s.client.Dataset(s.dataset).Table(s.table).Inserter()
	if err := i.Put(context.GetContext(), job); err != nil {
		s.Fail(context, fmt.Errorf("bigquery insert failed for request %s: %w", job.RequestID, err))
		return
	}
	slog.InfoContext(context.GetContext(), "render job persisted", "request_id", job.RequestID, "status", job.Status)
	s.Succeed(context, nil)
}
