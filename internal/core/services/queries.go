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

// Package services contains the business logic behind the HTTP handlers and
// the operator CLI. This file holds the SQL used against the render history
// table in BigQuery. Table names are formatted in; values are always passed as
// query parameters.
package services

const (
	// QryRenderJobsByRequest returns the recorded render jobs of one request,
	// newest first.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the render job table.
	//
	// Parameters:
	// - `@request_id`: The request id.
	QryRenderJobsByRequest = "SELECT * FROM `%s` WHERE request_id = @request_id ORDER BY started_at DESC"

	// QryRecentRenderJobs returns the latest render jobs.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the render job table.
	//
	// Parameters:
	// - `@limit`: The maximum number of rows.
	QryRecentRenderJobs = "SELECT * FROM `%s` ORDER BY started_at DESC LIMIT @limit"
)
