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

	"cloud.google.com/go/storage"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// VideoUpload publishes a finished render to the video bucket as
// videos/<request id>.mp4 and records the public URL on the job.
type VideoUpload struct {
	cor.BaseCommand
	client *storage.Client
	bucket string
}

func NewVideoUpload(name string, client *storage.Client, bucket string) *VideoUpload {
	return &VideoUpload{BaseCommand: *cor.NewBaseCommand(name), client: client, bucket: bucket}
}

// IsExecutable skips publishing when no bucket is configured or the render
// did not succeed.
func (u *VideoUpload) IsExecutable(context cor.Context) bool {
	if u.client == nil || u.bucket == "" || context == nil {
		return false
	}
	job := RenderJobFrom(context)
	return job != nil && job.Status == model.RenderSucceeded
}

func (u *VideoUpload) Execute(context cor.Context) {
	job := RenderJobFrom(context)
	obj, err := cloud.UploadFile(context.GetContext(), u.client, u.bucket,
		cloud.VideoObjectName(job.RequestID), job.OutputPath, cloud.VideoContentType)
	if err != nil {
		u.Fail(context, fmt.Errorf("failed to publish %s: %w", job.RequestID, err))
		return
	}
	job.PublicURL = obj.PublicURL()
	slog.InfoContext(context.GetContext(), "video published", "request_id", job.RequestID, "object", obj.URI(), "bytes", obj.Size)
	u.Succeed(context, obj)
}
