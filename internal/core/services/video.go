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

// This file defines the VideoService, the entry point of the HTTP handlers
// and the CLI into the video pipeline. Besides running the prompt and the
// document pipelines it resolves local artifacts, publishes them to Cloud
// Storage, signs time-limited preview URLs and reads the render history
// recorded in BigQuery.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/commands"
	"github.com/verbavid/verbavid-api/internal/core/model"
	"github.com/verbavid/verbavid-api/internal/core/workflow"
)

// DefaultSignedURLTTL is the lifetime of preview URLs.
const DefaultSignedURLTTL = 15 * time.Minute

// VideoService encapsulates the pipelines and the clients needed to publish
// their output. The cloud clients are optional; operations that need a
// missing client return ErrPublishingDisabled.
type VideoService struct {
	Prompt         *workflow.VideoGenerationWorkflow // Pipeline for free text prompts.
	Document       *workflow.VideoGenerationWorkflow // Pipeline for uploaded documents.
	OutputDir      string                            // Root of the per-request render directories.
	StorageClient  *storage.Client                   // Client for Google Cloud Storage.
	BigqueryClient *bigquery.Client                  // Client for the render history.
	IAMClient      *credentials.IamCredentialsClient // Client for IAM, used for signing URLs.
	SignerEmail    string                            // The service account email used to sign URLs.
	Bucket         string                            // Bucket receiving published videos.
	DatasetName    string                            // The BigQuery dataset of the render history.
	RenderJobTable string                            // The BigQuery table of the render history.
}

// NewVideoService builds both pipelines and wires the configured clients.
func NewVideoService(config *cloud.Config, clients *cloud.ServiceClients, deps workflow.PipelineDependencies) (*VideoService, error) {
	prompt, err := workflow.NewVideoGenerationWorkflow(config, deps, false)
	if err != nil {
		return nil, err
	}
	document, err := workflow.NewVideoGenerationWorkflow(config, deps, true)
	if err != nil {
		return nil, err
	}
	s := &VideoService{
		Prompt:         prompt,
		Document:       document,
		OutputDir:      config.Storage.OutputDir,
		SignerEmail:    config.Application.SignerServiceAccountEmail,
		Bucket:         config.Storage.VideoBucket,
		DatasetName:    config.BigQueryDataSource.DatasetName,
		RenderJobTable: config.BigQueryDataSource.RenderJobTable,
	}
	if clients != nil {
		s.StorageClient = clients.StorageClient
		s.BigqueryClient = clients.BigQueryClient
		s.IAMClient = clients.IAMClient
	}
	return s, nil
}

// Generate renders a video from a free text prompt.
func (s *VideoService) Generate(ctx context.Context, req *model.VideoRequest) (*workflow.VideoResult, error) {
	return s.Prompt.Run(ctx, req, req.Text)
}

// GenerateFromDocument renders a video from the text of an uploaded document.
func (s *VideoService) GenerateFromDocument(ctx context.Context, req *model.VideoRequest, upload *commands.DocumentUpload) (*workflow.VideoResult, error) {
	return s.Document.Run(ctx, req, upload)
}

// ArtifactPath returns the local video of a finished request. Ids that are
// not request ids, and requests without a video, yield ErrVideoNotFound.
func (s *VideoService) ArtifactPath(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrVideoNotFound
	}
	path := commands.VideoPath(s.OutputDir, id)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrVideoNotFound
	}
	return path, nil
}

// Publish uploads the video of a finished request to the video bucket.
func (s *VideoService) Publish(ctx context.Context, id string) (*cloud.GCSObject, error) {
	if s.StorageClient == nil || s.Bucket == "" {
		return nil, ErrPublishingDisabled
	}
	path, err := s.ArtifactPath(id)
	if err != nil {
		return nil, err
	}
	return cloud.UploadFile(ctx, s.StorageClient, s.Bucket, cloud.VideoObjectName(id), path, cloud.VideoContentType)
}

// SignedURL creates a time-limited URL to a published video. When a signer
// account is configured the signature is produced by the IAM Credentials
// API, so no service account key is needed locally.
//
// Inputs:
//   - ctx: The context for the request.
//   - id: The request id of the video.
//   - expires: The duration for which the URL will be valid.
//
// Outputs:
//   - string: The generated signed URL.
//   - error: ErrVideoNotFound if the video was never published, or the signing error.
func (s *VideoService) SignedURL(ctx context.Context, id string, expires time.Duration) (string, error) {
	if s.StorageClient == nil || s.Bucket == "" {
		return "", ErrPublishingDisabled
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrVideoNotFound
	}
	objectName := cloud.VideoObjectName(id)
	bucket := s.StorageClient.Bucket(s.Bucket)
	if _, err := bucket.Object(objectName).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", ErrVideoNotFound
		}
		return "", err
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expires),
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			req := &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			}
			resp, err := s.IAMClient.SignBlob(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}

	u, err := bucket.SignedURL(objectName, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", s.Bucket, objectName, err)
	}
	return u, nil
}

// GetFQN returns the fully qualified render history table name with dots
// instead of colons, e.g. `project.verbavid_ds.render_jobs`.
func (s *VideoService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.RenderJobTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// RenderHistory returns the recorded render jobs of a request, newest first.
func (s *VideoService) RenderHistory(ctx context.Context, id string) ([]*model.RenderJob, error) {
	if s.BigqueryClient == nil || s.DatasetName == "" || s.RenderJobTable == "" {
		return nil, ErrPublishingDisabled
	}
	q := s.BigqueryClient.Query(fmt.Sprintf(QryRenderJobsByRequest, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "request_id", Value: id}}
	return s.readJobs(ctx, q)
}

// RecentRenders returns the latest render jobs across all requests.
func (s *VideoService) RecentRenders(ctx context.Context, limit int) ([]*model.RenderJob, error) {
	if s.BigqueryClient == nil || s.DatasetName == "" || s.RenderJobTable == "" {
		return nil, ErrPublishingDisabled
	}
	q := s.BigqueryClient.Query(fmt.Sprintf(QryRecentRenderJobs, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}
	return s.readJobs(ctx, q)
}

func (s *VideoService) readJobs(ctx context.Context, q *bigquery.Query) ([]*model.RenderJob, error) {
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.RenderJob, 0)
	for {
		job := &model.RenderJob{}
		err = itr.Next(job)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
