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

// Package cloud contains data structures and utilities for interacting with Google Cloud services.
// This file covers Google Cloud Storage: the object naming of published videos
// and the upload of a local render artifact.
//
// Structs:
//   - GCSObject: A simplified internal model of a published object.
//
// Functions:
//   - VideoObjectName: The object name a request's video is published under.
//   - UploadFile: Streams a local file into a bucket.
package cloud

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// VideoContentType is the MIME type of every render artifact.
const VideoContentType = "video/mp4"

// GCSObject is a simplified, internal representation of a Google Cloud Storage (GCS) object.
type GCSObject struct {
	Bucket   string `json:"bucket"`   // The name of the GCS bucket.
	Name     string `json:"name"`     // The name of the object.
	MIMEType string `json:"mimeType"` // The MIME type of the object (e.g., "video/mp4").
	Size     int64  `json:"size"`     // Bytes written.
}

// URI returns the gs:// form of the object.
func (o *GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// PublicURL returns the https form of the object.
func (o *GCSObject) PublicURL() string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", o.Bucket, o.Name)
}

// VideoObjectName returns the object name of a request's video.
func VideoObjectName(requestID string) string {
	return fmt.Sprintf("videos/%s.mp4", requestID)
}

// UploadFile copies a local file into bucket/objectName.
//
// Inputs:
//   - ctx: Controls the upload. Cancelling it aborts the write.
//   - client: The storage client.
//   - bucket, objectName: The destination.
//   - localPath: The file to upload.
//   - contentType: The MIME type recorded on the object.
//
// Outputs:
//   - *GCSObject: The written object.
//   - error: An error if the file cannot be read or the write fails.
func UploadFile(ctx context.Context, client *storage.Client, bucket string, objectName string, localPath string, contentType string) (*GCSObject, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	writer := client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType
	written, err := io.Copy(writer, f)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write %s to bucket %s: %w", objectName, bucket, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize %s in bucket %s: %w", objectName, bucket, err)
	}
	return &GCSObject{Bucket: bucket, Name: objectName, MIMEType: contentType, Size: written}, nil
}
