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

// Package cloud provides components for interacting with Google Cloud and the
// other external services the pipeline depends on.
// This file is responsible for initializing and holding every client the
// application needs. It acts as a dependency injection container: one
// `ServiceClients` is created at start-up and passed to the services,
// workflows and handlers.
//
// Logic Flow:
//  1. The account database is opened and migrated.
//  2. The redis client is created when the shared cache tier is enabled.
//  3. A TextModel is created for every configured agent model.
//  4. The image search client is created.
//  5. When a Google Cloud project is configured, the Storage, Pub/Sub, BigQuery
//     and IAM credentials clients are created, together with one Pub/Sub
//     listener per configured subscription.
package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ServiceClients is the central container of external clients. Google Cloud
// clients are nil when no project is configured.
type ServiceClients struct {
	StorageClient   *storage.Client                   // Client for Google Cloud Storage (GCS).
	PubsubClient    *pubsub.Client                    // Client for Google Cloud Pub/Sub.
	BigQueryClient  *bigquery.Client                  // Client for the render history dataset.
	IAMClient       *credentials.IamCredentialsClient // Client for IAM to sign GCS URLs.
	DB              *gorm.DB                          // Account database.
	Redis           *redis.Client                     // Shared image cache tier; nil when disabled.
	PubSubListeners map[string]*PubSubListener        // Active Pub/Sub listeners, keyed by a logical name from the config.
	TextModels      map[string]TextModel              // Generative text models, keyed by a logical name.
	ImageSearch     ImageSearcher                     // Stock photo search.
}

// CaptionModel returns the text model configured for captioning.
func (c *ServiceClients) CaptionModel(config *Config) (TextModel, error) {
	m, ok := c.TextModels[config.Captions.Model]
	if !ok {
		return nil, fmt.Errorf("caption model %q is not configured", config.Captions.Model)
	}
	return m, nil
}

// Close shuts down every open client.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BigQueryClient != nil {
		_ = c.BigQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// NewCloudServiceClients initializes all clients from the configuration.
//
// Inputs:
//   - ctx: The root context of the application.
//   - config: The loaded application configuration.
//
// Outputs:
//   - *ServiceClients: The initialized clients.
//   - error: An error if a required client fails to initialize.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		TextModels:      make(map[string]TextModel),
	}
	defer func() {
		if err != nil {
			cloud.Close()
			cloud = nil
		}
	}()

	if cloud.DB, err = NewDatabase(config.Database); err != nil {
		return cloud, err
	}

	if config.Redis.Enabled {
		cloud.Redis = NewRedisClient(config.Redis)
		if pingErr := cloud.Redis.Ping(ctx).Err(); pingErr != nil {
			slog.Warn("redis unavailable, continuing without the shared image cache", "error", pingErr)
			_ = cloud.Redis.Close()
			cloud.Redis = nil
		}
	}

	for key, values := range config.AgentModels {
		m, modelErr := NewTextModel(ctx, config, values)
		if modelErr != nil {
			if key == config.Captions.Model {
				return cloud, fmt.Errorf("caption model %q: %w", key, modelErr)
			}
			slog.Warn("skipping text model", "model", key, "error", modelErr)
			continue
		}
		cloud.TextModels[key] = m
	}

	cloud.ImageSearch = NewPexelsClient(config.ImageSearch)

	if config.Application.GoogleProjectId == "" {
		slog.Info("no google project configured, cloud storage and messaging are disabled")
		return cloud, nil
	}

	if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
		return cloud, err
	}
	if cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
		return cloud, err
	}
	if cloud.BigQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
		return cloud, err
	}
	if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
		return cloud, err
	}

	// Commands are attached once the workflows are built.
	for subKey, values := range config.TopicSubscriptions {
		listener, listenerErr := NewPubSubListener(cloud.PubsubClient, values.Name, nil)
		if listenerErr != nil {
			return cloud, listenerErr
		}
		cloud.PubSubListeners[subKey] = listener
	}

	return cloud, nil
}
