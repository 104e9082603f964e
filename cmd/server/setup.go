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

// This file builds the application state: configuration, service clients,
// the services behind the handlers and the background jobs.
//
// Functions:
//   - SetupOS: Points the configuration loader at the configs directory.
//   - GetConfig: Loads the configuration once.
//   - InitState: Creates every client and service and starts the listeners
//     and the artifact sweeper.
package main

import (
	"context"
	"os"

	"github.com/verbavid/verbavid-api/internal/api"
	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/services"
	"github.com/verbavid/verbavid-api/internal/core/workflow"
)

// StateManager holds the shared dependencies of the server.
type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	handlers *api.Handlers
	sweeper  *workflow.ArtifactSweeper
}

var state = &StateManager{}

// Close stops the sweeper and closes every client.
func (s *StateManager) Close() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.cloud != nil {
		s.cloud.Close()
	}
}

// SetupOS defaults the configuration directory to "configs" and the runtime
// to "local" unless the environment already names them.
func SetupOS() error {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig loads the configuration on first use and caches it.
func GetConfig() (*cloud.Config, error) {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			return nil, err
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

// InitState initializes the application state.
//
// This function performs the following steps:
//  1. Initializes the service clients (database, redis, text models, image
//     search and, with a project configured, Storage, Pub/Sub, BigQuery and IAM).
//  2. Builds the video, account and rating services.
//  3. Attaches the render workflow to the Pub/Sub listeners and starts them.
//  4. Starts the artifact sweeper.
func InitState(ctx context.Context, config *cloud.Config) error {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	deps, err := workflow.NewPipelineDependencies(config, cloudClients)
	if err != nil {
		return err
	}
	videos, err := services.NewVideoService(config, cloudClients, deps)
	if err != nil {
		return err
	}
	store := services.NewGormAccountStore(cloudClients.DB)
	state.handlers = &api.Handlers{
		Videos:   videos,
		Accounts: services.NewAccountService(store, config.Auth),
		Ratings:  &services.RatingService{Store: store},
	}

	SetupListeners(config, cloudClients, videos.Prompt, ctx)

	state.sweeper = workflow.NewArtifactSweeper("artifact-sweeper", config.Storage)
	return state.sweeper.StartTimer()
}
