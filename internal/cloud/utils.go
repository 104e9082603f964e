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
// This file contains the configuration loader.
//
// Logic Flow:
//  1. A base TOML file is decoded (e.g., configs/.env.toml).
//  2. A runtime specific TOML file overwrites it (e.g., configs/.env.local.toml).
//  3. A dotenv file, when present, is loaded into the process environment.
//  4. Secrets and deployment values are taken from the environment.
//  5. Unset values receive their defaults.
package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Cloud Constants define key strings used for configuration loading.
const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
	DotEnvFileName      = ".env"              // Optional dotenv file holding secrets.
)

// Environment variables that override configuration values.
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvPexelsAPIKey = "PEXELS_API_KEY"
	EnvJWTSecret    = "JWT_SECRET"
	EnvPort         = "PORT"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvRedisURL     = "REDIS_URL"
)

// fileExists checks if a file or directory exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// configFileNames returns the base and runtime configuration file paths
// derived from the environment.
func configFileNames() (base string, runtime string) {
	prefix := os.Getenv(EnvConfigFilePrefix)
	if len(prefix) > 0 && !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix = prefix + string(os.PathSeparator)
	}
	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}
	base = prefix + ConfigFileBaseName + ConfigFileExtension
	runtime = prefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	return base, runtime
}

// LoadConfig provides a hierarchical configuration loading mechanism. It first loads a
// base configuration file and then merges or overwrites its values with an environment-specific
// configuration file. Environment variables are applied last, followed by defaults.
//
// Inputs:
//   - config: The configuration to populate.
//
// Outputs:
//   - error: A decode error of either TOML file.
func LoadConfig(config *Config) error {
	baseConfigFileName, envConfigFileName := configFileNames()
	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			slog.Debug("configuration file not found", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, config); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Info("loaded configuration file", "file", name)
	}

	// A missing dotenv file is normal outside local development.
	if err := godotenv.Load(DotEnvFileName); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read dotenv file", "error", err)
	}
	ApplyEnvironment(config)
	config.ApplyDefaults()
	return nil
}

// ApplyEnvironment copies secrets and deployment values from the environment
// into the configuration. Unset variables leave the TOML values untouched.
func ApplyEnvironment(config *Config) {
	overrideFromEnv(&config.Application.GeminiAPIKey, EnvGeminiAPIKey)
	overrideFromEnv(&config.Application.OpenAIAPIKey, EnvOpenAIAPIKey)
	overrideFromEnv(&config.ImageSearch.APIKey, EnvPexelsAPIKey)
	overrideFromEnv(&config.Auth.JWTSecret, EnvJWTSecret)
	overrideFromEnv(&config.Application.Port, EnvPort)
	overrideFromEnv(&config.Redis.Addr, EnvRedisURL)
	if dsn := os.Getenv(EnvDatabaseURL); dsn != "" {
		config.Database.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			config.Database.Driver = DriverPostgres
		}
	}
}

func overrideFromEnv(target *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*target = v
	}
}
