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

package main

import (
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/services"
	"github.com/verbavid/verbavid-api/internal/telemetry"
)

type commandContext struct {
	configDir *string
	runtime   *string
	verbose   *bool

	configOnce sync.Once
	config     *cloud.Config
	configErr  error

	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error
}

func newCommandContext(configDir *string, runtime *string, verbose *bool) *commandContext {
	return &commandContext{configDir: configDir, runtime: runtime, verbose: verbose}
}

func (c *commandContext) setupLogging() {
	level := slog.LevelWarn
	if c.verbose != nil && *c.verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(telemetry.NewLogger(os.Stderr, level))
}

func (c *commandContext) ensureConfig() (*cloud.Config, error) {
	c.configOnce.Do(func() {
		if c.configDir != nil && *c.configDir != "" {
			if c.configErr = os.Setenv(cloud.EnvConfigFilePrefix, *c.configDir); c.configErr != nil {
				return
			}
		}
		if c.runtime != nil && *c.runtime != "" {
			if c.configErr = os.Setenv(cloud.EnvConfigRuntime, *c.runtime); c.configErr != nil {
				return
			}
		}
		config := cloud.NewConfig()
		if c.configErr = cloud.LoadConfig(config); c.configErr != nil {
			return
		}
		c.config = config
	})
	return c.config, c.configErr
}

// database opens the account database only; commands that do not render
// never touch the model or cloud clients.
func (c *commandContext) database() (*gorm.DB, error) {
	c.dbOnce.Do(func() {
		config, err := c.ensureConfig()
		if err != nil {
			c.dbErr = err
			return
		}
		c.db, c.dbErr = cloud.NewDatabase(config.Database)
	})
	return c.db, c.dbErr
}

func (c *commandContext) accounts() (*services.AccountService, error) {
	config, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	db, err := c.database()
	if err != nil {
		return nil, err
	}
	return services.NewAccountService(services.NewGormAccountStore(db), config.Auth), nil
}

func (c *commandContext) close() {
	if c.db != nil {
		if sqlDB, err := c.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func newRootCommand() *cobra.Command {
	var configDir string
	var runtime string
	var verbose bool

	ctx := newCommandContext(&configDir, &runtime, &verbose)

	rootCmd := &cobra.Command{
		Use:           "verbactl",
		Short:         "Operate the VerbaVid video service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx.setupLogging()
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding .env.toml (defaults to $"+cloud.EnvConfigFilePrefix+")")
	rootCmd.PersistentFlags().StringVar(&runtime, "runtime", "", "Runtime override file to load (defaults to $"+cloud.EnvConfigRuntime+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at info level")

	rootCmd.AddCommand(newAdminCommand(ctx))
	rootCmd.AddCommand(newUsersCommand(ctx))
	rootCmd.AddCommand(newRenderCommand(ctx))
	rootCmd.AddCommand(newSweepCommand(ctx))

	return rootCmd
}
