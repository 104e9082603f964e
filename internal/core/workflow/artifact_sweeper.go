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
// into coherent pipelines. This file implements the artifact retention sweep.
//
// Every request renders into its own directory under the output root. The
// sweeper runs on a cron schedule and removes the directories whose last
// modification is older than the retention period.
package workflow

import (
	goctx "context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/cor"
)

// ArtifactSweeper deletes expired render directories.
type ArtifactSweeper struct {
	cor.BaseCommand
	outputDir      string
	retention      time.Duration
	schedule       string
	now            func() time.Time
	scheduler      *cron.Cron
	removedCounter metric.Int64Counter
}

// NewArtifactSweeper creates a sweeper for the storage settings.
func NewArtifactSweeper(name string, settings cloud.Storage) *ArtifactSweeper {
	out := &ArtifactSweeper{
		BaseCommand: *cor.NewBaseCommand(name),
		outputDir:   settings.OutputDir,
		retention:   settings.Retention,
		schedule:    settings.SweepSchedule,
		now:         time.Now,
	}
	out.removedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.removed", out.GetName()))
	return out
}

// WithClock replaces the time source.
func (s *ArtifactSweeper) WithClock(now func() time.Time) *ArtifactSweeper {
	s.now = now
	return s
}

// Sweep removes every request directory last modified before now - retention
// and returns the removed paths. A missing output root is not an error.
func (s *ArtifactSweeper) Sweep(ctx goctx.Context) ([]string, error) {
	entries, err := os.ReadDir(s.outputDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.outputDir, err)
	}

	cutoff := s.now().Add(-s.retention)
	removed := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		dir := filepath.Join(s.outputDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			slog.WarnContext(ctx, "failed to remove expired artifacts", "dir", dir, "error", err)
			continue
		}
		removed = append(removed, dir)
	}
	if len(removed) > 0 {
		s.removedCounter.Add(ctx, int64(len(removed)))
		slog.InfoContext(ctx, "expired artifacts removed", "count", len(removed), "retention", s.retention.String())
	}
	return removed, nil
}

func (s *ArtifactSweeper) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil
}

// Execute runs one sweep and writes the removed paths to the output parameter.
func (s *ArtifactSweeper) Execute(context cor.Context) {
	removed, err := s.Sweep(context.GetContext())
	if err != nil {
		s.Fail(context, err)
		return
	}
	s.Succeed(context, removed)
}

// StartTimer schedules the sweep. Each run executes in its own context and
// trace span.
func (s *ArtifactSweeper) StartTimer() error {
	tracer := otel.Tracer("artifact-sweep")
	s.scheduler = cron.New()
	_, err := s.scheduler.AddFunc(s.schedule, func() {
		traceCtx, span := tracer.Start(goctx.Background(), "artifact-sweep")
		defer span.End()

		chainCtx := cor.NewBaseContext()
		chainCtx.SetContext(traceCtx)
		s.Execute(chainCtx)

		if chainCtx.HasErrors() {
			span.SetStatus(codes.Error, "failed to sweep artifacts")
		} else {
			span.SetStatus(codes.Ok, "swept artifacts")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.scheduler.Start()
	slog.Info("artifact sweeper started", "schedule", s.schedule, "dir", s.outputDir)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *ArtifactSweeper) Stop() {
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
}
