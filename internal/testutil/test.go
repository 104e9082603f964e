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

// Package test provides utility functions, fakes and sample data for the
// application's test suite. The fakes stand in for the external collaborators
// of the video pipeline: the text model, the image search API and the render
// engine process.
package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetTestRenderRequestMessageText returns a Pub/Sub render request payload.
func GetTestRenderRequestMessageText() string {
	return `{
  "requestId": "0b0d1f0e-5a8e-4a51-9d4f-7c1d0d8a1e01",
  "userPrompt": "Cats are great.\nDogs are loyal.",
  "template": "minimal",
  "orientation": "landscape",
  "videoLength": "short"
}`
}

// SetupOS points the configuration loader at dir for the "test" runtime.
func SetupOS(t *testing.T, dir string) {
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "test")
}

// NewTestConfig returns a configuration with every default applied, an in
// memory account database, fast retries and a temporary output directory.
func NewTestConfig(t *testing.T) *cloud.Config {
	t.Helper()
	config := cloud.NewConfig()
	config.Application.ThreadPoolSize = 4
	config.Storage.OutputDir = t.TempDir()
	config.Captions.BaseDelay = time.Millisecond
	config.Captions.MaxDelay = 10 * time.Millisecond
	config.Database.DSN = ":memory:"
	config.Database.MaxOpenConns = 1
	config.Database.MaxIdleConns = 1
	config.Auth.JWTSecret = "test-secret"
	config.Auth.BcryptCost = 4
	config.ApplyDefaults()
	return config
}

// NewTestDatabase opens a migrated in-memory sqlite database.
func NewTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := cloud.NewDatabase(cloud.Database{Driver: cloud.DriverSQLite, DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// FakeResponse is one scripted answer of a FakeTextModel.
type FakeResponse struct {
	Text string
	Err  error
}

// FakeCall records one request received by a FakeTextModel.
type FakeCall struct {
	Instruction string
	Prompt      string
}

// FakeTextModel answers with its scripted responses in order and repeats the
// last one once the script is exhausted.
type FakeTextModel struct {
	mu        sync.Mutex
	Responses []FakeResponse
	Calls     []FakeCall
}

func NewFakeTextModel(responses ...FakeResponse) *FakeTextModel {
	return &FakeTextModel{Responses: responses}
}

func (f *FakeTextModel) GenerateText(ctx context.Context, instruction string, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.Calls = append(f.Calls, FakeCall{Instruction: instruction, Prompt: prompt})
	if len(f.Responses) == 0 {
		return "", fmt.Errorf("no scripted response")
	}
	i := len(f.Calls) - 1
	if i >= len(f.Responses) {
		i = len(f.Responses) - 1
	}
	return f.Responses[i].Text, f.Responses[i].Err
}

// CallCount returns the number of requests received.
func (f *FakeTextModel) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// LastPrompt returns the prompt of the latest request.
func (f *FakeTextModel) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Calls) == 0 {
		return ""
	}
	return f.Calls[len(f.Calls)-1].Prompt
}

// FakeImageSearcher resolves queries from a fixed table. Queries missing from
// Results have no image. Delays hold a query back to shuffle completion order.
type FakeImageSearcher struct {
	mu      sync.Mutex
	Results map[string]string
	Errors  map[string]error
	Delays  map[string]time.Duration
	calls   map[string]int
}

func NewFakeImageSearcher(results map[string]string) *FakeImageSearcher {
	return &FakeImageSearcher{
		Results: results,
		Errors:  make(map[string]error),
		Delays:  make(map[string]time.Duration),
		calls:   make(map[string]int),
	}
}

func (f *FakeImageSearcher) SearchImage(ctx context.Context, query string, orientation model.Orientation) (string, error) {
	f.mu.Lock()
	f.calls[query]++
	delay := f.Delays[query]
	err := f.Errors[query]
	url := f.Results[query]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return url, nil
}

// Calls returns how often query was searched.
func (f *FakeImageSearcher) Calls(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[query]
}

// TotalCalls returns the number of searches made.
func (f *FakeImageSearcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// FakeRunner stands in for the render engine. On success it writes a small
// file to the output path argument.
type FakeRunner struct {
	mu     sync.Mutex
	Output []byte
	Err    error
	Block  bool // Wait for the context to end before returning.
	Dirs   []string
	Names  []string
	Args   [][]string
}

func (f *FakeRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.Dirs = append(f.Dirs, dir)
	f.Names = append(f.Names, name)
	f.Args = append(f.Args, args)
	f.mu.Unlock()

	if f.Block {
		<-ctx.Done()
		return f.Output, ctx.Err()
	}
	if f.Err != nil {
		return f.Output, f.Err
	}
	for _, arg := range args {
		if strings.HasSuffix(arg, ".mp4") && !strings.HasPrefix(arg, "--") {
			if err := os.MkdirAll(filepath.Dir(arg), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(arg, []byte("fake mp4"), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return f.Output, nil
}

// LastArgs returns the arguments of the latest run.
func (f *FakeRunner) LastArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Args) == 0 {
		return nil
	}
	return f.Args[len(f.Args)-1]
}

// RunCount returns the number of runs.
func (f *FakeRunner) RunCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Args)
}
