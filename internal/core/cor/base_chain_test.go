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

package cor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/zeebo/assert"

	"github.com/verbavid/verbavid-api/internal/core/cor"
)

// appendCommand appends its suffix to the string input.
type appendCommand struct {
	cor.BaseCommand
	suffix string
	fail   bool
	runs   *int
}

func newAppendCommand(name string, stage string, suffix string, runs *int) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewStageCommand(name, stage), suffix: suffix, runs: runs}
}

func (c *appendCommand) Execute(context cor.Context) {
	*c.runs++
	if c.fail {
		c.Fail(context, errors.New("boom"))
		return
	}
	in := context.Get(c.GetInputParam()).(string)
	c.Succeed(context, in+c.suffix)
}

// skippedCommand is never executable.
type skippedCommand struct {
	cor.BaseCommand
}

func (c *skippedCommand) IsExecutable(_ cor.Context) bool { return false }
func (c *skippedCommand) Execute(_ cor.Context)           {}

func newContext(ctx context.Context, in string) cor.Context {
	chCtx := cor.NewRequestContext("req-1")
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, in)
	return chCtx
}

// TestChainPipesOutputs verifies outputs flow into the next command and that
// stages are recorded in order.
func TestChainPipesOutputs(t *testing.T) {
	runs := 0
	chain := cor.NewBaseChain("test")
	chain.AddCommand(newAppendCommand("a", "First", "-a", &runs))
	chain.AddCommand(&skippedCommand{BaseCommand: *cor.NewBaseCommand("skip")})
	chain.AddCommand(newAppendCommand("b", "Second", "-b", &runs))

	chCtx := newContext(context.Background(), "x")
	chain.Execute(chCtx)

	assert.False(t, chCtx.HasErrors())
	assert.Equal(t, "x-a-b", chCtx.Get(cor.CtxIn))
	assert.Equal(t, 2, runs)
	assert.DeepEqual(t, []string{"First", "Second"}, chCtx.GetStageHistory())
	assert.Equal(t, "req-1", chCtx.GetRequestID())
}

// TestChainStopsOnError verifies no command runs after a failure.
func TestChainStopsOnError(t *testing.T) {
	runs := 0
	failing := newAppendCommand("a", "First", "-a", &runs)
	failing.fail = true
	chain := cor.NewBaseChain("test")
	chain.AddCommand(failing)
	chain.AddCommand(newAppendCommand("b", "Second", "-b", &runs))

	chCtx := newContext(context.Background(), "x")
	chain.Execute(chCtx)

	assert.True(t, chCtx.HasErrors())
	assert.Equal(t, 1, runs)
	assert.Equal(t, "First", chCtx.GetStage())
	assert.Error(t, chCtx.Err())
	assert.NotNil(t, chCtx.GetErrors()["a"])
}

// TestChainHonoursCancellation verifies a cancelled request never starts a command.
func TestChainHonoursCancellation(t *testing.T) {
	runs := 0
	chain := cor.NewBaseChain("test")
	chain.AddCommand(newAppendCommand("a", "First", "-a", &runs))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chCtx := newContext(ctx, "x")
	chain.Execute(chCtx)

	assert.Equal(t, 0, runs)
	assert.True(t, errors.Is(chCtx.Err(), context.Canceled))
}
