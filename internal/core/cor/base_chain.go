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

// Package cor (Chain of Responsibility) provides the building blocks the video
// pipeline is assembled from. This file defines the `BaseChain`, the default
// implementation of the `Chain` interface.
//
// Logic Flow:
// A `BaseChain` is itself a `Command`, so chains nest.
//
//  1. **Telemetry**: A span is started for the whole chain and a child span for each command.
//  2. **Cancellation**: Before each command the Go context is checked. A cancelled
//     request records the context error and stops the chain.
//  3. **Error Handling**: If the context already holds errors and `continueOnFailure`
//     is false (the default), the chain stops.
//  4. **Stage Tracking**: A command that declares a stage moves the request into it
//     before it runs.
//  5. **Execution**: Executable commands run with the child span's context; others
//     are marked in the trace and skipped.
//  6. **Data Piping**: The value an executed command leaves in `CtxOut` becomes the
//     `CtxIn` of the next command. Skipped commands leave `CtxIn` in place.
package cor

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BaseChain runs its commands in order.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool      // Keep running after a command fails.
	commands          []Command // The ordered list of commands that this chain will execute.
}

// NewBaseChain creates an empty chain.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	if id := chCtx.GetRequestID(); id != "" {
		chainSpan.SetAttributes(attribute.String("request_id", id))
	}

	for _, command := range c.commands {
		if err := outerCtx.Err(); err != nil {
			chCtx.AddError(c.GetName(), fmt.Errorf("chain cancelled before %s: %w", command.GetName(), err))
			break
		}
		if chCtx.HasErrors() && !c.continueOnFailure {
			break
		}

		commandContext, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		if stage := command.GetStage(); stage != "" {
			chCtx.SetStage(stage)
			commandSpan.SetAttributes(attribute.String("stage", stage))
		}

		executed := command.IsExecutable(chCtx)
		if executed {
			chCtx.SetContext(commandContext)
			command.Execute(chCtx)
			// Reset so the next command's span is a sibling, not a grandchild.
			chCtx.SetContext(outerCtx)
		} else {
			commandSpan.SetStatus(codes.Error, fmt.Sprintf("command not executable: %s", command.GetName()))
		}

		if chCtx.HasErrors() {
			commandSpan.SetStatus(codes.Error, "error during or after command execution")
		} else {
			commandSpan.SetStatus(codes.Ok, "command completed successfully")
		}
		commandSpan.End()

		// A skipped command leaves the pipe untouched.
		if executed {
			outputValue := chCtx.Get(CtxOut)
			chCtx.Remove(CtxIn)
			if outputValue != nil {
				chCtx.Add(CtxIn, outputValue)
			}
			chCtx.Remove(CtxOut)
		}
	}

	// Hand the Go context back to the caller unchanged.
	chCtx.SetContext(parentCtx)

	if !chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Ok, "chain completed successfully")
	} else {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
	}
}
