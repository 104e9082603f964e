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
// pipeline is assembled from. A request travels through a chain of commands
// carrying a Context: a property bag for the data passed between stages, the
// errors raised so far, the temp files to clean up and the stage the request
// is currently in.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are constant keys used to manage the primary data flow
// within a BaseChain.
const (
	// CtxIn is the default key for the primary input of a command. The BaseChain
	// populates it with the output of the previous command.
	CtxIn = "__IN__"
	// CtxOut is the default key where a command places its primary output.
	CtxOut = "__OUT__"
)

// Context is the state shared by the commands of one chain execution.
type Context interface {
	// SetContext sets the Go context carrying cancellation and trace information.
	SetContext(context context.Context)

	// GetContext retrieves the Go context.
	GetContext() context.Context

	// GetRequestID returns the identifier of the request being processed.
	GetRequestID() string

	// Add stores a value. It returns the Context for chaining.
	Add(key string, value interface{}) Context

	// Get retrieves a value by key.
	Get(key string) interface{}

	// Remove deletes a value by key.
	Remove(key string)

	// AddError records an error under the name of the command that raised it.
	AddError(key string, err error)

	// GetErrors returns all recorded errors keyed by command name.
	GetErrors() map[string]error

	// Err returns the first recorded error, or nil.
	Err() error

	// HasErrors checks if any errors have been recorded.
	HasErrors() bool

	// SetStage records the stage the request entered.
	SetStage(stage string)

	// GetStage returns the current stage.
	GetStage() string

	// GetStageHistory returns every stage entered, in order.
	GetStageHistory() []string

	// AddTempFile tracks a file to delete on Close.
	AddTempFile(file string)

	// GetTempFiles returns all tracked temp files.
	GetTempFiles() []string

	// Close deletes the tracked temp files. Defer it when a workflow starts.
	Close()
}

// Executable is anything that runs against a Context.
type Executable interface {
	// Execute reads its inputs from the context and writes its outputs back.
	Execute(context Context)
}

// Command is a single named step of a chain.
type Command interface {
	Executable

	// GetName returns the unique name of the command, used for logging and telemetry.
	GetName() string

	// GetStage returns the pipeline stage the command represents, or "".
	GetStage() string

	// GetInputParam returns the context key of the command's input.
	GetInputParam() string

	// GetOutputParam returns the context key of the command's output.
	GetOutputParam() string

	// IsExecutable checks the command's preconditions against the context.
	IsExecutable(context Context) bool

	// GetTracer returns the OpenTelemetry tracer for this command.
	GetTracer() trace.Tracer

	// GetMeter returns the OpenTelemetry meter for creating metrics.
	GetMeter() metric.Meter

	// GetSuccessCounter returns a metric counter for successful executions.
	GetSuccessCounter() metric.Int64Counter

	// GetErrorCounter returns a metric counter for failed executions.
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command running an ordered list of commands.
type Chain interface {
	Command

	// ContinueOnFailure tells the chain whether to keep going after an error.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command.
	AddCommand(command Command) Chain
}
