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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/commands"
	"github.com/verbavid/verbavid-api/internal/core/model"
	"github.com/verbavid/verbavid-api/internal/core/workflow"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var prompt, file, template, orientation, length string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a video locally from a prompt or a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (prompt == "") == (file == "") {
				return errors.New("exactly one of --prompt or --file is required")
			}
			config, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			clients, err := cloud.NewCloudServiceClients(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer clients.Close()

			deps, err := workflow.NewPipelineDependencies(config, clients)
			if err != nil {
				return err
			}
			pipeline, err := workflow.NewVideoGenerationWorkflow(config, deps, file != "")
			if err != nil {
				return err
			}

			req := model.NewVideoRequest(prompt, template, orientation, length)
			var input interface{} = prompt
			if file != "" {
				data, readErr := os.ReadFile(file)
				if readErr != nil {
					return readErr
				}
				input = &commands.DocumentUpload{FileName: filepath.Base(file), Data: data}
			}

			result, err := pipeline.Run(cmd.Context(), req, input)
			if err != nil {
				return fmt.Errorf("render failed at %s: %w", model.StageOf(err), err)
			}
			printPlan(cmd, result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Document to render (PDF, DOCX or text)")
	cmd.Flags().StringVar(&template, "template", "", "Visual template")
	cmd.Flags().StringVar(&orientation, "orientation", "", "portrait, landscape or square")
	cmd.Flags().StringVar(&length, "length", "", "short, medium or long")
	return cmd
}

func printPlan(cmd *cobra.Command, result *workflow.VideoResult) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(result.Plan.Scenes))
	for i, s := range result.Plan.Scenes {
		image := s.ImageURL
		if image == "" {
			image = "-"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), s.Caption, strconv.Itoa(s.FrameCount), image})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Caption", "Frames", "Image"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "Request: %s\n", result.RequestID)
	fmt.Fprintf(out, "Frames:  %d\n", result.Plan.TotalFrames)
	fmt.Fprintf(out, "Video:   %s\n", result.OutputPath)
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete render artifacts older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			removed, err := workflow.NewArtifactSweeper("artifact-sweeper", config.Storage).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, dir := range removed {
				fmt.Fprintln(out, dir)
			}
			fmt.Fprintf(out, "Removed %d render directories\n", len(removed))
			return nil
		},
	}
}
