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

package model

import (
	"regexp"
	"strings"
)

var listMarker = regexp.MustCompile(`^(?:[-*\x{2022}]+|\d+[.)])(?:\s+|$)`)

// CaptionSet is an ordered list of non-empty caption lines, one per scene.
type CaptionSet []string

// ParseCaptions splits a model response into caption lines. List bullets and
// numbering are removed, lines are trimmed and empty lines are dropped.
func ParseCaptions(raw string) CaptionSet {
	out := make(CaptionSet, 0)
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Text joins the captions one per line.
func (c CaptionSet) Text() string {
	return strings.Join(c, "\n")
}

// Speech joins the captions into a single narration string.
func (c CaptionSet) Speech() string {
	return strings.Join(c, " ")
}
