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

package commands

import "unicode/utf8"

// ElisionMarker joins the kept prefix and suffix of a truncated text.
const ElisionMarker = "\n\n[... content truncated ...]\n\n"

// CharsPerToken is the heuristic used to estimate token counts.
const CharsPerToken = 4

// EstimateTokens returns the estimated token count of text, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// TruncateMiddle keeps text unchanged when it has at most ceiling characters.
// Longer text is reduced to a prefix and a suffix of equal size joined by
// ElisionMarker, never exceeding ceiling characters in total.
func TruncateMiddle(text string, ceiling int) (string, bool) {
	if ceiling <= 0 || utf8.RuneCountInString(text) <= ceiling {
		return text, false
	}
	runes := []rune(text)
	marker := []rune(ElisionMarker)
	keep := (ceiling - len(marker)) / 2
	if keep <= 0 {
		return string(runes[:ceiling]), true
	}
	out := make([]rune, 0, 2*keep+len(marker))
	out = append(out, runes[:keep]...)
	out = append(out, marker...)
	out = append(out, runes[len(runes)-keep:]...)
	return string(out), true
}
