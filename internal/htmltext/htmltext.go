// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package htmltext converts HTML email bodies to plain text for the
// classifier and the relevance filters.
package htmltext

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// Tags that end a visual line.
	lineBreaks = regexp.MustCompile(`(?i)<\s*(br|hr)\b[^>]*>|<\s*/\s*(p|div|li|tr|h[1-6]|blockquote|table|ul|ol)\s*>`)
	listItems  = regexp.MustCompile(`(?i)<\s*li\b[^>]*>`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)

	strict = bluemonday.StrictPolicy()
)

// ToText strips markup from an HTML document, keeping line structure.
// Script and style contents are dropped.
func ToText(doc string) string {
	if strings.TrimSpace(doc) == "" {
		return ""
	}
	s := lineBreaks.ReplaceAllString(doc, "\n")
	s = listItems.ReplaceAllString(s, "- ")
	s = strict.Sanitize(s)
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// IsHTML reports whether a Graph or MIME content type names HTML.
func IsHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}
