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

// Package textnorm turns free text (titles, summaries, company names and
// email addresses) into comparable lower-cased strings, keyword lists and
// domain fragments. Every function is pure.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLen is the exclusive lower bound on keyword length, in runes.
const MinTokenLen = 2

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "this": {}, "that": {},
	"are": {}, "was": {}, "will": {}, "have": {}, "has": {}, "can": {}, "but": {},
	"not": {}, "you": {}, "all": {}, "our": {}, "your": {},
}

// IsStopWord reports whether w (already lower-cased) is in the stop-word set.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Lower returns s in NFKC form, lower-cased, trimmed, with runs of
// whitespace collapsed to a single space.
func Lower(s string) string {
	if s == "" {
		return ""
	}
	// cases.Caser keeps state between calls and must not be shared.
	lowered := cases.Lower(language.Und).String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(lowered), " ")
}

// Keywords splits s on anything that is not a letter or digit and returns
// the de-duplicated tokens longer than MinTokenLen runes, in order of first
// appearance, with stop words removed.
func Keywords(s string) []string {
	fields := strings.FieldsFunc(Lower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) <= MinTokenLen || IsStopWord(f) {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// KeywordSet is Keywords as a set.
func KeywordSet(s string) map[string]struct{} {
	kws := Keywords(s)
	set := make(map[string]struct{}, len(kws))
	for _, k := range kws {
		set[k] = struct{}{}
	}
	return set
}

// Domain returns the lower-cased part of an email address after the last
// '@', or "" when there is none.
func Domain(address string) string {
	address = Lower(address)
	i := strings.LastIndexByte(address, '@')
	if i < 0 || i == len(address)-1 {
		return ""
	}
	return strings.Trim(address[i+1:], " <>.")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
