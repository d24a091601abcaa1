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

package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrorKind classifies why a classifier answer could not be used.
type ErrorKind string

const (
	// KindTransport: the classifier could not be reached or returned an error.
	KindTransport ErrorKind = "transport"
	// KindMalformed: the answer is not JSON.
	KindMalformed ErrorKind = "malformed"
	// KindSchema: the answer is JSON but does not have the expected shape.
	KindSchema ErrorKind = "schema"
	// KindUnknownOpportunity: the answer names an opportunity that was not offered.
	KindUnknownOpportunity ErrorKind = "unknown_opportunity"
	// KindOutOfRange: the answer names an email index outside the offered list.
	KindOutOfRange ErrorKind = "out_of_range"
)

// ClassifyError is returned by every Adapter method when the classifier
// answer cannot be used. Callers treat it as "no answer" and continue.
type ClassifyError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Kind, e.Err)
}

func (e *ClassifyError) Unwrap() error { return e.Err }

func classifyErr(kind ErrorKind, format string, args ...any) *ClassifyError {
	return &ClassifyError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

const matchVerdictSchema = `{
	"type": "object",
	"required": ["match", "confidence"],
	"properties": {
		"match": {"type": "boolean"},
		"opportunity_id": {"type": ["string", "null"]},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reason": {"type": ["string", "null"]}
	}
}`

const earliestVerdictSchema = `{
	"type": "object",
	"required": ["first_mention_email_number", "confidence"],
	"properties": {
		"first_mention_email_number": {"type": ["integer", "null"], "minimum": 1},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reason": {"type": ["string", "null"]}
	}
}`

const extractionSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"title": {"type": ["string", "null"]},
			"summary": {"type": ["string", "null"]},
			"action_item": {"type": ["string", "null"]},
			"contact_name": {"type": ["string", "null"]},
			"contact_company": {"type": ["string", "null"]},
			"contact_email": {"type": ["string", "null"]}
		}
	}
}`

// schemas holds the compiled response schemas.
type schemas struct {
	match      *jsonschema.Schema
	earliest   *jsonschema.Schema
	extraction *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	c := jsonschema.NewCompiler()
	compile := func(name, src string) (*jsonschema.Schema, error) {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse %s schema: %w", name, err)
		}
		loc := "https://leadtracker.local/schemas/" + name + ".json"
		if err := c.AddResource(loc, doc); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", name, err)
		}
		sch, err := c.Compile(loc)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		return sch, nil
	}

	var s schemas
	var err error
	if s.match, err = compile("match-verdict", matchVerdictSchema); err != nil {
		return nil, err
	}
	if s.earliest, err = compile("earliest-verdict", earliestVerdictSchema); err != nil {
		return nil, err
	}
	if s.extraction, err = compile("extraction", extractionSchema); err != nil {
		return nil, err
	}
	return &s, nil
}

// stripFences removes a surrounding markdown code fence, which models add
// even when asked for bare JSON.
func stripFences(raw []byte) []byte {
	s := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(s, []byte("```")) {
		return s
	}
	s = bytes.TrimPrefix(s, []byte("```"))
	if nl := bytes.IndexByte(s, '\n'); nl >= 0 && !bytes.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	s = bytes.TrimSuffix(bytes.TrimSpace(s), []byte("```"))
	return bytes.TrimSpace(s)
}

// decode validates raw against sch and unmarshals it into out.
func decode(sch *jsonschema.Schema, raw []byte, out any) error {
	body := stripFences(raw)

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return classifyErr(KindMalformed, "decode answer: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return classifyErr(KindSchema, "validate answer: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return classifyErr(KindSchema, "unmarshal answer: %w", err)
	}
	return nil
}
