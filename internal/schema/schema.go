// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package schema reflects JSON Schemas from Go types and validates JSON and
// YAML documents against them.
package schema

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// durationPattern accepts the strings time.ParseDuration understands.
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// Option configures Reflect.
type Option func(*options)

type options struct {
	fieldTag    string
	id          string
	title       string
	description string
}

// WithFieldTag names struct fields after tag instead of json.
func WithFieldTag(tag string) Option {
	return func(o *options) { o.fieldTag = tag }
}

// WithTitle sets the schema title and description.
func WithTitle(title, description string) Option {
	return func(o *options) {
		o.title = title
		o.description = description
	}
}

// WithID sets the schema $id.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// Schema is a JSON Schema reflected from a Go type. It compiles lazily on
// first validation and is safe for concurrent use.
type Schema struct {
	raw []byte

	once     sync.Once
	compiled *jschema.Schema
	err      error
}

// Reflect builds the schema for v. Only fields tagged
// `jsonschema:"required"` are required. Unknown properties are rejected.
func Reflect(v any, opts ...Option) (*Schema, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		FieldNameTag:               o.fieldTag,
		Mapper:                     mapDuration,
	}
	s := r.Reflect(v)
	if o.id != "" {
		s.ID = jsonschema.ID(o.id)
	}
	if o.title != "" {
		s.Title = o.title
		s.Description = o.description
	}

	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").
			With("type", reflect.TypeOf(v).String()).
			Wrap(err)
	}
	return &Schema{raw: raw}, nil
}

// MustReflect is Reflect for package-level schemas of known types.
func MustReflect(v any, opts ...Option) *Schema {
	s, err := Reflect(v, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// JSON returns the schema document.
func (s *Schema) JSON() []byte {
	return bytes.Clone(s.raw)
}

// ValidateJSON validates a JSON document.
func (s *Schema) ValidateJSON(data []byte) error {
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return oops.Code("SCHEMA_INVALID_JSON").Wrap(err)
	}
	return s.Validate(doc)
}

// ValidateYAML validates a YAML document.
func (s *Schema) ValidateYAML(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return oops.Code("SCHEMA_EMPTY_DOCUMENT").Errorf("document is empty")
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("SCHEMA_INVALID_YAML").Wrap(err)
	}
	return s.Validate(toJSONTypes(doc))
}

// Validate validates an already-decoded document.
func (s *Schema) Validate(doc any) error {
	sch, err := s.compile()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code("SCHEMA_VIOLATION").
			With("violation", FormatError(err)).
			Wrap(err)
	}
	return nil
}

func (s *Schema) compile() (*jschema.Schema, error) {
	s.once.Do(func() {
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(s.raw))
		if err != nil {
			s.err = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("schema.json", doc); err != nil {
			s.err = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		s.compiled, s.err = c.Compile("schema.json")
		if s.err != nil {
			s.err = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(s.err)
		}
	})
	return s.compiled, s.err
}

// FormatError renders a validation error as one line per violation,
// without the schema URL header.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if line == "" || strings.HasPrefix(line, "jsonschema validation failed") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "; ")
}

var durationType = reflect.TypeOf(time.Duration(0))

func mapDuration(t reflect.Type) *jsonschema.Schema {
	if t == durationType {
		return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
	}
	return nil
}

// toJSONTypes normalizes YAML-decoded values to the types the validator
// understands.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSONTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSONTypes(v)
		}
		return out
	case string, int, int64, float64, bool, nil:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return val
		}
		return out
	}
}
