// Package chain defines the on-disk envelope of a saved chain and its
// decoding rules. The envelope is schema-revision agnostic: content is kept
// as generic JSON values so that migrations can reshape documents written
// by any past release.
package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Document is a chain document envelope.
//
// Optional fields are pointers so that an absent value is never confused
// with an empty one.
type Document struct {
	Version   string         `json:"version" validate:"required"`
	Content   map[string]any `json:"content" validate:"required"`
	Timestamp *string        `json:"timestamp,omitempty"`
	Checksum  *string        `json:"checksum,omitempty"`
	Migration *int           `json:"migration,omitempty" validate:"omitempty,gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses raw bytes into a Document. The whole document must be
// present; there is no streaming decode.
func Decode(raw []byte) (*Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &DecodeError{Msg: "empty document"}
	}

	var doc Document
	if err := DecodeJSON(raw, &doc); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &DecodeError{Msg: "truncated JSON", Err: err}
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, &DecodeError{Msg: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset), Err: err}
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &DecodeError{Field: typeErr.Field, Msg: fmt.Sprintf("cannot hold a JSON %s", typeErr.Value), Err: err}
		}
		return nil, &DecodeError{Msg: err.Error(), Err: err}
	}

	if err := validate.Struct(&doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, &DecodeError{Field: fe.Field(), Msg: describe(fe), Err: err}
		}
		return nil, &DecodeError{Msg: err.Error(), Err: err}
	}

	for _, key := range []string{"nodes", "edges"} {
		v, ok := doc.Content[key]
		if !ok {
			return nil, &DecodeError{Field: "content." + key, Msg: "required field is missing"}
		}
		if _, ok := v.([]any); !ok {
			return nil, &DecodeError{Field: "content." + key, Msg: "must be an array"}
		}
	}
	return &doc, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field is missing"
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return "failed " + fe.Tag() + " constraint"
	}
}

// Encode serializes the document with stable indentation.
func Encode(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Revision returns the schema revision the document was written at. A
// missing migration field means revision 0.
func (d *Document) Revision() int {
	if d.Migration == nil {
		return 0
	}
	return *d.Migration
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		Version:   d.Version,
		Content:   CloneObject(d.Content),
		Timestamp: clonePtr(d.Timestamp),
		Checksum:  clonePtr(d.Checksum),
		Migration: clonePtr(d.Migration),
	}
	return out
}

// CloneObject deep-copies a generic JSON object.
func CloneObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		// strings, json.Number, float64, bool, nil
		return v
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
