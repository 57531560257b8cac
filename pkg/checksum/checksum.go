// Package checksum computes and verifies the content digest stored in a
// chain document. The digest is advisory: it flags documents whose content
// changed since they were sealed, it does not establish trust.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"chain-keeper/pkg/chain"
)

// Status is the outcome of verifying a document's checksum.
type Status int

const (
	// Absent means the document carries no checksum. Not a failure.
	Absent Status = iota
	// Match means the recorded checksum equals the computed one.
	Match
	// Mismatch means the content changed after the checksum was recorded.
	Mismatch
)

func (s Status) String() string {
	switch s {
	case Absent:
		return "absent"
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText lets Status serialize by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "absent":
		*s = Absent
	case "match":
		*s = Match
	case "mismatch":
		*s = Mismatch
	default:
		return fmt.Errorf("unknown checksum status %q", text)
	}
	return nil
}

// Canonical returns the canonical serialization of v: compact JSON with
// object keys sorted at every level and no HTML escaping. Two values that
// differ only in key order or whitespace canonicalize to the same bytes.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	// round-trip through generic values so struct field order never leaks;
	// numbers keep their source text
	var generic any
	if err := chain.DecodeJSON(raw, &generic); err != nil {
		return nil, fmt.Errorf("normalize content: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode canonical content: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Compute returns the lowercase hex SHA-256 of the canonical form of content.
func Compute(content any) (string, error) {
	data, err := Canonical(content)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

// Verify compares the document's recorded checksum with its content.
func Verify(doc *chain.Document) (Status, error) {
	if doc.Checksum == nil {
		return Absent, nil
	}
	sum, err := Compute(doc.Content)
	if err != nil {
		return Absent, fmt.Errorf("verify checksum: %w", err)
	}
	if sum != *doc.Checksum {
		return Mismatch, nil
	}
	return Match, nil
}

// Seal returns a copy of doc with its checksum set to the digest of its
// current content.
func Seal(doc *chain.Document) (*chain.Document, error) {
	sum, err := Compute(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("seal document: %w", err)
	}
	out := doc.Clone()
	out.Checksum = &sum
	return out, nil
}
