// Package importer implements the recipe import reconciliation flow: parsing an
// import file into candidates, validating them with partial salvage, detecting
// duplicates against the stored collection, collecting per-duplicate decisions
// and applying the resulting plan through an injected Store.
//
// Nothing here touches a database directly; the Store interface is satisfied
// by the service layer in production and by an in-memory fake in tests.
package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrParse is returned when an import document is not valid JSON or is neither
// an object nor an array of objects.
var ErrParse = errors.New("import file is not a JSON object or array")

// Candidate is a raw, not-yet-validated record from an import file. Values are
// kept as raw JSON so salvaged fields survive unchanged.
type Candidate map[string]json.RawMessage

// Has reports whether field is present with a non-null value.
func (c Candidate) Has(field string) bool {
	raw, ok := c[field]
	return ok && !isNull(raw)
}

// String returns the trimmed string value of field, or "" when the field is
// absent or not a JSON string.
func (c Candidate) String(field string) string {
	raw, ok := c[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Clone returns a shallow copy; raw values are immutable in practice.
func (c Candidate) Clone() Candidate {
	out := make(Candidate, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// ParseBatch decodes an import document. A single object yields a batch of
// one; an array yields one candidate per element in order. Elements that are
// not JSON objects become empty candidates so they surface as invalid instead
// of aborting the batch.
func ParseBatch(data []byte) ([]Candidate, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrParse)
	}

	switch data[0] {
	case '{':
		c, err := decodeCandidate(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return []Candidate{c}, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		out := make([]Candidate, 0, len(elems))
		for _, e := range elems {
			c, err := decodeCandidate(e)
			if err != nil {
				c = Candidate{}
			}
			out = append(out, c)
		}
		return out, nil
	default:
		return nil, ErrParse
	}
}

func decodeCandidate(raw json.RawMessage) (Candidate, error) {
	var c Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c == nil {
		c = Candidate{}
	}
	return c, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
