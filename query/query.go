// Package query defines the style query model and the wire format used to
// carry computed-style results out of an engine subprocess.
//
// A query is pure data: markup, stylesheets, a selector, and an optional
// property. The engine answers with a StyleResult carried on a single line
// of process output, tagged with a fixed literal prefix so it can be located
// inside otherwise free-form engine diagnostics.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ResultTag is the literal prefix of a result payload line. The payload JSON
// follows immediately after the tag with no separator.
const ResultTag = "STYLEQ_RESULT:"

// StyleQuery describes one computed-style request. Construct it once and do
// not mutate it afterwards; every field is copied into the probe document.
type StyleQuery struct {
	// ID correlates the result payload back to this query. It must be
	// unique within the process lifetime - batch output is demultiplexed
	// by ID, not by arrival order.
	ID string `json:"id"`

	// HTML is the caller's markup, inlined into the probe document body.
	HTML string `json:"html"`

	// CSS holds stylesheets in submission order. Later entries win on
	// equal specificity, per standard cascade.
	CSS []string `json:"css"`

	// Selector identifies the element to resolve.
	Selector string `json:"selector"`

	// Property is the single property to resolve. Empty means all
	// properties.
	Property string `json:"property,omitempty"`

	// PseudoElement optionally names a pseudo-element ("::before").
	PseudoElement string `json:"pseudo_element,omitempty"`
}

// AllProperties reports whether the query asks for the full computed map.
func (q StyleQuery) AllProperties() bool { return q.Property == "" }

// CombinedCSS joins the stylesheets in submission order.
func (q StyleQuery) CombinedCSS() string { return strings.Join(q.CSS, "\n") }

// StyleResult is the terminal answer to one StyleQuery. On success exactly
// one of ComputedValue / ComputedStyles is populated, depending on whether
// the query named a property. On failure Success is false and Error carries
// the engine's diagnostic (element not matched, bad selector, ...).
type StyleResult struct {
	ID             string            `json:"id"`
	Success        bool              `json:"success"`
	ComputedValue  string            `json:"computed_value,omitempty"`
	ComputedStyles map[string]string `json:"computed_styles,omitempty"`
	Error          string            `json:"error,omitempty"`

	// Simulated marks results produced without a real engine. Callers can
	// always tell the two apart.
	Simulated bool `json:"simulated,omitempty"`
}

// Failed builds a failed result for the given query ID.
func Failed(id, msg string) StyleResult {
	return StyleResult{ID: id, Success: false, Error: msg}
}

// EncodeLine renders the result as a single tagged output line, exactly as
// the reporting script emits it.
func (r StyleResult) EncodeLine() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("query: encode result: %w", err)
	}
	return ResultTag + string(data), nil
}

// DecodeResult parses the payload that follows ResultTag on an output line.
// Surrounding whitespace is trimmed and a trailing terminator after the JSON
// value is tolerated but not required.
func DecodeResult(payload string) (StyleResult, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return StyleResult{}, fmt.Errorf("query: empty payload")
	}

	var r StyleResult
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	if err := dec.Decode(&r); err != nil {
		return StyleResult{}, fmt.Errorf("query: decode payload: %w", err)
	}
	if r.ID == "" {
		return StyleResult{}, fmt.Errorf("query: payload has no id")
	}
	return r, nil
}
