// Package extract locates and decodes result payloads inside raw engine
// output.
//
// Engine output is an unreliable channel: payload lines sit between free-form
// diagnostics, may be truncated when the process exits before its output
// flushes, and in batch mode arrive in no guaranteed order. The extractor
// correlates strictly by query ID and keeps bounded excerpts of whatever it
// could not decode, so a truncated payload stays distinguishable from a
// genuinely malformed one.
package extract

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/hazyhaar/styleq/query"
)

// excerptLimit bounds diagnostic excerpts carried inside errors.
const excerptLimit = 256

// NoResultError reports output with no recognizable payload tag (or none for
// the requested query). Raw is a bounded excerpt of the captured text.
type NoResultError struct {
	Raw string
}

func (e *NoResultError) Error() string {
	if e.Raw == "" {
		return "extract: no result payload in engine output (output empty)"
	}
	return fmt.Sprintf("extract: no result payload in engine output: %q", e.Raw)
}

// DecodeError reports a payload line whose content failed to decode. Payload
// is a bounded excerpt of the offending text; together with Reason it lets a
// human tell an early-exit truncation from malformed input.
type DecodeError struct {
	Reason  error
	Payload string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("extract: undecodable payload %q: %v", e.Payload, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Reason }

// Result scans raw for the payload line of the query with the given ID.
//
// Payloads correlated to other IDs are skipped, never returned: under
// interleaving, answering with someone else's result is worse than failing.
// A tagged line that does not decode yields a DecodeError; a scan that finds
// no tag at all yields a NoResultError.
func Result(raw, id string) (query.StyleResult, error) {
	var firstDecodeErr *DecodeError

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		payload, ok := afterTag(sc.Text())
		if !ok {
			continue
		}
		r, err := query.DecodeResult(payload)
		if err != nil {
			if firstDecodeErr == nil {
				firstDecodeErr = &DecodeError{Reason: err, Payload: excerpt(payload)}
			}
			continue
		}
		if r.ID == id {
			return r, nil
		}
	}

	if firstDecodeErr != nil {
		return query.StyleResult{}, firstDecodeErr
	}
	return query.StyleResult{}, &NoResultError{Raw: excerpt(raw)}
}

// Batch decodes every payload line in raw and matches it to the given
// queries by ID, ignoring arrival order. Queries without a decodable payload
// are degraded individually to failed results; the batch as a whole only
// errors when raw carries no payload tag at all.
func Batch(raw string, qs []query.StyleQuery) (map[string]query.StyleResult, error) {
	wanted := make(map[string]struct{}, len(qs))
	for _, q := range qs {
		wanted[q.ID] = struct{}{}
	}

	results := make(map[string]query.StyleResult, len(qs))
	sawTag := false

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		payload, ok := afterTag(sc.Text())
		if !ok {
			continue
		}
		sawTag = true
		r, err := query.DecodeResult(payload)
		if err != nil {
			continue
		}
		if _, ours := wanted[r.ID]; !ours {
			// Stale line from an earlier render. Cross-query mixing
			// is forbidden, so drop it.
			continue
		}
		results[r.ID] = r
	}

	if !sawTag {
		return nil, &NoResultError{Raw: excerpt(raw)}
	}

	for _, q := range qs {
		if _, ok := results[q.ID]; !ok {
			results[q.ID] = query.Failed(q.ID, "no decodable result in batch output")
		}
	}
	return results, nil
}

// afterTag returns the payload following the result tag on line, if any.
// The tag need not start the line; engines prefix console output with their
// own log decorations.
func afterTag(line string) (string, bool) {
	idx := strings.Index(line, query.ResultTag)
	if idx < 0 {
		return "", false
	}
	return line[idx+len(query.ResultTag):], true
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= excerptLimit {
		return s
	}
	return s[:excerptLimit] + "..."
}
