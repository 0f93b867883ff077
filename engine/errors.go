package engine

import (
	"fmt"

	"github.com/hazyhaar/styleq/engine/internal/driver"
	"github.com/hazyhaar/styleq/engine/internal/extract"
)

// The process- and extraction-level error types are re-exported here so
// callers can classify failures with errors.Is / errors.As without reaching
// into internal packages. The categories never coerce into one another: a
// timeout is never reported as a decode failure, and a missing payload tag
// is never reported as a parse error.

// ErrEngineNotFound: the configured engine executable is missing or not
// executable. Raised before any spawn attempt.
var ErrEngineNotFound = driver.ErrEngineNotFound

// SpawnError: OS-level failure to start the engine process.
type SpawnError = driver.SpawnError

// TimeoutError: the engine exceeded its wall-clock budget and was killed.
type TimeoutError = driver.TimeoutError

// NoResultError: captured output carried no payload tag. Carries a bounded
// excerpt of the raw text.
type NoResultError = extract.NoResultError

// DecodeError: a payload was found but failed structured decoding. Carries
// the decode reason and a bounded excerpt of the offending payload.
type DecodeError = extract.DecodeError

// ComputeError reports a structured failure from the engine itself: the
// query ran, the payload decoded, and the engine said no (element not
// matched, bad selector). This is the StyleResult.Success=false channel
// surfaced as an error on the single-value API.
type ComputeError struct {
	QueryID string
	Message string
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("engine: query %s failed: %s", e.QueryID, e.Message)
}
