package llm

import "fmt"

// APIError is returned when the completion service answers with a
// non-2xx status (quota, auth, malformed request) or an undecodable
// body. It is distinct from "the model produced no content", which is
// a valid ChatResponse. Callers treat APIError as a recoverable turn
// failure: the current turn aborts, prior history stays intact.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("completion API error: %s", e.Body)
	}
	return fmt.Sprintf("completion API error %d: %s", e.StatusCode, e.Body)
}
