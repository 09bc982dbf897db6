package agent

import (
	"errors"
	"fmt"
)

// InvalidConversationError is returned when a caller supplies a
// conversation name that does not exist. The turn aborts before any
// write.
type InvalidConversationError struct {
	Name string
}

// Error implements the error interface.
func (e *InvalidConversationError) Error() string {
	return fmt.Sprintf("invalid conversation name %q", e.Name)
}

// ErrEmptyCompletion is returned when the completion service yields a
// response with neither content nor tool calls. The turn aborts with
// no partial assistant message persisted.
var ErrEmptyCompletion = errors.New("completion produced neither content nor tool calls")
