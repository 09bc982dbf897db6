package store

import "fmt"

// DuplicateNameError is returned by CreateConversation when the name is
// already taken. The uniqueness constraint is the final backstop for
// naming races; callers re-resolve the name once before giving up.
type DuplicateNameError struct {
	Name string
}

// Error implements the error interface.
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("conversation name %q already exists", e.Name)
}
