package screen

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResults is returned when an action needs a result that a search did
	// not produce. An empty result list is otherwise a valid state.
	ErrNoResults = errors.New("no results")
	// ErrIndexOutOfBounds matches every *IndexError.
	ErrIndexOutOfBounds = errors.New("index out of bounds")
	// ErrSectionNotFound means no table-of-contents entry matched.
	ErrSectionNotFound = errors.New("section not found")
	// ErrNoSuggestions means the search box offered no suggestions.
	ErrNoSuggestions = errors.New("no suggestions")
	// ErrResultNotFound means no result title contained the requested text.
	ErrResultNotFound = errors.New("result not found")
)

// IndexError reports a positional request outside a list.
type IndexError struct {
	Index int
	Size  int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of bounds for %d items", e.Index, e.Size)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfBounds
}

// CheckIndex returns an *IndexError when i is not a valid position in a list of size n.
func CheckIndex(i, n int) error {
	if i < 0 || i >= n {
		return &IndexError{Index: i, Size: n}
	}
	return nil
}
