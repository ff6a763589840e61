package psynth

import (
	"errors"
	"strings"
)

// ErrInvalidState is returned if processor method cannot be executed at
// this moment.
var ErrInvalidState = errors.New("invalid state")

// nodeErrors wraps errors that might occur when multiple process nodes are
// failing.
type nodeErrors []error

func (e nodeErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e nodeErrors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// ret returns untyped nil if error is list is empty.
func (e nodeErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
