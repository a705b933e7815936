// Package errkind holds the error kinds shared by the approval domains.
// Domain sentinels wrap one of these so callers can branch on the kind
// with errors.Is without knowing every sentinel.
package errkind

import (
	"errors"
	"fmt"
)

var (
	// Caller errors are not retried and are surfaced to the initiating user.
	Caller        = errors.New("caller error")
	Authorization = errors.New("not authorized")
	// Concurrency errors are safe to retry once after re-reading state.
	Concurrency = errors.New("concurrent modification")
	Dependency  = errors.New("dependency failure")
)

// Dep wraps a persistence or resolver failure as a Dependency error.
func Dep(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", Dependency, op, err)
}

func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
