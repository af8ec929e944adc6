package exec

import (
	"errors"
	"fmt"
)

const (
	KindKernel   = "kernel"
	KindCell     = "cell"
	KindDocument = "document"
)

// NotFoundError reports an unknown kernel, cell, or document. It is
// the only failure surfaced synchronously to protocol callers; the API
// layer maps it to a 404-equivalent envelope.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no such %s %s", e.Kind, e.ID)
}

func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
