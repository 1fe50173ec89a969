package alerts

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why an alert operation failed.
type Kind int

const (
	KindNetwork Kind = iota
	KindValidation
	KindNotFound
	KindServerError
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindServerError:
		return "server error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by every alert operation that fails.
type Error struct {
	Op     string
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s alert: %s (HTTP %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s alert: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind. Errors not produced by this package count as network.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindNetwork, true
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServerError
	default:
		return KindValidation
	}
}
