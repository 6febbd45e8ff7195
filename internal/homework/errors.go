package homework

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpoint reports that the API could not be reached.
	ErrEndpoint = errors.New("homework api unreachable")
	// ErrBadStatus reports a non-200 HTTP response.
	ErrBadStatus = errors.New("homework api returned unexpected status")
	// ErrAPI reports an error envelope ("code"/"error") in a 200 response.
	ErrAPI           = errors.New("homework api error")
	ErrMalformedJSON = errors.New("malformed homework api response")
	ErrMissingKey    = errors.New("missing key in homework api response")
	ErrUnknownStatus = errors.New("undocumented homework status")
)

// StatusError carries the rejected HTTP response.
type StatusError struct {
	Code   int
	Reason string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected api response: http code = %d; reason = %s; content = %s", e.Code, e.Reason, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrBadStatus }

// APIError is the error envelope the API sends for bad tokens or dates.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("homework api error: code=%s", e.Code)
	}
	return fmt.Sprintf("homework api error: code=%s: %s", e.Code, e.Message)
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }

type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key %q in homework api response", e.Key)
}

func (e *MissingKeyError) Is(target error) bool { return target == ErrMissingKey }

type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("undocumented homework status %q", e.Status)
}

func (e *UnknownStatusError) Is(target error) bool { return target == ErrUnknownStatus }
