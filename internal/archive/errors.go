package archive

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors callers can branch on with errors.Is. A StatusError for the
// matching status code unwraps to them.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// StatusError is returned for any non-200 archive response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       []byte
}

// maxErrorBody bounds how much of a response body is echoed in messages.
const maxErrorBody = 512

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Sprintf("archive: %s: status %d: %s", e.URL, e.StatusCode, body)
}

// Unwrap maps authorisation and missing-file statuses onto the sentinels.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}
