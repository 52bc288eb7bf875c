package coolify

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the Coolify API.
type APIError struct {
	Code   int
	Status string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coolify: [%d %s] %s", e.Code, e.Status, e.Detail)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return codeForError(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401/403 from the API, i.e. a
// missing or expired token. These are never retried automatically.
func IsUnauthorized(err error) bool {
	code := codeForError(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func codeForError(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
