package httputil

import (
	"fmt"
	"io"
	"net/http"
)

// maxErrorBodySize bounds how much of an unsuccessful response is kept for error messages.
const maxErrorBodySize = 512

// IsSuccessful returns true for 2xx status codes.
func IsSuccessful(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

// StatusError describes an upstream response that was not successful.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected response code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected response code: %d: %s", e.StatusCode, e.Body)
}

// CheckResponse returns a *StatusError for non 2xx responses, carrying a prefix of the body.
// The body is left open; callers still need to close it.
func CheckResponse(resp *http.Response) error {
	if IsSuccessful(resp.StatusCode) {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

// CloseResponse closes the response's body. But reads at least some of the body so if it's
// small the underlying TCP connection will be re-used. No need to check for errors: if it
// fails, the Transport won't reuse it anyway.
func CloseResponse(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		const maxBodySlurpSize = 2 << 10 // 2KB
		_, _ = io.CopyN(io.Discard, resp.Body, maxBodySlurpSize)
		_ = resp.Body.Close()
	}
}
