package provider

import (
	"fmt"
	"io"

	"github.com/nth-layer/orchestra/engine"
)

// mapHTTPError translates an HTTP status code from a vendor API into the
// engine's error taxonomy, grounded on the teacher's status-to-code mapping
// table (including the "model overloaded" 529 used by some vendors).
func mapHTTPError(status int, body string, providerName string) *engine.Error {
	msg := body
	if msg == "" {
		msg = fmt.Sprintf("http status %d", status)
	}

	switch status {
	case 401:
		return engine.NewError(engine.ErrUnauthorized, msg).WithProvider(providerName).WithRetryable(false)
	case 403:
		return engine.NewError(engine.ErrUnauthorized, msg).WithProvider(providerName).WithRetryable(false)
	case 408:
		return engine.NewError(engine.ErrTimeout, msg).WithProvider(providerName).WithRetryable(true)
	case 429:
		return engine.NewError(engine.ErrRateLimited, msg).WithProvider(providerName).WithRetryable(true)
	case 400, 404, 422:
		return engine.NewError(engine.ErrBadRequest, msg).WithProvider(providerName).WithRetryable(false)
	case 500, 502, 503, 504, 529:
		return engine.NewError(engine.ErrProviderUnavailable, msg).WithProvider(providerName).WithRetryable(true)
	default:
		if status >= 500 {
			return engine.NewError(engine.ErrProviderUnavailable, msg).WithProvider(providerName).WithRetryable(true)
		}
		return engine.NewError(engine.ErrInternal, msg).WithProvider(providerName).WithRetryable(false)
	}
}

// readErrorBody reads and truncates a vendor error response body for
// inclusion in the translated error message.
func readErrorBody(r io.Reader) string {
	const maxLen = 2048
	buf := make([]byte, maxLen)
	n, _ := io.ReadFull(r, buf)
	return string(buf[:n])
}
