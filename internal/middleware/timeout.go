package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go-creator-hub/internal/model"
)

// Timeout bounds REST handlers. It buffers the response, so it must not wrap
// the WebSocket endpoint.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Message: "request timed out",
		Data:    model.ErrorData{Code: "REQUEST_TIMEOUT"},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
