package model

import (
	"encoding/json"
	"time"
)

// APIResponse is the envelope every REST endpoint answers with.
type APIResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp,omitempty"`
}

// RawResponse is the decoding side of APIResponse; Data is left undecoded so
// the caller can pick the target type.
type RawResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// ErrorData is the data payload of a failed response.
type ErrorData struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Succeed wraps data in a successful envelope stamped with the current time.
func Succeed(message string, data any) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func Fail(code string, message string, details string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Data:      ErrorData{Code: code, Details: details},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
