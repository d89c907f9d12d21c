package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Body)
}

type backendErrorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func newStatusError(op string, resp *http.Response) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	body := strings.TrimSpace(string(b))

	var eb backendErrorBody
	if json.Unmarshal(b, &eb) == nil {
		switch {
		case eb.Detail != "":
			body = eb.Detail
		case eb.Message != "":
			body = eb.Message
		}
	}
	if body == "" {
		body = http.StatusText(resp.StatusCode)
	}

	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: body}
}
