package apperror

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"edugate.org/internal/obs"
)

const genericMessage = "something went wrong"

// Responder is the single boundary translator per process entry point: it
// converts any failure into the closed union and shapes the wire response by
// deployment mode.
type Responder struct {
	debug bool
}

// NewResponder builds a responder. In debug mode every error returns its real
// message, machine code and stack; hardened mode flattens non-operational
// errors to one generic message.
func NewResponder(debugMode bool) *Responder {
	return &Responder{debug: debugMode}
}

// Write serializes the failure. The full error and stack are always logged
// server-side at error severity; the response body always carries the
// correlation id of the triggering request.
func (rs *Responder) Write(w http.ResponseWriter, r *http.Request, err error) {
	ae := From(err)
	requestID := obs.RequestIDFromContext(r.Context())

	stack := ae.Stack
	if stack == nil {
		stack = debug.Stack()
	}
	obs.LogError("request_failed", map[string]any{
		"request_id":  requestID,
		"method":      r.Method,
		"path":        r.URL.Path,
		"code":        ae.Kind.Code(),
		"http_status": ae.Kind.HTTPStatus(),
		"operational": ae.Operational,
		"error":       ae.Error(),
		"stack":       string(stack),
	})

	status := ae.Kind.HTTPStatus()
	body := map[string]any{
		"status":     statusWord(status),
		"message":    ae.Message,
		"code":       ae.Kind.Code(),
		"request_id": requestID,
	}
	if len(ae.Fields) > 0 {
		body["errors"] = ae.Fields
	}
	if rs.debug {
		body["stack"] = string(stack)
	} else if !ae.Operational {
		body["message"] = genericMessage
		body["code"] = KindInternal.Code()
		delete(body, "errors")
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

// statusWord follows the fail/error body convention: client faults are "fail",
// server faults are "error".
func statusWord(status int) string {
	if status >= 500 {
		return "error"
	}
	return "fail"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
