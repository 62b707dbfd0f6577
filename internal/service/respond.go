package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/fault"
)

// maxRequestBytes bounds request bodies; skill execution bodies are
// small JSON, anything larger is a mistake.
const maxRequestBytes = 4 << 20

// errorBody is the wire shape for failures: a human message plus the
// machine code agents branch on.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps fault codes to HTTP statuses. auth_required is absent
// on purpose: it travels as a 200 recommendation so the agent keeps
// the result channel open and retries after login.
func statusFor(code fault.Code) int {
	switch code {
	case fault.CodeInput:
		return http.StatusBadRequest
	case fault.CodeNotFound:
		return http.StatusNotFound
	case fault.CodeCaptureInFlight:
		return http.StatusConflict
	case fault.CodePrecondition:
		return http.StatusPreconditionFailed
	case fault.CodeUpstream, fault.CodeReplayMismatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, capture.ErrLoginTimeout) {
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: err.Error()})
		return
	}
	code := fault.CodeOf(err)
	if code == fault.CodeAuthRequired {
		writeJSON(w, http.StatusOK, map[string]any{
			"auth_recommended": true,
			"auth_hint":        "/v1/auth/login",
			"error":            fault.MessageOf(err),
			"code":             string(code),
		})
		return
	}
	status := statusFor(code)
	if status >= 500 {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "code", string(code), "error", err)
	}
	writeJSON(w, status, errorBody{Error: fault.MessageOf(err), Code: string(code)})
}

// decodeJSON reads a bounded JSON body. An empty body decodes to the
// zero value so optional-everything requests can omit it.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fault.Wrap(fault.CodeInput, "decode request body", err)
}
