package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/internal/task"
)

type errorBody struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

var statusByCode = map[xerrors.Code]int{
	xerrors.CodeInvalidArgument:       http.StatusBadRequest,
	task.CodeTaskValidation:           http.StatusBadRequest,
	xerrors.CodeAction:                http.StatusBadRequest,
	xerrors.CodeNotFound:              http.StatusNotFound,
	task.CodeTaskNotFound:             http.StatusNotFound,
	xerrors.CodeConflict:              http.StatusConflict,
	task.CodeTaskConflict:             http.StatusConflict,
	xerrors.CodeUnauthorized:          http.StatusUnauthorized,
	xerrors.CodeForbidden:             http.StatusForbidden,
	xerrors.CodeInitializationFailure: http.StatusServiceUnavailable,
	xerrors.CodeTimeout:               http.StatusGatewayTimeout,
	xerrors.CodeWalletProvider:        http.StatusBadGateway,
}

func statusOf(code xerrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Code: string(xerrors.CodeUnknown), Message: err.Error()}
	if coded, ok := xerrors.From(err); ok {
		body = errorBody{
			Code:      string(coded.Code()),
			Message:   coded.Error(),
			Retryable: coded.Retryable(),
			Metadata:  coded.Metadata(),
		}
	}
	status := statusOf(xerrors.Code(body.Code))
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.Any("error", err))
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
