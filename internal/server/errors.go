package server

import (
	"net/http"

	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindConflict:
		return http.StatusConflict
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status. Server-side failures are logged with
// the failing statement and answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()

	if status >= http.StatusInternalServerError {
		fields := map[string]interface{}{"kind": kind.String(), "path": r.URL.Path}
		if sql, args, ok := errs.QueryOf(err); ok {
			fields["sql"] = sql
			fields["args"] = len(args)
		}
		logger.FromContext(r.Context()).ErrorWith("request failed", err, fields)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind.String()})
}
