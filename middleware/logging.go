package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/julienschmidt/httprouter"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
	"github.com/subvoxlabs/transcribe-api/log"
	"github.com/subvoxlabs/transcribe-api/requests"
)

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

// LogRequest wraps next with a per-request access log line and panic
// recovery, mirroring the teacher's logging.go.
func LogRequest() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			start := time.Now()
			requestID := requests.GetRequestId(r)
			wrapped := wrapResponseWriter(w)

			defer func() {
				if rec := recover(); rec != nil {
					xerrors.WriteTaskError(wrapped, requestID, xerrors.New(xerrors.CodeInternalError, "internal server error", nil))
					log.LogNoRequestID("panic recovered in http handler", "err", rec, "trace", string(debug.Stack()))
				}
			}()

			next(wrapped, r, ps)

			log.Log(requestID, "handled request",
				"remote", r.RemoteAddr,
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"duration", time.Since(start),
				"status", wrapped.status,
			)
		}
	}
}
