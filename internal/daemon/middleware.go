package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"encodefleet/internal/api"
	"encodefleet/internal/logging"
	"encodefleet/internal/services"
)

const requestIDHeader = "X-Request-Id"

// correlate copies chi's request id into the services context so every log
// line written while serving the request carries correlation_id.
func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if id != "" {
			w.Header().Set(requestIDHeader, id)
			r = r.WithContext(services.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a handler panic into the INTERNAL_ERROR envelope.
func (s *apiServer) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			logger := logging.WithContext(r.Context(), s.logger)
			logging.ErrorWithContext(logger, "api handler panicked", "api_panic",
				logging.String("panic", fmt.Sprint(rec)),
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("stack", string(debug.Stack())),
			)
			s.write(w, http.StatusInternalServerError, s.responder.Fail(api.Classify(fmt.Errorf("panic: %v", rec))))
		}()
		next.ServeHTTP(w, r)
	})
}

// accessLog writes one line per request.
func (s *apiServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []logging.Attr{
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("duration", time.Since(start)),
			logging.String("remote", clientIP(r)),
		}
		logger := logging.WithContext(r.Context(), s.logger)
		if status >= http.StatusInternalServerError {
			logging.WarnWithContext(logger, "http request failed", "http_request_failed", attrs...)
			return
		}
		logger.Debug("http request", logging.Args(attrs...)...)
	})
}
