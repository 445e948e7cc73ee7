package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/linesmerrill/camp-cad-api/logging"
)

const timeoutBody = `{"response":{"message":"request timeout","error":"the request took too long to process"}}`

// TimeoutMiddleware cancels the request context after timeout and answers
// 503 if the handler has not written a response by then
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		logged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
				logging.FromContext(r.Context()).Warnw("Request timeout",
					"path", r.URL.Path,
					"method", r.Method,
					"timeout", timeout)
			}
		})
		return http.TimeoutHandler(logged, timeout, timeoutBody)
	}
}
