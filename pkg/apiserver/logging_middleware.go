package apiserver

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// clientIP prefers proxy headers over the socket address, since the server
// normally sits behind the edge proxy.
func clientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// statusRecorder captures the status code written by the handler chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status != 0 {
		return
	}
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

// loggingMiddleware tags every request with an id, logs it on completion and
// recovers panics from the handler chain.
func loggingMiddleware(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			requestLogger := logger.WithFields(logrus.Fields{
				"requestId":  uuid.NewString(),
				"remoteAddr": clientIP(r),
			})

			rec := &statusRecorder{ResponseWriter: w}

			defer func() {
				if p := recover(); p != nil {
					if rec.status == 0 {
						rec.WriteHeader(http.StatusInternalServerError)
					}
					requestLogger.Errorf("recovered panic: %v", p)
					requestLogger.Errorf("stack: %s", debug.Stack())
				}
			}()

			start := time.Now()
			next.ServeHTTP(rec, r)

			if strings.Contains(r.URL.EscapedPath(), "healthz") {
				return
			}

			requestLogger = requestLogger.WithFields(logrus.Fields{
				"status":   rec.status,
				"method":   r.Method,
				"host":     r.Host,
				"path":     r.URL.EscapedPath(),
				"duration": time.Since(start),
			})

			switch {
			case rec.status >= 500:
				requestLogger.Errorf("handled: %d", rec.status)
			case rec.status >= 400:
				requestLogger.Warnf("handled: %d", rec.status)
			default:
				requestLogger.Debugf("handled: %d", rec.status)
			}
		}

		return http.HandlerFunc(fn)
	}
}
