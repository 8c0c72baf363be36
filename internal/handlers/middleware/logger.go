package middleware

import (
	"net/http"
	"time"
)

type logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type logData struct {
	responseStatus int
	responseSize   int
}

type logWriter struct {
	http.ResponseWriter
	data        logData
	wroteHeader bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	size, err := w.ResponseWriter.Write(p)
	w.data.responseSize += size
	return size, err
}

func (w *logWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	if !w.wroteHeader {
		w.data.responseStatus = statusCode
		w.wroteHeader = true
	}
}

func (w *logWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Log every request once it is served
// Responses with 5xx status are logged as errors
func Logger(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{responseStatus: http.StatusOK, responseSize: 0},
			}

			next.ServeHTTP(lw, r)

			log := l.Info
			if lw.data.responseStatus >= http.StatusInternalServerError {
				log = l.Error
			}

			log(
				"got HTTP request",
				"method", r.Method,
				"uri", r.RequestURI,
				"remote", r.RemoteAddr,
				"duration", time.Since(start),
				"status", lw.data.responseStatus,
				"size", lw.data.responseSize,
			)
		})
	}
}
