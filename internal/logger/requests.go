package logger

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/addonpack/internal/http"
)

// Requests returns middleware writing one access log line per request served
// by the dev server. The request logger is attached to the context so
// handlers can add to it with zerolog.Ctx.
func Requests(logger zerolog.Logger) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			ip := httpmiddleware.ClientIPFromContext(r.Context())
			if ip == "" {
				ip = httpmiddleware.ExtractClientIP(r)
			}

			ctx := logger.With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("addr", ip).
				Logger().WithContext(r.Context())

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			event := zerolog.Ctx(ctx).Info()
			switch {
			case rec.status >= http.StatusInternalServerError:
				event = zerolog.Ctx(ctx).Error()
			case rec.status >= http.StatusBadRequest:
				event = zerolog.Ctx(ctx).Warn()
			}

			event.
				Int("status", rec.status).
				Int64("bytes", rec.bytes).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
