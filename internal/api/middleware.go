package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// RequestLogger logs each request once it completes. The level follows the
// outcome: errors at error, rejected requests at warn, preflights and event
// streams at debug. The auth query parameter carries credentials and is
// redacted.
func RequestLogger(logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		next(ctx)

		attrs := []slog.Attr{
			slog.String("method", ctx.Method()),
			slog.String("path", ctx.URL().Path),
			slog.Int("status", ctx.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", ctx.RemoteAddr()),
		}
		u := ctx.URL()
		if query := redactQuery(u.Query()); query != "" {
			attrs = append(attrs, slog.String("query", query))
		}
		op := ctx.Operation()
		if op != nil && op.OperationID != "" {
			attrs = append(attrs, slog.String("operation", op.OperationID))
		}
		if ua := ctx.Header("User-Agent"); ua != "" {
			attrs = append(attrs, slog.String("user_agent", ua))
		}

		level := slog.LevelInfo
		switch status := ctx.Status(); {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		case ctx.Method() == http.MethodOptions, op != nil && op.OperationID == "events-stream":
			level = slog.LevelDebug
		}
		logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
	}
}

func redactQuery(q url.Values) string {
	if q.Has("auth") {
		q.Set("auth", "REDACTED")
	}
	return q.Encode()
}
