// Package httplog scopes log records to the HTTP request that produced them.
package httplog

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ebogdum/cleanlog/auth"
	"github.com/ebogdum/cleanlog/core/log"
	"github.com/ebogdum/cleanlog/core/log/record"
	"github.com/ebogdum/cleanlog/core/log/scope"
	"github.com/ebogdum/cleanlog/core/log/value"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// TraceparentHeader is the W3C trace context header.
const TraceparentHeader = "traceparent"

const maxRequestIDLen = 128

// UserID is the property holding the authenticated caller's id.
const UserID = "UserId"

// completion is logged once per request.
type completion struct {
	Method     string
	StatusCode int
	Bytes      int
	DurationMs float64
}

// Middleware installs a fresh scope stack for every request and pushes one
// frame with the request's framework properties. Records logged through the
// request context carry RequestId, RequestPath and ConnectionId, plus
// TraceId and SpanId when a valid traceparent header is present. When users
// is non-nil and resolves a caller, UserId is added too; authentication
// middleware must therefore run first.
//
// A single "HTTP request completed" record is logged when the handler
// returns, at Error level for 5xx responses and panics.
func Middleware(logger *log.Logger, users auth.CurrentUserProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := scope.WithStack(r.Context(), scope.NewStack())

			requestID := requestIDFor(r)
			w.Header().Set(RequestIDHeader, requestID)

			ctx, h := logger.AddContext(ctx, requestProperties(r, requestID, users))
			defer h.Release()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(ctx)

			defer func() {
				rec := recover()
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				lvl := record.Information
				if rec != nil {
					status = http.StatusInternalServerError
				}
				if status >= http.StatusInternalServerError {
					lvl = record.Error
				}
				logger.Log(ctx, lvl, "HTTP request completed", completion{
					Method:     r.Method,
					StatusCode: status,
					Bytes:      ww.BytesWritten(),
					DurationMs: float64(time.Since(start).Microseconds()) / 1000,
				})
				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func requestProperties(r *http.Request, requestID string, users auth.CurrentUserProvider) *value.Object {
	props := value.NewObject()
	props.Set(record.RequestID, value.String(requestID))
	props.Set(record.RequestPath, value.String(r.URL.Path))
	if r.RemoteAddr != "" {
		props.Set(record.ConnectionID, value.String(r.RemoteAddr))
	}
	if traceID, spanID, ok := ParseTraceparent(r.Header.Get(TraceparentHeader)); ok {
		props.Set(record.TraceID, value.String(traceID))
		props.Set(record.SpanID, value.String(spanID))
	}
	if users != nil {
		if u := users.CurrentUser(r.Context()); u != nil && u.IsAuthenticated {
			props.Set(UserID, value.String(u.ID.String()))
		}
	}
	return props
}

// requestIDFor prefers the id assigned by chi's RequestID middleware, then a
// well-formed client-supplied header, then a new UUID.
func requestIDFor(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get(RequestIDHeader); validRequestID(id) {
		return id
	}
	return uuid.NewString()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// ParseTraceparent extracts the trace and parent span ids from a W3C
// traceparent header ("00-<32 hex>-<16 hex>-<2 hex>"). All-zero ids are
// invalid.
func ParseTraceparent(header string) (traceID, spanID string, ok bool) {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) < 4 {
		return "", "", false
	}
	version, traceID, spanID, flags := parts[0], parts[1], parts[2], parts[3]
	if !isHex(version, 2) || version == "ff" || !isHex(flags, 2) {
		return "", "", false
	}
	// version 00 has exactly four fields
	if version == "00" && len(parts) != 4 {
		return "", "", false
	}
	if !isHex(traceID, 32) || !isHex(spanID, 16) || isZero(traceID) || isZero(spanID) {
		return "", "", false
	}
	return traceID, spanID, true
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

func isZero(s string) bool {
	return strings.Trim(s, "0") == ""
}
