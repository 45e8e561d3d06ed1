package testutil

import (
	"context"
	"net/http"
	"time"

	"holdright/pkg/requestcontext"
)

// WithActor adds an operator identity to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, actor string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), actor)
	return req.WithContext(ctx)
}

// WithTime pins the request-scoped clock, so handler tests get deterministic
// timestamps in audit entries and ledger records.
func WithTime(req *http.Request, t time.Time) *http.Request {
	ctx := requestcontext.WithTime(req.Context(), t)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
