package middleware

import (
	"net/http"
	"strconv"

	"github.com/itellico/mono-access/pkg/contextkeys"
	"github.com/itellico/mono-access/pkg/httputil"
)

// CallerIDHeader carries the authenticated user's ID, set by the
// platform gateway after session validation.
const CallerIDHeader = "X-User-ID"

// CallerMiddleware extracts the caller's user ID from the gateway
// header and stores it in the request context. A missing header leaves
// the request unauthenticated; the permission engine denies those with
// a full audit record, so the request is passed through rather than
// rejected here. A malformed header is rejected outright.
func CallerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(CallerIDHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			httputil.WriteBadRequest(w, "invalid "+CallerIDHeader+" header")
			return
		}

		ctx := contextkeys.WithCaller(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Caller returns the authenticated caller's user ID for the request,
// or 0 when the request is unauthenticated.
func Caller(r *http.Request) int64 {
	return contextkeys.Caller(r.Context())
}
