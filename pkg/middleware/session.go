// pkg/middleware/session.go
package middleware

import (
	"context"
	"net/http"

	"opsconsole/internal/session"
)

type ctxSlotKey struct{}

// SessionSlot binds each request to the browser's credential slot (a cookie)
// and makes it available to downstream handlers.
func SessionSlot(cookieName string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slot := session.NewCookieStore(w, r, cookieName, secure)
			ctx := context.WithValue(r.Context(), ctxSlotKey{}, session.Store(slot))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SlotFrom returns the request's credential slot. Requests that did not pass
// through SessionSlot get an empty in-memory slot.
func SlotFrom(ctx context.Context) session.Store {
	if v := ctx.Value(ctxSlotKey{}); v != nil {
		if s, ok := v.(session.Store); ok {
			return s
		}
	}
	return session.NewMemoryStore()
}
