package apiclient

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opsconsole/internal/session"
)

// bearerTransport is the request stage. It never fails because of the
// credential slot: an absent or unreadable credential sends the request
// unmodified.
type bearerTransport struct {
	next  http.RoundTripper
	store session.Store
	log   *zap.SugaredLogger
}

func (t *bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	out := r.Clone(r.Context())
	if out.Header.Get("X-Request-Id") == "" {
		out.Header.Set("X-Request-Id", uuid.NewString())
	}
	tok, ok, err := t.store.Get(r.Context())
	switch {
	case err != nil:
		t.log.Warnw("credential read failed, sending request anonymously", "err", err)
	case ok:
		out.Header.Set("Authorization", "Bearer "+tok)
	}
	return t.next.RoundTrip(out)
}
