package session

import (
	"context"
	"net/http"
)

// CookieStore is a browser's slot as seen by the gateway for one request.
// Writes are applied to the response and mirrored locally so later reads in
// the same request observe them.
type CookieStore struct {
	w      http.ResponseWriter
	name   string
	secure bool

	token   string
	present bool
}

func NewCookieStore(w http.ResponseWriter, r *http.Request, name string, secure bool) *CookieStore {
	s := &CookieStore{w: w, name: name, secure: secure}
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		s.token, s.present = c.Value, true
	}
	return s
}

func (s *CookieStore) Get(context.Context) (string, bool, error) {
	return s.token, s.present, nil
}

func (s *CookieStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	http.SetCookie(s.w, &http.Cookie{
		Name: s.name, Value: token, Path: "/",
		HttpOnly: true, Secure: s.secure, SameSite: http.SameSiteLaxMode,
	})
	s.token, s.present = token, true
	return nil
}

func (s *CookieStore) Clear(context.Context) error {
	http.SetCookie(s.w, &http.Cookie{
		Name: s.name, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, Secure: s.secure, SameSite: http.SameSiteLaxMode,
	})
	s.token, s.present = "", false
	return nil
}
