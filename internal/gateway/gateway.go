// Package gateway is the HTTP front door of the console: every browser
// navigation passes the navigation guard against the browser's cookie slot
// before the application shell is served.
package gateway

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"opsconsole/internal/authz"
	"opsconsole/internal/claims"
	"opsconsole/internal/guard"
	"opsconsole/internal/notify"
	"opsconsole/internal/routes"
	"opsconsole/internal/session"
	"opsconsole/pkg/logger"
	"opsconsole/pkg/middleware"
	"opsconsole/pkg/problems"
)

const (
	unauthorizedDetail = "未授权或登录已过期"
	maxLoginBody       = 64 << 10
)

type Gateway struct {
	routes    *routes.Table
	authzOpts []authz.Option
	shell     http.Handler
	log       *zap.SugaredLogger
	now       func() time.Time
}

type Option func(*Gateway)

// WithAuthz passes resolver options (permission claim path, grant policy)
// to every per-request resolver.
func WithAuthz(opts ...authz.Option) Option {
	return func(g *Gateway) { g.authzOpts = append(g.authzOpts, opts...) }
}

// WithStaticDir serves a built single-page application from dir instead of
// the built-in shell.
func WithStaticDir(dir string) Option {
	return func(g *Gateway) {
		if dir != "" {
			g.shell = staticShell(dir)
		}
	}
}

func New(table *routes.Table, log *zap.SugaredLogger, opts ...Option) *Gateway {
	g := &Gateway{routes: table, log: logger.OrNop(log), now: time.Now}
	g.shell = builtinShell(g.log)
	for _, o := range opts {
		o(g)
	}
	return g
}

// RegisterHTTP mounts the session endpoints and the guarded navigation
// catch-all. r must already carry middleware.SessionSlot.
func (g *Gateway) RegisterHTTP(r chi.Router) {
	r.Get("/session", g.sessionInfo)
	r.Get("/session/routes", g.menu)
	r.Post("/session", g.login)
	r.Post("/logout", g.logout)
	if sh, ok := g.shell.(*static); ok {
		r.Handle("/assets/*", sh.assets)
	}
	r.Get("/*", g.navigate)
}

func (g *Gateway) resolver(slot session.Store) *authz.Resolver {
	return authz.NewResolver(slot, g.log, g.authzOpts...)
}

func (g *Gateway) navigate(w http.ResponseWriter, r *http.Request) {
	route, ok := g.routes.Match(r.URL.Path)
	if !ok {
		target := g.routes.Fallback
		if target == "" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	slot := middleware.SlotFrom(r.Context())
	sink := notify.Multi(notify.Flash{W: w}, notify.LogSink{Log: g.log})
	d := guard.New(slot, g.resolver(slot), sink, g.log).Evaluate(r.Context(), route, r.URL.RequestURI())
	if !d.Allowed() {
		http.Redirect(w, r, d.Target, http.StatusFound)
		return
	}
	status := http.StatusOK
	if route.Path == g.routes.Fallback {
		status = http.StatusNotFound
	}
	p := page{Route: route, Status: status}
	if _, spa := g.shell.(*static); !spa {
		// a prebuilt application reads the flash cookie itself
		p.Notice = notify.TakeFlash(w, r)
	}
	g.shell.ServeHTTP(w, r.WithContext(withPage(r.Context(), p)))
}

type loginRequest struct {
	Token    string `json:"token"`
	Redirect string `json:"redirect"`
}

// login stores a credential in the browser slot and resumes the pending
// navigation. JSON callers get the resume target back; form posts are
// redirected to it.
func (g *Gateway) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	asJSON := isJSON(r)
	if asJSON {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&in); err != nil {
			problems.Write(w, http.StatusBadRequest, "invalid-body", "Invalid body", "请求体不是有效的 JSON")
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxLoginBody)
		if err := r.ParseForm(); err != nil {
			problems.Write(w, http.StatusBadRequest, "invalid-body", "Invalid body", "无法解析登录表单")
			return
		}
		in.Token = r.PostForm.Get("token")
		in.Redirect = r.PostForm.Get(routes.RedirectParam)
	}
	if in.Redirect == "" {
		in.Redirect = r.URL.Query().Get(routes.RedirectParam)
	}
	in.Token = strings.TrimSpace(in.Token)
	if in.Token == "" {
		problems.Write(w, http.StatusBadRequest, "missing-credential", "Missing credential", "缺少登录凭证")
		return
	}
	slot := middleware.SlotFrom(r.Context())
	if err := slot.Set(r.Context(), in.Token); err != nil {
		g.log.Errorw("store credential", "err", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "Internal error", "无法保存登录状态")
		return
	}
	target := routes.SafeResume(in.Redirect)
	g.log.Infow("session started", "resume", target, "reqid", middleware.RequestIDFrom(r.Context()))
	if asJSON {
		writeJSON(w, map[string]any{"redirect": target}, http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (g *Gateway) logout(w http.ResponseWriter, r *http.Request) {
	if err := middleware.SlotFrom(r.Context()).Clear(r.Context()); err != nil {
		g.log.Warnw("clear credential", "err", err)
	}
	if isJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, routes.LoginPath, http.StatusSeeOther)
}

// SessionInfo is the body of GET /session.
type SessionInfo struct {
	Authenticated bool       `json:"authenticated"`
	Subject       string     `json:"subject,omitempty"`
	Issuer        string     `json:"issuer,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Expired       bool       `json:"expired"`
	Permissions   []string   `json:"permissions"`
}

func (g *Gateway) sessionInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slot := middleware.SlotFrom(ctx)
	token, ok, err := slot.Get(ctx)
	if err != nil || !ok {
		problems.Write(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", unauthorizedDetail)
		return
	}
	info := SessionInfo{
		Authenticated: true,
		Permissions:   g.resolver(slot).CurrentPermissions(ctx).Codes(),
	}
	if reg, err := claims.InspectRegistered(token); err == nil {
		info.Subject, info.Issuer = reg.Subject, reg.Issuer
		if !reg.ExpiresAt.IsZero() {
			exp := reg.ExpiresAt.UTC()
			info.ExpiresAt = &exp
		}
		info.Expired = reg.Expired(g.now())
	}
	writeJSON(w, info, http.StatusOK)
}

// menu lists every route with its access for the current slot, so the
// application can build navigation without offering denied views.
func (g *Gateway) menu(w http.ResponseWriter, r *http.Request) {
	slot := middleware.SlotFrom(r.Context())
	rows := guard.New(slot, g.resolver(slot), notify.Discard, g.log).Menu(r.Context(), g.routes)
	writeJSON(w, map[string]any{"routes": rows, "fallback": g.routes.Fallback}, http.StatusOK)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
