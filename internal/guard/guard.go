// Package guard decides every console navigation: allow it, or redirect to
// login, home or the forbidden page.
package guard

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"opsconsole/internal/authz"
	"opsconsole/internal/notify"
	"opsconsole/internal/routes"
	"opsconsole/internal/session"
	"opsconsole/pkg/logger"
)

// DeniedMessage is shown when a route's permission is missing.
const DeniedMessage = "权限不足，无法访问该页面。"

type Kind int

const (
	Allow Kind = iota
	RedirectLogin
	RedirectHome
	RedirectForbidden
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case RedirectForbidden:
		return "redirect_forbidden"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one navigation attempt. Target is empty for
// Allow.
type Decision struct {
	Kind   Kind
	Target string
}

func (d Decision) Allowed() bool { return d.Kind == Allow }

var decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "opsconsole_navigation_decisions_total",
	Help: "Navigation guard decisions by outcome.",
}, []string{"decision"})

// Guard evaluates navigations against one credential slot.
type Guard struct {
	store    session.Store
	resolver *authz.Resolver
	notify   notify.Sink
	log      *zap.SugaredLogger
}

func New(store session.Store, resolver *authz.Resolver, sink notify.Sink, log *zap.SugaredLogger) *Guard {
	if sink == nil {
		sink = notify.Discard
	}
	return &Guard{store: store, resolver: resolver, notify: sink, log: logger.OrNop(log)}
}

// Evaluate classifies a navigation to route; fullPath is the target as the
// user requested it (path plus query) and becomes the login resume target.
//
// The checks run in order and the first one that fires decides; later checks
// are not evaluated.
func (g *Guard) Evaluate(ctx context.Context, route routes.Route, fullPath string) Decision {
	d := g.decide(ctx, route, fullPath)
	decisions.WithLabelValues(d.Kind.String()).Inc()
	g.log.Debugw("navigation", "route", route.Name, "path", fullPath, "decision", d.Kind.String(), "target", d.Target)
	return d
}

func (g *Guard) decide(ctx context.Context, route routes.Route, fullPath string) Decision {
	authenticated := session.Present(ctx, g.store)

	if !route.Public && !authenticated {
		return Decision{Kind: RedirectLogin, Target: routes.LoginURL(fullPath)}
	}
	if route.IsLogin() && authenticated {
		return Decision{Kind: RedirectHome, Target: routes.HomePath}
	}
	if route.RequiredPermission != "" && authenticated {
		if g.resolver.HasPermission(ctx, route.RequiredPermission) {
			return Decision{Kind: Allow}
		}
		g.notify.Error(DeniedMessage)
		return Decision{Kind: RedirectForbidden, Target: routes.ForbiddenPath}
	}
	return Decision{Kind: Allow}
}
