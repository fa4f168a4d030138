package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"opsconsole/internal/guard"
	"opsconsole/internal/routes"
)

// Exit codes beyond the generic failure.
const (
	exitLoginRequired = 2
	exitForbidden     = 3
)

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// visit navigates to target (path plus optional query) through the guard.
// Allowed navigations become the current location, which is also the resume
// target should the session end during the command.
func (c *console) visit(ctx context.Context, target string) (routes.Route, error) {
	path := target
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	route, ok := c.routes.Match(path)
	if !ok {
		if c.routes.Fallback == "" {
			return routes.Route{}, fmt.Errorf("no console route at %s", path)
		}
		return routes.Route{}, fmt.Errorf("no console route at %s (would show %s)", path, c.routes.Fallback)
	}
	d := guard.New(c.store, c.resolver, c.sink, c.log).Evaluate(ctx, route, target)
	switch d.Kind {
	case guard.Allow:
		c.loc.SetPath(target)
		return route, nil
	case guard.RedirectLogin:
		return route, &exitError{code: exitLoginRequired, msg: fmt.Sprintf(
			"not logged in; run 'consolectl login --token <credential> --redirect %s'", resumeOf(d.Target))}
	case guard.RedirectHome:
		c.loc.SetPath(d.Target)
		return route, &exitError{code: 1, msg: "already logged in; run 'consolectl logout' first"}
	case guard.RedirectForbidden:
		return route, &exitError{code: exitForbidden, msg: fmt.Sprintf("%s requires permission %s", route.Path, route.RequiredPermission)}
	default:
		return route, fmt.Errorf("unexpected navigation decision %s", d.Kind)
	}
}

// resumeOf extracts the pending navigation from a login URL.
func resumeOf(loginURL string) string {
	u, err := url.Parse(loginURL)
	if err != nil {
		return routes.HomePath
	}
	return routes.SafeResume(u.Query().Get(routes.RedirectParam))
}
