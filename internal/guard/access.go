package guard

import (
	"context"

	"opsconsole/internal/routes"
	"opsconsole/internal/session"
)

// Access is how a route looks to the current slot, for menus. It follows the
// same rules as Evaluate but never notifies or counts.
type Access string

const (
	AccessPublic Access = "public"
	AccessLogin  Access = "login"
	AccessGrant  Access = "yes"
	AccessDenied Access = "no"
)

// RouteAccess pairs a route with its Access.
type RouteAccess struct {
	routes.Route `yaml:",inline"`
	Access       Access `json:"access" yaml:"access"`
}

// Menu reports the access of every route in t.
func (g *Guard) Menu(ctx context.Context, t *routes.Table) []RouteAccess {
	authenticated := session.Present(ctx, g.store)
	out := make([]RouteAccess, 0, len(t.Routes))
	for _, r := range t.Routes {
		a := AccessGrant
		switch {
		case r.Public:
			a = AccessPublic
		case !authenticated:
			a = AccessLogin
		case r.RequiredPermission != "" && !g.resolver.HasPermission(ctx, r.RequiredPermission):
			a = AccessDenied
		}
		out = append(out, RouteAccess{Route: r, Access: a})
	}
	return out
}
