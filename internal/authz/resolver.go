package authz

import (
	"context"
	"fmt"

	jmes "github.com/jmespath/go-jmespath"
	"go.uber.org/zap"

	"opsconsole/internal/claims"
	"opsconsole/internal/session"
	"opsconsole/pkg/logger"
)

// Resolver derives the effective permission set from the current credential.
// Nothing is cached: every call re-reads the store and re-decodes.
type Resolver struct {
	store   session.Store
	decoder *claims.Decoder
	claim   *jmes.JMESPath
	policy  *Policy
	log     *zap.SugaredLogger
}

type Option func(*Resolver)

// WithPermissionsClaim locates the permission list inside the claim set with
// a JMESPath expression (default "permissions").
func WithPermissionsClaim(expr string) Option {
	return func(r *Resolver) {
		if expr == "" {
			return
		}
		if jp, err := jmes.Compile(expr); err == nil {
			r.claim = jp
		} else {
			r.log.Warnw("invalid permissions claim expression, keeping default", "expr", expr, "err", err)
		}
	}
}

// WithPolicy adds a rego policy that may grant access beyond the exact and
// wildcard rule.
func WithPolicy(p *Policy) Option {
	return func(r *Resolver) { r.policy = p }
}

func NewResolver(store session.Store, log *zap.SugaredLogger, opts ...Option) *Resolver {
	log = logger.OrNop(log)
	r := &Resolver{
		store:   store,
		decoder: claims.NewDecoder(log),
		claim:   jmes.MustCompile("permissions"),
		log:     log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Claims returns the decoded claim set of the current credential.
func (r *Resolver) Claims(ctx context.Context) (claims.Claims, bool) {
	tok, ok, err := r.store.Get(ctx)
	if err != nil {
		r.log.Warnw("credential read failed", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return r.decoder.Decode(tok)
}

// CurrentPermissions returns the permission codes of the current credential.
// Missing credentials, undecodable credentials and permission claims that are
// not arrays of strings all yield the empty set.
func (r *Resolver) CurrentPermissions(ctx context.Context) Set {
	c, ok := r.Claims(ctx)
	if !ok {
		return Set{}
	}
	v, err := r.claim.Search(map[string]any(c))
	if err != nil {
		return Set{}
	}
	codes, ok := stringList(v)
	if !ok {
		if v != nil {
			r.log.Debugw("permissions claim has unexpected shape", "type", fmt.Sprintf("%T", v))
		}
		return Set{}
	}
	return NewSet(codes...)
}

// HasPermission reports whether the current credential grants code, either
// exactly or through the admin wildcard. A configured policy may grant more.
func (r *Resolver) HasPermission(ctx context.Context, code string) bool {
	perms := r.CurrentPermissions(ctx)
	if perms.Grants(code) {
		return true
	}
	if r.policy == nil {
		return false
	}
	ok, err := r.policy.Allow(ctx, perms, code)
	if err != nil {
		r.log.Warnw("policy evaluation failed", "code", code, "err", err)
		return false
	}
	return ok
}

func stringList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
