package authz

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// PolicyQuery is the rule a grant policy must define.
const PolicyQuery = "data.console.authz.allow"

// Policy is a prepared rego grant policy. Its input is
// {"permission": code, "permissions": [codes...]}.
type Policy struct {
	query rego.PreparedEvalQuery
}

// NewPolicy compiles module source.
func NewPolicy(ctx context.Context, name, module string) (*Policy, error) {
	pq, err := rego.New(
		rego.Query(PolicyQuery),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy %s: %w", name, err)
	}
	return &Policy{query: pq}, nil
}

// LoadPolicy compiles the rego module at path.
func LoadPolicy(ctx context.Context, path string) (*Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return NewPolicy(ctx, path, string(src))
}

// Allow evaluates the policy. An undefined rule is a denial.
func (p *Policy) Allow(ctx context.Context, perms Set, code string) (bool, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(map[string]any{
		"permission":  code,
		"permissions": perms.Codes(),
	}))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, _ := rs[0].Expressions[0].Value.(bool)
	return allowed, nil
}
