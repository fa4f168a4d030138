package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const familyPolicy = `package console.authz

import future.keywords.if
import future.keywords.in

default allow := false

# holders of P000 manage every user-administration page
allow if {
	"P000" in input.permissions
	startswith(input.permission, "P00")
}
`

func TestPolicyGrantsBeyondExactMatch(t *testing.T) {
	ctx := context.Background()
	p, err := NewPolicy(ctx, "family.rego", familyPolicy)
	require.NoError(t, err)

	ok, err := p.Allow(ctx, NewSet("P000"), "P002")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Allow(ctx, NewSet("P000"), "F001")
	require.NoError(t, err)
	assert.False(t, ok)

	r := resolverWith(t, credential(`{"permissions":["P000"]}`), WithPolicy(p))
	assert.True(t, r.HasPermission(ctx, "P001"))
	assert.False(t, r.HasPermission(ctx, "F001"))
}

func TestPolicyCannotRevokeExactGrant(t *testing.T) {
	ctx := context.Background()
	p, err := NewPolicy(ctx, "deny.rego", "package console.authz\n\ndefault allow := false\n")
	require.NoError(t, err)

	r := resolverWith(t, credential(`{"permissions":["P001"]}`), WithPolicy(p))
	assert.True(t, r.HasPermission(ctx, "P001"))
	assert.False(t, r.HasPermission(ctx, "P002"))
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authz.rego")
	require.NoError(t, os.WriteFile(path, []byte(familyPolicy), 0600))
	_, err := LoadPolicy(context.Background(), path)
	require.NoError(t, err)

	_, err = LoadPolicy(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)

	_, err = NewPolicy(context.Background(), "broken.rego", "package console.authz\nallow if {")
	assert.Error(t, err)
}
