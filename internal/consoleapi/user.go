package consoleapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"opsconsole/internal/apiclient"
	"opsconsole/internal/routes"
)

var escapeComponent = routes.EscapeComponent

// Role is a console role.
type Role struct {
	ID          int64  `json:"id,omitempty"`
	RoleName    string `json:"role_name"`
	RoleCode    string `json:"role_code"`
	Description string `json:"description,omitempty"`
}

// Users is role management and user authorization.
type Users struct {
	c *apiclient.Client
}

func NewUsers(c *apiclient.Client) *Users { return &Users{c: c} }

const userBase = "/user"

func (u *Users) CreateRole(ctx context.Context, r Role) (json.RawMessage, error) {
	var out json.RawMessage
	err := u.c.Call(ctx, apiclient.Request{Method: http.MethodPost, Path: userBase + "/roles", Body: r}, &out)
	return out, err
}

func (u *Users) Roles(ctx context.Context) ([]Role, error) {
	var out []Role
	err := u.c.Call(ctx, apiclient.Request{Method: http.MethodGet, Path: userBase + "/roles"}, &out)
	return out, err
}

// UpdateRole sends a partial update.
func (u *Users) UpdateRole(ctx context.Context, id int64, fields map[string]any) (json.RawMessage, error) {
	var out json.RawMessage
	err := u.c.Call(ctx, apiclient.Request{Method: http.MethodPut, Path: userBase + "/roles/" + strconv.FormatInt(id, 10), Body: fields}, &out)
	return out, err
}

func (u *Users) DeleteRole(ctx context.Context, id int64) error {
	return u.c.Call(ctx, apiclient.Request{Method: http.MethodDelete, Path: userBase + "/roles/" + strconv.FormatInt(id, 10)}, nil)
}

func (u *Users) List(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := u.c.Call(ctx, apiclient.Request{Method: http.MethodGet, Path: userBase + "/users"}, &out)
	return out, err
}

// AllPermissions lists every permission code the backend knows.
func (u *Users) AllPermissions(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := u.c.Call(ctx, apiclient.Request{Method: http.MethodGet, Path: userBase + "/permissions/all"}, &out)
	return out, err
}

// UserPermissions returns the permission codes granted to one employee.
func (u *Users) UserPermissions(ctx context.Context, empID string) ([]string, error) {
	var out []string
	err := u.c.Call(ctx, apiclient.Request{Method: http.MethodGet, Path: userBase + "/user/" + url.PathEscape(empID) + "/permissions"}, &out)
	return out, err
}

// SetUserPermissions replaces the employee's permission codes.
func (u *Users) SetUserPermissions(ctx context.Context, empID string, codes []string) (json.RawMessage, error) {
	if codes == nil {
		codes = []string{}
	}
	var out json.RawMessage
	err := u.c.Call(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   userBase + "/user/" + url.PathEscape(empID) + "/permissions",
		Body:   map[string][]string{"permissions": codes},
	}, &out)
	return out, err
}
