package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"opsconsole/internal/consoleapi"
)

const (
	rolesRoute = "/user/roles"
	authRoute  = "/user/auth"
)

func newRolesCmd(c *console) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage console roles",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.visit(cmd.Context(), rolesRoute); err != nil {
				return err
			}
			roles, err := c.users.Roles(cmd.Context())
			if err != nil {
				return err
			}
			if done, err := c.formatOutput(roles); done || err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tDESCRIPTION")
			for _, r := range roles {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.RoleCode, r.RoleName, r.Description)
			}
			return w.Flush()
		},
	}

	var role consoleapi.Role
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if role.RoleCode == "" || role.RoleName == "" {
				return errors.New("--code and --name are required")
			}
			if _, err := c.visit(cmd.Context(), rolesRoute); err != nil {
				return err
			}
			raw, err := c.users.CreateRole(cmd.Context(), role)
			if err != nil {
				return err
			}
			return c.printRaw(raw)
		},
	}
	create.Flags().StringVar(&role.RoleCode, "code", "", "Role code")
	create.Flags().StringVar(&role.RoleName, "name", "", "Role name")
	create.Flags().StringVar(&role.Description, "description", "", "Role description")

	var name, code, description string
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Update a role's fields",
		Long: `Update a role. Only the flags given are sent.

Example:
  consolectl roles update 7 --description "商品部只读"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := roleID(args[0])
			if err != nil {
				return err
			}
			fields := map[string]any{}
			if cmd.Flags().Changed("name") {
				fields["role_name"] = name
			}
			if cmd.Flags().Changed("code") {
				fields["role_code"] = code
			}
			if cmd.Flags().Changed("description") {
				fields["description"] = description
			}
			if len(fields) == 0 {
				return errors.New("nothing to update; pass --name, --code or --description")
			}
			if _, err := c.visit(cmd.Context(), rolesRoute); err != nil {
				return err
			}
			raw, err := c.users.UpdateRole(cmd.Context(), id, fields)
			if err != nil {
				return err
			}
			return c.printRaw(raw)
		},
	}
	update.Flags().StringVar(&name, "name", "", "New role name")
	update.Flags().StringVar(&code, "code", "", "New role code")
	update.Flags().StringVar(&description, "description", "", "New description")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := roleID(args[0])
			if err != nil {
				return err
			}
			if _, err := c.visit(cmd.Context(), rolesRoute); err != nil {
				return err
			}
			if err := c.users.DeleteRole(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted role %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, create, update, del)
	return cmd
}

func roleID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid role id %q", s)
	}
	return id, nil
}

func newUsersCmd(c *console) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users and manage their permissions",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.visit(cmd.Context(), authRoute); err != nil {
				return err
			}
			raw, err := c.users.List(cmd.Context())
			if err != nil {
				return err
			}
			return c.printRaw(raw)
		},
	}

	perms := &cobra.Command{
		Use:   "permissions",
		Short: "Show or replace a user's permission codes",
	}
	get := &cobra.Command{
		Use:   "get EMP_ID",
		Short: "Show a user's permission codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.visit(cmd.Context(), authRoute); err != nil {
				return err
			}
			codes, err := c.users.UserPermissions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if done, err := c.formatOutput(codes); done || err != nil {
				return err
			}
			fmt.Fprintln(c.out, orNone(strings.Join(codes, ", ")))
			return nil
		},
	}
	set := &cobra.Command{
		Use:   "set EMP_ID [CODE...]",
		Short: "Replace a user's permission codes",
		Long: `Replace a user's permission codes. Passing no codes revokes all of them.

Example:
  consolectl users permissions set E1001 P001 P003`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.visit(cmd.Context(), authRoute); err != nil {
				return err
			}
			raw, err := c.users.SetUserPermissions(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			return c.printRaw(raw)
		},
	}
	perms.AddCommand(get, set)
	cmd.AddCommand(list, perms)
	return cmd
}

func newPermissionsCmd(c *console) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Console permission catalogue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every permission code the backend knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.visit(cmd.Context(), authRoute); err != nil {
				return err
			}
			raw, err := c.users.AllPermissions(cmd.Context())
			if err != nil {
				return err
			}
			return c.printRaw(raw)
		},
	})
	return cmd
}
