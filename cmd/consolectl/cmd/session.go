package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"opsconsole/internal/claims"
	"opsconsole/internal/guard"
	"opsconsole/internal/routes"
	"opsconsole/internal/session"
)

func newLoginCmd(c *console) *cobra.Command {
	var (
		token    string
		redirect string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a credential and resume the pending navigation",
		Long: `Store a bearer credential in the slot and open the route that was
pending when login was required (--redirect, default /).

The credential is read from --token, or from the first line of stdin.

Examples:
  consolectl login --token eyJhbGciOi... --redirect /products
  issue-token | consolectl login`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if force {
				if err := c.store.Clear(ctx); err != nil {
					return err
				}
			}
			if _, err := c.visit(ctx, routes.LoginPath); err != nil {
				return err
			}
			if token == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no credential given; pass --token or pipe it on stdin")
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("empty credential")
			}
			if err := c.store.Set(ctx, token); err != nil {
				return fmt.Errorf("store credential: %w", err)
			}
			target := routes.SafeResume(redirect)
			route, err := c.visit(ctx, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Logged in. Opened %s (%s)\n", target, route.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Bearer credential")
	cmd.Flags().StringVar(&redirect, "redirect", routes.HomePath, "Route to open after login")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing credential")
	return cmd
}

func newLogoutCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Logged out.")
			return nil
		},
	}
}

// WhoamiOutput represents the JSON/YAML output for the whoami command.
type WhoamiOutput struct {
	Subject     string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	Issuer      string     `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Expired     bool       `json:"expired" yaml:"expired"`
	Permissions []string   `json:"permissions" yaml:"permissions"`
	Slot        string     `json:"slot,omitempty" yaml:"slot,omitempty"`
}

func newWhoamiCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored credential's identity and permissions",
		Long: `Show the subject, expiry and effective permissions of the stored
credential. The credential is decoded locally and not verified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := c.visit(ctx, routes.HomePath); err != nil {
				return err
			}
			token, _, err := c.store.Get(ctx)
			if err != nil {
				return err
			}
			out := WhoamiOutput{Permissions: c.resolver.CurrentPermissions(ctx).Codes()}
			if fs, ok := c.store.(*session.FileStore); ok {
				out.Slot = fs.Path()
			}
			if reg, err := claims.InspectRegistered(token); err == nil {
				out.Subject, out.Issuer = reg.Subject, reg.Issuer
				if !reg.ExpiresAt.IsZero() {
					exp := reg.ExpiresAt.Local()
					out.ExpiresAt = &exp
				}
				out.Expired = reg.Expired(time.Now())
			}
			if done, err := c.formatOutput(out); done || err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Subject:\t%s\n", orNone(out.Subject))
			if out.Issuer != "" {
				fmt.Fprintf(w, "Issuer:\t%s\n", out.Issuer)
			}
			if out.ExpiresAt != nil {
				exp := out.ExpiresAt.Format(time.RFC3339)
				if out.Expired {
					exp += " " + color.New(color.FgRed).Sprint("(expired)")
				}
				fmt.Fprintf(w, "Expires:\t%s\n", exp)
			}
			fmt.Fprintf(w, "Permissions:\t%s\n", orNone(strings.Join(out.Permissions, ", ")))
			if out.Slot != "" {
				fmt.Fprintf(w, "Slot:\t%s\n", out.Slot)
			}
			return w.Flush()
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func newCanCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "can PERMISSION",
		Short: "Check whether the stored credential holds a permission",
		Long: `Check a permission code against the stored credential. Exits 0 when
granted and 3 when not, so it can gate scripts:

  consolectl can P004 && consolectl products upload items.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.resolver.HasPermission(cmd.Context(), args[0]) {
				fmt.Fprintln(c.out, color.New(color.FgGreen).Sprint("granted"))
				return nil
			}
			fmt.Fprintln(c.out, color.New(color.FgRed).Sprint("denied"))
			return &exitError{code: exitForbidden, msg: "permission " + args[0] + " not held"}
		},
	}
}

func newOpenCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "open PATH",
		Short: "Navigate to a console route",
		Long: `Run the navigation guard for a console route and report the outcome.

Examples:
  consolectl open /products
  consolectl open '/products?page=2'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			route, err := c.visit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Opened %s (%s)\n", args[0], route.Title)
			return nil
		},
	}
}

func newRoutesCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List console routes and whether the stored credential may open them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := guard.New(c.store, c.resolver, c.sink, c.log).Menu(cmd.Context(), c.routes)
			if done, err := c.formatOutput(rows); done || err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tNAME\tTITLE\tPERMISSION\tACCESS")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Path, r.Name, r.Title, orDash(r.RequiredPermission), accessColor(r.Access))
			}
			return w.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func accessColor(a guard.Access) string {
	switch a {
	case guard.AccessGrant:
		return color.New(color.FgGreen).Sprint(a)
	case guard.AccessDenied:
		return color.New(color.FgRed).Sprint(a)
	case guard.AccessLogin:
		return color.New(color.FgYellow).Sprint(a)
	default:
		return string(a)
	}
}
