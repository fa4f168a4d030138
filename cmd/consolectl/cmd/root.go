// Package cmd implements the consolectl CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"opsconsole/internal/apiclient"
	"opsconsole/internal/authz"
	"opsconsole/internal/consoleapi"
	"opsconsole/internal/notify"
	"opsconsole/internal/routes"
	"opsconsole/internal/session"
	"opsconsole/pkg/config"
	"opsconsole/pkg/logger"
	"opsconsole/pkg/middleware"
)

// Version is set at build time
var Version = "0.1.0"

// console is the CLI's browser: one credential slot, the route table and the
// API pipeline, built once per invocation.
type console struct {
	cfg    config.Config
	log    *zap.SugaredLogger
	out    io.Writer
	errOut io.Writer

	store    session.Store
	resolver *authz.Resolver
	routes   *routes.Table
	loc      *apiclient.Location
	sink     notify.Sink
	client   *apiclient.Client
	products *consoleapi.Products
	users    *consoleapi.Users

	outputFormat string
	apiBase      string
	slotFile     string
	backend      string
	verbose      bool

	shutdown func(context.Context) error
}

// newRoot builds a fresh command tree and the console state its commands share.
func newRoot() (*cobra.Command, *console) {
	c := &console{}
	root := &cobra.Command{
		Use:   "consolectl",
		Short: "Operations console client",
		Long: `consolectl drives the operations console from a terminal.

Every command visits a console route: the same navigation guard as the web
console decides whether the stored credential may open it, and API calls go
through the same request pipeline.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "completion" || cmd.Name() == "help" {
				return nil
			}
			return c.open(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	root.PersistentFlags().StringVar(&c.apiBase, "api", "", "API base URL (default: $API_BASE_URL)")
	root.PersistentFlags().StringVar(&c.slotFile, "slot-file", "", "Credential file (default: $SESSION_FILE)")
	root.PersistentFlags().StringVar(&c.backend, "backend", "", "Credential slot backend: file, memory, redis, postgres (default: $SESSION_BACKEND)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log diagnostics to stderr")

	root.AddCommand(
		newLoginCmd(c), newLogoutCmd(c), newWhoamiCmd(c), newCanCmd(c),
		newOpenCmd(c), newRoutesCmd(c), newProductsCmd(c), newRolesCmd(c),
		newUsersCmd(c), newPermissionsCmd(c),
	)
	return root, c
}

// run executes root and then releases what the invocation opened. Cobra skips
// post-run hooks when a command fails, so the release happens here.
func run(ctx context.Context, root *cobra.Command, c *console) error {
	defer c.close()
	return root.ExecuteContext(ctx)
}

// close closes the credential slot backend and flushes spans.
func (c *console) close() {
	if cl, ok := c.store.(io.Closer); ok {
		if err := cl.Close(); err != nil && c.log != nil {
			c.log.Warnw("credential slot close failed", "err", err)
		}
	}
	c.store = nil
	if c.shutdown != nil {
		_ = c.shutdown(context.Background())
		c.shutdown = nil
	}
}

func (c *console) open(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c.out, c.errOut = cmd.OutOrStdout(), cmd.ErrOrStderr()
	c.cfg = config.Load()
	if c.apiBase != "" {
		c.cfg.APIBaseURL = c.apiBase
	}
	if c.slotFile != "" {
		c.cfg.SessionFile = c.slotFile
	}
	if c.backend != "" {
		c.cfg.SessionBackend = c.backend
	}
	if c.verbose {
		c.log = logger.New(c.cfg.Env)
	} else {
		c.log = logger.OrNop(nil)
	}
	_, c.shutdown = middleware.InitTracing("opsconsole-cli", c.log)

	var err error
	if c.routes, err = routes.Load(c.cfg.RoutesFile); err != nil {
		return err
	}
	if c.store, err = session.Open(ctx, c.cfg, c.log); err != nil {
		return fmt.Errorf("open credential slot: %w", err)
	}
	authzOpts := []authz.Option{authz.WithPermissionsClaim(c.cfg.PermissionsClaim)}
	if c.cfg.PolicyFile != "" {
		p, err := authz.LoadPolicy(ctx, c.cfg.PolicyFile)
		if err != nil {
			return err
		}
		authzOpts = append(authzOpts, authz.WithPolicy(p))
	}
	c.resolver = authz.NewResolver(c.store, c.log, authzOpts...)
	c.sink = notify.Multi(notify.Terminal{W: c.errOut}, notify.LogSink{Log: c.log})
	c.loc = apiclient.NewLocation(routes.HomePath, c.sessionEnded)
	c.client, err = apiclient.New(c.cfg.APIBaseURL, c.store,
		apiclient.WithNavigator(c.loc),
		apiclient.WithNotifier(c.sink),
		apiclient.WithLogger(c.log),
		apiclient.WithTimeout(c.cfg.RequestTimeout),
	)
	if err != nil {
		return err
	}
	c.products = consoleapi.NewProducts(c.client, c.cfg.APIBaseURL, c.cfg.UploadTimeout)
	c.users = consoleapi.NewUsers(c.client)
	return nil
}

// sessionEnded is where the pipeline's forced navigation to login lands.
func (c *console) sessionEnded(target string) {
	fmt.Fprintf(c.errOut, "Run 'consolectl login --token <credential> --redirect %s' to continue.\n", resumeOf(target))
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root, c := newRoot()
	err := run(context.Background(), root, c)
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// formatOutput handles output formatting based on the --output flag. It
// reports whether it wrote anything; table output is left to the caller.
func (c *console) formatOutput(data any) (bool, error) {
	switch c.outputFormat {
	case "json":
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(data)
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return true, err
		}
		_, err = c.out.Write(out)
		return true, err
	case "table", "":
		return false, nil
	default:
		return false, fmt.Errorf("unknown output format %q", c.outputFormat)
	}
}

// printRaw writes an API payload, indented for table output.
func (c *console) printRaw(raw json.RawMessage) error {
	var v any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			_, err = fmt.Fprintln(c.out, string(raw))
			return err
		}
	}
	if done, err := c.formatOutput(v); done || err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
