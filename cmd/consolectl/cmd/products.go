package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"opsconsole/internal/consoleapi"
)

func newProductsCmd(c *console) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Search, export and import products",
	}
	cmd.AddCommand(
		newProductsSearchCmd(c),
		newProductsExportCmd(c),
		newProductsUploadCmd(c),
		newProductsExportSubmitCmd(c),
		newProductsExportStatusCmd(c),
		newProductsPreviewURLCmd(c),
	)
	return cmd
}

// searchFlags are the shared query-building flags.
type searchFlags struct {
	params []string
	body   string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "Query field as key=value (JSON values are decoded, e.g. page=2)")
	cmd.Flags().StringVar(&f.body, "body", "", "JSON file holding the full query (fields from --param override it)")
}

func (f *searchFlags) build() (consoleapi.SearchParams, error) {
	params := consoleapi.SearchParams{}
	if f.body != "" {
		b, err := os.ReadFile(f.body)
		if err != nil {
			return nil, fmt.Errorf("read query body: %w", err)
		}
		if err := json.Unmarshal(b, &params); err != nil {
			return nil, fmt.Errorf("query body %s: %w", f.body, err)
		}
	}
	for _, kv := range f.params {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			params[k] = decoded
		} else {
			params[k] = v
		}
	}
	return params, nil
}

func newProductsSearchCmd(c *console) *cobra.Command {
	var (
		q    searchFlags
		kind string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search products",
		Long: `Search products. --kind selects a paged view:
  all   full product search (default)
  bzs   bzs page search
  gdy   gdy page search
  cgzt  cgzt page search

Examples:
  consolectl products search -p keyword=杯 -p page=1 -p page_size=20
  consolectl products search --kind gdy --body query.json -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			search, err := searchKind(c.products, kind)
			if err != nil {
				return err
			}
			params, err := q.build()
			if err != nil {
				return err
			}
			if _, err := c.visit(cmd.Context(), "/products"); err != nil {
				return err
			}
			raw, err := search(cmd.Context(), params)
			if err != nil {
				return err
			}
			return c.printRaw(raw)
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "all", "Search view: all, bzs, gdy, cgzt")
	return cmd
}

func searchKind(p *consoleapi.Products, kind string) (func(context.Context, consoleapi.SearchParams) (json.RawMessage, error), error) {
	switch kind {
	case "", "all":
		return p.Search, nil
	case "bzs":
		return p.SearchBzs, nil
	case "gdy":
		return p.SearchGdy, nil
	case "cgzt":
		return p.SearchCgzt, nil
	default:
		return nil, fmt.Errorf("unknown search kind %q", kind)
	}
}

func newProductsExportCmd(c *console) *cobra.Command {
	var (
		q   searchFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching products as a spreadsheet with images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := q.build()
			if err != nil {
				return err
			}
			if _, err := c.visit(cmd.Context(), "/products"); err != nil {
				return err
			}
			tmp := out + ".part"
			f, err := os.Create(tmp)
			if err != nil {
				return fmt.Errorf("create %s: %w", tmp, err)
			}
			n, err := c.products.Export(cmd.Context(), params, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(tmp)
				return err
			}
			if err := os.Rename(tmp, out); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(c.out, "Exported %d bytes to %s\n", n, out)
			return nil
		},
	}
	q.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "f", "products.xlsx", "Destination file")
	return cmd
}

func newProductsUploadCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Import a product spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.visit(cmd.Context(), "/upload"); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			raw, err := c.products.Upload(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			return c.printRaw(raw)
		},
	}
}

func newProductsExportSubmitCmd(c *console) *cobra.Command {
	var q searchFlags
	cmd := &cobra.Command{
		Use:   "export-submit",
		Short: "Queue an asynchronous export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := q.build()
			if err != nil {
				return err
			}
			if _, err := c.visit(cmd.Context(), "/products"); err != nil {
				return err
			}
			task, err := c.products.SubmitExport(cmd.Context(), params)
			if err != nil {
				return err
			}
			return c.printTask(task)
		},
	}
	q.register(cmd)
	return cmd
}

func newProductsExportStatusCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "export-status TASK_ID",
		Short: "Show the state of an asynchronous export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.visit(cmd.Context(), "/products"); err != nil {
				return err
			}
			task, err := c.products.ExportStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printTask(task)
		},
	}
}

func (c *console) printTask(t consoleapi.ExportTask) error {
	if c.outputFormat != "table" {
		return c.printRaw(t.Raw)
	}
	fmt.Fprintf(c.out, "Task:     %s\n", t.TaskID)
	if t.Status != "" {
		fmt.Fprintf(c.out, "Status:   %s\n", t.Status)
	}
	if t.Progress > 0 {
		fmt.Fprintf(c.out, "Progress: %.0f%%\n", t.Progress)
	}
	if t.FileURL != "" {
		fmt.Fprintf(c.out, "File:     %s\n", t.FileURL)
	}
	return nil
}

func newProductsPreviewURLCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "preview-url PIC_PATH",
		Short: "Print the attachment URL for a stored picture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(c.out, c.products.PreviewURL(args[0]))
			return nil
		},
	}
}
