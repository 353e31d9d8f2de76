// Command cmsctl manages content types from the command line.
//
//	cmsctl migrate
//	cmsctl apply types.json
//	cmsctl list
//	cmsctl describe product
//	cmsctl drop product
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
	"github.com/relabs-tech/kurbisio-cms/core/manager"
)

// env bundles what the commands work with
type env struct {
	db      *csql.DB
	store   *catalog.Store
	manager *manager.Manager
}

func (e *env) close() {
	e.db.Close()
}

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "cmsctl",
		Short:         "Manage content types of a kurbisio CMS database",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, configFile)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./cmsctl.yaml)")
	flags.String("postgres", "", "Postgres connection string without password")
	flags.String("postgres-password", "", "Postgres password")
	flags.String("schema", "cms", "Postgres schema holding catalog and content tables")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	for _, name := range []string{"postgres", "postgres-password", "schema", "log-level"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	connect := func() (*env, error) {
		cfg, err := loadConfig(v)
		if err != nil {
			return nil, err
		}
		logger.InitLogger(logger.ParseLevel(cfg.LogLevel))
		db := csql.OpenWithSchema(cfg.Postgres, cfg.PostgresPassword, cfg.Schema)
		if err := catalog.Migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, err
		}
		store := catalog.New(db)
		return &env{db: db, store: store, manager: manager.New(db, store)}, nil
	}

	root.AddCommand(
		newMigrateCmd(connect),
		newApplyCmd(connect),
		newListCmd(connect),
		newDescribeCmd(connect),
		newDropCmd(connect),
	)
	return root
}

type connectFunc func() (*env, error)

func newMigrateCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the catalog tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()
			fmt.Fprintln(cmd.OutOrStdout(), "catalog is up to date")
			return nil
		},
	}
}

func newApplyCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file.json>",
		Short: "Create content types from a definition file, or add new fields to existing ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			types, err := parseDefinitions(data)
			if err != nil {
				return err
			}
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()
			return apply(cmd.Context(), cmd.OutOrStdout(), e, types)
		},
	}
}

// apply creates or updates types in file order, so a type may reference
// any type defined before it
func apply(ctx context.Context, out io.Writer, e *env, types []fileType) error {
	resolve := storeResolver(e.store)
	for _, t := range types {
		def, err := t.toDefinition(ctx, resolve)
		if err != nil {
			return err
		}
		slug := core.Slug(t.Name)
		_, err = e.store.TypeBySlug(ctx, slug)
		switch {
		case errors.Is(err, core.ErrNotFound):
			ct, err := e.manager.CreateType(ctx, def)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "created %s (%s)\n", ct.Slug, ct.Table)
		case err != nil:
			return err
		default:
			ct, err := e.manager.UpdateType(ctx, slug, def)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "updated %s (%d fields)\n", ct.Slug, len(ct.Fields))
		}
	}
	return nil
}

func newListCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all content types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()
			types, err := e.store.Types(cmd.Context())
			if err != nil {
				return err
			}
			printTypes(cmd.OutOrStdout(), types)
			return nil
		},
	}
}

func printTypes(out io.Writer, types []*catalog.ContentType) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tTABLE\tFIELDS\tFLAGS")
	for _, ct := range types {
		table := ct.Table
		if !ct.HasTable() {
			table = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", ct.Slug, table, len(ct.Fields), flagString(ct.Flags()))
	}
	w.Flush()
}

func flagString(f catalog.Flags) string {
	s := ""
	add := func(on bool, name string) {
		if !on {
			return
		}
		if s != "" {
			s += ","
		}
		s += name
	}
	add(f.IsPublic, "public")
	add(f.HasOwnership, "owned")
	add(f.IsComponent, "component")
	add(f.IsSingle, "single")
	add(f.IsLocalized, "localized")
	if s == "" {
		return "-"
	}
	return s
}

func newDescribeCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <slug>",
		Short: "Show the fields and physical columns of a content type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()
			ct, err := e.store.TypeBySlug(ctx, args[0])
			if err != nil {
				return err
			}
			var columns []csql.Column
			if ct.HasTable() {
				if columns, err = csql.Columns(ctx, e.db, e.db.Schema, ct.Table); err != nil {
					return err
				}
			}
			describe(cmd.OutOrStdout(), ct, columns)
			return nil
		},
	}
}

func describe(out io.Writer, ct *catalog.ContentType, columns []csql.Column) {
	fmt.Fprintf(out, "%s (%s)\n", ct.Name, ct.Slug)
	if ct.Description != "" {
		fmt.Fprintln(out, ct.Description)
	}
	fmt.Fprintf(out, "flags: %s\n\n", flagString(ct.Flags()))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tTYPE\tCOLUMN\tREQUIRED\tUNIQUE")
	for _, f := range ct.Fields {
		column := f.Column()
		if column == "" {
			column = "(pivot)"
		}
		if !ct.HasTable() {
			column = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", f.Name, f.Type, column, f.Settings.Required, f.Settings.Unique)
	}
	w.Flush()

	if len(columns) == 0 {
		return
	}
	fmt.Fprintf(out, "\ntable %s\n", ct.Table)
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tDATA TYPE\tNULLABLE")
	for _, c := range columns {
		fmt.Fprintf(w, "%s\t%s\t%t\n", c.Name, c.DataType, c.Nullable)
	}
	w.Flush()
}

func newDropCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <slug>",
		Short: "Delete a content type and drop its table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()
			if err := e.manager.DeleteType(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", args[0])
			return nil
		},
	}
}
