package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bonaso/internal/analytics"
	"bonaso/internal/config"
	"bonaso/internal/db"
	"bonaso/internal/domain"
	"bonaso/internal/events"
	"bonaso/internal/migrate"
	"bonaso/internal/repo"
	"bonaso/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bonaso",
	Short: "BONASO data aggregation CLI",
	Long: `bonaso aggregates program monitoring records into multi-dimensional
bucket counts, tracks target achievement, and serves the same queries
over HTTP. Records come from respondent interactions, anonymous event
tallies, and social media posts; every query is scoped to what the
acting user's organization may see.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BONASO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", domain.RoleAdmin, "actor role")
	rootCmd.PersistentFlags().Int64("org", 0, "actor organization id")
	rootCmd.PersistentFlags().Int64("client-org", 0, "client organization id (role=client)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
	_ = viper.BindPFlag("client-org", rootCmd.PersistentFlags().Lookup("client-org"))
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(aggregateCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(achievementCmd())
	rootCmd.AddCommand(targetPeriodsCmd())
	rootCmd.AddCommand(flagCmd())
	rootCmd.AddCommand(serveCmd())
}

func cliActor() domain.Actor {
	return domain.Actor{
		ID:          viper.GetString("actor-id"),
		Role:        viper.GetString("role"),
		OrgID:       viper.GetInt64("org"),
		ClientOrgID: viper.GetInt64("client-org"),
	}
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func withEngine(ctx context.Context, fn func(context.Context, analytics.Engine) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		cfg, err := config.LoadOptional(viper.GetString("workspace"))
		if err != nil {
			return err
		}
		return fn(ctx, analytics.New(r, cfg))
	})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				fmt.Println("database ready at", db.Path(viper.GetString("workspace")))
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the value catalog"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default bonaso.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective value catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	return cfg
}

func aggregateCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate an indicator into bucket counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e analytics.Engine) error {
				req, err := q.request()
				if err != nil {
					return err
				}
				res, err := e.Aggregate(ctx, req)
				if err != nil {
					return err
				}
				for _, w := range res.Warnings {
					fmt.Fprintln(os.Stderr, "warning:", w)
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderBuckets(res)
				return nil
			})
		},
	}
	q.bind(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	var q queryFlags
	var pivot, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an aggregation as a pivot table (CSV)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e analytics.Engine) error {
				req, err := q.request()
				if err != nil {
					return err
				}
				res, err := e.Aggregate(ctx, req)
				if err != nil {
					return err
				}
				tbl, err := analytics.Pivot(res, pivot)
				if err != nil {
					return err
				}
				w := os.Stdout
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return writePivotCSV(w, tbl)
			})
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVar(&pivot, "pivot", "", "dimension laid out as columns")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

func achievementCmd() *cobra.Command {
	var taskID int64
	cmd := &cobra.Command{
		Use:   "achievement",
		Short: "Target achievement for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e analytics.Engine) error {
				out, err := e.Achievement(ctx, cliActor(), taskID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Target", "Window", "Goal", "Achieved", "%"})
				for _, t := range out.Targets {
					window := t.Target.Start.Format("2006-01-02") + " .. " + t.Target.End.Format("2006-01-02")
					tw.AppendRow(table.Row{t.Target.ID, window, t.Goal, t.Achieved, t.Percent})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func targetPeriodsCmd() *cobra.Command {
	var taskID int64
	var split string
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "Target goals apportioned across calendar periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e analytics.Engine) error {
				out, err := e.TargetPeriods(ctx, cliActor(), taskID, split)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Period", "Goal", "Achieved"})
				for _, p := range out {
					tw.AppendRow(table.Row{p.Period, p.Goal, p.Achieved})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	cmd.Flags().StringVar(&split, "split", analytics.SplitMonth, "month or quarter")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func flagCmd() *cobra.Command {
	fl := &cobra.Command{Use: "flag", Short: "Raise and resolve record flags"}

	var kind, reason string
	var entityID int64
	raise := &cobra.Command{
		Use:   "raise",
		Short: "Flag a record out of aggregation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				w := events.Writer{DB: r.DB}
				f, err := r.RaiseFlag(ctx, w, kind, entityID, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	raise.Flags().StringVar(&kind, "kind", "", "interaction, respondent, count or post")
	raise.Flags().Int64Var(&entityID, "id", 0, "record id")
	raise.Flags().StringVar(&reason, "reason", "", "why the record is suspect")
	_ = raise.MarkFlagRequired("kind")
	_ = raise.MarkFlagRequired("id")
	fl.AddCommand(raise)

	resolve := &cobra.Command{
		Use:   "resolve <flag-id>",
		Short: "Resolve a flag, returning the record to aggregation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				w := events.Writer{DB: r.DB}
				f, err := r.ResolveFlag(ctx, w, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	fl.AddCommand(resolve)

	var listKind string
	var unresolved bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				flags, err := r.ListFlags(ctx, listKind, unresolved)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(flags)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Entity", "Resolved", "Reason"})
				for _, f := range flags {
					tw.AppendRow(table.Row{f.ID, f.EntityKind, f.EntityID, f.Resolved, f.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listKind, "kind", "", "filter by entity kind")
	list.Flags().BoolVar(&unresolved, "unresolved", false, "only unresolved flags")
	fl.AddCommand(list)

	return fl
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("BONASO_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("BONASO_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   analytics.New(r, cfg),
				Events:   events.Writer{DB: conn},
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving BONASO data API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "trust X-Actor-* headers (development only)")
	return cmd
}

// queryFlags are the shared aggregate/export query options.
type queryFlags struct {
	indicator       int64
	project         int64
	org             int64
	start, end      string
	dimensions      []string
	split           string
	filters         []string
	cascade         bool
	repeatOnly      bool
	repeatThreshold int
}

func (q *queryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&q.indicator, "indicator", 0, "indicator id")
	cmd.Flags().Int64Var(&q.project, "project", 0, "project id")
	cmd.Flags().Int64Var(&q.org, "org-filter", 0, "restrict to one organization")
	cmd.Flags().StringVar(&q.start, "start", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.end, "end", "", "window end (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&q.dimensions, "dimensions", nil, "breakdown dimensions")
	cmd.Flags().StringVar(&q.split, "split", "", "time split: month or quarter")
	cmd.Flags().StringArrayVar(&q.filters, "filter", nil, "name:value filter, repeatable")
	cmd.Flags().BoolVar(&q.cascade, "cascade", false, "include child organizations")
	cmd.Flags().BoolVar(&q.repeatOnly, "repeat-only", false, "count only repeat respondents")
	cmd.Flags().IntVar(&q.repeatThreshold, "repeat-threshold", 2, "minimum records per respondent")
	_ = cmd.MarkFlagRequired("indicator")
}

func (q *queryFlags) request() (analytics.Request, error) {
	req := analytics.Request{
		Actor:          cliActor(),
		IndicatorID:    q.indicator,
		ProjectID:      q.project,
		OrganizationID: q.org,
		Filters:        map[string][]string{},
		Breakdown: analytics.BreakdownSpec{
			Dimensions:      map[string]bool{},
			Split:           q.split,
			RepeatOnly:      q.repeatOnly,
			RepeatThreshold: q.repeatThreshold,
			Cascade:         q.cascade,
		},
	}
	for _, d := range q.dimensions {
		req.Breakdown.Dimensions[strings.TrimSpace(d)] = true
	}
	for _, f := range q.filters {
		name, value, ok := strings.Cut(f, ":")
		if !ok || name == "" || value == "" {
			return analytics.Request{}, fmt.Errorf("invalid filter %q, expected name:value", f)
		}
		req.Filters[name] = append(req.Filters[name], value)
	}
	var err error
	if req.Start, err = parseDateFlag("start", q.start); err != nil {
		return analytics.Request{}, err
	}
	if req.End, err = parseDateFlag("end", q.end); err != nil {
		return analytics.Request{}, err
	}
	return req, nil
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q, expected YYYY-MM-DD", name, value)
	}
	return &t, nil
}

func renderBuckets(res analytics.Result) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	header := table.Row{}
	for _, d := range res.Dimensions {
		header = append(header, d.Name)
	}
	header = append(header, "count")
	tw.AppendHeader(header)
	for _, b := range res.Buckets {
		row := table.Row{}
		for _, v := range b.Values {
			row = append(row, v)
		}
		row = append(row, b.Count)
		tw.AppendRow(row)
	}
	tw.AppendFooter(table.Row{"total", res.Total()})
	tw.Render()
}

func writePivotCSV(w io.Writer, tbl analytics.PivotTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(tbl.Header(), "total")); err != nil {
		return err
	}
	for _, row := range tbl.Rows {
		rec := append([]string{}, row.Labels...)
		for _, c := range row.Cells {
			rec = append(rec, strconv.FormatInt(c, 10))
		}
		rec = append(rec, strconv.FormatInt(row.Total, 10))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
