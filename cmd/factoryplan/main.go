// factoryplan - production planner for crafting games
//
// Usage:
//
//	factoryplan resolve science_pack_1=1
//	factoryplan tree --style double iron_gear=2
//	factoryplan plan --per 1min --belt transport_belt science_pack_1=60
//	factoryplan catalog import --dsn postgres://... factorio.yaml
//	factoryplan serve --port 8080
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"factory-planner/api"
	"factory-planner/db/clickhouse"
	"factory-planner/db/postgres"
	"factory-planner/decision/catalog"
	"factory-planner/decision/planning"
	"factory-planner/decision/resolution"
	"factory-planner/pkg/units"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "factoryplan",
		Usage:   "Resolve recipes into raw resources and size the factory that makes them",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to factoryplan.yaml",
				EnvVars: []string{"FP_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format (json, text)",
			},
			&cli.StringFlag{
				Name:  "catalog-file",
				Usage: "Load the catalog from a YAML file instead of the built-in one",
			},
			&cli.StringFlag{
				Name:  "catalog-dsn",
				Usage: "Load the catalog from PostgreSQL",
			},
			&cli.StringFlag{
				Name:  "catalog-name",
				Usage: "Catalog name in PostgreSQL",
			},
			&cli.StringFlag{
				Name:  "ambiguity",
				Usage: "What to do when several recipes make an item (pick-first, pick-by-speed, fail)",
			},
			&cli.IntFlag{
				Name:  "max-iterations",
				Usage: "Resolution step cap",
			},
			&cli.StringSliceFlag{
				Name:  "allow",
				Usage: "Buildings allowed for a building type, as type=building[,building] (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable highlighting",
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
		},

		Commands: []*cli.Command{
			resolveCommand(),
			treeCommand(),
			planCommand(),
			catalogCommand(),
			historyCommand(),
			serveCommand(),
		},
	}
}

func formatFlag(def string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   def,
		Usage:   "Output format (table, json, markdown)",
	}
}

// =============================================================================
// RESOLVE COMMAND
// =============================================================================

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Reduce targets to the raw resources they need",
		ArgsUsage: "item=quantity [item=quantity...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "one-step",
				Usage: "Apply a single recipe level instead of resolving to raw resources",
			},
			formatFlag("table"),
		},
		Action: runResolve,
	}
}

func runResolve(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	targets, err := parseTargets(c.Args().Slice())
	if err != nil {
		return err
	}
	w := c.App.Writer
	p := newPalette(w, !c.Bool("no-color"))

	if c.Bool("one-step") {
		steps, err := rt.resolver.ResolveOneStepForSet(targets)
		if err != nil {
			return err
		}
		next := resolution.Inputs(steps)
		if c.String("format") == "json" {
			return outputJSON(w, steps)
		}
		renderNeed(w, rt.catalog, next, p)
		renderWarnings(w, resolution.Warnings(steps), p)
		return nil
	}

	res, err := rt.resolver.ResolveDeep(targets)
	if err != nil && res == nil {
		return err
	}
	if c.String("format") == "json" {
		if jerr := outputJSON(w, res); jerr != nil {
			return jerr
		}
		return err
	}
	outputResolution(w, rt.catalog, res.Iterations, p)
	fmt.Fprintln(w)
	renderNeed(w, rt.catalog, res.Final(), p)
	renderWarnings(w, res.Warnings, p)
	return err
}

// =============================================================================
// TREE COMMAND
// =============================================================================

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Usage:     "Show how each target breaks down into its ingredients",
		ArgsUsage: "item=quantity [item=quantity...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "style",
				Value: "simple",
				Usage: "Box drawing style (simple, double)",
			},
			&cli.IntFlag{
				Name:  "padding",
				Value: 2,
				Usage: "Width of each tree level",
			},
			formatFlag("table"),
		},
		Action: runTree,
	}
}

func runTree(c *cli.Context) error {
	set, ok := boxSets[c.String("style")]
	if !ok {
		return fmt.Errorf("unknown tree style %q (simple, double)", c.String("style"))
	}
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	targets, err := parseTargets(c.Args().Slice())
	if err != nil {
		return err
	}

	forest, err := rt.resolver.BuildTree(targets)
	if err != nil {
		return err
	}
	w := c.App.Writer
	if c.String("format") == "json" {
		return outputJSON(w, forest)
	}
	p := newPalette(w, !c.Bool("no-color"))
	renderTree(w, rt.catalog, forest.Roots, set, c.Int("padding"), p)
	renderWarnings(w, forest.Warnings, p)
	return nil
}

// =============================================================================
// PLAN COMMAND
// =============================================================================

func planCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Count the buildings needed to produce targets every period",
		ArgsUsage: "item=quantity [item=quantity...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "per",
				Usage: "Period the target quantities are produced in (e.g. 1sec, 1min)",
			},
			&cli.StringFlag{
				Name:  "belt",
				Usage: "Belt to size raw resource lines with",
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Record the run in ClickHouse",
			},
			formatFlag("table"),
		},
		Action: runPlan,
	}
}

func runPlan(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	targets, err := parseTargets(c.Args().Slice())
	if err != nil {
		return err
	}
	per := rt.per
	if c.IsSet("per") {
		if per, err = units.ParseTime(c.String("per")); err != nil {
			return err
		}
	}
	if c.IsSet("belt") {
		belt, ok := rt.catalog.Belt(catalog.BeltID(c.String("belt")))
		if !ok {
			return fmt.Errorf("unknown belt %q", c.String("belt"))
		}
		rt.setup.WithBelt(belt)
	}

	plan, planErr := rt.setup.PlanDeep(targets, per)
	if plan == nil {
		return planErr
	}

	if c.Bool("record") {
		if err := recordRun(c.Context, rt, targets, plan, planErr == nil); err != nil {
			return err
		}
	}

	w := c.App.Writer
	switch c.String("format") {
	case "json":
		if err := outputJSON(w, plan); err != nil {
			return err
		}
	case "markdown":
		outputPlanMarkdown(w, rt.catalog, plan)
	default:
		outputPlanTable(w, rt.catalog, plan, newPalette(w, !c.Bool("no-color")))
	}
	return planErr
}

// runRecorder is the part of the history store plan --record uses.
type runRecorder interface {
	FindRunByHash(ctx context.Context, catalogName, hash string) (*clickhouse.PlanRun, error)
	RecordRun(ctx context.Context, run *clickhouse.PlanRun) error
}

func recordRun(ctx context.Context, rt *runtime, targets resolution.RequirementSet, plan *planning.Plan, converged bool) error {
	store, err := rt.openHistory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	run, previous, err := record(ctx, store, rt.catalogName, targets, rt.resolver.Policy(), plan, converged)
	if err != nil {
		return err
	}
	event := rt.logger.Info().Str("run_id", run.ID.String())
	if previous != nil {
		event = event.
			Str("previous_run_id", previous.ID.String()).
			Time("previous_at", previous.CreatedAt)
	}
	event.Msg("Plan recorded")
	return nil
}

// record stores the run and returns the latest earlier run with the same
// catalog, targets, period and policy, or nil when there is none.
func record(ctx context.Context, store runRecorder, catalogName string, targets resolution.RequirementSet,
	policy resolution.AmbiguityPolicy, plan *planning.Plan, converged bool) (*clickhouse.PlanRun, *clickhouse.PlanRun, error) {
	run := clickhouse.NewRun(catalogName, targets, policy, plan, converged)
	previous, err := store.FindRunByHash(ctx, catalogName, run.Hash)
	if err != nil {
		return nil, nil, err
	}
	if err := store.RecordRun(ctx, run); err != nil {
		return nil, nil, err
	}
	return run, previous, nil
}

// =============================================================================
// CATALOG COMMAND
// =============================================================================

func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Inspect and manage recipe catalogs",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the entries of the active catalog",
				ArgsUsage: "items|recipes|buildings|belts",
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					kind := c.Args().First()
					if kind == "" {
						kind = "items"
					}
					return outputCatalog(c.App.Writer, rt.catalog, kind)
				},
			},
			{
				Name:      "validate",
				Usage:     "Check a catalog file and report every problem found",
				ArgsUsage: "FILE",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected one catalog file")
					}
					cat, err := catalog.LoadFile(c.Args().First())
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "OK: %d items, %d recipes, %d buildings, %d belts\n",
						len(cat.Items()), len(cat.Recipes()), len(cat.Buildings()), len(cat.Belts()))
					return nil
				},
			},
			{
				Name:  "export",
				Usage: "Print the active catalog as YAML",
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					return catalog.Encode(c.App.Writer, rt.catalog.Definition())
				},
			},
			{
				Name:      "import",
				Usage:     "Store a catalog file in PostgreSQL",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dsn",
						Usage:   "PostgreSQL connection string",
						EnvVars: []string{"DATABASE_URL"},
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Name to store the catalog under (defaults to the name in the file)",
					},
				},
				Action: runCatalogImport,
			},
			{
				Name:  "stored",
				Usage: "List the catalogs stored in PostgreSQL",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dsn",
						Usage:   "PostgreSQL connection string",
						EnvVars: []string{"DATABASE_URL"},
					},
				},
				Action: func(c *cli.Context) error {
					store, err := openCatalogStore(c)
					if err != nil {
						return err
					}
					defer store.Close()
					names, err := store.ListCatalogs(c.Context)
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintln(c.App.Writer, name)
					}
					return nil
				},
			},
		},
	}
}

func openCatalogStore(c *cli.Context) (*postgres.Store, error) {
	cfg := postgres.DefaultConfig()
	if c.IsSet("dsn") {
		cfg.DSN = c.String("dsn")
	}
	store, err := postgres.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(c.Context); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func runCatalogImport(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one catalog file")
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	def, err := catalog.Decode(f)
	if err != nil {
		return err
	}
	if c.IsSet("name") {
		def.Name = c.String("name")
	}
	if def.Name == "" {
		return fmt.Errorf("catalog has no name; pass --name")
	}
	// Build reports every problem before anything is written.
	if _, err := catalog.Build(def); err != nil {
		return err
	}

	store, err := openCatalogStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SaveDefinition(c.Context, def); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Stored catalog %q: %d items, %d recipes\n", def.Name, len(def.Items), len(def.Recipes))
	return nil
}

// =============================================================================
// HISTORY COMMAND
// =============================================================================

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse plan runs recorded in ClickHouse",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the most recent runs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Number of runs to show"},
				},
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					store, err := rt.openHistory(c.Context)
					if err != nil {
						return err
					}
					defer store.Close()
					runs, err := store.ListRuns(c.Context, c.Int("limit"))
					if err != nil {
						return err
					}
					outputRuns(c.App.Writer, runs)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show one run with its buildings and raw resources",
				ArgsUsage: "RUN_ID",
				Action: func(c *cli.Context) error {
					id, err := uuid.Parse(c.Args().First())
					if err != nil {
						return fmt.Errorf("invalid run id: %w", err)
					}
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					store, err := rt.openHistory(c.Context)
					if err != nil {
						return err
					}
					defer store.Close()
					run, err := store.GetRun(c.Context, id)
					if err != nil {
						return err
					}
					if run == nil {
						return fmt.Errorf("run %s not found", id)
					}
					return outputJSON(c.App.Writer, run)
				},
			},
		},
	}
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the planner API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Server port",
				EnvVars: []string{"PORT"},
			},
			&cli.BoolFlag{
				Name:  "history",
				Usage: "Record plan runs in ClickHouse",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var history api.History
	if c.Bool("history") || rt.cfg.History.Enabled {
		store, err := rt.openHistory(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		history = store
	}

	sc := rt.cfg.Server
	cfg := api.DefaultConfig()
	cfg.Port = sc.Port
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	cfg.ReadTimeout = sc.ReadTimeout
	cfg.WriteTimeout = sc.WriteTimeout
	cfg.MaxRequestSize = sc.MaxBodyBytes
	cfg.CORSOrigins = sc.CORSOrigins
	cfg.APIKey = sc.APIKey
	cfg.DefaultPer = rt.per

	server := api.NewServer(rt.setup, rt.catalogName, history, cfg).WithLogger(rt.logger)
	if err := server.StartWithGracefulShutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

