package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"factory-planner/db/clickhouse"
	"factory-planner/db/postgres"
	"factory-planner/decision/catalog"
	"factory-planner/decision/planning"
	"factory-planner/decision/resolution"
	"factory-planner/pkg/platform"
	"factory-planner/pkg/units"
)

// runtime is everything a command needs, built once from config and flags.
type runtime struct {
	cfg         *platform.Config
	logger      zerolog.Logger
	catalog     *catalog.Catalog
	catalogName string
	resolver    *resolution.Resolver
	setup       *planning.Setup
	per         units.Time
}

// loadConfig reads the config file and environment, then applies the
// global flags the user set explicitly.
func loadConfig(c *cli.Context) (*platform.Config, error) {
	cfg, err := platform.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.IsSet("catalog-file") {
		cfg.Catalog.Source = "file"
		cfg.Catalog.Path = c.String("catalog-file")
	}
	if c.IsSet("catalog-dsn") {
		cfg.Catalog.Source = "postgres"
		cfg.Catalog.DSN = c.String("catalog-dsn")
	}
	if c.IsSet("catalog-name") {
		cfg.Catalog.Name = c.String("catalog-name")
	}
	if c.IsSet("ambiguity") {
		cfg.Planner.Ambiguity = c.String("ambiguity")
	}
	if c.IsSet("max-iterations") {
		cfg.Planner.MaxIterations = c.Int("max-iterations")
	}
	if c.IsSet("allow") {
		allowed, err := parseAllowed(c.StringSlice("allow"))
		if err != nil {
			return nil, err
		}
		cfg.Planner.AllowedBuildings = allowed
	}
	if c.IsSet("clickhouse-host") {
		cfg.History.Host = c.String("clickhouse-host")
	}
	if c.IsSet("clickhouse-port") {
		cfg.History.Port = c.Int("clickhouse-port")
	}
	if c.IsSet("clickhouse-database") {
		cfg.History.Database = c.String("clickhouse-database")
	}
	if c.IsSet("clickhouse-user") {
		cfg.History.Username = c.String("clickhouse-user")
	}
	if c.IsSet("clickhouse-password") {
		cfg.History.Password = c.String("clickhouse-password")
	}

	if err := platform.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger := platform.InitLogger(cfg.Logging.Level, cfg.Logging.Format)

	cat, name, err := openCatalog(c.Context, cfg.Catalog)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("source", cfg.Catalog.Source).
		Str("catalog", name).
		Int("items", len(cat.Items())).
		Int("recipes", len(cat.Recipes())).
		Msg("Catalog loaded")

	policy, err := resolution.ParseAmbiguityPolicy(cfg.Planner.Ambiguity)
	if err != nil {
		return nil, err
	}
	resolver := resolution.NewResolver(cat).
		WithPolicy(policy).
		WithMaxIterations(cfg.Planner.MaxIterations).
		WithLogger(logger)

	setup, err := planning.NewSetup(resolver, allowedBuildings(cfg.Planner.AllowedBuildings))
	if err != nil {
		return nil, err
	}
	setup.WithLogger(logger)
	if cfg.Planner.Belt != "" {
		belt, ok := cat.Belt(catalog.BeltID(cfg.Planner.Belt))
		if !ok {
			return nil, fmt.Errorf("unknown belt %q", cfg.Planner.Belt)
		}
		setup.WithBelt(belt)
	}

	per, err := units.ParseTime(cfg.Planner.Per)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		catalog:     cat,
		catalogName: name,
		resolver:    resolver,
		setup:       setup,
		per:         per,
	}, nil
}

// openCatalog loads the catalog named by cfg and returns it with the name
// runs are recorded under.
func openCatalog(ctx context.Context, cfg platform.CatalogConfig) (*catalog.Catalog, string, error) {
	switch cfg.Source {
	case "file":
		cat, err := catalog.LoadFile(cfg.Path)
		if err != nil {
			return nil, "", err
		}
		return cat, definitionName(cat, cfg.Name), nil
	case "postgres":
		store, err := postgres.NewStore(&postgres.Config{DSN: cfg.DSN})
		if err != nil {
			return nil, "", err
		}
		defer store.Close()
		cat, err := store.Load(ctx, cfg.Name)
		if err != nil {
			return nil, "", err
		}
		return cat, cfg.Name, nil
	default:
		cat, err := catalog.Default()
		if err != nil {
			return nil, "", err
		}
		return cat, definitionName(cat, cfg.Name), nil
	}
}

func definitionName(cat *catalog.Catalog, fallback string) string {
	if name := cat.Definition().Name; name != "" {
		return name
	}
	return fallback
}

// openHistory connects to ClickHouse and makes sure the run tables exist.
func (rt *runtime) openHistory(ctx context.Context) (*clickhouse.Store, error) {
	h := rt.cfg.History
	store, err := clickhouse.NewStore(&clickhouse.Config{
		Host:     h.Host,
		Port:     h.Port,
		Database: h.Database,
		Username: h.Username,
		Password: h.Password,
		Timeout:  h.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to prepare history tables: %w", err)
	}
	return store, nil
}

func allowedBuildings(in map[string][]string) map[catalog.BuildingTypeID][]catalog.BuildingID {
	if len(in) == 0 {
		return nil
	}
	out := make(map[catalog.BuildingTypeID][]catalog.BuildingID, len(in))
	for typeID, buildings := range in {
		ids := make([]catalog.BuildingID, len(buildings))
		for i, b := range buildings {
			ids[i] = catalog.BuildingID(b)
		}
		out[catalog.BuildingTypeID(typeID)] = ids
	}
	return out
}

// parseTargets reads "item=quantity" arguments. Quantities may be decimals
// or fractions such as 1/3. A bare item means one unit.
func parseTargets(args []string) (resolution.RequirementSet, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one target is required (item=quantity)")
	}
	set := make(resolution.RequirementSet, 0, len(args))
	for _, arg := range args {
		item, qty, found := strings.Cut(arg, "=")
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("invalid target %q: missing item", arg)
		}
		quantity := units.QuantityOf(1)
		if found {
			q, err := units.ParseQuantity(qty)
			if err != nil {
				return nil, fmt.Errorf("invalid target %q: %w", arg, err)
			}
			if !q.IsPositive() {
				return nil, fmt.Errorf("invalid target %q: quantity must be positive", arg)
			}
			quantity = q
		}
		set = append(set, resolution.NewRequirement(catalog.ItemID(item), quantity))
	}
	return set, nil
}

// parseAllowed reads "type=building,building" arguments.
func parseAllowed(args []string) (map[string][]string, error) {
	out := make(map[string][]string, len(args))
	for _, arg := range args {
		typeID, list, found := strings.Cut(arg, "=")
		typeID = strings.TrimSpace(typeID)
		if !found || typeID == "" || strings.TrimSpace(list) == "" {
			return nil, fmt.Errorf("invalid --allow %q (want type=building[,building])", arg)
		}
		for _, b := range strings.Split(list, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out[typeID] = append(out[typeID], b)
			}
		}
	}
	return out, nil
}
