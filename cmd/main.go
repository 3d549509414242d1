// Command catalogctl migrates multilingual product catalogs in and out of the host store.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"product-catalog-migrator/internal/cache"
	"product-catalog-migrator/internal/config"
	"product-catalog-migrator/internal/importer"
	"product-catalog-migrator/internal/media"
	"product-catalog-migrator/internal/observability"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/taxonomy"
	"product-catalog-migrator/internal/translation"
)

const defaultAppName = "catalogctl"

var (
	// Global flags
	debug      bool
	outputJSON bool
	noColor    bool

	cfg    *config.Config
	logger zerolog.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   defaultAppName,
	Short: "Import, export and maintain a multilingual product catalog",
	Long: `catalogctl moves product records between JSON documents and the host content store.

Each import row is one product in one language. Rows are matched to existing records
by id, source id, slug or translation map, taxonomy terms are reconciled against
canonical labels, images are attached once, and language variants are linked as
translations of each other.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			// Not fatal: the environment may be set another way.
			fmt.Fprintln(os.Stderr, "INFO: .env file not found, relying on system environment variables.")
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.LogLevel
		if debug {
			level = "debug"
		}
		format := cfg.LogFormat
		if outputJSON {
			format = "json"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      format,
			ServiceName: defaultAppName,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log soft failures and sub-step details")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print reports as JSON and log as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored summaries")

	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newDeleteLangCmd())
	rootCmd.AddCommand(newNormalizeParentsCmd())
	rootCmd.AddCommand(newRestoreAttrsCmd())
	rootCmd.AddCommand(newSetMissingLangCmd())
	rootCmd.AddCommand(newFixLiPCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the collaborators shared by the commands.
type app struct {
	store      store.Storer
	pg         *store.PostgresStore // nil with the memory driver
	linking    translation.Capability
	cache      cache.Client
	reconciler *taxonomy.Reconciler
}

// openApp connects to the configured host store and resolves the linking capability once.
func openApp(ctx context.Context) (*app, error) {
	a := &app{}
	switch cfg.StoreDriver {
	case config.DriverMemory:
		m := store.NewMemoryStore()
		a.store = m
		a.linking = translation.Available(m)
		logger.Warn().Msg("using the in-memory store; nothing is persisted")
	default:
		db, err := sql.Open("postgres", cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		pg := store.NewPostgresStore(db)
		if err := pg.Ping(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		a.pg, a.store = pg, pg

		present, err := pg.HasTranslationTables(ctx)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("could not check for translation tables")
			a.linking = translation.Unavailable(err.Error())
		case !present:
			a.linking = translation.Unavailable("translation tables are not installed")
		default:
			a.linking = translation.Available(pg)
		}
	}
	if _, ok := a.linking.Linker(); !ok {
		logger.Warn().Str("reason", a.linking.Reason()).Msg("translation linking unavailable")
	}

	a.cache = cache.NewMemoryClient()
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using the in-process cache")
		} else {
			a.cache = rc
		}
	}

	labels, err := taxonomy.LoadLabels(cfg.Taxonomy.LabelsFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.reconciler = taxonomy.NewReconciler(a.store, a.linking, labels, logger)
	return a, nil
}

// Close releases the database pool and the cache.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing cache")
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing database")
		}
	}
}

func (a *app) taxonomies() importer.Taxonomies {
	return importer.Taxonomies{
		Category:  cfg.Taxonomy.Category,
		Attribute: cfg.Taxonomy.Attribute,
		Language:  cfg.Taxonomy.Language,
	}
}

// importDeps wires the orchestrator collaborators. progress may be nil.
func (a *app) importDeps(progress func(done, total int)) importer.Deps {
	fetcher := media.NewHTTPFetcher(media.FetcherConfig{
		Dir:            cfg.Media.Dir,
		MaxDimension:   cfg.Media.MaxDimension,
		JPEGQuality:    cfg.Media.JPEGQuality,
		RequestsPerSec: cfg.Media.RequestsPerSec,
		Burst:          cfg.Media.Burst,
		Timeout:        cfg.Media.Timeout,
	})
	return importer.Deps{
		Store:      a.store,
		Linking:    a.linking,
		Reconciler: a.reconciler,
		Media:      media.NewResolver(a.store, a.store, fetcher, a.cache, cfg.Media.PrimaryLanguage, logger),
		Taxonomies: a.taxonomies(),
		Hooks:      []importer.RefreshHook{importer.RecomputeHook(a.store), importer.CacheHook(a.cache)},
		Log:        logger,
		Progress:   progress,
	}
}
