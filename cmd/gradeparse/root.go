package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/common"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/grading"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/metrics"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/parsing"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/repository"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configFile string
	v          *viper.Viper
	cfg        *common.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	db         *repository.DB
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"log-level":            "log.level",
	"log-format":           "log.format",
	"store-driver":         "store.driver",
	"store-dsn":            "store.dsn",
	"max-attempts":         "parsing.max_attempts",
	"confidence-threshold": "parsing.confidence_threshold",
	"budget":               "parsing.budget",
	"recovery":             "parsing.enable_recovery",
	"accept-partial":       "parsing.accept_partial",
	"workers":              "worker.workers",
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gradeparse",
		Short:         "Parse and grade LLM assessment responses against rubric schemas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "json", "log format: json or text")
	pf.String("store-driver", "sqlite", "run store driver: sqlite or postgres")
	pf.String("store-dsn", "", "run store DSN")
	pf.Int("max-attempts", 4, "maximum strategy attempts per response")
	pf.Float64("confidence-threshold", 0.3, "minimum recovery confidence for a PARTIAL result")
	pf.Duration("budget", 0, "wall-clock budget per response")
	pf.Bool("recovery", true, "enable field-pattern recovery")
	pf.Bool("accept-partial", true, "accept corrected or recovered payloads as PARTIAL")
	pf.Int("workers", 4, "batch worker count")

	root.AddCommand(
		newParseCommand(a),
		newBatchCommand(a),
		newWatchCommand(a),
		newSchemaCommand(a),
		newRunsCommand(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := common.NewViper(a.configFile)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		// unchanged flags must not shadow env or file values
		if f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	cfg, err := common.FromViper(v)
	if err != nil {
		return err
	}
	a.v, a.cfg = v, cfg
	a.logger = common.NewLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)
	a.registry = prometheus.NewRegistry()
	return nil
}

func (a *app) store(ctx context.Context) (*repository.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := repository.Open(ctx, a.cfg.Store, a.logger)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// service wires the grading service; persist false skips the store.
func (a *app) service(ctx context.Context, persist bool) (*grading.Service, error) {
	opts := []grading.Option{
		grading.WithLogger(a.logger),
		grading.WithMetrics(metrics.MustNewMetrics(a.registry)),
		grading.WithCacheSize(a.cfg.Cache.Engines),
	}
	if persist {
		db, err := a.store(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grading.WithRepository(repository.NewRunRepository(db, a.logger)))
	}
	return grading.NewService(a.cfg.Parsing, opts...)
}

// engine builds the engine from a rubric file or a fields file.
func (a *app) engine(svc *grading.Service, rubricPath, fieldsPath string) (*parsing.Engine, string, error) {
	switch {
	case rubricPath != "" && fieldsPath != "":
		return nil, "", errors.New("use either --rubric or --fields, not both")
	case rubricPath != "":
		r, err := schema.LoadRubricFile(rubricPath)
		if err != nil {
			return nil, "", err
		}
		return svc.Engine(r)
	case fieldsPath != "":
		d, err := schema.LoadFieldsFile(fieldsPath)
		if err != nil {
			return nil, "", err
		}
		e, err := svc.NewEngine(d)
		if err != nil {
			return nil, "", err
		}
		return e, descriptorKey(d), nil
	default:
		return nil, "", errors.New("one of --rubric or --fields is required")
	}
}

func descriptorKey(d *schema.Descriptor) string {
	b, _ := json.Marshal(d.JSONSchema())
	sum := sha256.Sum256(b)
	return "fields:" + hex.EncodeToString(sum[:])
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
