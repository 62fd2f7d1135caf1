package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/cli/config"
	"github.com/pagecraft/pagecraft/internal/cli/ui"
	"github.com/pagecraft/pagecraft/internal/logging"
	"github.com/pagecraft/pagecraft/internal/migrate"
	"github.com/pagecraft/pagecraft/internal/model"
	"github.com/pagecraft/pagecraft/internal/store"
)

// environment is what every command starts from: validated config, a logger
// and a printer bound to the command's output
type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	printer *ui.Printer
}

func loadEnvironment(cmd *cobra.Command, flags *globalFlags) (*environment, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	return &environment{
		cfg:     cfg,
		logger:  logger,
		printer: ui.NewPrinter(cmd.OutOrStdout(), color.NoColor),
	}, nil
}

// stores holds the two connection pools and the repositories over them. The
// data pool holds user tables; the metadata pool holds pages and models and
// may be the same database.
type stores struct {
	data       *store.DB
	meta       *store.DB
	pages      *store.Pages
	models     *store.Models
	relational *store.Relational
	runner     *migrate.Runner
	publisher  *migrate.Publisher
}

func openStores(ctx context.Context, env *environment) (*stores, error) {
	if err := env.cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	data, err := store.Open(env.cfg.Database.Driver, env.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := data.Ping(ctx); err != nil {
		data.Close()
		return nil, err
	}

	meta := data
	if env.cfg.Metadata.Driver != env.cfg.Database.Driver || env.cfg.Metadata.URL != env.cfg.Database.URL {
		meta, err = store.Open(env.cfg.Metadata.Driver, env.cfg.Metadata.URL)
		if err != nil {
			data.Close()
			return nil, err
		}
		if err := meta.Ping(ctx); err != nil {
			data.Close()
			meta.Close()
			return nil, err
		}
	}

	s := &stores{
		data:       data,
		meta:       meta,
		pages:      store.NewPages(meta),
		models:     store.NewModels(meta),
		relational: store.NewRelational(data),
		runner:     migrate.NewRunner(data.DB, env.logger.Named("migrate")),
	}
	s.publisher = migrate.NewPublisher(s.runner, s.models, s.relational, env.logger.Named("publish"))
	return s, nil
}

// initialize creates the metadata tables and the migration history table
func (s *stores) initialize(ctx context.Context) error {
	if err := store.Bootstrap(ctx, s.meta); err != nil {
		return err
	}
	if err := s.runner.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration history: %w", err)
	}
	return nil
}

func (s *stores) Close() error {
	err := s.data.Close()
	if s.meta != s.data {
		err = errors.Join(err, s.meta.Close())
	}
	return err
}

// modelBackend is what the model commands need from the stores
type modelBackend interface {
	List(ctx context.Context) ([]*model.DataModel, error)
	Lookup(ctx context.Context, id string) (*model.DataModel, bool, error)
	Plan(ctx context.Context, next *model.DataModel) (migrate.Plan, error)
	Publish(ctx context.Context, req migrate.PublishRequest) (*migrate.PublishResult, error)
	History(ctx context.Context, modelID string) ([]*migrate.Migration, error)
	Close() error
}

type storeBackend struct {
	*stores
}

func (b storeBackend) List(ctx context.Context) ([]*model.DataModel, error) {
	return b.models.List(ctx)
}

func (b storeBackend) Lookup(ctx context.Context, id string) (*model.DataModel, bool, error) {
	return b.models.Lookup(ctx, id)
}

func (b storeBackend) Plan(ctx context.Context, next *model.DataModel) (migrate.Plan, error) {
	return b.publisher.Plan(ctx, next)
}

func (b storeBackend) Publish(ctx context.Context, req migrate.PublishRequest) (*migrate.PublishResult, error) {
	return b.publisher.Publish(ctx, req)
}

func (b storeBackend) History(ctx context.Context, modelID string) ([]*migrate.Migration, error) {
	return b.runner.Tracker().History(ctx, modelID)
}

// openModelBackend is replaced in tests
var openModelBackend = func(ctx context.Context, env *environment) (modelBackend, error) {
	s, err := openStores(ctx, env)
	if err != nil {
		return nil, err
	}
	return storeBackend{s}, nil
}
