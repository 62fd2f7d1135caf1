package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/model"
)

var (
	// ErrPublishInProgress is returned when a model is already being published
	ErrPublishInProgress = errors.New("a publish of this model is already in progress")
	// ErrDestructiveUnconfirmed is returned for destructive plans published without confirmation
	ErrDestructiveUnconfirmed = errors.New("destructive changes require confirmation")
	// ErrModelNotFound is returned when no metadata exists for a model
	ErrModelNotFound = errors.New("model not found")
	// ErrInvalidModel is returned for a request without a model
	ErrInvalidModel = errors.New("invalid model data")
)

// Messages returned with dry runs
const (
	MessageSafe        = "Safe to update."
	MessageDestructive = "Warning: This update includes destructive changes (DROP COLUMN)."
)

// Metadata stores the last published version of every model
type Metadata interface {
	Lookup(ctx context.Context, id string) (*model.DataModel, bool, error)
	Save(ctx context.Context, m *model.DataModel) error
	Delete(ctx context.Context, id string) error
}

// Catalog reports which physical tables exist
type Catalog interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

// Executor applies plans; implemented by Runner
type Executor interface {
	Execute(ctx context.Context, modelID string, plan Plan) (*Migration, error)
}

// PublishRequest asks for a draft model to be published
type PublishRequest struct {
	Model              *model.DataModel `json:"model"`
	DryRun             bool             `json:"dryRun"`
	ConfirmDestructive bool             `json:"confirmDestructive"`
}

// PublishResult describes what a publish did, or would do for a dry run
type PublishResult struct {
	Success     bool       `json:"success"`
	Ops         []string   `json:"ops"`
	Destructive bool       `json:"destructive"`
	Message     string     `json:"message,omitempty"`
	Persisted   bool       `json:"persisted"`
	Migration   *Migration `json:"migration,omitempty"`
	Plan        Plan       `json:"-"`
}

// Publisher diffs draft models against their published version, applies the
// DDL and then records the new metadata
type Publisher struct {
	exec     Executor
	meta     Metadata
	catalog  Catalog
	logger   *zap.Logger
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewPublisher creates a publisher
func NewPublisher(exec Executor, meta Metadata, catalog Catalog, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		exec:     exec,
		meta:     meta,
		catalog:  catalog,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

func (p *Publisher) acquire(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[id]; busy {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Publisher) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

// Plan computes the plan for a draft without executing anything. A model
// whose physical table is missing is planned as a full create.
func (p *Publisher) Plan(ctx context.Context, next *model.DataModel) (Plan, error) {
	if next == nil {
		return Plan{}, ErrInvalidModel
	}
	if err := model.ValidateModel(next); err != nil {
		return Plan{}, err
	}

	old, found, err := p.meta.Lookup(ctx, next.ID)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to load published model: %w", err)
	}
	if !found {
		old = nil
	}
	if old != nil && old.TableName != next.TableName {
		errs := model.NewValidationErrors()
		errs.Add("table_name", fmt.Sprintf("Table name cannot change after publishing (published as %q).", old.TableName))
		return Plan{}, errs
	}

	exists, err := p.catalog.TableExists(ctx, next.TableName)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to check table %s: %w", next.TableName, err)
	}
	if !exists {
		old = nil
	}

	return Diff(next, old), nil
}

// Publish runs the publish workflow for one model. Only one publish per model
// may run at a time. Metadata is persisted only after the DDL committed.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.Model == nil || req.Model.ID == "" {
		return nil, ErrInvalidModel
	}
	id := req.Model.ID
	if !p.acquire(id) {
		return nil, ErrPublishInProgress
	}
	defer p.release(id)

	plan, err := p.Plan(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{
		Success:     true,
		Ops:         plan.Statements(),
		Destructive: plan.Destructive,
		Plan:        plan,
	}

	if req.DryRun {
		result.Message = MessageSafe
		if plan.Destructive {
			result.Message = MessageDestructive
		}
		return result, nil
	}

	if plan.Destructive && !req.ConfirmDestructive {
		result.Success = false
		result.Message = MessageDestructive
		return result, ErrDestructiveUnconfirmed
	}

	migration, err := p.exec.Execute(ctx, id, plan)
	if err != nil {
		p.logger.Error("publish failed",
			zap.String("model", id),
			zap.String("table", plan.Table),
			zap.Error(err),
		)
		return nil, err
	}
	result.Migration = migration

	if err := p.meta.Save(ctx, req.Model); err != nil {
		p.logger.Error("schema applied but metadata not saved",
			zap.String("model", id),
			zap.Error(err),
		)
		result.Success = false
		return result, fmt.Errorf("failed to save model metadata: %w", err)
	}
	result.Persisted = true

	p.logger.Info("model published",
		zap.String("model", id),
		zap.String("table", plan.Table),
		zap.Int("statements", len(plan.Ops)),
	)
	return result, nil
}

// DropModel drops the table of a model and then deletes its metadata
func (p *Publisher) DropModel(ctx context.Context, id string) (*model.DataModel, error) {
	if !p.acquire(id) {
		return nil, ErrPublishInProgress
	}
	defer p.release(id)

	m, found, err := p.meta.Lookup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}

	if model.ReservedTable(m.TableName) {
		p.logger.Warn("model points at a reserved table; only its metadata is deleted",
			zap.String("model", id), zap.String("table", m.TableName))
	} else if _, err := p.exec.Execute(ctx, id, DropTable(m.TableName)); err != nil {
		return nil, err
	}
	if err := p.meta.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to delete model metadata: %w", err)
	}

	p.logger.Info("model dropped", zap.String("model", id), zap.String("table", m.TableName))
	return m, nil
}
