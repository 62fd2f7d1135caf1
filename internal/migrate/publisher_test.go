package migrate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecraft/pagecraft/internal/model"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type fakeMeta struct {
	models  map[string]*model.DataModel
	saveErr error
	saved   []*model.DataModel
	deleted []string
}

func (f *fakeMeta) Lookup(ctx context.Context, id string) (*model.DataModel, bool, error) {
	m, ok := f.models[id]
	return m.Clone(), ok, nil
}

func (f *fakeMeta) Save(ctx context.Context, m *model.DataModel) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, m.Clone())
	f.models[m.ID] = m.Clone()
	return nil
}

func (f *fakeMeta) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.models, id)
	return nil
}

type fakeCatalog map[string]bool

func (c fakeCatalog) TableExists(ctx context.Context, table string) (bool, error) {
	return c[table], nil
}

type fakeExec struct {
	plans []Plan
	err   error
	block chan struct{}
}

func (e *fakeExec) Execute(ctx context.Context, modelID string, plan Plan) (*Migration, error) {
	if e.block != nil {
		<-e.block
	}
	if e.err != nil {
		return nil, e.err
	}
	e.plans = append(e.plans, plan)
	return NewMigration(modelID, plan), nil
}

func publishedTasks() *model.DataModel {
	return &model.DataModel{ID: "m1", Name: "Tasks", TableName: "tasks", Fields: []model.Field{
		{ID: "f1", Name: "Title", Key: "title", Type: model.FieldText},
		{ID: "f2", Name: "Legacy", Key: "legacy", Type: model.FieldText},
	}}
}

func newTestPublisher(exec *fakeExec, meta *fakeMeta, catalog fakeCatalog) *Publisher {
	return NewPublisher(exec, meta, catalog, nil)
}

func TestPublisher_DryRun(t *testing.T) {
	meta := &fakeMeta{models: map[string]*model.DataModel{"m1": publishedTasks()}}
	exec := &fakeExec{}
	p := newTestPublisher(exec, meta, fakeCatalog{"tasks": true})

	draft := publishedTasks()
	draft.Fields = draft.Fields[:1]

	result, err := p.Publish(context.Background(), PublishRequest{Model: draft, DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.Destructive)
	assert.Equal(t, MessageDestructive, result.Message)
	assert.Equal(t, []string{`ALTER TABLE "tasks" DROP COLUMN "legacy";`}, result.Ops)
	assert.Empty(t, exec.plans)
	assert.Empty(t, meta.saved)
}

func TestPublisher_DestructiveNeedsConfirmation(t *testing.T) {
	meta := &fakeMeta{models: map[string]*model.DataModel{"m1": publishedTasks()}}
	exec := &fakeExec{}
	p := newTestPublisher(exec, meta, fakeCatalog{"tasks": true})

	draft := publishedTasks()
	draft.Fields = draft.Fields[:1]
	ctx := context.Background()

	_, err := p.Publish(ctx, PublishRequest{Model: draft})
	assert.ErrorIs(t, err, ErrDestructiveUnconfirmed)
	assert.Empty(t, exec.plans)

	result, err := p.Publish(ctx, PublishRequest{Model: draft, ConfirmDestructive: true})
	require.NoError(t, err)
	assert.True(t, result.Persisted)
	require.Len(t, exec.plans, 1)
	require.Len(t, meta.saved, 1)
	assert.Len(t, meta.saved[0].Fields, 1)
}

func TestPublisher_MissingTableIsCreated(t *testing.T) {
	meta := &fakeMeta{models: map[string]*model.DataModel{"m1": {ID: "m1", Name: "Tasks", TableName: "tasks"}}}
	exec := &fakeExec{}
	p := newTestPublisher(exec, meta, fakeCatalog{})

	result, err := p.Publish(context.Background(), PublishRequest{Model: publishedTasks()})
	require.NoError(t, err)
	require.Len(t, exec.plans, 1)
	assert.Equal(t, OpCreateTable, exec.plans[0].Ops[0].Kind)
	assert.False(t, result.Destructive)
	assert.True(t, result.Persisted)
}

func TestPublisher_MetadataOnlyAfterSuccessfulDDL(t *testing.T) {
	meta := &fakeMeta{models: map[string]*model.DataModel{}}
	exec := &fakeExec{err: errors.New(`type "money" does not exist`)}
	p := newTestPublisher(exec, meta, fakeCatalog{})

	_, err := p.Publish(context.Background(), PublishRequest{Model: publishedTasks()})
	require.Error(t, err)
	assert.Empty(t, meta.saved)
}

func TestPublisher_MetadataSaveFailure(t *testing.T) {
	meta := &fakeMeta{models: map[string]*model.DataModel{}, saveErr: errors.New("disk full")}
	p := newTestPublisher(&fakeExec{}, meta, fakeCatalog{})

	result, err := p.Publish(context.Background(), PublishRequest{Model: publishedTasks()})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Persisted)
	assert.NotNil(t, result.Migration)
}

func TestPublisher_RejectsInvalidModels(t *testing.T) {
	p := newTestPublisher(&fakeExec{}, &fakeMeta{models: map[string]*model.DataModel{}}, fakeCatalog{})
	ctx := context.Background()

	_, err := p.Publish(ctx, PublishRequest{})
	assert.ErrorIs(t, err, ErrInvalidModel)

	bad := publishedTasks()
	bad.TableName = "Bad Name"
	_, err = p.Publish(ctx, PublishRequest{Model: bad})
	var verrs *model.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

func TestPublisher_RejectsConcurrentPublish(t *testing.T) {
	exec := &fakeExec{block: make(chan struct{})}
	p := newTestPublisher(exec, &fakeMeta{models: map[string]*model.DataModel{}}, fakeCatalog{})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Publish(ctx, PublishRequest{Model: publishedTasks()})
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		_, busy := p.inflight["m1"]
		return busy
	}, timeout, tick)

	_, err := p.Publish(ctx, PublishRequest{Model: publishedTasks()})
	assert.ErrorIs(t, err, ErrPublishInProgress)

	close(exec.block)
	wg.Wait()

	// the guard is released once the first publish finished
	_, err = p.Publish(ctx, PublishRequest{Model: publishedTasks(), DryRun: true})
	assert.NoError(t, err)
}

func TestPublisher_DropModel(t *testing.T) {
	meta := &fakeMeta{models: map[string]*model.DataModel{"m1": publishedTasks()}}
	exec := &fakeExec{}
	p := newTestPublisher(exec, meta, fakeCatalog{"tasks": true})
	ctx := context.Background()

	dropped, err := p.DropModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "tasks", dropped.TableName)
	require.Len(t, exec.plans, 1)
	assert.Equal(t, []string{`DROP TABLE IF EXISTS "tasks" CASCADE;`}, exec.plans[0].Statements())
	assert.Equal(t, []string{"m1"}, meta.deleted)

	_, err = p.DropModel(ctx, "m1")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestPublisher_ReservedTables(t *testing.T) {
	meta := &fakeMeta{models: map[string]*model.DataModel{}}
	exec := &fakeExec{}
	p := newTestPublisher(exec, meta, fakeCatalog{"pages": true})
	ctx := context.Background()

	hijack := &model.DataModel{ID: "evil", Name: "Evil", TableName: "pages"}
	_, err := p.Publish(ctx, PublishRequest{Model: hijack, ConfirmDestructive: true})
	var verrs *model.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.NotEmpty(t, verrs.For("table_name"))
	assert.Empty(t, exec.plans)
	assert.Empty(t, meta.saved)

	// metadata saved before reserved names were enforced is removed without touching the table
	meta.models["evil"] = hijack
	_, err = p.DropModel(ctx, "evil")
	require.NoError(t, err)
	assert.Empty(t, exec.plans)
	assert.Equal(t, []string{"evil"}, meta.deleted)
}

func TestPublisher_TableNameIsImmutable(t *testing.T) {
	published := &model.DataModel{ID: "m2", Name: "Items", TableName: "b_items", Fields: []model.Field{
		{ID: "fx", Name: "X", Key: "x", Type: model.FieldText},
	}}
	meta := &fakeMeta{models: map[string]*model.DataModel{"m2": published}}
	exec := &fakeExec{}
	p := newTestPublisher(exec, meta, fakeCatalog{"b_items": true, "orders": true})
	ctx := context.Background()

	moved := &model.DataModel{ID: "m2", Name: "Items", TableName: "orders"}
	for _, dryRun := range []bool{true, false} {
		result, err := p.Publish(ctx, PublishRequest{Model: moved, DryRun: dryRun, ConfirmDestructive: true})
		assert.Nil(t, result)
		var verrs *model.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Contains(t, verrs.For("table_name")[0], `"b_items"`)
	}
	assert.Empty(t, exec.plans)
	assert.Empty(t, meta.saved)

	_, err := p.Plan(ctx, moved)
	assert.Error(t, err)
}
