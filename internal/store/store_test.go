package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecraft/pagecraft/internal/model"
	"github.com/pagecraft/pagecraft/internal/page"
)

const ts = "2024-05-01T12:00:00Z"

func newMock(t *testing.T, dialect Dialect) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(db, dialect), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestDialect(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)",
		DialectPostgres.Rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))
	assert.Equal(t, "a = ?", DialectSQLite.Rebind("a = ?"))

	d, err := DialectFor("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)
	_, err = DialectFor("mysql")
	assert.Error(t, err)
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	assert.Error(t, err)
	_, err = Open("pgx", "")
	assert.Error(t, err)
}

func TestPages_GetAcceptsLegacySchema(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	legacy := `{"root":{"id":"root","type":"Container","parentId":null,"children":["Text_1"],"props":{},"style":{}},
		"Text_1":{"id":"Text_1","type":"Text","parentId":"root","children":[],"props":{"content":"Hi"},"style":{}}}`

	mock.ExpectQuery(q("FROM pages WHERE id = $1")).WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "description", "slug", "schema", "created_at", "updated_at"}).
			AddRow("p1", "u1", "Home", "", "home", legacy, ts, ts))

	p, err := NewPages(db).Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "root", p.Schema.RootID)
	assert.Equal(t, []string{"Text_1"}, p.Schema.Root().Children)
	assert.Equal(t, 2024, p.CreatedAt.Year())
}

func TestPages_GetNotFound(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	mock.ExpectQuery(q("FROM pages WHERE id = $1")).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewPages(db).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPages_Create(t *testing.T) {
	db, mock := newMock(t, DialectSQLite)
	mock.ExpectExec(q("INSERT INTO pages")).
		WithArgs(sqlmock.AnyArg(), "u1", "Sales Report", "", "sales_report", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	p := &Page{UserID: "u1", Name: "Sales Report"}
	require.NoError(t, NewPages(db).Create(context.Background(), p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, page.DefaultRootID, p.Schema.RootID)
}

func TestPages_SaveSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the wrapped format", func(t *testing.T) {
		db, mock := newMock(t, DialectPostgres)
		mock.ExpectExec(q("UPDATE pages SET schema = $1, updated_at = $2 WHERE id = $3")).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, NewPages(db).SaveSchema(ctx, "p1", page.NewDocument()))
	})

	t.Run("missing page", func(t *testing.T) {
		db, mock := newMock(t, DialectPostgres)
		mock.ExpectExec(q("UPDATE pages")).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, NewPages(db).SaveSchema(ctx, "p1", page.NewDocument()), ErrNotFound)
	})

	t.Run("invalid document is not written", func(t *testing.T) {
		db, _ := newMock(t, DialectPostgres)
		doc := page.NewDocument()
		doc.Root().Children = append(doc.Root().Children, "ghost")
		assert.ErrorIs(t, NewPages(db).SaveSchema(ctx, "p1", doc), page.ErrInvalidDocument)
	})
}

func TestModels_SaveSyncsFieldsInOneTransaction(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	m := &model.DataModel{ID: "m1", Name: "Tasks", TableName: "tasks", Fields: []model.Field{
		{ID: "f1", Name: "Title", Key: "title", Type: model.FieldText, Validation: &model.Validation{Required: true}},
		{ID: "f2", Name: "Done", Key: "done", Type: model.FieldBoolean},
	}}

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO _sys_models")).
		WithArgs("m1", "Tasks", "", "tasks", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM _sys_fields WHERE model_id = $1 AND id NOT IN ($2, $3)")).
		WithArgs("m1", "f1", "f2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO _sys_fields")).
		WithArgs("f1", "m1", "Title", "title", "text", "", 0, `{"validation":{"required":true}}`, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO _sys_fields")).
		WithArgs("f2", "m1", "Done", "done", "boolean", "", 0, `{}`, 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewModels(db).Save(context.Background(), m))
	assert.NotNil(t, m.UpdatedAt)
}

func TestModels_SaveRollsBackOnFieldFailure(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	m := &model.DataModel{ID: "m1", Name: "Tasks", TableName: "tasks"}

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO _sys_models")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM _sys_fields WHERE model_id = $1")).WithArgs("m1").
		WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	assert.Error(t, NewModels(db).Save(context.Background(), m))
}

func TestModels_Lookup(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)

	mock.ExpectQuery(q("FROM _sys_models WHERE id = $1")).WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "table_name", "created_at", "updated_at"}).
			AddRow("m1", "Tasks", "", "tasks", ts, ts))
	mock.ExpectQuery(q("FROM _sys_fields WHERE model_id = $1 ORDER BY position")).WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "model_id", "name", "key", "type", "description", "is_system", "config"}).
			AddRow("f1", "m1", "Kind", "kind", "select", "", int64(0), `{"options":["a","b"],"validation":{"required":true}}`))

	m, found, err := NewModels(db).Lookup(context.Background(), "m1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, m.Fields, 1)
	assert.Equal(t, []string{"a", "b"}, m.Fields[0].Options)
	assert.True(t, m.Fields[0].Required())
}

func TestModels_GetMissing(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	mock.ExpectQuery(q("FROM _sys_models WHERE id = $1")).WithArgs("m9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "table_name", "created_at", "updated_at"}))

	_, err := NewModels(db).Get(context.Background(), "m9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelational_Insert(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	mock.ExpectQuery(q(`INSERT INTO "contacts" ("email", "tags") VALUES ($1, $2) RETURNING *`)).
		WithArgs("a@b.c", `["x"]`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "tags"}).AddRow("r1", "a@b.c", []byte(`["x"]`)))

	row, err := NewRelational(db).Insert(context.Background(), "contacts", page.Map{
		"email": page.String("a@b.c"),
		"tags":  page.List(page.String("x")),
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", row.Get("id").Text())
}

func TestRelational_RejectsBadIdentifiers(t *testing.T) {
	db, _ := newMock(t, DialectPostgres)
	r := NewRelational(db)
	ctx := context.Background()

	_, err := r.Rows(ctx, `contacts"; DROP TABLE pages; --`)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = r.Insert(ctx, "contacts", page.Map{"bad key": page.String("x")})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = r.Update(ctx, "contacts", "r1", page.Map{"id": page.String("x")})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestRelational_RejectsMetadataTables(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	r := NewRelational(db)
	ctx := context.Background()

	for _, table := range []string{"pages", "_sys_models", "_sys_fields", "_sys_migrations"} {
		_, err := r.Rows(ctx, table)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, table)
		_, err = r.Insert(ctx, table, page.Map{"name": page.String("x")})
		assert.ErrorIs(t, err, ErrInvalidIdentifier, table)
		_, err = r.Update(ctx, table, "r1", page.Map{"name": page.String("x")})
		assert.ErrorIs(t, err, ErrInvalidIdentifier, table)
		assert.ErrorIs(t, r.Delete(ctx, table, "r1"), ErrInvalidIdentifier, table)
		_, err = r.Columns(ctx, table)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, table)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelational_UpdateMissingRow(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	mock.ExpectQuery(q(`UPDATE "contacts" SET "email" = $1 WHERE id = $2 RETURNING *`)).
		WithArgs("x@y.z", "r9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

	_, err := NewRelational(db).Update(context.Background(), "contacts", "r9", page.Map{"email": page.String("x@y.z")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelational_TableExists(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	mock.ExpectQuery(q(`SELECT 1 FROM "tasks" LIMIT 1`)).WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(q(`SELECT 1 FROM "ghosts" LIMIT 1`)).WillReturnError(&pgconn.PgError{Code: "42P01"})

	r := NewRelational(db)
	ok, err := r.TableExists(context.Background(), "tasks")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TableExists(context.Background(), "ghosts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRelational_TablesSkipsMetadata(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	mock.ExpectQuery(q("FROM information_schema.tables")).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("_sys_fields").AddRow("contacts").AddRow("pages").AddRow("tasks"))

	tables, err := NewRelational(db).Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"contacts", "tasks"}, tables)
}

func TestRelational_Columns(t *testing.T) {
	db, mock := newMock(t, DialectPostgres)
	mock.ExpectQuery(q("FROM information_schema.columns")).WithArgs("tasks").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("id", "uuid", "NO").AddRow("title", "text", "YES"))

	cols, err := NewRelational(db).Columns(context.Background(), "tasks")
	require.NoError(t, err)
	assert.Equal(t, []Column{{"id", "uuid", "NO"}, {"title", "text", "YES"}}, cols)
}
