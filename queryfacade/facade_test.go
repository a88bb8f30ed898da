package queryfacade

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syncgrove/core/engine"
)

// singleConnProvider hands out the same *sql.Conn for every tag and
// readOnly value; it exists to exercise the facade's acquire/release and
// column-selection logic without a real multi-connection host driver.
type singleConnProvider struct {
	conn *sql.Conn
}

func (p *singleConnProvider) Acquire(ctx context.Context, tag string, readOnly bool) (*sql.Conn, error) {
	return p.conn, nil
}

func (p *singleConnProvider) Release(tag string, conn *sql.Conn) {}

type memIdentityCache struct {
	mu     sync.Mutex
	cached map[string]bool
}

func newMemIdentityCache() *memIdentityCache {
	return &memIdentityCache{cached: make(map[string]bool)}
}

func (c *memIdentityCache) CheckAndMark(table, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := table + "\x00" + id
	was := c.cached[key]
	c.cached[key] = true
	return was
}

func openFacadeTestDB(t *testing.T) (*sql.DB, *sql.Conn) {
	t.Helper()
	db, err := engine.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = conn.ExecContext(context.Background(), `CREATE TABLE tasks (id TEXT PRIMARY KEY, name TEXT, rank INTEGER)`)
	require.NoError(t, err)
	_, err = conn.ExecContext(context.Background(),
		`INSERT INTO tasks (id, name, rank) VALUES ('t1','Alpha',1), ('t2','Beta',2)`)
	require.NoError(t, err)
	return db, conn
}

func TestExecSQLSelectReturnsRows(t *testing.T) {
	_, conn := openFacadeTestDB(t)
	f := New(Options{Connections: &singleConnProvider{conn: conn}})

	rows, err := f.ExecSQL(context.Background(), "tag1", "SELECT id, name FROM tasks ORDER BY id", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "t1", rows[0]["id"])
	require.Equal(t, "Alpha", rows[0]["name"])
}

func TestExecSQLBindsPositionalArgs(t *testing.T) {
	_, conn := openFacadeTestDB(t)
	f := New(Options{Connections: &singleConnProvider{conn: conn}})

	rows, err := f.ExecSQL(context.Background(), "tag1", "SELECT name FROM tasks WHERE id = ?", []interface{}{"t2"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Beta", rows[0]["name"])
}

func TestExecSQLWriteStatement(t *testing.T) {
	_, conn := openFacadeTestDB(t)
	f := New(Options{Connections: &singleConnProvider{conn: conn}})

	_, err := f.ExecSQL(context.Background(), "tag1", "UPDATE tasks SET rank = rank + 1 WHERE id = ?", []interface{}{"t1"})
	require.NoError(t, err)
	rows, err := f.ExecSQL(context.Background(), "tag1", "SELECT rank FROM tasks WHERE id = 't1'", nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), rows[0]["rank"])
}

func TestFindByTableRequiresIDFirstColumn(t *testing.T) {
	_, conn := openFacadeTestDB(t)
	f := New(Options{Connections: &singleConnProvider{conn: conn}, Identity: newMemIdentityCache()})

	_, err := f.FindByTable(context.Background(), "tag1", "tasks", "SELECT name, id FROM tasks", nil)
	require.ErrorIs(t, err, ErrMissingIDColumn)
}

func TestFindByTableShortCircuitsCachedRows(t *testing.T) {
	_, conn := openFacadeTestDB(t)
	cache := newMemIdentityCache()
	f := New(Options{Connections: &singleConnProvider{conn: conn}, Identity: cache})

	first, err := f.FindByTable(context.Background(), "tag1", "tasks", "SELECT id, name, rank FROM tasks ORDER BY id", nil)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "Alpha", first[0]["name"])

	second, err := f.FindByTable(context.Background(), "tag1", "tasks", "SELECT id, name, rank FROM tasks ORDER BY id", nil)
	require.NoError(t, err)
	for _, row := range second {
		require.Len(t, row, 1, "expected id-only rows on second pass")
		_, ok := row["id"]
		require.True(t, ok, "expected id key in row %v", row)
	}
}
