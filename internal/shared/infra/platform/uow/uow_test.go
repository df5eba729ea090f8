package uow

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "uow.db")+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE audit (item_id TEXT NOT NULL, action TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

type itemRepo struct{ q Querier }

func newItemRepo(q Querier) *itemRepo { return &itemRepo{q: q} }

func (r *itemRepo) Save(ctx context.Context, id, name string) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, id, name)
	return err
}

func (r *itemRepo) Audit(ctx context.Context, id, action string) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO audit (item_id, action) VALUES (?, ?)`, id, action)
	return err
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.DomainEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, evt)
}

func TestWithTransaction_CommitsAllWrites(t *testing.T) {
	db := setupTestDB(t)
	u := New(db, nil, zap.NewNop())

	err := u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		repo, err := GetRepository(tx, newItemRepo)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, "i-1", "first"))
		return repo.Audit(ctx, "i-1", "created")
	})

	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db, "items"))
	assert.Equal(t, 1, count(t, db, "audit"))
	assert.Zero(t, db.Stats().InUse, "la conexión vuelve al pool tras el commit")
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	u := New(db, nil, zap.NewNop())
	boom := errors.New("simulated failure")

	err := u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		repo, err := GetRepository(tx, newItemRepo)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, "i-1", "first"))
		require.NoError(t, repo.Audit(ctx, "i-1", "created"))
		return boom
	})

	assert.Same(t, boom, err)
	assert.Zero(t, count(t, db, "items"))
	assert.Zero(t, count(t, db, "audit"))
	assert.Zero(t, db.Stats().InUse, "la conexión vuelve al pool tras el rollback")
}

func TestWithTransaction_SecondWriteFailsRollsBackFirst(t *testing.T) {
	db := setupTestDB(t)
	u := New(db, nil, zap.NewNop())

	err := u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		repo, _ := GetRepository(tx, newItemRepo)
		require.NoError(t, repo.Save(ctx, "i-1", "first"))
		return repo.Save(ctx, "i-1", "duplicate")
	})

	require.Error(t, err)
	assert.Zero(t, count(t, db, "items"))
}

func TestWithTransaction_PanicRollsBackAndRepanics(t *testing.T) {
	db := setupTestDB(t)
	u := New(db, nil, zap.NewNop())

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
			repo, _ := GetRepository(tx, newItemRepo)
			require.NoError(t, repo.Save(ctx, "i-1", "first"))
			panic("kaboom")
		})
	})

	assert.Zero(t, count(t, db, "items"))
	assert.Zero(t, db.Stats().InUse, "la conexión vuelve al pool tras el panic")

	// La conexión se liberó: otra transacción funciona.
	err := u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		repo, _ := GetRepository(tx, newItemRepo)
		return repo.Save(ctx, "i-2", "second")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db, "items"))
}

func TestWithTransaction_NestedFailsFast(t *testing.T) {
	db := setupTestDB(t)
	u := New(db, nil, zap.NewNop())

	var nestedErr error
	err := u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		nestedErr = u.WithTransaction(ctx, func(ctx context.Context, tx *Tx) error { return nil })
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, ErrNestedTransaction)
}

func TestWithTransaction_DifferentUnitsDoNotCountAsNested(t *testing.T) {
	db := setupTestDB(t)
	f := NewFactory(db, nil, zap.NewNop())
	outer, inner := f.New(), f.New()

	// Solo se comprueba que la segunda UoW no confunde el marcador de la primera.
	err := outer.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		_, nested := ctx.Value(txKey{inner}).(*Tx)
		assert.False(t, nested)
		return nil
	})
	require.NoError(t, err)
}

func TestGetRepository_WithoutActiveTransaction(t *testing.T) {
	_, err := GetRepository[*itemRepo](nil, newItemRepo)
	assert.ErrorIs(t, err, ErrNoActiveTransaction)

	db := setupTestDB(t)
	u := New(db, nil, zap.NewNop())

	var leaked *Tx
	require.NoError(t, u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		leaked = tx
		return nil
	}))

	_, err = GetRepository(leaked, newItemRepo)
	assert.ErrorIs(t, err, ErrNoActiveTransaction)
}

func TestTx_ClosedAfterTransaction(t *testing.T) {
	db := setupTestDB(t)
	u := New(db, nil, zap.NewNop())

	var leaked *Tx
	require.NoError(t, u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		leaked = tx
		return nil
	}))

	assert.False(t, leaked.Active())
	_, err := leaked.ExecContext(context.Background(), `INSERT INTO items (id, name) VALUES ('x', 'y')`)
	assert.ErrorIs(t, err, ErrTransactionClosed)
	_, err = leaked.QueryContext(context.Background(), `SELECT id FROM items`)
	assert.ErrorIs(t, err, ErrTransactionClosed)
	assert.ErrorIs(t, leaked.QueryRowContext(context.Background(), `SELECT 1`).Scan(new(int)), sql.ErrTxDone)
	assert.ErrorIs(t, leaked.PublishAfterCommit(events.New("x", nil)), ErrTransactionClosed)
	assert.Zero(t, count(t, db, "items"))
}

func TestWithTransaction_FreshTxPerCall(t *testing.T) {
	db := setupTestDB(t)
	u := New(db, nil, zap.NewNop())

	var first, second *Tx
	require.NoError(t, u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		first = tx
		return nil
	}))
	require.NoError(t, u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		second = tx
		return nil
	}))

	assert.NotSame(t, first, second)
}

func TestPublishAfterCommit(t *testing.T) {
	db := setupTestDB(t)
	pub := &recordingPublisher{}
	u := New(db, pub, zap.NewNop())

	err := u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		require.NoError(t, tx.PublishAfterCommit(events.New("item.created", nil)))
		assert.Empty(t, pub.got)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pub.got, 1)
	assert.Equal(t, "item.created", pub.got[0].Name())

	err = u.WithTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		require.NoError(t, tx.PublishAfterCommit(events.New("item.deleted", nil)))
		return errors.New("rollback")
	})
	require.Error(t, err)
	assert.Len(t, pub.got, 1)
}

func TestWithResult_ReturnsValue(t *testing.T) {
	db := setupTestDB(t)
	u := New(db, nil, zap.NewNop())

	n, err := WithResult(context.Background(), u, func(ctx context.Context, tx *Tx) (int, error) {
		repo, err := GetRepository(tx, newItemRepo)
		if err != nil {
			return 0, err
		}
		if err := repo.Save(ctx, "i-1", "first"); err != nil {
			return 0, err
		}
		var c int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&c)
		return c, err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = WithResult(context.Background(), u, func(ctx context.Context, tx *Tx) (int, error) {
		return 42, errors.New("nope")
	})
	assert.Error(t, err)
	assert.Zero(t, n)
}
