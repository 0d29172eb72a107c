package persist

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

// SQLKV stores values in the kv table created by db.Open.
type SQLKV struct {
	db     *sql.DB
	driver db.Driver
}

func NewSQLKV(conn *sql.DB, driver db.Driver) *SQLKV {
	return &SQLKV{db: conn, driver: driver}
}

// OpenSQLKV opens the database and ensures the schema.
func OpenSQLKV(ctx context.Context, driver db.Driver, dsn string) (*SQLKV, error) {
	conn, err := db.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLKV(conn, driver), nil
}

func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

func (s *SQLKV) Set(ctx context.Context, key string, value []byte) error {
	return put(ctx, s.db, key, value)
}

func (s *SQLKV) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE k=$1`, key)
	return err
}

func (s *SQLKV) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	q := `SELECT v FROM kv WHERE k=$1`
	if s.driver == db.DriverPostgres {
		q += ` FOR UPDATE`
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var old []byte
		var v string
		switch err := tx.QueryRowContext(ctx, q, key).Scan(&v); {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			old = []byte(v)
		}
		next, err := fn(old)
		if err != nil {
			return err
		}
		return put(ctx, tx, key, next)
	})
}

func (s *SQLKV) Close() error { return s.db.Close() }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, e execer, key string, value []byte) error {
	_, err := e.ExecContext(ctx, `INSERT INTO kv (k,v,updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (k) DO UPDATE SET v=EXCLUDED.v, updated_at=EXCLUDED.updated_at`,
		key, string(value), time.Now().Unix())
	return err
}
