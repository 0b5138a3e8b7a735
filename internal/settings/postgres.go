package settings

import (
	"context"
	"embed"
	"path"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore persists strings, hashes and sets in three tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool and waits for the database to answer, retrying with
// exponential backoff.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open pool")
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies every embedded migration in filename order. Migrations are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(content)); err != nil {
			return errors.Wrapf(err, "migration %s failed", file)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_strings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", key)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_strings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	return errors.Wrapf(err, "set %s", key)
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, query := range []string{
			`DELETE FROM kv_strings WHERE key = $1`,
			`DELETE FROM kv_hashes WHERE key = $1`,
			`DELETE FROM kv_sets WHERE key = $1`,
		} {
			if _, err := tx.Exec(ctx, query, key); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrapf(err, "delete %s", key)
}

func (s *PostgresStore) HashSet(ctx context.Context, key, field, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_hashes (key, field, value, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (key, field) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, field, value)
	return errors.Wrapf(err, "hset %s %s", key, field)
}

func (s *PostgresStore) HashIncr(ctx context.Context, key, field string, delta int64) (int64, error) {
	var value int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO kv_hashes (key, field, value, updated_at) VALUES ($1, $2, $3::bigint::text, now())
		ON CONFLICT (key, field) DO UPDATE SET value = (kv_hashes.value::bigint + $3::bigint)::text, updated_at = now()
		RETURNING value::bigint`, key, field, delta).Scan(&value)
	return value, errors.Wrapf(err, "hincr %s %s", key, field)
}

func (s *PostgresStore) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_hashes WHERE key = $1 AND field = $2`, key, field).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "hget %s %s", key, field)
	}
	return value, true, nil
}

func (s *PostgresStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT field, value FROM kv_hashes WHERE key = $1`, key)
	if err != nil {
		return nil, errors.Wrapf(err, "hgetall %s", key)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, errors.Wrapf(err, "scan %s", key)
		}
		out[field] = value
	}
	return out, errors.Wrapf(rows.Err(), "hgetall %s", key)
}

func (s *PostgresStore) HashDelete(ctx context.Context, key, field string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kv_hashes WHERE key = $1 AND field = $2`, key, field)
	if err != nil {
		return false, errors.Wrapf(err, "hdel %s %s", key, field)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, member := range members {
			if _, err := tx.Exec(ctx, `INSERT INTO kv_sets (key, member) VALUES ($1, $2) ON CONFLICT DO NOTHING`, key, member); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrapf(err, "sadd %s", key)
}

func (s *PostgresStore) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_sets WHERE key = $1 AND member = ANY($2)`, key, members)
	return errors.Wrapf(err, "srem %s", key)
}

func (s *PostgresStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT member FROM kv_sets WHERE key = $1 ORDER BY member`, key)
	if err != nil {
		return nil, errors.Wrapf(err, "smembers %s", key)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return members, errors.Wrapf(err, "smembers %s", key)
}

func (s *PostgresStore) SetContains(ctx context.Context, key, member string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM kv_sets WHERE key = $1 AND member = $2)`, key, member).Scan(&exists)
	return exists, errors.Wrapf(err, "sismember %s", key)
}
