// Package testdb opens the Postgres database used by repository integration tests.
// Tests are skipped unless TEST_DATABASE_URL is set.
package testdb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"jobtracker/migrations"
)

const EnvURL = "TEST_DATABASE_URL"

// 多个测试包并行执行时串行化迁移
const migrateLockID = 72_310_001

// Open migrates the test database to the latest version and returns a pool
// closed at the end of the test.
func Open(t testing.TB, dsn string) *pgxpool.Pool {
	t.Helper()
	if dsn == "" {
		t.Skipf("%s not set, skipping Postgres test", EnvURL)
	}
	ctx := context.Background()

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer sqlDB.Close()

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatalf("acquire migration conn: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrateLockID); err != nil {
		conn.Close()
		t.Fatalf("migration lock: %v", err)
	}
	merr := migrations.Run(sqlDB)
	_, _ = conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, migrateLockID)
	conn.Close()
	if merr != nil {
		t.Fatalf("migrate: %v", merr)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// CreateUser inserts a throwaway user. Its rows are removed by cascade on cleanup.
func CreateUser(t testing.TB, pool *pgxpool.Pool) int {
	t.Helper()
	var id int
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, password_hash) VALUES ($1, 'x') RETURNING id`,
		uuid.NewString()+"@test.local",
	).Scan(&id)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}
