// Package postgres implements store.Store on PostgreSQL using pgx/v5 and
// a pgxpool connection pool. Schema migrations are embedded SQL files
// applied in filename order and tracked in backlog_migrations.
package postgres
