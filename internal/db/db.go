// Package db provides short-lived PostgreSQL connections for control-plane
// queries against both replicated databases. Connections are opened per
// operation and closed immediately; the orchestrator's query volume is tiny
// and a held connection to the remote side would just be another thing to
// reconnect after network blips.
package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/syncbridge/syncbridge/internal/config"
)

// Querier is the query surface the control plane needs. *pgx.Conn satisfies
// it; tests substitute fakes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConnString builds a pgx connection string from a profile and a resolved
// password.
func ConnString(p config.SyncProfile, password string) string {
	timeout := p.ConnectTimeout
	if timeout <= 0 {
		timeout = 10
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d application_name=%s",
		p.Host, p.Port, p.Database, p.User,
		quoteConnValue(password), p.SSLMode, timeout, p.ApplicationName,
	)
}

// quoteConnValue escapes a value for keyword/value connection strings.
func quoteConnValue(v string) string {
	if v == "" {
		return "''"
	}
	needsQuote := false
	for _, r := range v {
		if r == ' ' || r == '\'' || r == '\\' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return v
	}
	escaped := ""
	for _, r := range v {
		if r == '\'' || r == '\\' {
			escaped += "\\"
		}
		escaped += string(r)
	}
	return "'" + escaped + "'"
}

// Connect opens a connection to one side of the replicated pair.
func Connect(ctx context.Context, p config.SyncProfile, password string) (*pgx.Conn, error) {
	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := pgx.Connect(connCtx, ConnString(p, password))
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s:%d/%s: %w", p.Host, p.Port, p.Database, err)
	}
	return conn, nil
}

// URL renders the profile as a postgres:// URL for display and diagnostics.
// The password is omitted.
func URL(p config.SyncProfile) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.User(p.User),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	q := u.Query()
	q.Set("sslmode", p.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// TableExists probes the catalog for a relation. A null to_regclass result
// is a clean "no", not an error; only connectivity or permission problems
// surface as errors.
func TableExists(ctx context.Context, q Querier, qualified string) (bool, error) {
	var reg *string
	if err := q.QueryRow(ctx, "SELECT to_regclass($1)::text", qualified).Scan(&reg); err != nil {
		return false, fmt.Errorf("error probing %s: %w", qualified, err)
	}
	return reg != nil, nil
}

// TablesExist reports whether every named relation resolves.
func TablesExist(ctx context.Context, q Querier, qualified ...string) (bool, error) {
	for _, name := range qualified {
		ok, err := TableExists(ctx, q, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ListPublicTables returns the application's base tables in the public
// schema, excluding the replication engine's own tables and other managed
// prefixes.
func ListPublicTables(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT tablename
		  FROM pg_tables
		 WHERE schemaname = 'public'
		   AND tablename NOT LIKE 'sym\_%'
		   AND tablename NOT LIKE 'pg\_%'
		   AND tablename NOT LIKE 'sync\_%'
		 ORDER BY tablename`)
	if err != nil {
		return nil, fmt.Errorf("error listing public tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating public tables: %w", err)
	}
	return tables, nil
}

// ColumnExists reports whether a column is present on a table, used to
// adapt statements to the installed engine schema version.
func ColumnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			 WHERE table_schema = 'public'
			   AND table_name = $1
			   AND column_name = $2
		)`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error probing column %s.%s: %w", table, column, err)
	}
	return exists, nil
}
