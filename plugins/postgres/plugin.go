// Package postgres provides PostgreSQL-backed storage and query actions.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/appsemble/apprunner/runtime/plugin"
)

type Config struct {
	ConnectionString  string `yaml:"connectionString" validate:"required,dsn"`
	Table             string `yaml:"table" default:"apprunner_storage" validate:"required"`
	Namespace         string `yaml:"namespace" default:"default"`
	MaxOpenConns      int    `yaml:"maxOpenConns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `yaml:"maxIdleConns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `yaml:"connMaxLifetimeMs" default:"300000" validate:"gte=0"`
}

// PostgresPlugin stores storage.* values as JSONB rows and exposes the
// postgres.query, postgres.row and postgres.exec actions.
type PostgresPlugin struct {
	Config Config
	db     *sql.DB
}

var _ plugin.Storage = (*PostgresPlugin)(nil)

// Initialize opens the connection pool and creates the storage table.
func (p *PostgresPlugin) Initialize(ctx context.Context) error {
	slog.InfoContext(ctx, "Initializing postgres plugin",
		"connection", maskConnectionString(p.Config.ConnectionString),
		"max_open_conns", p.Config.MaxOpenConns,
		"table", p.Config.Table)

	db, err := sql.Open("postgres", p.Config.ConnectionString)
	if err != nil {
		return fmt.Errorf("postgres: failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(p.Config.MaxOpenConns)
	db.SetMaxIdleConns(p.Config.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(p.Config.ConnMaxLifetimeMs) * time.Millisecond)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, p.createTableSQL()); err != nil {
		db.Close()
		return fmt.Errorf("postgres: failed to create storage table: %w", err)
	}

	p.db = db
	return nil
}

func (p *PostgresPlugin) Shutdown(ctx context.Context) error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *PostgresPlugin) table() string {
	return pq.QuoteIdentifier(p.Config.Table)
}

func (p *PostgresPlugin) createTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`, p.table())
}

func (p *PostgresPlugin) conn() (*sql.DB, error) {
	if p.db == nil {
		return nil, plugin.NotInitialized("postgres")
	}
	return p.db, nil
}

// Storage

func (p *PostgresPlugin) Get(ctx context.Context, key string) (any, bool, error) {
	db, err := p.conn()
	if err != nil {
		return nil, false, err
	}

	var raw []byte
	err = db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE namespace = $1 AND key = $2", p.table()),
		p.Config.Namespace, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classifyError("storage.read", err)
	}
	if raw == nil {
		return nil, true, nil
	}

	v, err := plugin.DecodeJSON(raw)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: corrupt value for %q: %w", key, err)
	}
	return v, true, nil
}

func (p *PostgresPlugin) Set(ctx context.Context, key string, value any) error {
	db, err := p.conn()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("postgres: value for %q is not JSON serializable: %w", key, err)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (namespace, key, value) VALUES ($1, $2, $3)
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, p.table()),
		p.Config.Namespace, key, string(raw))
	if err != nil {
		return classifyError("storage.write", err)
	}
	return nil
}

func (p *PostgresPlugin) Remove(ctx context.Context, key string) error {
	db, err := p.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND key = $2", p.table()),
		p.Config.Namespace, key)
	if err != nil {
		return classifyError("storage.delete", err)
	}
	return nil
}

func (p *PostgresPlugin) Clear(ctx context.Context) error {
	db, err := p.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE namespace = $1", p.table()), p.Config.Namespace)
	if err != nil {
		return classifyError("storage.clear", err)
	}
	return nil
}

// Actions

// Query runs a SELECT and resolves with all rows, columns in select order.
//
//	type: postgres.query
//	query: SELECT id, name FROM tickets WHERE status = $1
//	params: [{prop: status}]
func (p *PostgresPlugin) Query(ctx context.Context, args map[string]any, data any) (any, error) {
	db, query, params, err := p.statement(args)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, classifyError("postgres.query", err)
	}
	defer rows.Close()

	out := []any{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres.query: failed to scan row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("postgres.query", err)
	}
	return out, nil
}

// Row runs a SELECT and resolves with its first row, or nil without rows.
func (p *PostgresPlugin) Row(ctx context.Context, args map[string]any, data any) (any, error) {
	db, query, params, err := p.statement(args)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, classifyError("postgres.row", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, classifyError("postgres.row", rows.Err())
	}
	row, err := scanRow(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres.row: failed to scan row: %w", err)
	}
	return row, nil
}

// Exec runs an INSERT, UPDATE or DELETE and resolves with
// {affectedRows: n}.
func (p *PostgresPlugin) Exec(ctx context.Context, args map[string]any, data any) (any, error) {
	db, query, params, err := p.statement(args)
	if err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, classifyError("postgres.exec", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("postgres.exec: failed to get affected rows: %w", err)
	}
	return plugin.NewObject().Set("affectedRows", affected), nil
}

func (p *PostgresPlugin) statement(args map[string]any) (*sql.DB, string, []any, error) {
	query, params, err := toStatement(args)
	if err != nil {
		return nil, "", nil, err
	}
	db, err := p.conn()
	if err != nil {
		return nil, "", nil, err
	}
	return db, query, params, nil
}

func toStatement(args map[string]any) (string, []any, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", nil, plugin.Errorf("query is required").WithType(plugin.ErrorTypePermanent)
	}

	var params []any
	switch v := args["params"].(type) {
	case nil:
	case []any:
		params = make([]any, len(v))
		for i, param := range v {
			params[i] = toParam(param)
		}
	default:
		params = []any{toParam(v)}
	}
	return query, params, nil
}

// toParam passes scalars through and sends objects and arrays as JSON.
func toParam(v any) any {
	switch v.(type) {
	case map[string]any, []any, *plugin.Object:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(raw)
	}
	return v
}

// scanRow scans the current row into an object keyed by column name.
func scanRow(rows *sql.Rows) (*plugin.Object, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	values := make([]any, len(cols))
	valuePtrs := make([]any, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	row := plugin.NewObject()
	for i, col := range cols {
		row.Set(col, convertValue(colTypes[i].DatabaseTypeName(), values[i]))
	}
	return row, nil
}

func convertValue(dbType string, val any) any {
	switch v := val.(type) {
	case []byte:
		switch dbType {
		case "JSONB", "JSON":
			if decoded, err := plugin.DecodeJSON(v); err == nil {
				return decoded
			}
		}
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case int64:
		return float64(v)
	}
	return val
}

// classifyError marks connection failures as transient; everything else the
// database reports is permanent.
func classifyError(action string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	ae := plugin.NewError(fmt.Errorf("%s: %w", action, err)).WithType(plugin.ErrorTypePermanent)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		ae.WithCode(string(pqErr.Code)).WithMetadata("constraint", pqErr.Constraint)
		if pqErr.Code.Class() == "08" || pqErr.Code.Class() == "53" {
			ae.WithType(plugin.ErrorTypeTransient)
		}
		return ae
	}
	if errors.Is(err, sql.ErrConnDone) {
		ae.WithType(plugin.ErrorTypeTransient)
	}
	return ae
}

// maskConnectionString hides the password of URL style connection strings.
func maskConnectionString(connStr string) string {
	if !strings.Contains(connStr, "://") {
		return "***"
	}
	u, err := url.Parse(connStr)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
